package reorder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/jhoicas/grocy-autobuy/internal/domain"
)

// CycleRunner ejecuta un ciclo completo de reposición.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*CycleReport, error)
}

// Scheduler repite los ciclos con intervalo fijo y garantiza como máximo un ciclo en curso,
// tanto para el ticker como para los disparos manuales (HTTP / CLI).
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	inFlight *semaphore.Weighted
	log      zerolog.Logger

	mu      sync.RWMutex
	last    *CycleReport
	lastErr error
	running bool
}

// NewScheduler construye el planificador.
func NewScheduler(runner CycleRunner, interval time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		inFlight: semaphore.NewWeighted(1),
		log:      log,
	}
}

// Run bloquea hasta que ctx se cancele: ejecuta un ciclo inmediato y luego uno por intervalo.
// Un tick que coincide con un ciclo manual en curso se omite.
func (s *Scheduler) Run(ctx context.Context) {
	s.setRunning(true)
	defer s.setRunning(false)

	s.log.Info().Dur("interval", s.interval).Msg("planificador iniciado")
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("planificador detenido")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.Trigger(ctx); err != nil {
		if errors.Is(err, domain.ErrCycleInProgress) {
			s.log.Warn().Msg("ciclo anterior aún en curso, se omite este disparo")
			return
		}
		s.log.Error().Err(err).Msg("ciclo de reposición con error")
	}
}

// Trigger ejecuta un ciclo ahora si no hay otro en curso; si lo hay devuelve domain.ErrCycleInProgress.
func (s *Scheduler) Trigger(ctx context.Context) (*CycleReport, error) {
	if !s.inFlight.TryAcquire(1) {
		return nil, domain.ErrCycleInProgress
	}
	defer s.inFlight.Release(1)

	report, err := s.runner.RunCycle(ctx)

	s.mu.Lock()
	if report != nil {
		s.last = report
	}
	s.lastErr = err
	s.mu.Unlock()

	return report, err
}

// LastReport devuelve el último ciclo ejecutado y su error, si hubo.
func (s *Scheduler) LastReport() (*CycleReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.lastErr
}

// Running indica si el bucle periódico está activo.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}
