package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/grocy-autobuy/internal/domain/entity"
	"github.com/jhoicas/grocy-autobuy/internal/domain/repository"
)

// Verificar en tiempo de compilación que LedgerStore implementa repository.LedgerStore.
var _ repository.LedgerStore = (*LedgerStore)(nil)

const lockRetryDelay = 50 * time.Millisecond

// LedgerStore persiste el ledger como un documento JSON.
// Las escrituras son atómicas (archivo temporal + rename) y se serializan con un lock
// de archivo ({path}.lock) entre procesos y un mutex dentro del proceso.
type LedgerStore struct {
	path        string
	lock        *flock.Flock
	lockTimeout time.Duration
	mu          sync.Mutex
	now         func() time.Time
	log         zerolog.Logger
}

// NewLedgerStore crea el store y el directorio del documento si no existe.
func NewLedgerStore(path string, lockTimeout time.Duration, log zerolog.Logger) (*LedgerStore, error) {
	if path == "" {
		return nil, errors.New("filestore: ruta vacía")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("filestore: crear directorio: %w", err)
	}
	if lockTimeout <= 0 {
		lockTimeout = 10 * time.Second
	}
	return &LedgerStore{
		path:        path,
		lock:        flock.New(path + ".lock"),
		lockTimeout: lockTimeout,
		now:         time.Now,
		log:         log,
	}, nil
}

// Path ruta del documento.
func (s *LedgerStore) Path() string { return s.path }

// Load lee el documento. Si falta o está corrupto devuelve un estado vacío.
func (s *LedgerStore) Load(ctx context.Context) (*entity.LedgerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	return s.read()
}

// Update ejecuta load-mutate-save bajo el lock. Si fn devuelve ErrUnchanged no se escribe.
func (s *LedgerStore) Update(ctx context.Context, fn func(state *entity.LedgerState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	state, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(state); err != nil {
		if errors.Is(err, repository.ErrUnchanged) {
			return nil
		}
		return err
	}
	return s.write(state)
}

func (s *LedgerStore) acquire(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	ok, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("filestore: lock %s: %w", s.lock.Path(), err)
	}
	if !ok {
		return fmt.Errorf("filestore: lock %s no obtenido", s.lock.Path())
	}
	return nil
}

func (s *LedgerStore) release() {
	if err := s.lock.Unlock(); err != nil {
		s.log.Warn().Err(err).Str("lock", s.lock.Path()).Msg("no se pudo liberar el lock del ledger")
	}
}

func (s *LedgerStore) read() (*entity.LedgerState, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return entity.NewLedgerState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: leer %s: %w", s.path, err)
	}
	state := entity.NewLedgerState()
	if err := json.Unmarshal(raw, state); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("ledger corrupto, se parte de un estado vacío")
		return entity.NewLedgerState(), nil
	}
	state.EnsureInit()
	return state, nil
}

func (s *LedgerStore) write(state *entity.LedgerState) error {
	state.LastUpdated = s.now()
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: serializar ledger: %w", err)
	}
	if err := renameio.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("filestore: escribir %s: %w", s.path, err)
	}
	return nil
}
