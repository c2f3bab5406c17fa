package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/grocy-autobuy/internal/application/ports"
	"github.com/jhoicas/grocy-autobuy/internal/application/reorder"
	"github.com/jhoicas/grocy-autobuy/internal/domain/entity"
	"github.com/jhoicas/grocy-autobuy/internal/domain/repository"
	"github.com/jhoicas/grocy-autobuy/internal/infrastructure/filestore"
	"github.com/jhoicas/grocy-autobuy/internal/infrastructure/grocy"
	"github.com/jhoicas/grocy-autobuy/internal/infrastructure/homeassistant"
	"github.com/jhoicas/grocy-autobuy/internal/infrastructure/postgres"
	"github.com/jhoicas/grocy-autobuy/internal/infrastructure/telegram"
	"github.com/jhoicas/grocy-autobuy/internal/infrastructure/telemetry"
	"github.com/jhoicas/grocy-autobuy/pkg/config"
	"github.com/jhoicas/grocy-autobuy/pkg/logger"
)

// application componentes cableados para un proceso.
type application struct {
	cfg       *config.Config
	log       *logger.Logger
	grocy     *grocy.Client
	hass      *homeassistant.Client
	telegram  *telegram.Client
	engine    *reorder.Engine
	scheduler *reorder.Scheduler
	status    *reorder.StatusService
	closers   []func()
}

func engineConfig(cfg *config.Config) reorder.EngineConfig {
	return reorder.EngineConfig{
		Mode:            entity.ReorderMode(cfg.Order.Mode),
		MaxOrdersPerDay: cfg.Order.MaxOrdersPerDay,
		DryRun:          cfg.Order.DryRun,
	}
}

// newLedgerStore abre el backend de persistencia configurado. El closer libera el pool si existe.
func newLedgerStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.LedgerStore, func(), error) {
	switch cfg.Ledger.Backend {
	case config.LedgerBackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("conectar postgres: %w", err)
		}
		store := postgres.NewLedgerStore(pool, log.Component("ledger_store"))
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("esquema del ledger: %w", err)
		}
		log.Info().Msg("ledger en PostgreSQL")
		return store, closePool(pool), nil
	default:
		store, err := filestore.NewLedgerStore(cfg.Ledger.Path, cfg.Ledger.LockTimeout, log.Component("ledger_store"))
		if err != nil {
			return nil, nil, err
		}
		log.Debug().Str("path", store.Path()).Msg("ledger en archivo")
		return store, func() {}, nil
	}
}

func closePool(pool *pgxpool.Pool) func() {
	return func() { pool.Close() }
}

// build cablea clientes, ledger, motor y planificador según la configuración.
func build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*application, error) {
	a := &application{cfg: cfg, log: log}

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		log.Warn().Err(err).Msg("telemetría deshabilitada")
	} else {
		a.closers = append(a.closers, func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				log.Warn().Err(err).Msg("cerrar telemetría")
			}
		})
	}

	store, closeStore, err := newLedgerStore(ctx, cfg, log)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	a.grocy = grocy.New(cfg.Grocy, log.Component("grocy"))

	var notifiers reorder.FanoutNotifier
	if cfg.HomeAssistant.Token != "" {
		a.hass = homeassistant.New(cfg.HomeAssistant, log.Component("homeassistant"))
		if cfg.HomeAssistant.NotificationService != "" {
			notifiers = append(notifiers, a.hass)
		}
	}
	if cfg.Telegram.Enabled {
		a.telegram = telegram.New(cfg.Telegram, log.Component("telegram"))
		notifiers = append(notifiers, a.telegram)
	}

	var channel ports.OrderChannel
	if cfg.Order.NeedsBridge() {
		if a.hass == nil {
			a.close()
			return nil, fmt.Errorf("el modo %s requiere Home Assistant", cfg.Order.Mode)
		}
		channel = a.hass
	}

	engineCfg := engineConfig(cfg)
	executor, err := reorder.NewExecutor(channel, notifiers, reorder.ExecutorConfig{
		Mode:          engineCfg.Mode,
		NotifyOnOrder: cfg.Order.NotifyOnOrder,
		CartBaseURL:   cfg.Order.CartBaseURL,
	}, log.Component("executor"))
	if err != nil {
		a.close()
		return nil, err
	}

	ledger := reorder.NewLedger(store, nil, log.Component("ledger"))
	budget := reorder.NewBudget(store, nil)
	a.engine, err = reorder.NewEngine(a.grocy, executor, ledger, budget, engineCfg, log.Component("engine"))
	if err != nil {
		a.close()
		return nil, err
	}
	a.scheduler = reorder.NewScheduler(a.engine, cfg.Order.CheckInterval, log.Component("scheduler"))
	a.status = reorder.NewStatusService(ledger, budget, engineCfg, a.scheduler)
	return a, nil
}

// checkConnections prueba cada integración configurada y devuelve todos los fallos juntos.
func (a *application) checkConnections(ctx context.Context) error {
	var errs []error

	if err := a.grocy.TestConnection(ctx); err != nil {
		errs = append(errs, fmt.Errorf("grocy: %w", err))
	} else {
		a.log.Info().Str("url", a.cfg.Grocy.URL).Msg("Grocy OK")
	}

	if a.hass != nil {
		if err := a.hass.TestConnection(ctx); err != nil {
			errs = append(errs, fmt.Errorf("home assistant: %w", err))
		} else {
			a.log.Info().Str("url", a.cfg.HomeAssistant.URL).Msg("Home Assistant OK")
			for _, id := range a.bridgeEntities() {
				ok, err := a.hass.EntityAvailable(ctx, id)
				switch {
				case err != nil:
					errs = append(errs, fmt.Errorf("entidad %s: %w", id, err))
				case !ok:
					errs = append(errs, fmt.Errorf("entidad %s no disponible", id))
				default:
					a.log.Info().Str("entity_id", id).Msg("entidad disponible")
				}
			}
		}
	}

	if a.telegram != nil {
		if err := a.telegram.TestConnection(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telegram: %w", err))
		} else {
			a.log.Info().Msg("Telegram OK")
		}
	}

	return errors.Join(errs...)
}

func (a *application) bridgeEntities() []string {
	switch a.cfg.Order.Mode {
	case config.ModeVoiceOrder:
		return []string{a.hass.AlexaEntityID()}
	case config.ModeShoppingList:
		return []string{a.hass.ShoppingListEntity()}
	}
	return nil
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
