package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/pflag"

	"github.com/jhoicas/grocy-autobuy/internal/application/reorder"
	httpRouter "github.com/jhoicas/grocy-autobuy/internal/interfaces/http"
	"github.com/jhoicas/grocy-autobuy/pkg/config"
	"github.com/jhoicas/grocy-autobuy/pkg/jwt"
	"github.com/jhoicas/grocy-autobuy/pkg/logger"
)

var version = "dev"

type cliOptions struct {
	configPath   string
	check        bool
	daemon       bool
	test         bool
	status       bool
	clearPending string
	verbose      bool
	issueToken   string
	tokenScope   string
}

func parseFlags(args []string) (*cliOptions, *pflag.FlagSet) {
	opts := &cliOptions{}
	flags := pflag.NewFlagSet("autobuy", pflag.ExitOnError)
	flags.StringVarP(&opts.configPath, "config", "c", "config.yaml", "archivo de configuración YAML (opcional)")
	flags.BoolVar(&opts.check, "check", false, "ejecutar un solo ciclo de revisión (por defecto)")
	flags.BoolVarP(&opts.daemon, "daemon", "d", false, "revisar periódicamente y exponer la API de control")
	flags.BoolVar(&opts.test, "test", false, "probar las conexiones con Grocy, Home Assistant y Telegram")
	flags.BoolVar(&opts.status, "status", false, "mostrar el estado del ledger en JSON")
	flags.StringVar(&opts.clearPending, "clear-pending", "", "eliminar la entrega pendiente de un producto")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log en nivel debug")
	flags.StringVar(&opts.issueToken, "issue-token", "", "firmar un token para la API de control con este subject")
	flags.StringVar(&opts.tokenScope, "scope", jwt.ScopeRead, "scope del token emitido (read | admin)")

	// Sobrescriben la configuración (ver config.Load).
	flags.Bool("dry-run", false, "simular sin pedir ni persistir")
	flags.Int("interval", 60, "minutos entre ciclos en modo daemon")
	flags.Int("max-per-day", 10, "máximo de pedidos por día")
	flags.String("mode", "", "voice_order | shopping_list | notify_only")
	flags.String("ledger", "", "ruta del archivo del ledger")

	_ = flags.Parse(args)
	return opts, flags
}

func main() {
	opts, flags := parseFlags(os.Args[1:])

	cfg, err := config.Load(opts.configPath, flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cargar configuración:", err)
		os.Exit(2)
	}

	level := cfg.Log.Level
	if opts.verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{
		Env:        cfg.App.Env,
		Level:      level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var code int
	switch {
	case opts.issueToken != "":
		code = runIssueToken(cfg, opts)
	case opts.status:
		code = runStatus(ctx, cfg, log)
	case opts.clearPending != "":
		code = runClearPending(ctx, cfg, log, opts.clearPending)
	case opts.test:
		code = runTest(ctx, cfg, log)
	case opts.daemon:
		code = runDaemon(ctx, cfg, log)
	default:
		code = runCheck(ctx, cfg, log)
	}
	if code != 0 {
		stop()
		log.Close()
		os.Exit(code)
	}
}

func runIssueToken(cfg *config.Config, opts *cliOptions) int {
	if opts.tokenScope != jwt.ScopeRead && opts.tokenScope != jwt.ScopeAdmin {
		fmt.Fprintf(os.Stderr, "scope %q no soportado (read | admin)\n", opts.tokenScope)
		return 2
	}
	tok, err := jwt.Generate(cfg.JWT.Secret, opts.issueToken, opts.tokenScope, cfg.JWT.Issuer, cfg.JWT.Expiration)
	if err != nil {
		fmt.Fprintln(os.Stderr, "firmar token:", err)
		return 1
	}
	fmt.Println(tok)
	return 0
}

func runStatus(ctx context.Context, cfg *config.Config, log *logger.Logger) int {
	store, closeStore, err := newLedgerStore(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("abrir ledger")
		return 1
	}
	defer closeStore()

	engineCfg := engineConfig(cfg)
	ledger := reorder.NewLedger(store, nil, log.Component("ledger"))
	budget := reorder.NewBudget(store, nil)
	status, err := reorder.NewStatusService(ledger, budget, engineCfg, nil).Status(ctx)
	if err != nil {
		log.Error().Err(err).Msg("leer estado")
		return 1
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(status); err != nil {
		return 1
	}
	return 0
}

func runClearPending(ctx context.Context, cfg *config.Config, log *logger.Logger, productID string) int {
	store, closeStore, err := newLedgerStore(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("abrir ledger")
		return 1
	}
	defer closeStore()

	found, err := reorder.NewLedger(store, nil, log.Component("ledger")).Clear(ctx, productID)
	if err != nil {
		log.Error().Err(err).Msg("limpiar entrega pendiente")
		return 1
	}
	if !found {
		log.Warn().Str("product_id", productID).Msg("sin entrega pendiente para el producto")
		return 1
	}
	return 0
}

func runTest(ctx context.Context, cfg *config.Config, log *logger.Logger) int {
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("configuración")
		return 2
	}
	a, err := build(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("inicializar")
		return 1
	}
	defer a.close()

	if err := a.checkConnections(ctx); err != nil {
		log.Error().Err(err).Msg("prueba de conexiones fallida")
		return 1
	}
	log.Info().Msg("todas las conexiones correctas")
	return 0
}

func runCheck(ctx context.Context, cfg *config.Config, log *logger.Logger) int {
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("configuración")
		return 2
	}
	a, err := build(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("inicializar")
		return 1
	}
	defer a.close()

	report, err := a.scheduler.Trigger(ctx)
	if err != nil {
		log.Error().Err(err).Msg("ciclo de reposición")
		return 1
	}
	ok, failed, dry := report.Counts()
	log.Info().
		Str("cycle_id", report.CycleID).
		Int("actions", len(report.Actions)).
		Int("succeeded", ok).
		Int("failed", failed).
		Int("dry_run", dry).
		Msg("revisión completada")
	return 0
}

func runDaemon(ctx context.Context, cfg *config.Config, log *logger.Logger) int {
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("configuración")
		return 2
	}
	a, err := build(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("inicializar")
		return 1
	}
	defer a.close()

	log.Info().
		Str("mode", cfg.Order.Mode).
		Bool("dry_run", cfg.Order.DryRun).
		Int("max_per_day", cfg.Order.MaxOrdersPerDay).
		Dur("interval", cfg.Order.CheckInterval).
		Msg("iniciando daemon")

	done := make(chan struct{})
	go func() {
		a.scheduler.Run(ctx)
		close(done)
	}()

	var app *fiber.App
	if cfg.HTTP.Enabled {
		app = fiber.New(fiber.Config{
			AppName:               cfg.App.Name,
			ReadTimeout:           10 * time.Second,
			WriteTimeout:          5 * time.Minute,
			IdleTimeout:           60 * time.Second,
			DisableStartupMessage: true,
		})
		app.Use(recover.New())
		httpRouter.Router(app, httpRouter.RouterDeps{
			Status:    a.status,
			Trigger:   a.scheduler,
			JWTSecret: cfg.JWT.Secret,
			Version:   version,
			Log:       log.Component("http"),
		})
		if cfg.JWT.Secret == "" {
			log.Warn().Msg("JWT_SECRET vacío: la API de control no exige autenticación")
		}
		go func() {
			log.Info().Str("addr", cfg.HTTP.Addr()).Msg("API de control escuchando")
			if err := app.Listen(cfg.HTTP.Addr()); err != nil {
				log.Error().Err(err).Msg("servidor HTTP finalizado")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("señal de apagado recibida, deteniendo daemon...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if app != nil {
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("apagado del servidor")
		}
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn().Msg("el ciclo en curso no terminó a tiempo")
	}
	log.Info().Msg("daemon detenido")
	return 0
}
