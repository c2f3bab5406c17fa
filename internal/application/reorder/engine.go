package reorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jhoicas/grocy-autobuy/internal/application/ports"
	"github.com/jhoicas/grocy-autobuy/internal/domain"
	"github.com/jhoicas/grocy-autobuy/internal/domain/entity"
	domreorder "github.com/jhoicas/grocy-autobuy/internal/domain/reorder"
)

const instrumentationName = "github.com/jhoicas/grocy-autobuy/reorder"

// ledgerWriteTimeout plazo de las escrituras posteriores a un pedido; no dependen de la
// cancelación del ciclo para que un pedido hecho nunca quede sin entrega pendiente.
const ledgerWriteTimeout = 30 * time.Second

// OrderExecutor ejecuta las acciones decididas contra el canal de pedido.
type OrderExecutor interface {
	Execute(ctx context.Context, action entity.PurchaseAction) (entity.OrderStatus, error)
	// Preview se usa en modo simulación: solo avisa, nunca pide.
	Preview(ctx context.Context, action entity.PurchaseAction)
}

// EngineConfig valores de configuración que consume el motor.
type EngineConfig struct {
	Mode            entity.ReorderMode
	MaxOrdersPerDay int
	DryRun          bool
}

// Engine es el motor de decisión de reposición. No guarda estado entre ciclos
// salvo a través del Ledger y del Budget inyectados.
type Engine struct {
	inventory ports.InventoryProvider
	executor  OrderExecutor
	ledger    *Ledger
	budget    *Budget
	cfg       EngineConfig
	log       zerolog.Logger
	now       func() time.Time

	tracer     trace.Tracer
	actions    metric.Int64Counter
	skips      metric.Int64Counter
	executions metric.Int64Counter
}

// NewEngine construye el motor validando que reciba valores de configuración utilizables.
func NewEngine(
	inventory ports.InventoryProvider,
	executor OrderExecutor,
	ledger *Ledger,
	budget *Budget,
	cfg EngineConfig,
	log zerolog.Logger,
) (*Engine, error) {
	if inventory == nil || executor == nil || ledger == nil || budget == nil {
		return nil, fmt.Errorf("%w: faltan colaboradores", domain.ErrInvalidConfig)
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("%w: modo %q", domain.ErrInvalidConfig, cfg.Mode)
	}
	if cfg.MaxOrdersPerDay <= 0 {
		return nil, fmt.Errorf("%w: máximo diario %d", domain.ErrInvalidConfig, cfg.MaxOrdersPerDay)
	}

	meter := otel.Meter(instrumentationName)
	actions, err := meter.Int64Counter("autobuy.actions.emitted",
		metric.WithDescription("Acciones de compra emitidas por el motor"))
	if err != nil {
		return nil, fmt.Errorf("métrica actions: %w", err)
	}
	skips, err := meter.Int64Counter("autobuy.products.skipped",
		metric.WithDescription("Productos descartados por motivo"))
	if err != nil {
		return nil, fmt.Errorf("métrica skips: %w", err)
	}
	executions, err := meter.Int64Counter("autobuy.orders.executed",
		metric.WithDescription("Ejecuciones de pedidos por estado"))
	if err != nil {
		return nil, fmt.Errorf("métrica executions: %w", err)
	}

	return &Engine{
		inventory:  inventory,
		executor:   executor,
		ledger:     ledger,
		budget:     budget,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
		tracer:     otel.Tracer(instrumentationName),
		actions:    actions,
		skips:      skips,
		executions: executions,
	}, nil
}

// Config devuelve la configuración efectiva del motor.
func (e *Engine) Config() EngineConfig { return e.cfg }

// cycleState devuelve ledger y presupuesto para un ciclo; en simulación ambos trabajan
// sobre una copia en memoria compartida del documento persistido.
func (e *Engine) cycleState() (*Ledger, *Budget) {
	if !e.cfg.DryRun {
		return e.ledger, e.budget
	}
	sandbox := newSandboxStore(e.ledger.store)
	budgetStore := sandbox
	if e.budget.store != e.ledger.store {
		budgetStore = newSandboxStore(e.budget.store)
	}
	return e.ledger.withStore(sandbox), e.budget.withStore(budgetStore)
}

// Decide recorre el snapshot en su orden y produce las acciones de compra del ciclo.
// El cupo diario se consume al decidir (antes de ejecutar) para que el límite valga para todo el lote.
func (e *Engine) Decide(ctx context.Context, snapshot []entity.Product) (*Decision, error) {
	ledger, budget := e.cycleState()
	return e.decide(ctx, uuid.NewString(), snapshot, ledger, budget)
}

func (e *Engine) decide(
	ctx context.Context,
	cycleID string,
	snapshot []entity.Product,
	ledger *Ledger,
	budget *Budget,
) (*Decision, error) {
	ctx, span := e.tracer.Start(ctx, "reorder.decide", trace.WithAttributes(
		attribute.String("cycle.id", cycleID),
		attribute.Int("snapshot.size", len(snapshot)),
		attribute.Bool("dry_run", e.cfg.DryRun),
	))
	defer span.End()

	d := &Decision{
		CycleID:   cycleID,
		DryRun:    e.cfg.DryRun,
		DecidedAt: e.now(),
		ledger:    ledger,
	}
	log := e.log.With().Str("cycle_id", cycleID).Logger()

	skip := func(p entity.Product, reason SkipReason, detail string) {
		d.Skips = append(d.Skips, Skip{ProductID: p.ID, ProductName: p.Name, Reason: reason, Detail: detail})
		e.skips.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
		log.Info().
			Str("product_id", p.ID).
			Str("product", p.Name).
			Str("reason", string(reason)).
			Msg(detail)
	}

	for _, p := range snapshot {
		// a. Conciliar primero: un producto repuesto vuelve a ser elegible en el mismo ciclo.
		received, err := ledger.Reconcile(ctx, p)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "reconcile")
			return nil, err
		}
		if received {
			d.Reconciled = append(d.Reconciled, p.ID)
		}

		// El snapshot puede estar desactualizado: se vuelve a comprobar el déficit.
		if !p.IsUnderstocked() {
			skip(p, SkipNotUnderstocked, fmt.Sprintf("stock %s no está bajo el mínimo %s", p.CurrentStock, p.MinimumStock))
			continue
		}

		// Fallo transitorio al leer ASIN/unidades: no se confunde con "sin referencia".
		if !p.DetailsAvailable() {
			skip(p, SkipInventoryFailed, "datos de pedido no disponibles: "+p.DetailsErr)
			continue
		}

		// b. Sin referencia de catálogo nunca se pide.
		if !p.HasCatalogRef() {
			skip(p, SkipMissingCatalogRef, "sin referencia de catálogo (ASIN)")
			continue
		}

		// c. Entrega pendiente sin reposición observada.
		suppressed, err := ledger.IsSuppressed(ctx, p)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if suppressed {
			skip(p, SkipDeliveryPending, fmt.Sprintf("entrega pendiente, stock actual %s sin aumento", p.CurrentStock))
			continue
		}

		// d. Cantidad de paquetes.
		packages := domreorder.ComputePackages(p.CurrentStock, p.MinimumStock, p.PackageSize)
		if packages == 0 {
			skip(p, SkipZeroQuantity, "cantidad calculada cero")
			continue
		}

		// e + f. Cupo diario: comprobar y consumir en una sola operación.
		ok, err := budget.TryConsume(ctx, e.cfg.MaxOrdersPerDay)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if !ok {
			skip(p, SkipBudgetExhausted, fmt.Sprintf("límite diario alcanzado (%d)", e.cfg.MaxOrdersPerDay))
			continue
		}

		action := entity.PurchaseAction{Product: p, Packages: packages}
		d.Actions = append(d.Actions, action)
		e.actions.Add(ctx, 1)
		log.Info().
			Str("product_id", p.ID).
			Str("product", p.Name).
			Str("asin", p.CatalogRef).
			Int("packages", packages).
			Str("stock", p.CurrentStock.String()).
			Str("min_stock", p.MinimumStock.String()).
			Msg("acción de compra decidida")
	}

	span.SetAttributes(
		attribute.Int("actions", len(d.Actions)),
		attribute.Int("skips", len(d.Skips)),
	)
	return d, nil
}

// Execute ejecuta las acciones de una decisión en orden. Un fallo de ejecución no se revierte
// del cupo diario ni crea entrega pendiente; el producto sigue elegible en el próximo ciclo.
// Si ctx se cancela no se lanzan más pedidos; los restantes quedan como fallidos. Lo ya
// pedido se registra igual en el ledger.
// Solo devuelve error si el ledger no puede escribirse.
func (e *Engine) Execute(ctx context.Context, d *Decision) ([]Execution, error) {
	ctx, span := e.tracer.Start(ctx, "reorder.execute", trace.WithAttributes(
		attribute.String("cycle.id", d.CycleID),
		attribute.Int("actions", len(d.Actions)),
	))
	defer span.End()

	ledger := d.ledger
	if ledger == nil {
		ledger = e.ledger
	}
	log := e.log.With().Str("cycle_id", d.CycleID).Logger()

	results := make([]Execution, 0, len(d.Actions))
	for _, action := range d.Actions {
		created := e.now()

		if ctxErr := ctx.Err(); ctxErr != nil {
			log.Warn().
				Str("product_id", action.Product.ID).
				Msg("ciclo cancelado, no se lanza el pedido; el cupo diario queda consumido")
			res := Execution{Action: action, Status: entity.OrderFailed, Error: "ciclo cancelado: " + ctxErr.Error()}
			results = append(results, res)
			e.executions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(entity.OrderFailed))))
			if err := e.persist(ctx, func(wctx context.Context) error {
				return ledger.RecordExecution(wctx, e.record(d.CycleID, res, created))
			}); err != nil {
				span.RecordError(err)
				return results, err
			}
			continue
		}

		if d.DryRun {
			log.Info().
				Str("product_id", action.Product.ID).
				Str("order", action.Description()).
				Msg("[DRY RUN] se pediría")
			e.executor.Preview(ctx, action)
			results = append(results, Execution{Action: action, Status: entity.OrderDryRun})
			e.executions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(entity.OrderDryRun))))
			continue
		}

		status, execErr := e.executor.Execute(ctx, action)
		if execErr != nil || !status.Succeeded() {
			if execErr == nil {
				execErr = fmt.Errorf("estado inesperado %q", status)
			}
			log.Warn().
				Err(execErr).
				Str("product_id", action.Product.ID).
				Str("order", action.Description()).
				Msg("acción decidida pero no ejecutada; el cupo diario queda consumido")
			res := Execution{Action: action, Status: entity.OrderFailed, Error: execErr.Error()}
			results = append(results, res)
			e.executions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(entity.OrderFailed))))
			if err := e.persist(ctx, func(wctx context.Context) error {
				return ledger.RecordExecution(wctx, e.record(d.CycleID, res, created))
			}); err != nil {
				span.RecordError(err)
				return results, err
			}
			continue
		}

		// El pedido ya salió: la entrega pendiente se registra aunque el ciclo se esté cancelando.
		if err := e.persist(ctx, func(wctx context.Context) error {
			return ledger.RecordOrder(wctx, action.Product, action.Packages)
		}); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "ledger")
			return results, err
		}
		res := Execution{Action: action, Status: status}
		results = append(results, res)
		e.executions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
		if err := e.persist(ctx, func(wctx context.Context) error {
			return ledger.RecordExecution(wctx, e.record(d.CycleID, res, created))
		}); err != nil {
			span.RecordError(err)
			return results, err
		}
	}
	return results, nil
}

// persist ejecuta una escritura del ledger desacoplada de la cancelación de ctx, con plazo propio.
func (e *Engine) persist(ctx context.Context, write func(ctx context.Context) error) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()
	return write(wctx)
}

func (e *Engine) record(cycleID string, res Execution, created time.Time) entity.OrderRecord {
	return entity.OrderRecord{
		CycleID:     cycleID,
		ProductID:   res.Action.Product.ID,
		ProductName: res.Action.Product.Name,
		CatalogRef:  res.Action.Product.CatalogRef,
		Packages:    res.Action.Packages,
		Status:      res.Status,
		Error:       res.Error,
		CreatedAt:   created,
		ProcessedAt: e.now(),
	}
}

// RunCycle ejecuta un ciclo completo: snapshot → barrido de entregas → decisión → ejecución.
// Los fallos por producto quedan en el reporte; solo se propagan los fallos del inventario
// al listar y los del ledger.
func (e *Engine) RunCycle(ctx context.Context) (*CycleReport, error) {
	cycleID := uuid.NewString()
	ctx, span := e.tracer.Start(ctx, "reorder.cycle", trace.WithAttributes(
		attribute.String("cycle.id", cycleID),
		attribute.String("mode", string(e.cfg.Mode)),
		attribute.Bool("dry_run", e.cfg.DryRun),
	))
	defer span.End()

	report := &CycleReport{CycleID: cycleID, DryRun: e.cfg.DryRun, StartedAt: e.now()}
	log := e.log.With().Str("cycle_id", cycleID).Logger()
	log.Info().Bool("dry_run", e.cfg.DryRun).Msg("=== inicio de revisión de stock ===")

	snapshot, err := e.inventory.ListUnderstockedProducts(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inventory")
		report.FinishedAt = e.now()
		return report, fmt.Errorf("%w: %w", domain.ErrInventory, err)
	}
	report.Snapshot = len(snapshot)
	log.Info().Int("products", len(snapshot)).Msg("productos bajo mínimo")

	ledger, budget := e.cycleState()

	swept, fetchErrs, err := e.sweepPending(ctx, ledger, snapshot)
	if err != nil {
		return report, err
	}
	report.Reconciled = append(report.Reconciled, swept...)
	report.FetchErrors = fetchErrs

	decision, err := e.decide(ctx, cycleID, snapshot, ledger, budget)
	if err != nil {
		report.FinishedAt = e.now()
		return report, err
	}
	report.Actions = decision.Actions
	report.Skips = decision.Skips
	report.Reconciled = append(report.Reconciled, decision.Reconciled...)

	executions, err := e.Execute(ctx, decision)
	report.Executions = executions
	report.FinishedAt = e.now()
	if err != nil {
		return report, err
	}

	ok, failed, dry := report.Counts()
	log.Info().
		Int("succeeded", ok).
		Int("failed", failed).
		Int("dry_run", dry).
		Int("skipped", len(report.Skips)).
		Int("reconciled", len(report.Reconciled)).
		Msg("=== fin de revisión de stock ===")
	return report, nil
}

// sweepPending refresca las entregas pendientes de productos ausentes del snapshot
// (normalmente porque ya se repusieron) para darlas por recibidas.
func (e *Engine) sweepPending(ctx context.Context, ledger *Ledger, snapshot []entity.Product) ([]string, []string, error) {
	pending, err := ledger.Pending(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(pending) == 0 {
		return nil, nil, nil
	}
	inSnapshot := make(map[string]struct{}, len(snapshot))
	for _, p := range snapshot {
		inSnapshot[p.ID] = struct{}{}
	}

	var reconciled, fetchErrs []string
	for _, d := range pending {
		if _, ok := inSnapshot[d.ProductID]; ok {
			continue
		}
		product, err := e.inventory.GetProduct(ctx, d.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				e.log.Warn().Str("product_id", d.ProductID).Msg("producto pendiente ya no existe en el inventario")
			} else {
				e.log.Warn().Err(err).Str("product_id", d.ProductID).Msg("no se pudo refrescar producto pendiente")
			}
			fetchErrs = append(fetchErrs, fmt.Sprintf("%s: %v", d.ProductID, err))
			continue
		}
		received, err := ledger.Reconcile(ctx, *product)
		if err != nil {
			return reconciled, fetchErrs, err
		}
		if received {
			reconciled = append(reconciled, d.ProductID)
		}
	}
	return reconciled, fetchErrs, nil
}
