package reorder_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/grocy-autobuy/internal/application/ports"
	"github.com/jhoicas/grocy-autobuy/internal/application/reorder"
	"github.com/jhoicas/grocy-autobuy/internal/domain"
	"github.com/jhoicas/grocy-autobuy/internal/domain/entity"
	"github.com/jhoicas/grocy-autobuy/internal/infrastructure/filestore"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

type harness struct {
	store    *memStore
	inv      *fakeInventory
	channel  *fakeChannel
	notifier *recordingNotifier
	clock    *clock
	ledger   *reorder.Ledger
	budget   *reorder.Budget
	engine   *reorder.Engine
}

func newHarness(t *testing.T, mode entity.ReorderMode, maxPerDay int, dryRun bool) *harness {
	t.Helper()
	h := &harness{
		store:    newMemStore(),
		inv:      &fakeInventory{products: map[string]entity.Product{}},
		channel:  &fakeChannel{failFor: map[string]error{}},
		notifier: &recordingNotifier{},
		clock:    newClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)),
	}
	h.ledger = reorder.NewLedger(h.store, h.clock.Now, zerolog.Nop())
	h.budget = reorder.NewBudget(h.store, h.clock.Now)

	executor, err := reorder.NewExecutor(h.channel, h.notifier, reorder.ExecutorConfig{
		Mode:          mode,
		NotifyOnOrder: true,
	}, zerolog.Nop())
	require.NoError(t, err)

	h.engine, err = reorder.NewEngine(h.inv, executor, h.ledger, h.budget, reorder.EngineConfig{
		Mode:            mode,
		MaxOrdersPerDay: maxPerDay,
		DryRun:          dryRun,
	}, zerolog.Nop())
	require.NoError(t, err)
	return h
}

func (h *harness) run(t *testing.T) *reorder.CycleReport {
	t.Helper()
	report, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)
	return report
}

func skipReasons(r *reorder.CycleReport) map[string]reorder.SkipReason {
	out := make(map[string]reorder.SkipReason, len(r.Skips))
	for _, s := range r.Skips {
		out[s.ProductID] = s.Reason
	}
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// Escenarios de punta a punta
// ──────────────────────────────────────────────────────────────────────────────

// Escenario 1: producto bajo mínimo con ASIN → 1 paquete y entrega pendiente con stock 5.
func TestRunCycle_PedidoRegistraEntregaPendiente(t *testing.T) {
	h := newHarness(t, entity.ModeShoppingList, 10, false)
	h.inv.snapshot = []entity.Product{product("1", "Pasta", "5", "10", "B000PASTA1", 20)}

	report := h.run(t)

	require.Len(t, report.Actions, 1)
	assert.Equal(t, 1, report.Actions[0].Packages)
	require.Len(t, report.Executions, 1)
	assert.Equal(t, entity.OrderAddedToList, report.Executions[0].Status)
	assert.Equal(t, []string{"1"}, h.channel.list)

	state := h.store.snapshot()
	pending, ok := state.PendingDeliveries["1"]
	require.True(t, ok, "debe quedar una entrega pendiente")
	assert.True(t, pending.StockAtOrder.Equal(dec("5")))
	assert.Equal(t, 1, pending.Packages)
	assert.Equal(t, 1, state.DailyCounter.OrdersPlaced)
	require.Len(t, state.Orders, 1)
	assert.Equal(t, entity.OrderAddedToList, state.Orders[0].Status)
}

// Escenario 2: mismo stock en el ciclo siguiente → suprimido, sin nueva acción.
func TestRunCycle_EntregaPendienteSuprimeRepeticion(t *testing.T) {
	h := newHarness(t, entity.ModeShoppingList, 10, false)
	h.inv.snapshot = []entity.Product{product("1", "Pasta", "5", "10", "B000PASTA1", 20)}

	h.run(t)
	report := h.run(t)

	assert.Empty(t, report.Actions)
	assert.Equal(t, reorder.SkipDeliveryPending, skipReasons(report)["1"])
	assert.Equal(t, 1, h.channel.calls(), "no debe repetirse el pedido")
}

// Escenario 3: el stock sube a 12 → se concilia la entrega y no hay déficit.
func TestRunCycle_StockRepuestoConciliaSinNuevoPedido(t *testing.T) {
	h := newHarness(t, entity.ModeShoppingList, 10, false)
	h.inv.snapshot = []entity.Product{product("1", "Pasta", "5", "10", "B000PASTA1", 20)}
	h.run(t)

	// Snapshot desactualizado que aún incluye el producto.
	h.inv.snapshot = []entity.Product{product("1", "Pasta", "12", "10", "B000PASTA1", 20)}
	report := h.run(t)

	assert.Empty(t, report.Actions)
	assert.Contains(t, report.Reconciled, "1")
	assert.Equal(t, reorder.SkipNotUnderstocked, skipReasons(report)["1"])
	assert.Empty(t, h.store.snapshot().PendingDeliveries)
}

// Escenario 3 (variante): el producto ya no figura en el snapshot; el barrido lo concilia.
func TestRunCycle_BarridoConciliaProductoAusente(t *testing.T) {
	h := newHarness(t, entity.ModeShoppingList, 10, false)
	h.inv.snapshot = []entity.Product{product("1", "Pasta", "5", "10", "B000PASTA1", 20)}
	h.run(t)

	h.inv.snapshot = nil
	h.inv.products["1"] = product("1", "Pasta", "25", "10", "B000PASTA1", 20)
	report := h.run(t)

	assert.Equal(t, []string{"1"}, report.Reconciled)
	assert.Empty(t, report.FetchErrors)
	assert.Empty(t, h.store.snapshot().PendingDeliveries)
}

func TestRunCycle_BarridoRegistraErrorDeConsulta(t *testing.T) {
	h := newHarness(t, entity.ModeShoppingList, 10, false)
	h.inv.snapshot = []entity.Product{product("1", "Pasta", "5", "10", "B000PASTA1", 20)}
	h.run(t)

	h.inv.snapshot = nil
	report := h.run(t)

	assert.Empty(t, report.Reconciled)
	require.Len(t, report.FetchErrors, 1)
	assert.Contains(t, h.store.snapshot().PendingDeliveries, "1", "sin datos la entrega sigue pendiente")
}

// Escenario 4: sin tamaño de paquete → ceil(3/1) = 3.
func TestRunCycle_SinTamanoDePaquete(t *testing.T) {
	h := newHarness(t, entity.ModeShoppingList, 10, false)
	h.inv.snapshot = []entity.Product{product("2", "Arroz", "2", "5", "B000RICE00", 0)}

	report := h.run(t)

	require.Len(t, report.Actions, 1)
	assert.Equal(t, 3, report.Actions[0].Packages)
}

// Escenario 5: máximo diario 1 con dos productos elegibles.
func TestRunCycle_LimiteDiarioEnElMismoCiclo(t *testing.T) {
	h := newHarness(t, entity.ModeShoppingList, 1, false)
	h.inv.snapshot = []entity.Product{
		product("1", "Pasta", "5", "10", "B000PASTA1", 20),
		product("2", "Arroz", "2", "5", "B000RICE00", 1),
	}

	report := h.run(t)

	require.Len(t, report.Actions, 1)
	assert.Equal(t, "1", report.Actions[0].Product.ID, "el primero del snapshot gana el cupo")
	assert.Equal(t, reorder.SkipBudgetExhausted, skipReasons(report)["2"])
	assert.Equal(t, 1, h.store.snapshot().DailyCounter.OrdersPlaced)
}

// Escenario 6: sin referencia de catálogo nunca se pide.
func TestRunCycle_SinASINNuncaSePide(t *testing.T) {
	h := newHarness(t, entity.ModeShoppingList, 10, false)
	h.inv.snapshot = []entity.Product{product("3", "Sal", "0", "2", "", 1)}

	for i := 0; i < 5; i++ {
		report := h.run(t)
		assert.Empty(t, report.Actions)
		assert.Equal(t, reorder.SkipMissingCatalogRef, skipReasons(report)["3"])
	}
	assert.Zero(t, h.channel.calls())
	assert.Zero(t, h.store.snapshot().DailyCounter.OrdersPlaced)
}

// ──────────────────────────────────────────────────────────────────────────────
// Propiedades del motor
// ──────────────────────────────────────────────────────────────────────────────

func TestRunCycle_AccionesEnOrdenDelSnapshot(t *testing.T) {
	h := newHarness(t, entity.ModeShoppingList, 10, false)
	h.inv.snapshot = []entity.Product{
		product("c", "Café", "0", "1", "B000COFFEE", 1),
		product("a", "Azúcar", "0", "1", "B000SUGAR0", 1),
		product("b", "Leche", "0", "1", "B000MILK00", 1),
	}

	report := h.run(t)

	require.Len(t, report.Actions, 3)
	ids := []string{report.Actions[0].Product.ID, report.Actions[1].Product.ID, report.Actions[2].Product.ID}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
	assert.Equal(t, []string{"c", "a", "b"}, h.channel.list)
}

func TestRunCycle_NuncaSuperaElMaximoDiario(t *testing.T) {
	h := newHarness(t, entity.ModeShoppingList, 2, false)
	for i := 0; i < 6; i++ {
		id := string(rune('a' + i))
		h.inv.snapshot = append(h.inv.snapshot, product(id, "P"+id, "0", "3", "B00000000"+id, 1))
	}

	first := h.run(t)
	second := h.run(t)

	assert.Len(t, first.Actions, 2)
	assert.Empty(t, second.Actions)
	assert.Equal(t, 2, h.store.snapshot().DailyCounter.OrdersPlaced)

	// Día siguiente: el cupo se reinicia.
	h.clock.Advance(24 * time.Hour)
	third := h.run(t)
	assert.Len(t, third.Actions, 2)
	assert.Equal(t, 2, h.store.snapshot().DailyCounter.OrdersPlaced)
}

func TestRunCycle_FalloDeEjecucionConsumeCupoSinEntregaPendiente(t *testing.T) {
	h := newHarness(t, entity.ModeVoiceOrder, 10, false)
	h.inv.snapshot = []entity.Product{product("1", "Pasta", "5", "10", "B000PASTA1", 20)}
	h.channel.failFor["1"] = errors.New("home assistant caído")

	report := h.run(t)

	require.Len(t, report.Actions, 1, "la acción se decidió")
	require.Len(t, report.Executions, 1)
	assert.Equal(t, entity.OrderFailed, report.Executions[0].Status)
	assert.True(t, report.Executions[0].Mismatch())

	state := h.store.snapshot()
	assert.Equal(t, 1, state.DailyCounter.OrdersPlaced, "el cupo queda consumido")
	assert.Empty(t, state.PendingDeliveries, "sin entrega pendiente el producto sigue elegible")
	require.Len(t, state.Orders, 1)
	assert.Equal(t, entity.OrderFailed, state.Orders[0].Status)
	assert.NotEmpty(t, state.Orders[0].Error)
	assert.Contains(t, h.notifier.kinds(), ports.NotifyOrderFailed)

	// El canal se recupera: el próximo ciclo vuelve a pedir.
	delete(h.channel.failFor, "1")
	next := h.run(t)
	require.Len(t, next.Executions, 1)
	assert.Equal(t, entity.OrderVoiceOrdered, next.Executions[0].Status)
	assert.Equal(t, 2, h.store.snapshot().DailyCounter.OrdersPlaced)
}

func TestRunCycle_SimulacionNoPersisteNiPide(t *testing.T) {
	h := newHarness(t, entity.ModeVoiceOrder, 1, true)
	h.inv.snapshot = []entity.Product{
		product("1", "Pasta", "5", "10", "B000PASTA1", 20),
		product("2", "Arroz", "2", "5", "B000RICE00", 1),
	}

	first := h.run(t)
	second := h.run(t)

	assert.True(t, first.DryRun)
	assert.Zero(t, h.store.saveCount(), "la simulación no escribe el ledger")
	assert.Zero(t, h.channel.calls(), "la simulación no contacta el canal")

	// Los ciclos repetidos deciden lo mismo, incluido el límite diario.
	require.Len(t, first.Actions, 1)
	require.Len(t, second.Actions, 1)
	assert.Equal(t, first.Actions[0].Product.ID, second.Actions[0].Product.ID)
	assert.Equal(t, reorder.SkipBudgetExhausted, skipReasons(first)["2"])
	assert.Equal(t, entity.OrderDryRun, first.Executions[0].Status)
	assert.Equal(t, []ports.NotificationKind{ports.NotifyDryRun, ports.NotifyDryRun}, h.notifier.kinds())
}

func TestRunCycle_ErrorDeInventario(t *testing.T) {
	h := newHarness(t, entity.ModeShoppingList, 10, false)
	h.inv.listErr = errors.New("grocy no responde")

	report, err := h.engine.RunCycle(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInventory))
	require.NotNil(t, report)
	assert.Empty(t, report.Actions)
}

func TestRunCycle_LedgerInaccesibleAbortaElCiclo(t *testing.T) {
	h := newHarness(t, entity.ModeShoppingList, 10, false)
	h.inv.snapshot = []entity.Product{product("1", "Pasta", "5", "10", "B000PASTA1", 20)}
	h.store.updateErr = errors.New("disco lleno")

	_, err := h.engine.RunCycle(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrLedgerUnavailable))
	assert.Zero(t, h.channel.calls())
}

func TestDecideExecute_FasesSeparadas(t *testing.T) {
	h := newHarness(t, entity.ModeShoppingList, 10, false)
	snapshot := []entity.Product{
		product("1", "Pasta", "5", "10", "B000PASTA1", 20),
		product("3", "Sal", "0", "2", "", 1),
	}

	d, err := h.engine.Decide(context.Background(), snapshot)
	require.NoError(t, err)
	require.Len(t, d.Actions, 1)
	require.Len(t, d.Skips, 1)
	assert.NotEmpty(t, d.CycleID)
	assert.Equal(t, 1, h.store.snapshot().DailyCounter.OrdersPlaced, "el cupo se consume al decidir")
	assert.Zero(t, h.channel.calls())

	execs, err := h.engine.Execute(context.Background(), d)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, entity.OrderAddedToList, execs[0].Status)
}

func TestNewEngine_ConfiguracionInvalida(t *testing.T) {
	store := newMemStore()
	ledger := reorder.NewLedger(store, nil, zerolog.Nop())
	budget := reorder.NewBudget(store, nil)
	executor, err := reorder.NewExecutor(nil, nil, reorder.ExecutorConfig{Mode: entity.ModeNotifyOnly}, zerolog.Nop())
	require.NoError(t, err)
	inv := &fakeInventory{}

	_, err = reorder.NewEngine(inv, executor, ledger, budget, reorder.EngineConfig{Mode: entity.ModeNotifyOnly, MaxOrdersPerDay: 0}, zerolog.Nop())
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))

	_, err = reorder.NewEngine(inv, executor, ledger, budget, reorder.EngineConfig{Mode: "fax", MaxOrdersPerDay: 3}, zerolog.Nop())
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))

	_, err = reorder.NewEngine(nil, executor, ledger, budget, reorder.EngineConfig{Mode: entity.ModeNotifyOnly, MaxOrdersPerDay: 3}, zerolog.Nop())
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
}

// ──────────────────────────────────────────────────────────────────────────────
// Cancelación y fallos del inventario
// ──────────────────────────────────────────────────────────────────────────────

func TestRunCycle_CancelacionDuranteElPedidoRegistraLaEntrega(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order_history.json")
	snapshot := []entity.Product{
		product("1", "Pasta", "5", "10", "B000PASTA1", 20),
		product("2", "Arroz", "2", "5", "B000RICE00", 1),
	}
	// Cada llamada simula un proceso nuevo sobre el mismo archivo del ledger.
	newEngine := func(ch ports.OrderChannel) *reorder.Engine {
		store, err := filestore.NewLedgerStore(path, time.Second, zerolog.Nop())
		require.NoError(t, err)
		executor, err := reorder.NewExecutor(ch, nil, reorder.ExecutorConfig{Mode: entity.ModeShoppingList}, zerolog.Nop())
		require.NoError(t, err)
		inv := &fakeInventory{snapshot: snapshot, products: map[string]entity.Product{}}
		engine, err := reorder.NewEngine(inv, executor,
			reorder.NewLedger(store, nil, zerolog.Nop()), reorder.NewBudget(store, nil),
			reorder.EngineConfig{Mode: entity.ModeShoppingList, MaxOrdersPerDay: 10}, zerolog.Nop())
		require.NoError(t, err)
		return engine
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := &cancellingChannel{cancel: cancel}

	report, err := newEngine(ch).RunCycle(ctx)
	require.NoError(t, err, "lo ya pedido debe quedar registrado aunque el ciclo se cancele")
	require.Len(t, report.Executions, 2)
	assert.Equal(t, entity.OrderAddedToList, report.Executions[0].Status)
	assert.Equal(t, entity.OrderFailed, report.Executions[1].Status, "tras la cancelación no se lanzan más pedidos")
	assert.Equal(t, []string{"1"}, ch.orders())

	// Reinicio con el mismo stock: el producto 1 queda suprimido, no se pide dos veces.
	report, err = newEngine(ch).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reorder.SkipDeliveryPending, skipReasons(report)["1"])
	assert.Equal(t, []string{"1", "2"}, ch.orders())
}

func TestRunCycle_DatosDePedidoNoDisponibles(t *testing.T) {
	h := newHarness(t, entity.ModeShoppingList, 10, false)
	p := product("1", "Pasta", "5", "10", "", 1)
	p.DetailsErr = "grocy /userfields/products/1: HTTP 502"
	h.inv.snapshot = []entity.Product{p}

	report := h.run(t)

	assert.Empty(t, report.Actions)
	assert.Equal(t, reorder.SkipInventoryFailed, skipReasons(report)["1"], "no se informa como producto sin ASIN")
	assert.Zero(t, h.channel.calls())
	assert.Zero(t, h.store.snapshot().DailyCounter.OrdersPlaced)
}
