package reorder_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/grocy-autobuy/internal/application/ports"
	"github.com/jhoicas/grocy-autobuy/internal/domain"
	"github.com/jhoicas/grocy-autobuy/internal/domain/entity"
	"github.com/jhoicas/grocy-autobuy/internal/domain/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// Dobles de prueba
// ──────────────────────────────────────────────────────────────────────────────

// memStore LedgerStore en memoria que cuenta las escrituras.
type memStore struct {
	mu        sync.Mutex
	state     *entity.LedgerState
	saves     int
	updateErr error
}

func newMemStore() *memStore {
	return &memStore{state: entity.NewLedgerState()}
}

func (m *memStore) Load(context.Context) (*entity.LedgerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone(), nil
}

func (m *memStore) Update(_ context.Context, fn func(state *entity.LedgerState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	work := m.state.Clone()
	if err := fn(work); err != nil {
		if errors.Is(err, repository.ErrUnchanged) {
			return nil
		}
		return err
	}
	m.state = work
	m.saves++
	return nil
}

func (m *memStore) snapshot() *entity.LedgerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// fakeInventory inventario con snapshot fijo y productos consultables por ID.
type fakeInventory struct {
	snapshot []entity.Product
	products map[string]entity.Product
	listErr  error
}

func (f *fakeInventory) ListUnderstockedProducts(context.Context) ([]entity.Product, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]entity.Product(nil), f.snapshot...), nil
}

func (f *fakeInventory) GetProduct(_ context.Context, id string) (*entity.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

// fakeChannel canal de pedido que registra llamadas y puede fallar por producto.
type fakeChannel struct {
	mu      sync.Mutex
	voice   []string
	list    []string
	failFor map[string]error
}

func (f *fakeChannel) PlaceVoiceOrder(_ context.Context, p entity.Product, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[p.ID]; err != nil {
		return err
	}
	f.voice = append(f.voice, p.ID)
	return nil
}

func (f *fakeChannel) AddToShoppingList(_ context.Context, p entity.Product, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[p.ID]; err != nil {
		return err
	}
	f.list = append(f.list, p.ID)
	return nil
}

func (f *fakeChannel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.voice) + len(f.list)
}

// recordingNotifier guarda los avisos recibidos.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []ports.Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n ports.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) kinds() []ports.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ports.NotificationKind, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Kind)
	}
	return out
}

// clock reloj manual para controlar el cambio de día.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *clock { return &clock{t: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func product(id, name, stock, min, asin string, pkg int) entity.Product {
	return entity.Product{
		ID:           id,
		Name:         name,
		CurrentStock: dec(stock),
		MinimumStock: dec(min),
		CatalogRef:   asin,
		PackageSize:  pkg,
		QuantityUnit: "Stück",
	}
}

// cancellingChannel acepta el pedido y cancela el contexto del ciclo, como un apagado
// que llega mientras el pedido está en curso.
type cancellingChannel struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	placed []string
}

func (c *cancellingChannel) PlaceVoiceOrder(ctx context.Context, p entity.Product, packages int) error {
	return c.AddToShoppingList(ctx, p, packages)
}

func (c *cancellingChannel) AddToShoppingList(_ context.Context, p entity.Product, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.placed = append(c.placed, p.ID)
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *cancellingChannel) orders() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.placed...)
}
