package reorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jhoicas/grocy-autobuy/internal/domain"
	"github.com/jhoicas/grocy-autobuy/internal/domain/entity"
	"github.com/jhoicas/grocy-autobuy/internal/domain/repository"
)

// Budget limita la cantidad de pedidos por día calendario.
// El contador vive en el mismo documento que el ledger y se reinicia de forma perezosa.
type Budget struct {
	store repository.LedgerStore
	now   func() time.Time
}

// NewBudget construye el presupuesto diario. now nil = time.Now.
func NewBudget(store repository.LedgerStore, now func() time.Time) *Budget {
	if now == nil {
		now = time.Now
	}
	return &Budget{store: store, now: now}
}

func (b *Budget) withStore(store repository.LedgerStore) *Budget {
	cp := *b
	cp.store = store
	return &cp
}

// OrdersToday pedidos registrados hoy (0 si el contador es de otro día).
func (b *Budget) OrdersToday(ctx context.Context) (int, error) {
	state, err := b.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
	}
	return state.DailyCounter.PlacedOn(b.now()), nil
}

// RemainingToday devuelve max(0, maxPerDay - pedidos de hoy).
func (b *Budget) RemainingToday(ctx context.Context, maxPerDay int) (int, error) {
	placed, err := b.OrdersToday(ctx)
	if err != nil {
		return 0, err
	}
	return remaining(maxPerDay, placed), nil
}

// RecordOrder incrementa el contador de hoy (reiniciándolo si cambió el día).
func (b *Budget) RecordOrder(ctx context.Context) error {
	err := b.store.Update(ctx, func(state *entity.LedgerState) error {
		state.DailyCounter.Normalize(b.now())
		state.DailyCounter.OrdersPlaced++
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: contador diario: %w", domain.ErrLedgerUnavailable, err)
	}
	return nil
}

// TryConsume comprueba y consume un cupo en la misma operación atómica.
// Devuelve false (sin mutar) si el cupo de hoy está agotado.
func (b *Budget) TryConsume(ctx context.Context, maxPerDay int) (bool, error) {
	consumed := false
	err := b.store.Update(ctx, func(state *entity.LedgerState) error {
		now := b.now()
		if remaining(maxPerDay, state.DailyCounter.PlacedOn(now)) == 0 {
			return repository.ErrUnchanged
		}
		state.DailyCounter.Normalize(now)
		state.DailyCounter.OrdersPlaced++
		consumed = true
		return nil
	})
	if err != nil && !errors.Is(err, repository.ErrUnchanged) {
		return false, fmt.Errorf("%w: contador diario: %w", domain.ErrLedgerUnavailable, err)
	}
	return consumed, nil
}

func remaining(maxPerDay, placed int) int {
	if r := maxPerDay - placed; r > 0 {
		return r
	}
	return 0
}
