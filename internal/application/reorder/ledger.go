package reorder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/grocy-autobuy/internal/domain"
	"github.com/jhoicas/grocy-autobuy/internal/domain/entity"
	"github.com/jhoicas/grocy-autobuy/internal/domain/repository"
)

// Ledger registra las entregas pendientes por producto y suprime pedidos repetidos
// hasta observar que el stock subió desde el momento del pedido.
// Cada operación es un ciclo load-mutate-save atómico sobre el LedgerStore.
type Ledger struct {
	store repository.LedgerStore
	now   func() time.Time
	log   zerolog.Logger
}

// NewLedger construye el ledger sobre un store. now nil = time.Now.
func NewLedger(store repository.LedgerStore, now func() time.Time, log zerolog.Logger) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, now: now, log: log}
}

// withStore devuelve una copia del ledger apuntando a otro store (modo simulación).
func (l *Ledger) withStore(store repository.LedgerStore) *Ledger {
	cp := *l
	cp.store = store
	return &cp
}

// IsSuppressed es true si hay una entrega pendiente y el stock actual no superó el registrado al pedir.
func (l *Ledger) IsSuppressed(ctx context.Context, p entity.Product) (bool, error) {
	state, err := l.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
	}
	pending, ok := state.PendingDeliveries[p.ID]
	if !ok {
		return false, nil
	}
	return !pending.IsFulfilledBy(p.CurrentStock), nil
}

// RecordOrder crea o sobrescribe la entrega pendiente con el stock y la hora actuales.
// No acumula cantidades: gana la última escritura.
func (l *Ledger) RecordOrder(ctx context.Context, p entity.Product, packages int) error {
	err := l.store.Update(ctx, func(state *entity.LedgerState) error {
		state.PendingDeliveries[p.ID] = entity.PendingDelivery{
			ProductID:    p.ID,
			ProductName:  p.Name,
			StockAtOrder: p.CurrentStock,
			OrderedAt:    l.now(),
			Packages:     packages,
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: registrar entrega pendiente %s: %w", domain.ErrLedgerUnavailable, p.ID, err)
	}
	l.log.Info().
		Str("product_id", p.ID).
		Str("product", p.Name).
		Str("stock_at_order", p.CurrentStock.String()).
		Int("packages", packages).
		Msg("entrega pendiente registrada")
	return nil
}

// Reconcile elimina la entrega pendiente si el stock actual superó el registrado.
// Devuelve true cuando la entrega se dio por recibida.
func (l *Ledger) Reconcile(ctx context.Context, p entity.Product) (bool, error) {
	var removed entity.PendingDelivery
	err := l.store.Update(ctx, func(state *entity.LedgerState) error {
		pending, ok := state.PendingDeliveries[p.ID]
		if !ok || !pending.IsFulfilledBy(p.CurrentStock) {
			return repository.ErrUnchanged
		}
		removed = pending
		delete(state.PendingDeliveries, p.ID)
		return nil
	})
	if errors.Is(err, repository.ErrUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: conciliar %s: %w", domain.ErrLedgerUnavailable, p.ID, err)
	}
	if removed.ProductID == "" {
		return false, nil
	}
	l.log.Info().
		Str("product_id", p.ID).
		Str("product", p.Name).
		Str("stock_at_order", removed.StockAtOrder.String()).
		Str("current_stock", p.CurrentStock.String()).
		Msg("entrega recibida, producto liberado")
	return true, nil
}

// Clear elimina manualmente la entrega pendiente de un producto; false si no existía.
func (l *Ledger) Clear(ctx context.Context, productID string) (bool, error) {
	found := false
	err := l.store.Update(ctx, func(state *entity.LedgerState) error {
		if _, ok := state.PendingDeliveries[productID]; !ok {
			return repository.ErrUnchanged
		}
		found = true
		delete(state.PendingDeliveries, productID)
		return nil
	})
	if err != nil && !errors.Is(err, repository.ErrUnchanged) {
		return false, fmt.Errorf("%w: limpiar %s: %w", domain.ErrLedgerUnavailable, productID, err)
	}
	if found {
		l.log.Info().Str("product_id", productID).Msg("entrega pendiente eliminada manualmente")
	}
	return found, nil
}

// Pending lista las entregas pendientes ordenadas por fecha de pedido.
func (l *Ledger) Pending(ctx context.Context) ([]entity.PendingDelivery, error) {
	state, err := l.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
	}
	out := make([]entity.PendingDelivery, 0, len(state.PendingDeliveries))
	for _, d := range state.PendingDeliveries {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderedAt.Equal(out[j].OrderedAt) {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].OrderedAt.Before(out[j].OrderedAt)
	})
	return out, nil
}

// RecordExecution agrega una ejecución (exitosa o fallida) al historial.
func (l *Ledger) RecordExecution(ctx context.Context, rec entity.OrderRecord) error {
	err := l.store.Update(ctx, func(state *entity.LedgerState) error {
		state.AppendOrder(rec)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: historial: %w", domain.ErrLedgerUnavailable, err)
	}
	return nil
}

// History devuelve las últimas ejecuciones, la más reciente primero.
func (l *Ledger) History(ctx context.Context, limit int) ([]entity.OrderRecord, error) {
	state, err := l.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
	}
	n := len(state.Orders)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]entity.OrderRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, state.Orders[i])
	}
	return out, nil
}
