package ports

import (
	"context"

	"github.com/jhoicas/grocy-autobuy/internal/domain/entity"
)

// OrderChannel define el puerto de salida hacia el puente de hogar inteligente.
// Cada llamada lleva su propio timeout; un error significa que el pedido no se ejecutó.
type OrderChannel interface {
	PlaceVoiceOrder(ctx context.Context, product entity.Product, packages int) error
	AddToShoppingList(ctx context.Context, product entity.Product, packages int) error
}

// NotificationKind clasifica el motivo de una notificación.
type NotificationKind string

const (
	NotifyOrderPlaced NotificationKind = "order_placed"
	NotifyOrderFailed NotificationKind = "order_failed"
	NotifyDryRun      NotificationKind = "dry_run"
	NotifyInfo        NotificationKind = "info"
)

// Notification mensaje de aviso. Action viaja cuando la notificación se refiere a un pedido,
// para que cada canal formatee su propio detalle (p. ej. el enlace al carrito).
type Notification struct {
	Kind    NotificationKind
	Title   string
	Message string
	Action  *entity.PurchaseAction
	CartURL string
}

// Notifier envía avisos. Best-effort: el llamador registra y descarta los errores.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
