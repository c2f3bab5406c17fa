package reorder

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jhoicas/grocy-autobuy/internal/application/ports"
	"github.com/jhoicas/grocy-autobuy/internal/domain"
	"github.com/jhoicas/grocy-autobuy/internal/domain/entity"
	domreorder "github.com/jhoicas/grocy-autobuy/internal/domain/reorder"
)

// Verificar en tiempo de compilación que Executor implementa OrderExecutor.
var _ OrderExecutor = (*Executor)(nil)

// ExecutorConfig comportamiento del ejecutor de pedidos.
type ExecutorConfig struct {
	Mode          entity.ReorderMode
	NotifyOnOrder bool
	CartBaseURL   string
}

// Executor traduce una acción de compra a llamadas al puente de hogar inteligente
// según el modo configurado, y envía los avisos correspondientes.
type Executor struct {
	channel  ports.OrderChannel
	notifier ports.Notifier
	cfg      ExecutorConfig
	log      zerolog.Logger
}

// NewExecutor construye el ejecutor. channel puede ser nil solo en modo notify_only.
func NewExecutor(channel ports.OrderChannel, notifier ports.Notifier, cfg ExecutorConfig, log zerolog.Logger) (*Executor, error) {
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("%w: modo %q", domain.ErrInvalidConfig, cfg.Mode)
	}
	if channel == nil && cfg.Mode != entity.ModeNotifyOnly {
		return nil, fmt.Errorf("%w: el modo %s requiere canal de pedido", domain.ErrInvalidConfig, cfg.Mode)
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Executor{channel: channel, notifier: notifier, cfg: cfg, log: log}, nil
}

// Execute realiza el pedido. Devuelve el estado alcanzado o un error si el canal falló.
func (x *Executor) Execute(ctx context.Context, action entity.PurchaseAction) (entity.OrderStatus, error) {
	var (
		status entity.OrderStatus
		err    error
	)
	switch x.cfg.Mode {
	case entity.ModeVoiceOrder:
		err = x.channel.PlaceVoiceOrder(ctx, action.Product, action.Packages)
		status = entity.OrderVoiceOrdered
	case entity.ModeShoppingList:
		err = x.channel.AddToShoppingList(ctx, action.Product, action.Packages)
		status = entity.OrderAddedToList
	case entity.ModeNotifyOnly:
		// El aviso es el pedido: siempre se envía y cuenta como ejecutado.
		x.notify(ctx, ports.NotifyOrderPlaced, action, "")
		return entity.OrderNotified, nil
	}

	if err != nil {
		x.log.Error().Err(err).
			Str("product_id", action.Product.ID).
			Str("mode", string(x.cfg.Mode)).
			Msg("pedido fallido")
		if x.cfg.NotifyOnOrder {
			x.notify(ctx, ports.NotifyOrderFailed, action, err.Error())
		}
		return entity.OrderFailed, fmt.Errorf("%w: %w", domain.ErrOrderChannel, err)
	}

	x.log.Info().
		Str("product_id", action.Product.ID).
		Str("order", action.Description()).
		Str("status", string(status)).
		Msg("pedido ejecutado")
	if x.cfg.NotifyOnOrder {
		x.notify(ctx, ports.NotifyOrderPlaced, action, "")
	}
	return status, nil
}

// Preview avisa de lo que se pediría sin tocar el canal de pedido.
func (x *Executor) Preview(ctx context.Context, action entity.PurchaseAction) {
	if x.cfg.NotifyOnOrder {
		x.notify(ctx, ports.NotifyDryRun, action, "")
	}
}

func (x *Executor) notify(ctx context.Context, kind ports.NotificationKind, action entity.PurchaseAction, errMsg string) {
	cartURL := domreorder.CartURL(x.cfg.CartBaseURL, action.Product.CatalogRef, action.Packages)
	n := BuildNotification(x.cfg.Mode, kind, action, cartURL, errMsg)
	if err := x.notifier.Notify(ctx, n); err != nil {
		x.log.Warn().Err(err).Str("product_id", action.Product.ID).Msg("notificación fallida (ignorada)")
	}
}

// BuildNotification arma título y mensaje según el tipo de aviso y el modo.
func BuildNotification(mode entity.ReorderMode, kind ports.NotificationKind, action entity.PurchaseAction, cartURL, errMsg string) ports.Notification {
	p := action.Product
	stock := fmt.Sprintf("Stock: %s/%s %s", p.CurrentStock, p.MinimumStock, p.QuantityUnit)

	n := ports.Notification{Kind: kind, Action: &action, CartURL: cartURL}
	switch kind {
	case ports.NotifyOrderFailed:
		n.Title = "❌ Pedido fallido"
		n.Message = fmt.Sprintf("No se pudo pedir %s.\nError: %s", p.Name, errMsg)
	case ports.NotifyDryRun:
		n.Title = "🧪 Pedido (simulación)"
		n.Message = fmt.Sprintf("Se pediría: %s\nASIN: %s\n%s\nCarrito: %s", action.Description(), p.CatalogRef, stock, cartURL)
	default:
		n.Title = "🛒 Pedido Amazon"
		switch mode {
		case entity.ModeShoppingList:
			n.Message = fmt.Sprintf("Agregado a la lista de compras de Alexa:\n%s\n%s", action.Description(), stock)
		case entity.ModeNotifyOnly:
			n.Message = fmt.Sprintf("Producto bajo mínimo:\n%s\n%s\n\n👉 Al carrito: %s", action.Description(), stock, cartURL)
		default:
			n.Message = fmt.Sprintf("Pedido por voz enviado:\n%s\nASIN: %s", action.Description(), p.CatalogRef)
		}
	}
	return n
}
