package entity

import "time"

// OrderStatus resultado de ejecutar una acción de compra.
type OrderStatus string

const (
	OrderAddedToList  OrderStatus = "added_to_list"
	OrderVoiceOrdered OrderStatus = "voice_ordered"
	OrderNotified     OrderStatus = "notified"
	OrderFailed       OrderStatus = "failed"
	OrderDryRun       OrderStatus = "dry_run"
)

// Succeeded indica si el pedido se ejecutó efectivamente.
func (s OrderStatus) Succeeded() bool {
	return s == OrderAddedToList || s == OrderVoiceOrdered || s == OrderNotified
}

// OrderRecord entrada del historial de ejecuciones guardado en el ledger.
type OrderRecord struct {
	CycleID     string      `json:"cycle_id"`
	ProductID   string      `json:"product_id"`
	ProductName string      `json:"product_name"`
	CatalogRef  string      `json:"asin"`
	Packages    int         `json:"quantity"`
	Status      OrderStatus `json:"status"`
	Error       string      `json:"error_message,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	ProcessedAt time.Time   `json:"processed_at"`
}
