package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingDelivery es un pedido en tránsito para un producto (como máximo uno por producto).
// Mientras exista, el producto no se vuelve a pedir salvo que su stock supere StockAtOrder.
type PendingDelivery struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name,omitempty"`
	StockAtOrder decimal.Decimal `json:"stock_at_order"`
	OrderedAt    time.Time       `json:"ordered_at"`
	Packages     int             `json:"packages"`
}

// IsFulfilledBy indica si el stock observado demuestra que la entrega ya se recibió.
func (d PendingDelivery) IsFulfilledBy(currentStock decimal.Decimal) bool {
	return currentStock.GreaterThan(d.StockAtOrder)
}
