package entity

import "fmt"

// ReorderMode canal por el que se ejecutan los pedidos.
type ReorderMode string

const (
	ModeVoiceOrder   ReorderMode = "voice_order"
	ModeShoppingList ReorderMode = "shopping_list"
	ModeNotifyOnly   ReorderMode = "notify_only"
)

// Valid indica si el modo es uno de los soportados.
func (m ReorderMode) Valid() bool {
	switch m {
	case ModeVoiceOrder, ModeShoppingList, ModeNotifyOnly:
		return true
	}
	return false
}

// PurchaseAction es la decisión de pedir Packages paquetes de un producto en este ciclo.
type PurchaseAction struct {
	Product  Product
	Packages int
}

// Description texto corto del pedido: "Nombre" o "3x Nombre".
func (a PurchaseAction) Description() string {
	if a.Packages > 1 {
		return fmt.Sprintf("%dx %s", a.Packages, a.Product.Name)
	}
	return a.Product.Name
}

// Units total de unidades que cubre el pedido.
func (a PurchaseAction) Units() int {
	return a.Packages * a.Product.EffectivePackageSize()
}
