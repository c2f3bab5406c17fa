package entity

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Product es la foto (solo lectura) de un producto del inventario externo (Grocy).
// Sin CatalogRef el producto nunca es elegible para un pedido.
type Product struct {
	ID           string
	Name         string
	CurrentStock decimal.Decimal
	MinimumStock decimal.Decimal
	CatalogRef   string // ASIN de Amazon; vacío = no comprable
	PackageSize  int    // unidades por paquete; <= 0 se interpreta como 1
	QuantityUnit string
	// DetailsErr no vacío: los datos de pedido (ASIN, unidades) no pudieron leerse en este ciclo.
	DetailsErr string
}

// HasCatalogRef indica si el producto tiene referencia de catálogo utilizable.
func (p Product) HasCatalogRef() bool {
	return strings.TrimSpace(p.CatalogRef) != ""
}

// DetailsAvailable indica si CatalogRef y PackageSize reflejan lo que tiene el inventario.
func (p Product) DetailsAvailable() bool {
	return p.DetailsErr == ""
}

// IsUnderstocked indica si el stock actual está por debajo del mínimo.
func (p Product) IsUnderstocked() bool {
	return p.CurrentStock.LessThan(p.MinimumStock)
}

// EffectivePackageSize aplica el mínimo de 1 unidad por paquete.
func (p Product) EffectivePackageSize() int {
	if p.PackageSize <= 0 {
		return 1
	}
	return p.PackageSize
}
