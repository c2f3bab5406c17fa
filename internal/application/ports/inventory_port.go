package ports

import (
	"context"

	"github.com/jhoicas/grocy-autobuy/internal/domain/entity"
)

// InventoryProvider define el puerto de entrada del inventario externo (Grocy).
type InventoryProvider interface {
	// ListUnderstockedProducts devuelve la foto de productos bajo mínimo, en el orden del inventario.
	ListUnderstockedProducts(ctx context.Context) ([]entity.Product, error)
	// GetProduct devuelve el estado actual de un producto; domain.ErrNotFound si no existe.
	GetProduct(ctx context.Context, productID string) (*entity.Product, error)
}
