package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound          = errors.New("recurso no encontrado")
	ErrUnauthorized      = errors.New("credenciales rechazadas")
	ErrInvalidConfig     = errors.New("configuración del motor inválida")
	ErrCycleInProgress   = errors.New("ya hay un ciclo de reposición en curso")
	ErrLedgerUnavailable = errors.New("ledger no disponible")
	ErrInventory         = errors.New("inventario no disponible")
	ErrOrderChannel      = errors.New("canal de pedido no disponible")
)
