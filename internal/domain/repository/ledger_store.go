package repository

import (
	"context"
	"errors"

	"github.com/jhoicas/grocy-autobuy/internal/domain/entity"
)

// ErrUnchanged lo devuelve la función de Update para indicar que no hubo mutación
// y no hace falta reescribir el documento. Update lo trata como éxito.
var ErrUnchanged = errors.New("ledger sin cambios")

// LedgerStore define el puerto de persistencia del ledger (DIP): un único documento
// con entregas pendientes y contador diario, leído y escrito entero.
//
// Load devuelve un estado vacío (nunca error) si el documento falta o está corrupto;
// solo propaga errores cuando el almacenamiento es inaccesible.
//
// Update ejecuta load-mutate-save de forma atómica y en exclusión mutua con otros
// escritores (mismo proceso u otros procesos). Si fn devuelve error no se guarda nada.
type LedgerStore interface {
	Load(ctx context.Context) (*entity.LedgerState, error)
	Update(ctx context.Context, fn func(state *entity.LedgerState) error) error
}
