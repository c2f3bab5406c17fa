package reorder

import (
	"time"

	"github.com/jhoicas/grocy-autobuy/internal/domain/entity"
)

// SkipReason motivo por el que un producto del snapshot no generó acción.
type SkipReason string

const (
	SkipNotUnderstocked   SkipReason = "not_understocked"
	SkipInventoryFailed   SkipReason = "inventory_unavailable"
	SkipMissingCatalogRef SkipReason = "missing_catalog_ref"
	SkipDeliveryPending   SkipReason = "delivery_pending"
	SkipZeroQuantity      SkipReason = "zero_quantity"
	SkipBudgetExhausted   SkipReason = "budget_exhausted"
)

// Skip producto descartado en un ciclo y su motivo.
type Skip struct {
	ProductID   string
	ProductName string
	Reason      SkipReason
	Detail      string
}

// Decision resultado de la fase de decisión: acciones en orden del snapshot y descartes.
// Conserva el ledger y el presupuesto del ciclo para que la ejecución use el mismo estado.
type Decision struct {
	CycleID    string
	DryRun     bool
	DecidedAt  time.Time
	Actions    []entity.PurchaseAction
	Skips      []Skip
	Reconciled []string

	ledger *Ledger
}

// Execution resultado de ejecutar una acción decidida.
type Execution struct {
	Action entity.PurchaseAction
	Status entity.OrderStatus
	Error  string
}

// Mismatch indica una acción decidida (cupo consumido) que no llegó a ejecutarse.
func (e Execution) Mismatch() bool {
	return e.Status == entity.OrderFailed
}

// CycleReport resumen completo de un ciclo de reposición.
type CycleReport struct {
	CycleID     string
	DryRun      bool
	StartedAt   time.Time
	FinishedAt  time.Time
	Snapshot    int
	Actions     []entity.PurchaseAction
	Skips       []Skip
	Executions  []Execution
	Reconciled  []string
	FetchErrors []string
}

// Counts devuelve cuántas ejecuciones fueron exitosas, fallidas y simuladas.
func (r *CycleReport) Counts() (succeeded, failed, dryRun int) {
	for _, e := range r.Executions {
		switch {
		case e.Status.Succeeded():
			succeeded++
		case e.Status == entity.OrderFailed:
			failed++
		case e.Status == entity.OrderDryRun:
			dryRun++
		}
	}
	return succeeded, failed, dryRun
}
