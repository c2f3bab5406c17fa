package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseActionDTO acción de compra decidida en un ciclo.
type PurchaseActionDTO struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ASIN         string          `json:"asin"`
	Packages     int             `json:"packages"`
	PackageSize  int             `json:"package_size"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	MinimumStock decimal.Decimal `json:"min_stock"`
}

// SkipDTO producto descartado y su motivo.
type SkipDTO struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Reason      string `json:"reason"`
	Detail      string `json:"detail,omitempty"`
}

// ExecutionDTO resultado de ejecución de una acción.
type ExecutionDTO struct {
	ProductID string `json:"product_id"`
	Packages  int    `json:"packages"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Mismatch  bool   `json:"decided_not_executed"`
}

// CycleReportDTO resumen de un ciclo de reposición.
type CycleReportDTO struct {
	CycleID     string              `json:"cycle_id"`
	DryRun      bool                `json:"dry_run"`
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  time.Time           `json:"finished_at"`
	Snapshot    int                 `json:"snapshot_size"`
	Actions     []PurchaseActionDTO `json:"actions"`
	Skips       []SkipDTO           `json:"skips"`
	Executions  []ExecutionDTO      `json:"executions"`
	Reconciled  []string            `json:"reconciled"`
	FetchErrors []string            `json:"fetch_errors,omitempty"`
	Succeeded   int                 `json:"succeeded"`
	Failed      int                 `json:"failed"`
	Error       string              `json:"error,omitempty"`
}

// PendingDeliveryDTO entrega pendiente en el ledger.
type PendingDeliveryDTO struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name,omitempty"`
	StockAtOrder decimal.Decimal `json:"stock_at_order"`
	OrderedAt    time.Time       `json:"ordered_at"`
	Packages     int             `json:"packages"`
}

// OrderRecordDTO ejecución registrada en el historial.
type OrderRecordDTO struct {
	CycleID     string    `json:"cycle_id"`
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	ASIN        string    `json:"asin"`
	Packages    int       `json:"quantity"`
	Status      string    `json:"status"`
	Error       string    `json:"error_message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ProcessedAt time.Time `json:"processed_at"`
}

// StatusDTO estado actual del servicio de reposición.
type StatusDTO struct {
	Mode              string               `json:"mode"`
	DryRun            bool                 `json:"dry_run"`
	DaemonRunning     bool                 `json:"daemon_running"`
	OrdersToday       int                  `json:"orders_today"`
	MaxOrdersPerDay   int                  `json:"max_orders_per_day"`
	RemainingToday    int                  `json:"remaining_today"`
	SuccessfulToday   int                  `json:"successful_today"`
	FailedToday       int                  `json:"failed_today"`
	PendingDeliveries []PendingDeliveryDTO `json:"pending_deliveries"`
	RecentOrders      []OrderRecordDTO     `json:"recent_orders"`
	LastCycle         *CycleReportDTO      `json:"last_cycle,omitempty"`
}

// OrderHistoryDTO página del historial de ejecuciones, la más reciente primero.
type OrderHistoryDTO struct {
	Items []OrderRecordDTO `json:"items"`
	Page  PageResponse     `json:"page"`
}
