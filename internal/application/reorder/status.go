package reorder

import (
	"context"
	"time"

	"github.com/jhoicas/grocy-autobuy/internal/application/dto"
	"github.com/jhoicas/grocy-autobuy/internal/domain/entity"
)

// recentOrdersLimit ejecuciones recientes que se muestran en el estado.
const recentOrdersLimit = 20

// StatusService arma la vista de estado: cupo del día, entregas pendientes e historial.
type StatusService struct {
	ledger    *Ledger
	budget    *Budget
	cfg       EngineConfig
	scheduler *Scheduler
	now       func() time.Time
}

// NewStatusService construye el servicio. scheduler puede ser nil (modo de una sola ejecución).
func NewStatusService(ledger *Ledger, budget *Budget, cfg EngineConfig, scheduler *Scheduler) *StatusService {
	return &StatusService{ledger: ledger, budget: budget, cfg: cfg, scheduler: scheduler, now: time.Now}
}

// Status devuelve el estado actual.
func (s *StatusService) Status(ctx context.Context) (*dto.StatusDTO, error) {
	ordersToday, err := s.budget.OrdersToday(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.ledger.Pending(ctx)
	if err != nil {
		return nil, err
	}
	history, err := s.ledger.History(ctx, 0)
	if err != nil {
		return nil, err
	}

	out := &dto.StatusDTO{
		Mode:              string(s.cfg.Mode),
		DryRun:            s.cfg.DryRun,
		OrdersToday:       ordersToday,
		MaxOrdersPerDay:   s.cfg.MaxOrdersPerDay,
		RemainingToday:    remaining(s.cfg.MaxOrdersPerDay, ordersToday),
		PendingDeliveries: make([]dto.PendingDeliveryDTO, 0, len(pending)),
		RecentOrders:      make([]dto.OrderRecordDTO, 0, recentOrdersLimit),
	}
	for _, d := range pending {
		out.PendingDeliveries = append(out.PendingDeliveries, ToPendingDeliveryDTO(d))
	}

	today := s.now().Format(entity.DateLayout)
	for i, rec := range history {
		if rec.CreatedAt.Format(entity.DateLayout) == today {
			switch {
			case rec.Status.Succeeded():
				out.SuccessfulToday++
			case rec.Status == entity.OrderFailed:
				out.FailedToday++
			}
		}
		if i < recentOrdersLimit {
			out.RecentOrders = append(out.RecentOrders, ToOrderRecordDTO(rec))
		}
	}

	if s.scheduler != nil {
		out.DaemonRunning = s.scheduler.Running()
		if last, lastErr := s.scheduler.LastReport(); last != nil {
			out.LastCycle = ToCycleReportDTO(last, lastErr)
		}
	}
	return out, nil
}

// Pending lista las entregas pendientes como DTO.
func (s *StatusService) Pending(ctx context.Context) ([]dto.PendingDeliveryDTO, error) {
	pending, err := s.ledger.Pending(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.PendingDeliveryDTO, 0, len(pending))
	for _, d := range pending {
		out = append(out, ToPendingDeliveryDTO(d))
	}
	return out, nil
}

// ClearPending elimina manualmente una entrega pendiente.
func (s *StatusService) ClearPending(ctx context.Context, productID string) (bool, error) {
	return s.ledger.Clear(ctx, productID)
}

// History devuelve una página del historial de ejecuciones.
func (s *StatusService) History(ctx context.Context, page dto.PageRequest) (*dto.OrderHistoryDTO, error) {
	page.DefaultPage()
	all, err := s.ledger.History(ctx, 0)
	if err != nil {
		return nil, err
	}
	out := &dto.OrderHistoryDTO{
		Items: make([]dto.OrderRecordDTO, 0, page.Limit),
		Page:  dto.PageResponse{Limit: page.Limit, Offset: page.Offset, Total: len(all)},
	}
	for i := page.Offset; i < len(all) && i < page.Offset+page.Limit; i++ {
		out.Items = append(out.Items, ToOrderRecordDTO(all[i]))
	}
	return out, nil
}

// ToCycleReportDTO convierte el reporte de un ciclo a su DTO.
func ToCycleReportDTO(r *CycleReport, cycleErr error) *dto.CycleReportDTO {
	out := &dto.CycleReportDTO{
		CycleID:     r.CycleID,
		DryRun:      r.DryRun,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Snapshot:    r.Snapshot,
		Actions:     make([]dto.PurchaseActionDTO, 0, len(r.Actions)),
		Skips:       make([]dto.SkipDTO, 0, len(r.Skips)),
		Executions:  make([]dto.ExecutionDTO, 0, len(r.Executions)),
		Reconciled:  append([]string{}, r.Reconciled...),
		FetchErrors: r.FetchErrors,
	}
	for _, a := range r.Actions {
		out.Actions = append(out.Actions, dto.PurchaseActionDTO{
			ProductID:    a.Product.ID,
			ProductName:  a.Product.Name,
			ASIN:         a.Product.CatalogRef,
			Packages:     a.Packages,
			PackageSize:  a.Product.EffectivePackageSize(),
			CurrentStock: a.Product.CurrentStock,
			MinimumStock: a.Product.MinimumStock,
		})
	}
	for _, s := range r.Skips {
		out.Skips = append(out.Skips, dto.SkipDTO{
			ProductID:   s.ProductID,
			ProductName: s.ProductName,
			Reason:      string(s.Reason),
			Detail:      s.Detail,
		})
	}
	for _, e := range r.Executions {
		out.Executions = append(out.Executions, dto.ExecutionDTO{
			ProductID: e.Action.Product.ID,
			Packages:  e.Action.Packages,
			Status:    string(e.Status),
			Error:     e.Error,
			Mismatch:  e.Mismatch(),
		})
	}
	out.Succeeded, out.Failed, _ = r.Counts()
	if cycleErr != nil {
		out.Error = cycleErr.Error()
	}
	return out
}

// ToPendingDeliveryDTO convierte una entrega pendiente a su DTO.
func ToPendingDeliveryDTO(d entity.PendingDelivery) dto.PendingDeliveryDTO {
	return dto.PendingDeliveryDTO{
		ProductID:    d.ProductID,
		ProductName:  d.ProductName,
		StockAtOrder: d.StockAtOrder,
		OrderedAt:    d.OrderedAt,
		Packages:     d.Packages,
	}
}

// ToOrderRecordDTO convierte un registro del historial a su DTO.
func ToOrderRecordDTO(r entity.OrderRecord) dto.OrderRecordDTO {
	return dto.OrderRecordDTO{
		CycleID:     r.CycleID,
		ProductID:   r.ProductID,
		ProductName: r.ProductName,
		ASIN:        r.CatalogRef,
		Packages:    r.Packages,
		Status:      string(r.Status),
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
		ProcessedAt: r.ProcessedAt,
	}
}
