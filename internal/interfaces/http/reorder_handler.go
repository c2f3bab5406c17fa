package http

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/grocy-autobuy/internal/application/dto"
	"github.com/jhoicas/grocy-autobuy/internal/application/reorder"
	"github.com/jhoicas/grocy-autobuy/internal/domain"
)

// StatusReader lectura y mantenimiento del estado del ledger. Lo implementa *reorder.StatusService.
type StatusReader interface {
	Status(ctx context.Context) (*dto.StatusDTO, error)
	Pending(ctx context.Context) ([]dto.PendingDeliveryDTO, error)
	ClearPending(ctx context.Context, productID string) (bool, error)
	History(ctx context.Context, page dto.PageRequest) (*dto.OrderHistoryDTO, error)
}

// CycleTrigger dispara un ciclo manual. Lo implementa *reorder.Scheduler.
type CycleTrigger interface {
	Trigger(ctx context.Context) (*reorder.CycleReport, error)
}

// ReorderHandler maneja las peticiones HTTP de la API de control de reposición.
type ReorderHandler struct {
	status  StatusReader
	trigger CycleTrigger
	log     zerolog.Logger
}

// NewReorderHandler construye el handler.
func NewReorderHandler(status StatusReader, trigger CycleTrigger, log zerolog.Logger) *ReorderHandler {
	return &ReorderHandler{status: status, trigger: trigger, log: log}
}

// Status GET /api/reorder/status
func (h *ReorderHandler) Status(c *fiber.Ctx) error {
	out, err := h.status.Status(c.Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(out)
}

// Pending GET /api/reorder/pending
func (h *ReorderHandler) Pending(c *fiber.Ctx) error {
	out, err := h.status.Pending(c.Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"items": out, "total": len(out)})
}

// History GET /api/reorder/history?limit=&offset=
func (h *ReorderHandler) History(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "limit y offset deben ser enteros"})
	}
	out, err := h.status.History(c.Context(), page)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(out)
}

// ClearPending DELETE /api/reorder/pending/:productId
func (h *ReorderHandler) ClearPending(c *fiber.Ctx) error {
	productID := strings.TrimSpace(c.Params("productId"))
	if productID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "productId requerido"})
	}
	found, err := h.status.ClearPending(c.Context(), productID)
	if err != nil {
		return h.fail(c, err)
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "sin entrega pendiente para el producto"})
	}
	h.log.Info().Str("product_id", productID).Str("by", GetSubject(c)).Msg("entrega pendiente eliminada vía API")
	return c.SendStatus(fiber.StatusNoContent)
}

// Run POST /api/reorder/run
func (h *ReorderHandler) Run(c *fiber.Ctx) error {
	report, err := h.trigger.Trigger(c.Context())
	if err != nil && report == nil {
		return h.fail(c, err)
	}
	out := reorder.ToCycleReportDTO(report, err)
	if err != nil {
		h.log.Warn().Err(err).Str("cycle_id", report.CycleID).Msg("ciclo manual con error")
		return c.Status(statusFor(err)).JSON(out)
	}
	return c.JSON(out)
}

func (h *ReorderHandler) fail(c *fiber.Ctx, err error) error {
	code := "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrCycleInProgress):
		code = "CYCLE_IN_PROGRESS"
	case errors.Is(err, domain.ErrInventory):
		code = "INVENTORY_UNAVAILABLE"
	case errors.Is(err, domain.ErrLedgerUnavailable):
		code = "LEDGER_UNAVAILABLE"
	}
	return c.Status(statusFor(err)).JSON(dto.ErrorResponse{Code: code, Message: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrCycleInProgress):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrInventory):
		return fiber.StatusBadGateway
	case errors.Is(err, domain.ErrLedgerUnavailable):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}
