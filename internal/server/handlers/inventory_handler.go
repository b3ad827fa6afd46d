package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/fournil/internal/domain/models"
	"github.com/mamadbah2/fournil/internal/service/inventory"
	"github.com/mamadbah2/fournil/internal/shift"
)

// ShiftSource resolves the active shift when a request does not name one.
type ShiftSource interface {
	CurrentWindow(ctx context.Context, ownerID string, override models.Shift) (shift.Window, error)
}

// InventoryHandler serves reconciled inventory figures.
type InventoryHandler struct {
	svc    inventory.Reconciler
	shifts ShiftSource
	logger *zap.Logger
}

// NewInventoryHandler constructs the HTTP handler adapter.
func NewInventoryHandler(svc inventory.Reconciler, shifts ShiftSource, logger *zap.Logger) *InventoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryHandler{svc: svc, shifts: shifts, logger: logger}
}

// GetInventory reconciles ?shift=&day=&owner_id=&product_id=. Without a
// shift the owner's selected shift is used.
func (h *InventoryHandler) GetInventory(c *gin.Context) {
	ownerID := c.Query("owner_id")
	sh, err := parseShiftParam(c.Query("shift"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if sh == "" {
		window, err := h.shifts.CurrentWindow(c.Request.Context(), ownerID, "")
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		sh = window.Shift
	}

	figures, err := h.svc.Reconcile(c.Request.Context(), inventory.Query{
		ProductID: c.Query("product_id"),
		OwnerID:   ownerID,
		Shift:     sh,
		Day:       c.Query("day"),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, figures)
}
