package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/fournil/internal/domain/models"
	"github.com/mamadbah2/fournil/internal/service/ledger"
	"github.com/mamadbah2/fournil/internal/shift"
)

// LedgerService describes the catalog and event writes exposed over HTTP.
type LedgerService interface {
	CreateProduct(ctx context.Context, req ledger.ProductRequest) (*models.Product, error)
	UpdateProduct(ctx context.Context, id string, req ledger.ProductRequest) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	LogProduction(ctx context.Context, req ledger.ProductionRequest) (*models.ProductionEvent, error)
	RecordSale(ctx context.Context, req ledger.SaleRequest) (*models.SalesEvent, error)
	SetRemainingStock(ctx context.Context, req ledger.RemainingRequest) (*models.RemainingStockEntry, error)
	ListRemainingStock(ctx context.Context, ownerID string) ([]models.RemainingStockEntry, error)
	GetShiftSelection(ctx context.Context, ownerID string) (*models.ShiftSelection, error)
	SetShiftSelection(ctx context.Context, ownerID string, sh models.Shift) (*models.ShiftSelection, error)
	ToggleShiftSelection(ctx context.Context, ownerID string) (*models.ShiftSelection, error)
	CurrentWindow(ctx context.Context, ownerID string, override models.Shift) (shift.Window, error)
}

// LedgerHandler serves products, production, sales, remaining stock and the shift selection.
type LedgerHandler struct {
	svc    LedgerService
	logger *zap.Logger
}

// NewLedgerHandler constructs the HTTP handler adapter.
func NewLedgerHandler(svc LedgerService, logger *zap.Logger) *LedgerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerHandler{svc: svc, logger: logger}
}

// CreateProduct adds a catalog product.
func (h *LedgerHandler) CreateProduct(c *gin.Context) {
	var req ledger.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	p, err := h.svc.CreateProduct(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// UpdateProduct renames or reprices a product.
func (h *LedgerHandler) UpdateProduct(c *gin.Context) {
	var req ledger.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	p, err := h.svc.UpdateProduct(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ListProducts returns the catalog.
func (h *LedgerHandler) ListProducts(c *gin.Context) {
	products, err := h.svc.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// LogProduction appends a production event.
func (h *LedgerHandler) LogProduction(c *gin.Context) {
	var req ledger.ProductionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	e, err := h.svc.LogProduction(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

// RecordSale appends a sales event.
func (h *LedgerHandler) RecordSale(c *gin.Context) {
	var req ledger.SaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	e, err := h.svc.RecordSale(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

// SetRemaining upserts a manual remaining count.
func (h *LedgerHandler) SetRemaining(c *gin.Context) {
	var req ledger.RemainingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	e, err := h.svc.SetRemainingStock(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// ListRemaining returns the remaining entries of owner_id, or all.
func (h *LedgerHandler) ListRemaining(c *gin.Context) {
	entries, err := h.svc.ListRemainingStock(c.Request.Context(), c.Query("owner_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// GetShift returns the selected shift and today's window of owner_id.
func (h *LedgerHandler) GetShift(c *gin.Context) {
	ownerID := c.Query("owner_id")
	sel, err := h.svc.GetShiftSelection(c.Request.Context(), ownerID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	window, err := h.svc.CurrentWindow(c.Request.Context(), ownerID, sel.Shift)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner_id": sel.OwnerID, "shift": sel.Shift, "day": window.Day})
}

type setShiftRequest struct {
	OwnerID string       `json:"owner_id"`
	Shift   models.Shift `json:"shift"`
}

// SetShift persists the selected shift of an owner.
func (h *LedgerHandler) SetShift(c *gin.Context) {
	var req setShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	sel, err := h.svc.SetShiftSelection(c.Request.Context(), req.OwnerID, req.Shift)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, sel)
}

type toggleShiftRequest struct {
	OwnerID string `json:"owner_id"`
}

// ToggleShift switches an owner between the morning and night shift.
func (h *LedgerHandler) ToggleShift(c *gin.Context) {
	var req toggleShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	sel, err := h.svc.ToggleShiftSelection(c.Request.Context(), req.OwnerID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, sel)
}
