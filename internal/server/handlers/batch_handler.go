package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/fournil/internal/domain/models"
	"github.com/mamadbah2/fournil/internal/repository"
	"github.com/mamadbah2/fournil/internal/service/batches"
)

// BatchService describes the batch lifecycle operations exposed over HTTP.
type BatchService interface {
	CreateBatch(ctx context.Context, req batches.CreateBatchRequest) (*models.Batch, error)
	GetBatch(ctx context.Context, id string) (*models.Batch, error)
	ListBatches(ctx context.Context, f repository.BatchFilter) ([]models.Batch, error)
	TransitionBatch(ctx context.Context, id string, action models.BatchAction, actualQuantity *int) (*models.Batch, error)
	TickBatchProgress(ctx context.Context, now time.Time) ([]models.Batch, error)
}

// BatchHandler serves production batches.
type BatchHandler struct {
	svc    BatchService
	logger *zap.Logger
	now    func() time.Time
}

// NewBatchHandler constructs the HTTP handler adapter.
func NewBatchHandler(svc BatchService, logger *zap.Logger) *BatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchHandler{svc: svc, logger: logger, now: time.Now}
}

// Create starts a batch in planning.
func (h *BatchHandler) Create(c *gin.Context) {
	var req batches.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	b, err := h.svc.CreateBatch(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// List filters by ?product_id=&owner_id=&shift=&status=a,b.
func (h *BatchHandler) List(c *gin.Context) {
	sh, err := parseShiftParam(c.Query("shift"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	filter := repository.BatchFilter{
		ProductID: c.Query("product_id"),
		OwnerID:   c.Query("owner_id"),
		Shift:     sh,
	}
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := models.BatchStatus(strings.TrimSpace(part))
			if !status.Valid() {
				respondError(c, h.logger, models.Invalid("status", "unknown status "+string(status)))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	list, err := h.svc.ListBatches(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Get returns one batch.
func (h *BatchHandler) Get(c *gin.Context) {
	b, err := h.svc.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type transitionRequest struct {
	Action         models.BatchAction `json:"action"`
	ActualQuantity *int               `json:"actual_quantity"`
}

// Transition applies start, pause, complete or cancel.
func (h *BatchHandler) Transition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	b, err := h.svc.TransitionBatch(c.Request.Context(), c.Param("id"), req.Action, req.ActualQuantity)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// Tick recomputes active batches now.
func (h *BatchHandler) Tick(c *gin.Context) {
	updated, err := h.svc.TickBatchProgress(c.Request.Context(), h.now())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}
