package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/fournil/internal/domain/models"
	"github.com/mamadbah2/fournil/internal/service/reporting"
)

// ReportService describes the shift report operations exposed over HTTP.
type ReportService interface {
	GenerateShiftReport(ctx context.Context, req reporting.GenerateRequest) (*models.ShiftReport, models.SaveOutcome, error)
	GetShiftReport(ctx context.Context, key models.ReportKey) (*models.ShiftReport, error)
	ClearShiftSales(ctx context.Context, ownerID string, sh models.Shift) (int64, error)
	EndShift(ctx context.Context, req reporting.GenerateRequest) (*reporting.EndShiftResult, error)
}

// ReportHandler serves shift reports and the end-of-shift flow.
type ReportHandler struct {
	svc    ReportService
	logger *zap.Logger
}

// NewReportHandler constructs the HTTP handler adapter.
func NewReportHandler(svc ReportService, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{svc: svc, logger: logger}
}

// Save generates and upserts the report of an owner's shift.
func (h *ReportHandler) Save(c *gin.Context) {
	var req reporting.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	report, outcome, err := h.svc.GenerateShiftReport(c.Request.Context(), req)
	if errors.Is(err, reporting.ErrSessionCompleted) {
		c.JSON(http.StatusOK, gin.H{"outcome": outcome, "already_saved": true})
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	status := http.StatusOK
	if outcome == models.ReportCreated {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"outcome": outcome, "report": report})
}

// Get returns the saved report for ?owner_id=&shift=&day=.
func (h *ReportHandler) Get(c *gin.Context) {
	sh, err := models.ParseShift(c.Query("shift"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	report, err := h.svc.GetShiftReport(c.Request.Context(), models.ReportKey{
		OwnerID: c.Query("owner_id"),
		Shift:   sh,
		Day:     c.Query("day"),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ClearSales deletes the sales of ?owner_id=&shift=. It requires confirm=true.
func (h *ReportHandler) ClearSales(c *gin.Context) {
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "clearing shift sales requires confirm=true"})
		return
	}
	sh, err := models.ParseShift(c.Query("shift"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	n, err := h.svc.ClearShiftSales(c.Request.Context(), c.Query("owner_id"), sh)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// EndShift saves the report and then clears the shift sales.
func (h *ReportHandler) EndShift(c *gin.Context) {
	var req reporting.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	result, err := h.svc.EndShift(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
