package sheets

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/mamadbah2/fournil/internal/config"
	"github.com/mamadbah2/fournil/internal/domain/models"
)

// ReportsRange is where saved shift reports are appended.
const ReportsRange = "Reports!A:H"

// Appender is the slice of the Sheets API the mirror writes through.
type Appender interface {
	Append(ctx context.Context, sheetRange string, rows [][]interface{}) error
}

// ReportMirror appends one row per saved shift report.
type ReportMirror struct {
	sheet  Appender
	logger *zap.Logger
}

// NewReportMirror builds a mirror on top of an appender.
func NewReportMirror(sheet Appender, logger *zap.Logger) *ReportMirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportMirror{sheet: sheet, logger: logger}
}

// AppendReport writes r as a single row.
func (m *ReportMirror) AppendReport(ctx context.Context, r *models.ShiftReport) error {
	if err := m.sheet.Append(ctx, ReportsRange, [][]interface{}{ReportRow(r)}); err != nil {
		return err
	}
	m.logger.Debug("shift report mirrored", zap.String("report_id", r.ID), zap.String("day", r.Day))
	return nil
}

// ReportRow flattens a report into the sheet's column order.
func ReportRow(r *models.ShiftReport) []interface{} {
	return []interface{}{
		r.Day,
		string(r.Shift),
		r.OwnerID,
		r.Revenue,
		r.ItemsSold,
		r.RemainingValue,
		r.Feedback,
		r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// GoogleSheet implements Appender using the official Google Sheets API.
type GoogleSheet struct {
	service       *sheetsapi.Service
	spreadsheetID string
	logger        *zap.Logger
}

// NewGoogleSheet builds a Google Sheets backed appender.
func NewGoogleSheet(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*GoogleSheet, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	return &GoogleSheet{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		logger:        logger,
	}, nil
}

// Append adds rows after the last row of sheetRange.
func (g *GoogleSheet) Append(ctx context.Context, sheetRange string, rows [][]interface{}) error {
	if sheetRange == "" {
		return fmt.Errorf("sheetRange must not be empty")
	}

	payload := &sheetsapi.ValueRange{Values: rows}

	call := g.service.Spreadsheets.Values.Append(g.spreadsheetID, sheetRange, payload).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx)

	if _, err := call.Do(); err != nil {
		return fmt.Errorf("append rows into range %s: %w", sheetRange, err)
	}

	g.logger.Debug("rows appended to sheet", zap.String("range", sheetRange), zap.Int("rows", len(rows)))
	return nil
}
