// Package repository defines the store contract shared by the mongo and gorm backends.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mamadbah2/fournil/internal/domain/models"
)

var (
	// ErrDuplicateKey is returned when an insert violates a unique key.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrConflict is returned when a conditional update matched no row.
	ErrConflict = errors.New("conditional update lost")
)

// EventFilter scopes event reads. Empty fields are not applied.
type EventFilter struct {
	ProductID string
	OwnerID   string
	Shift     models.Shift
	From      time.Time
	To        time.Time
}

// BatchFilter scopes batch reads. Empty fields are not applied.
type BatchFilter struct {
	ProductID string
	OwnerID   string
	Shift     models.Shift
	Statuses  []models.BatchStatus
}

// ProductStore persists catalog data.
type ProductStore interface {
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
}

// EventStore persists the append-only production and sales streams and the
// manual remaining-stock entries.
type EventStore interface {
	InsertProduction(ctx context.Context, e *models.ProductionEvent) error
	InsertSale(ctx context.Context, e *models.SalesEvent) error
	ListProduction(ctx context.Context, f EventFilter) ([]models.ProductionEvent, error)
	ListSales(ctx context.Context, f EventFilter) ([]models.SalesEvent, error)
	DeleteSales(ctx context.Context, ownerID string, shift models.Shift) (int64, error)
	UpsertRemaining(ctx context.Context, e *models.RemainingStockEntry) error
	ListRemaining(ctx context.Context, ownerID string) ([]models.RemainingStockEntry, error)
}

// BatchStore persists production batches.
type BatchStore interface {
	InsertBatch(ctx context.Context, b *models.Batch) error
	GetBatch(ctx context.Context, id string) (*models.Batch, error)
	ListBatches(ctx context.Context, f BatchFilter) ([]models.Batch, error)
	// UpdateBatch writes b only if the stored status still equals expected.
	UpdateBatch(ctx context.Context, b *models.Batch, expected models.BatchStatus) error
	// NextBatchSequence atomically increments and returns the product's counter.
	NextBatchSequence(ctx context.Context, productID string) (int64, error)
}

// ReportStore persists shift reports keyed by owner, shift and day.
type ReportStore interface {
	FindReport(ctx context.Context, key models.ReportKey) (*models.ShiftReport, error)
	InsertReport(ctx context.Context, r *models.ShiftReport) error
	UpdateReport(ctx context.Context, r *models.ShiftReport) error
}

// SettingsStore persists per-owner shift selections.
type SettingsStore interface {
	GetShiftSelection(ctx context.Context, ownerID string) (*models.ShiftSelection, error)
	SaveShiftSelection(ctx context.Context, s *models.ShiftSelection) error
}

// Store is the full persistence surface.
type Store interface {
	ProductStore
	EventStore
	BatchStore
	ReportStore
	SettingsStore
	Close(ctx context.Context) error
}
