// Package gormstore implements repository.Store on PostgreSQL or SQLite through gorm.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mamadbah2/fournil/internal/domain/models"
	"github.com/mamadbah2/fournil/internal/repository"
)

const connectAttempts = 5

var _ repository.Store = (*Store)(nil)

// Store is the relational backend.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects with the named driver ("postgres" or "sqlite") and migrates.
func Open(driver, dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	var db *gorm.DB
	var err error
	// Postgres may still be starting when the service boots.
	for i := 0; i < connectAttempts; i++ {
		db, err = gorm.Open(dialector, &gorm.Config{
			TranslateError: true,
			Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err == nil {
			break
		}
		logger.Warn("database connection attempt failed", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return New(db, logger)
}

// New wraps an open gorm handle and applies migrations.
func New(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(
		&models.Product{},
		&models.ProductionEvent{},
		&models.SalesEvent{},
		&models.RemainingStockEntry{},
		&models.Batch{},
		&models.BatchSequence{},
		&models.ShiftReport{},
		&models.ShiftSelection{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// CreateProduct inserts a catalog entry.
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	return translate("insert product", s.db.WithContext(ctx).Create(p).Error)
}

// UpdateProduct saves a catalog entry.
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	return translate("update product", s.db.WithContext(ctx).Save(p).Error)
}

// GetProduct loads one product.
func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate("get product", err)
	}
	return &p, nil
}

// ListProducts returns products in creation order.
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	if err := s.db.WithContext(ctx).Order("created_at asc, id asc").Find(&out).Error; err != nil {
		return nil, translate("list products", err)
	}
	return out, nil
}

// InsertProduction appends a production event.
func (s *Store) InsertProduction(ctx context.Context, e *models.ProductionEvent) error {
	e.OccurredAt = e.OccurredAt.UTC()
	return translate("insert production", s.db.WithContext(ctx).Create(e).Error)
}

// InsertSale appends a sales event.
func (s *Store) InsertSale(ctx context.Context, e *models.SalesEvent) error {
	e.OccurredAt = e.OccurredAt.UTC()
	return translate("insert sale", s.db.WithContext(ctx).Create(e).Error)
}

// ListProduction returns production events matching f.
func (s *Store) ListProduction(ctx context.Context, f repository.EventFilter) ([]models.ProductionEvent, error) {
	var out []models.ProductionEvent
	if err := s.eventQuery(ctx, f).Find(&out).Error; err != nil {
		return nil, translate("list production", err)
	}
	return out, nil
}

// ListSales returns sales events matching f.
func (s *Store) ListSales(ctx context.Context, f repository.EventFilter) ([]models.SalesEvent, error) {
	var out []models.SalesEvent
	if err := s.eventQuery(ctx, f).Find(&out).Error; err != nil {
		return nil, translate("list sales", err)
	}
	return out, nil
}

// DeleteSales removes every sales event of an owner for a shift.
func (s *Store) DeleteSales(ctx context.Context, ownerID string, shift models.Shift) (int64, error) {
	res := s.db.WithContext(ctx).Where("owner_id = ? AND shift = ?", ownerID, shift).Delete(&models.SalesEvent{})
	if res.Error != nil {
		return 0, translate("delete sales", res.Error)
	}
	return res.RowsAffected, nil
}

// UpsertRemaining sets the leftover count of an owner for a product.
func (s *Store) UpsertRemaining(ctx context.Context, e *models.RemainingStockEntry) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
	}).Create(e).Error
	return translate("upsert remaining", err)
}

// ListRemaining returns remaining entries of ownerID, or of everyone when empty.
func (s *Store) ListRemaining(ctx context.Context, ownerID string) ([]models.RemainingStockEntry, error) {
	q := s.db.WithContext(ctx).Order("updated_at asc, id asc")
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	var out []models.RemainingStockEntry
	if err := q.Find(&out).Error; err != nil {
		return nil, translate("list remaining", err)
	}
	return out, nil
}

// InsertBatch inserts a new batch; a taken batch number yields ErrDuplicateKey.
func (s *Store) InsertBatch(ctx context.Context, b *models.Batch) error {
	return translate("insert batch", s.db.WithContext(ctx).Create(b).Error)
}

// GetBatch loads one batch.
func (s *Store) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	var b models.Batch
	if err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, translate("get batch", err)
	}
	return &b, nil
}

// ListBatches returns batches matching f, oldest first.
func (s *Store) ListBatches(ctx context.Context, f repository.BatchFilter) ([]models.Batch, error) {
	q := s.db.WithContext(ctx).Order("created_at asc, id asc")
	if f.ProductID != "" {
		q = q.Where("product_id = ?", f.ProductID)
	}
	if f.OwnerID != "" {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if f.Shift != "" {
		q = q.Where("shift = ?", f.Shift)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	var out []models.Batch
	if err := q.Find(&out).Error; err != nil {
		return nil, translate("list batches", err)
	}
	return out, nil
}

// UpdateBatch writes b only while its stored status equals expected.
func (s *Store) UpdateBatch(ctx context.Context, b *models.Batch, expected models.BatchStatus) error {
	res := s.db.WithContext(ctx).
		Model(&models.Batch{}).
		Where("id = ? AND status = ?", b.ID, expected).
		Select("*").
		Omit("id", "created_at").
		Updates(b)
	if res.Error != nil {
		return translate("update batch", res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrConflict
	}
	return nil
}

// NextBatchSequence increments the per-product counter inside a transaction.
func (s *Store) NextBatchSequence(ctx context.Context, productID string) (int64, error) {
	var seq models.BatchSequence
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"last_no": gorm.Expr("batch_sequences.last_no + 1")}),
		}).Create(&models.BatchSequence{ProductID: productID, LastNo: 1}).Error
		if err != nil {
			return err
		}
		return tx.First(&seq, "product_id = ?", productID).Error
	})
	if err != nil {
		return 0, translate("next batch sequence", err)
	}
	return seq.LastNo, nil
}

// FindReport loads the report stored under key.
func (s *Store) FindReport(ctx context.Context, key models.ReportKey) (*models.ShiftReport, error) {
	var r models.ShiftReport
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND shift = ? AND day = ?", key.OwnerID, key.Shift, key.Day).
		First(&r).Error
	if err != nil {
		return nil, translate("find report", err)
	}
	return &r, nil
}

// InsertReport inserts a report; an existing key yields ErrDuplicateKey.
func (s *Store) InsertReport(ctx context.Context, r *models.ShiftReport) error {
	return translate("insert report", s.db.WithContext(ctx).Create(r).Error)
}

// UpdateReport overwrites the stored report with the same id.
func (s *Store) UpdateReport(ctx context.Context, r *models.ShiftReport) error {
	return translate("update report", s.db.WithContext(ctx).Save(r).Error)
}

// GetShiftSelection loads the persisted shift of ownerID.
func (s *Store) GetShiftSelection(ctx context.Context, ownerID string) (*models.ShiftSelection, error) {
	var sel models.ShiftSelection
	if err := s.db.WithContext(ctx).First(&sel, "owner_id = ?", ownerID).Error; err != nil {
		return nil, translate("get shift selection", err)
	}
	return &sel, nil
}

// SaveShiftSelection upserts the shift of an owner.
func (s *Store) SaveShiftSelection(ctx context.Context, sel *models.ShiftSelection) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"shift", "updated_at"}),
	}).Create(sel).Error
	return translate("save shift selection", err)
}

// Close releases the underlying connection pool.
func (s *Store) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) eventQuery(ctx context.Context, f repository.EventFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Order("occurred_at asc, id asc")
	if f.ProductID != "" {
		q = q.Where("product_id = ?", f.ProductID)
	}
	if f.OwnerID != "" {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if f.Shift != "" {
		q = q.Where("shift = ?", f.Shift)
	}
	if !f.From.IsZero() {
		q = q.Where("occurred_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("occurred_at < ?", f.To.UTC())
	}
	return q
}

func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, repository.ErrDuplicateKey)
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}
