// Package batches owns the production batch lifecycle.
package batches

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/fournil/internal/domain/models"
	"github.com/mamadbah2/fournil/internal/repository"
)

const (
	numberAttempts     = 5
	transitionAttempts = 3
)

// ErrConcurrentUpdate is returned when a transition kept losing to other writers.
var ErrConcurrentUpdate = errors.New("batch modified concurrently")

// Store is the persistence surface used by the manager.
type Store interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	InsertBatch(ctx context.Context, b *models.Batch) error
	GetBatch(ctx context.Context, id string) (*models.Batch, error)
	ListBatches(ctx context.Context, f repository.BatchFilter) ([]models.Batch, error)
	UpdateBatch(ctx context.Context, b *models.Batch, expected models.BatchStatus) error
	NextBatchSequence(ctx context.Context, productID string) (int64, error)
}

// ProductionWriter receives a production event when a batch completes.
type ProductionWriter interface {
	InsertProduction(ctx context.Context, e *models.ProductionEvent) error
}

// CreateBatchRequest carries the fields of a new batch. An empty BatchNumber
// asks the store for the next number of the product.
type CreateBatchRequest struct {
	ProductID                string       `json:"product_id"`
	BatchNumber              string       `json:"batch_number"`
	TargetQuantity           int          `json:"target_quantity"`
	EstimatedDurationMinutes int          `json:"estimated_duration_minutes"`
	Shift                    models.Shift `json:"shift"`
	OwnerID                  string       `json:"owner_id"`
	Notes                    string       `json:"notes"`
}

// Service manages batch creation, transitions and progress ticks.
type Service struct {
	store           Store
	production      ProductionWriter
	defaultDuration int
	logger          *zap.Logger
	now             func() time.Time
	newID           func() string

	mu         sync.RWMutex
	onActivate func()
}

// NewService wires the batch manager. production may be nil, in which case
// completed batches are not logged as production.
func NewService(store Store, production ProductionWriter, defaultDurationMinutes int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:           store,
		production:      production,
		defaultDuration: defaultDurationMinutes,
		logger:          logger,
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

// SetActivationHook registers fn to run whenever a batch becomes active.
func (s *Service) SetActivationHook(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onActivate = fn
}

// CreateBatch validates req and inserts a planning batch.
func (s *Service) CreateBatch(ctx context.Context, req CreateBatchRequest) (*models.Batch, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	product, err := s.store.GetProduct(ctx, req.ProductID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.Invalid("product_id", "unknown product")
	}
	if err != nil {
		return nil, models.StoreFailure("load product", err)
	}

	now := s.now()
	b := &models.Batch{
		ID:                       s.newID(),
		ProductID:                req.ProductID,
		BatchNumber:              strings.TrimSpace(req.BatchNumber),
		TargetQuantity:           req.TargetQuantity,
		Status:                   models.BatchPlanning,
		EstimatedDurationMinutes: req.EstimatedDurationMinutes,
		Shift:                    req.Shift,
		OwnerID:                  req.OwnerID,
		Notes:                    req.Notes,
		CreatedAt:                now,
		UpdatedAt:                now,
	}

	if b.BatchNumber != "" {
		if err := s.store.InsertBatch(ctx, b); err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				return nil, fmt.Errorf("%s: %w", b.BatchNumber, models.ErrDuplicateBatchNumber)
			}
			return nil, models.StoreFailure("insert batch", err)
		}
		s.logger.Info("batch created", zap.String("batch_id", b.ID), zap.String("number", b.BatchNumber))
		return b, nil
	}

	prefix := numberPrefix(product.Name)
	for attempt := 0; attempt < numberAttempts; attempt++ {
		seq, err := s.store.NextBatchSequence(ctx, b.ProductID)
		if err != nil {
			return nil, models.StoreFailure("next batch number", err)
		}
		b.BatchNumber = fmt.Sprintf("%s-%04d", prefix, seq)
		err = s.store.InsertBatch(ctx, b)
		if err == nil {
			s.logger.Info("batch created", zap.String("batch_id", b.ID), zap.String("number", b.BatchNumber))
			return b, nil
		}
		if !errors.Is(err, repository.ErrDuplicateKey) {
			return nil, models.StoreFailure("insert batch", err)
		}
		// A human-assigned number already holds this slot; take the next one.
		s.logger.Debug("generated batch number taken", zap.String("number", b.BatchNumber))
	}
	return nil, fmt.Errorf("no free batch number after %d attempts: %w", numberAttempts, models.ErrDuplicateBatchNumber)
}

// GetBatch loads one batch with its progress evaluated now.
func (s *Service) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	b, err := s.store.GetBatch(ctx, id)
	if err != nil {
		return nil, models.StoreFailure("load batch", err)
	}
	b.Progress = Progress(*b, s.now())
	return b, nil
}

// ListBatches returns batches matching f with progress evaluated now.
func (s *Service) ListBatches(ctx context.Context, f repository.BatchFilter) ([]models.Batch, error) {
	list, err := s.store.ListBatches(ctx, f)
	if err != nil {
		return nil, models.StoreFailure("list batches", err)
	}
	now := s.now()
	for i := range list {
		list[i].Progress = Progress(list[i], now)
	}
	return list, nil
}

// TransitionBatch applies an explicit action to the stored state. Only complete
// advances an active batch first, so a batch past the cap can be completed
// without waiting for a tick while pause and cancel still see it as active.
func (s *Service) TransitionBatch(ctx context.Context, id string, action models.BatchAction, actualQuantity *int) (*models.Batch, error) {
	if !action.Valid() {
		return nil, models.Invalid("action", fmt.Sprintf("unknown action %q", action))
	}
	if actualQuantity != nil && *actualQuantity < 0 {
		return nil, models.Invalid("actual_quantity", "must not be negative")
	}

	for attempt := 0; attempt < transitionAttempts; attempt++ {
		current, err := s.store.GetBatch(ctx, id)
		if err != nil {
			return nil, models.StoreFailure("load batch", err)
		}

		now := s.now()
		from := *current
		if action == models.ActionComplete {
			from, _ = Advance(from, now)
		}
		next, err := Apply(from, action, now, actualQuantity)
		if err != nil {
			return nil, err
		}

		err = s.store.UpdateBatch(ctx, &next, current.Status)
		if errors.Is(err, repository.ErrConflict) {
			s.logger.Debug("batch transition raced, retrying", zap.String("batch_id", id), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, models.StoreFailure("update batch", err)
		}

		s.logger.Info("batch transitioned",
			zap.String("batch_id", id),
			zap.String("action", string(action)),
			zap.String("from", string(current.Status)),
			zap.String("to", string(next.Status)))
		s.afterTransition(ctx, &next)
		return &next, nil
	}
	return nil, ErrConcurrentUpdate
}

// TickBatchProgress recomputes every active batch at now and persists the
// automatic transitions. It returns the batches it updated.
func (s *Service) TickBatchProgress(ctx context.Context, now time.Time) ([]models.Batch, error) {
	active, err := s.store.ListBatches(ctx, repository.BatchFilter{Statuses: []models.BatchStatus{models.BatchActive}})
	if err != nil {
		return nil, models.StoreFailure("list active batches", err)
	}

	updated := make([]models.Batch, 0, len(active))
	for _, b := range active {
		next, ok := Advance(b, now)
		if !ok {
			continue
		}
		err := s.store.UpdateBatch(ctx, &next, models.BatchActive)
		if errors.Is(err, repository.ErrConflict) {
			// Paused or cancelled since the read; the explicit action wins.
			continue
		}
		if err != nil {
			return updated, models.StoreFailure("update batch progress", err)
		}
		if next.Status == models.BatchQualityCheck {
			s.logger.Info("batch reached quality check", zap.String("batch_id", next.ID), zap.Float64("progress", next.Progress))
		}
		updated = append(updated, next)
	}
	return updated, nil
}

// HasActive reports whether at least one batch is running.
func (s *Service) HasActive(ctx context.Context) (bool, error) {
	active, err := s.store.ListBatches(ctx, repository.BatchFilter{Statuses: []models.BatchStatus{models.BatchActive}})
	if err != nil {
		return false, models.StoreFailure("list active batches", err)
	}
	return len(active) > 0, nil
}

func (s *Service) afterTransition(ctx context.Context, b *models.Batch) {
	switch b.Status {
	case models.BatchActive:
		s.mu.RLock()
		hook := s.onActivate
		s.mu.RUnlock()
		if hook != nil {
			hook()
		}
	case models.BatchCompleted:
		if s.production == nil || b.ActualQuantity == 0 {
			return
		}
		event := &models.ProductionEvent{
			ID:         s.newID(),
			ProductID:  b.ProductID,
			Quantity:   b.ActualQuantity,
			Shift:      b.Shift,
			OwnerID:    b.OwnerID,
			BatchID:    b.ID,
			OccurredAt: *b.EndTime,
		}
		if err := s.production.InsertProduction(ctx, event); err != nil {
			s.logger.Error("failed to log production for completed batch", zap.String("batch_id", b.ID), zap.Error(err))
		}
	}
}

func (s *Service) validate(req *CreateBatchRequest) error {
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	switch {
	case req.ProductID == "":
		return models.Invalid("product_id", "required")
	case req.OwnerID == "":
		return models.Invalid("owner_id", "required")
	case req.TargetQuantity <= 0:
		return models.Invalid("target_quantity", "must be positive")
	case req.EstimatedDurationMinutes < 0:
		return models.Invalid("estimated_duration_minutes", "must not be negative")
	case !req.Shift.Valid():
		return models.Invalid("shift", fmt.Sprintf("unknown shift %q", req.Shift))
	}
	if req.EstimatedDurationMinutes == 0 {
		req.EstimatedDurationMinutes = s.defaultDuration
	}
	if req.EstimatedDurationMinutes <= 0 {
		return models.Invalid("estimated_duration_minutes", "required")
	}
	return nil
}

func numberPrefix(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		for _, r := range word {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(unicode.ToUpper(r))
				break
			}
		}
	}
	if b.Len() == 0 {
		return "B"
	}
	return b.String()
}
