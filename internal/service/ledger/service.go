// Package ledger records catalog changes, production, sales, manual remaining
// stock and the per-owner shift selection.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/fournil/internal/domain/models"
	"github.com/mamadbah2/fournil/internal/shift"
)

// Store is the persistence surface of the ledger.
type Store interface {
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	InsertProduction(ctx context.Context, e *models.ProductionEvent) error
	InsertSale(ctx context.Context, e *models.SalesEvent) error
	UpsertRemaining(ctx context.Context, e *models.RemainingStockEntry) error
	ListRemaining(ctx context.Context, ownerID string) ([]models.RemainingStockEntry, error)
	GetShiftSelection(ctx context.Context, ownerID string) (*models.ShiftSelection, error)
	SaveShiftSelection(ctx context.Context, sel *models.ShiftSelection) error
}

// ProductRequest carries the editable fields of a product.
type ProductRequest struct {
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
}

// ProductionRequest logs units produced. An empty Shift uses the owner's
// selected shift; a nil OccurredAt uses the current time.
type ProductionRequest struct {
	ProductID  string       `json:"product_id"`
	Quantity   int          `json:"quantity"`
	Shift      models.Shift `json:"shift"`
	OwnerID    string       `json:"owner_id"`
	OccurredAt *time.Time   `json:"occurred_at"`
}

// SaleRequest records a sale line. UnitPrice overrides the catalog price.
type SaleRequest struct {
	ProductID  string       `json:"product_id"`
	Quantity   int          `json:"quantity"`
	UnitPrice  *float64     `json:"unit_price"`
	Discount   float64      `json:"discount"`
	Shift      models.Shift `json:"shift"`
	OwnerID    string       `json:"owner_id"`
	OccurredAt *time.Time   `json:"occurred_at"`
}

// RemainingRequest sets the manually counted leftover of a product.
type RemainingRequest struct {
	OwnerID   string `json:"owner_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Service validates ledger writes before they reach the store.
type Service struct {
	store    Store
	resolver *shift.Resolver
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string

	mu       sync.RWMutex
	onChange func()
}

// NewService constructs a ledger service.
func NewService(store Store, resolver *shift.Resolver, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SetChangeHook registers fn to run after every successful write that
// affects inventory figures.
func (s *Service) SetChangeHook(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// CreateProduct adds a catalog entry.
func (s *Service) CreateProduct(ctx context.Context, req ProductRequest) (*models.Product, error) {
	if err := validateProduct(&req); err != nil {
		return nil, err
	}
	now := s.now()
	p := &models.Product{ID: s.newID(), Name: req.Name, UnitPrice: req.UnitPrice, CreatedAt: now, UpdatedAt: now}
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, models.StoreFailure("create product", err)
	}
	s.logger.Info("product created", zap.String("product_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

// UpdateProduct renames or reprices a product.
func (s *Service) UpdateProduct(ctx context.Context, id string, req ProductRequest) (*models.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, models.Invalid("id", "required")
	}
	if err := validateProduct(&req); err != nil {
		return nil, err
	}
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, models.StoreFailure("load product", err)
	}
	p.Name = req.Name
	p.UnitPrice = req.UnitPrice
	p.UpdatedAt = s.now()
	if err := s.store.UpdateProduct(ctx, p); err != nil {
		return nil, models.StoreFailure("update product", err)
	}
	s.changed()
	return p, nil
}

// ListProducts returns the catalog.
func (s *Service) ListProducts(ctx context.Context) ([]models.Product, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, models.StoreFailure("list products", err)
	}
	return products, nil
}

// LogProduction appends a production event.
func (s *Service) LogProduction(ctx context.Context, req ProductionRequest) (*models.ProductionEvent, error) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	switch {
	case req.ProductID == "":
		return nil, models.Invalid("product_id", "required")
	case req.Quantity <= 0:
		return nil, models.Invalid("quantity", "must be positive")
	case req.Shift != "" && !req.Shift.Valid():
		return nil, models.Invalid("shift", fmt.Sprintf("unknown shift %q", req.Shift))
	}

	sh, err := s.shiftFor(ctx, req.OwnerID, req.Shift)
	if err != nil {
		return nil, err
	}
	e := &models.ProductionEvent{
		ID:         s.newID(),
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
		Shift:      sh,
		OwnerID:    req.OwnerID,
		OccurredAt: s.stamp(req.OccurredAt),
	}
	if err := s.store.InsertProduction(ctx, e); err != nil {
		return nil, models.StoreFailure("insert production", err)
	}
	s.logger.Debug("production logged", zap.String("product_id", e.ProductID), zap.Int("quantity", e.Quantity), zap.String("shift", string(e.Shift)))
	s.changed()
	return e, nil
}

// RecordSale appends a sales event.
func (s *Service) RecordSale(ctx context.Context, req SaleRequest) (*models.SalesEvent, error) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	switch {
	case req.ProductID == "":
		return nil, models.Invalid("product_id", "required")
	case req.OwnerID == "":
		return nil, models.Invalid("owner_id", "required")
	case req.Quantity <= 0:
		return nil, models.Invalid("quantity", "must be positive")
	case req.UnitPrice != nil && *req.UnitPrice < 0:
		return nil, models.Invalid("unit_price", "must not be negative")
	case req.Discount < 0:
		return nil, models.Invalid("discount", "must not be negative")
	case req.Shift != "" && !req.Shift.Valid():
		return nil, models.Invalid("shift", fmt.Sprintf("unknown shift %q", req.Shift))
	}

	sh, err := s.shiftFor(ctx, req.OwnerID, req.Shift)
	if err != nil {
		return nil, err
	}
	e := &models.SalesEvent{
		ID:         s.newID(),
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
		UnitPrice:  req.UnitPrice,
		Discount:   req.Discount,
		Shift:      sh,
		OwnerID:    req.OwnerID,
		OccurredAt: s.stamp(req.OccurredAt),
	}
	if err := s.store.InsertSale(ctx, e); err != nil {
		return nil, models.StoreFailure("insert sale", err)
	}
	s.logger.Debug("sale recorded", zap.String("product_id", e.ProductID), zap.Int("quantity", e.Quantity), zap.String("owner_id", e.OwnerID))
	s.changed()
	return e, nil
}

// SetRemainingStock upserts the remaining entry of (owner, product).
func (s *Service) SetRemainingStock(ctx context.Context, req RemainingRequest) (*models.RemainingStockEntry, error) {
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.ProductID = strings.TrimSpace(req.ProductID)
	switch {
	case req.OwnerID == "":
		return nil, models.Invalid("owner_id", "required")
	case req.ProductID == "":
		return nil, models.Invalid("product_id", "required")
	case req.Quantity < 0:
		return nil, models.Invalid("quantity", "must not be negative")
	}

	e := &models.RemainingStockEntry{
		ID:        s.newID(),
		OwnerID:   req.OwnerID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		UpdatedAt: s.now(),
	}
	if err := s.store.UpsertRemaining(ctx, e); err != nil {
		return nil, models.StoreFailure("upsert remaining stock", err)
	}
	s.changed()
	return e, nil
}

// ListRemainingStock returns the remaining entries of ownerID, or all when empty.
func (s *Service) ListRemainingStock(ctx context.Context, ownerID string) ([]models.RemainingStockEntry, error) {
	entries, err := s.store.ListRemaining(ctx, strings.TrimSpace(ownerID))
	if err != nil {
		return nil, models.StoreFailure("list remaining stock", err)
	}
	return entries, nil
}

// GetShiftSelection returns the persisted shift of ownerID, morning if never set.
func (s *Service) GetShiftSelection(ctx context.Context, ownerID string) (*models.ShiftSelection, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, models.Invalid("owner_id", "required")
	}
	sel, err := s.store.GetShiftSelection(ctx, ownerID)
	if errors.Is(err, models.ErrNotFound) {
		return &models.ShiftSelection{OwnerID: ownerID, Shift: models.ShiftMorning}, nil
	}
	if err != nil {
		return nil, models.StoreFailure("get shift selection", err)
	}
	return sel, nil
}

// SetShiftSelection persists the active shift of ownerID.
func (s *Service) SetShiftSelection(ctx context.Context, ownerID string, sh models.Shift) (*models.ShiftSelection, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, models.Invalid("owner_id", "required")
	}
	if !sh.Valid() {
		return nil, models.Invalid("shift", fmt.Sprintf("unknown shift %q", sh))
	}
	sel := &models.ShiftSelection{OwnerID: ownerID, Shift: sh, UpdatedAt: s.now()}
	if err := s.store.SaveShiftSelection(ctx, sel); err != nil {
		return nil, models.StoreFailure("save shift selection", err)
	}
	s.logger.Info("shift selected", zap.String("owner_id", ownerID), zap.String("shift", string(sh)))
	return sel, nil
}

// ToggleShiftSelection switches ownerID to the other shift and persists it.
func (s *Service) ToggleShiftSelection(ctx context.Context, ownerID string) (*models.ShiftSelection, error) {
	current, err := s.GetShiftSelection(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.SetShiftSelection(ctx, current.OwnerID, current.Shift.Toggle())
}

// CurrentWindow resolves today's window for ownerID. A valid override wins
// over the persisted selection.
func (s *Service) CurrentWindow(ctx context.Context, ownerID string, override models.Shift) (shift.Window, error) {
	var selected models.Shift
	if ownerID != "" && !override.Valid() {
		sel, err := s.GetShiftSelection(ctx, ownerID)
		if err != nil {
			return shift.Window{}, err
		}
		selected = sel.Shift
	}
	return s.resolver.Resolve(s.now(), override, selected), nil
}

func (s *Service) shiftFor(ctx context.Context, ownerID string, requested models.Shift) (models.Shift, error) {
	if requested.Valid() {
		return requested, nil
	}
	w, err := s.CurrentWindow(ctx, ownerID, "")
	if err != nil {
		return "", err
	}
	return w.Shift, nil
}

func (s *Service) stamp(at *time.Time) time.Time {
	if at == nil || at.IsZero() {
		return s.now()
	}
	return *at
}

func (s *Service) changed() {
	s.mu.RLock()
	hook := s.onChange
	s.mu.RUnlock()
	if hook != nil {
		hook()
	}
}

func validateProduct(req *ProductRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	switch {
	case req.Name == "":
		return models.Invalid("name", "required")
	case req.UnitPrice < 0:
		return models.Invalid("unit_price", "must not be negative")
	}
	return nil
}
