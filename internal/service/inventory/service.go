// Package inventory reconciles production, sales and manual remaining stock
// into per-product inventory figures.
package inventory

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/fournil/internal/domain/models"
	"github.com/mamadbah2/fournil/internal/repository"
	"github.com/mamadbah2/fournil/internal/shift"
)

// Reader is the store surface the engine reads from.
type Reader interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	ListProduction(ctx context.Context, f repository.EventFilter) ([]models.ProductionEvent, error)
	ListSales(ctx context.Context, f repository.EventFilter) ([]models.SalesEvent, error)
	ListRemaining(ctx context.Context, ownerID string) ([]models.RemainingStockEntry, error)
}

// Query selects what to reconcile. Empty ProductID or OwnerID means all.
// An empty Day means today in the resolver's time zone.
type Query struct {
	ProductID string
	OwnerID   string
	Shift     models.Shift
	Day       string
}

// Service loads the streams for a window and runs Reconcile.
type Service struct {
	store    Reader
	resolver *shift.Resolver
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires the reconciliation service.
func NewService(store Reader, resolver *shift.Resolver, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}
}

// Reconcile computes the inventory snapshot for q.
func (s *Service) Reconcile(ctx context.Context, q Query) (*Figures, error) {
	day := q.Day
	if day == "" {
		day = s.resolver.Today(s.now())
	}
	window, err := s.resolver.Window(q.Shift, day)
	if err != nil {
		return nil, err
	}

	filter := repository.EventFilter{
		ProductID: q.ProductID,
		Shift:     window.Shift,
		From:      window.Start,
		To:        window.End,
	}
	salesFilter := filter
	salesFilter.OwnerID = q.OwnerID

	in := Input{Window: window, ProductID: q.ProductID, OwnerID: q.OwnerID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		products, err := s.store.ListProducts(gctx)
		if err != nil {
			return models.StoreFailure("load products", err)
		}
		in.Products = products
		return nil
	})
	g.Go(func() error {
		events, err := s.store.ListProduction(gctx, filter)
		if err != nil {
			return models.StoreFailure("load production", err)
		}
		in.Production = events
		return nil
	})
	g.Go(func() error {
		events, err := s.store.ListSales(gctx, salesFilter)
		if err != nil {
			return models.StoreFailure("load sales", err)
		}
		in.Sales = events
		return nil
	})
	g.Go(func() error {
		entries, err := s.store.ListRemaining(gctx, q.OwnerID)
		if err != nil {
			return models.StoreFailure("load remaining stock", err)
		}
		in.Remaining = entries
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("reconciliation read failed", zap.Error(err))
		return nil, err
	}

	figures := Reconcile(in)
	s.logger.Debug("inventory reconciled",
		zap.String("shift", string(window.Shift)),
		zap.String("day", window.Day),
		zap.String("owner", q.OwnerID),
		zap.Int("products", len(figures.Products)),
		zap.Int("low", figures.Totals.LowCount),
		zap.Int("out", figures.Totals.OutCount))
	return &figures, nil
}

// GetInventory returns the per-product figures for a shift and day.
func (s *Service) GetInventory(ctx context.Context, sh models.Shift, day, ownerID string) ([]ProductFigures, error) {
	figures, err := s.Reconcile(ctx, Query{Shift: sh, Day: day, OwnerID: ownerID})
	if err != nil {
		return nil, err
	}
	return figures.Products, nil
}
