// Package reporting persists end-of-shift reports and clears shift sales.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/fournil/internal/domain/models"
	"github.com/mamadbah2/fournil/internal/repository"
	"github.com/mamadbah2/fournil/internal/service/inventory"
	"github.com/mamadbah2/fournil/internal/shift"
)

// ErrSessionCompleted is returned when a session already saved its report.
var ErrSessionCompleted = errors.New("report already saved for this session")

// Store is the persistence surface used by the reporting service.
type Store interface {
	FindReport(ctx context.Context, key models.ReportKey) (*models.ShiftReport, error)
	InsertReport(ctx context.Context, r *models.ShiftReport) error
	UpdateReport(ctx context.Context, r *models.ShiftReport) error
	ListSales(ctx context.Context, f repository.EventFilter) ([]models.SalesEvent, error)
	ListRemaining(ctx context.Context, ownerID string) ([]models.RemainingStockEntry, error)
	DeleteSales(ctx context.Context, ownerID string, sh models.Shift) (int64, error)
}

// Reconciler produces the figures a report is built from.
type Reconciler interface {
	Reconcile(ctx context.Context, q inventory.Query) (*inventory.Figures, error)
}

// Mirror receives a copy of every saved report.
type Mirror interface {
	AppendReport(ctx context.Context, r *models.ShiftReport) error
}

// GenerateRequest asks for a report built from the current figures.
// SessionID scopes the single-use save guard; empty means unguarded.
type GenerateRequest struct {
	OwnerID   string       `json:"owner_id"`
	Shift     models.Shift `json:"shift"`
	Day       string       `json:"day"`
	Feedback  string       `json:"feedback"`
	SessionID string       `json:"session_id"`
}

// EndShiftResult describes what EndShift did.
type EndShiftResult struct {
	Report       *models.ShiftReport `json:"report,omitempty"`
	Outcome      models.SaveOutcome  `json:"outcome"`
	SalesCleared int64               `json:"sales_cleared"`
}

// Service implements report upserts, generation and end of shift.
type Service struct {
	store      Store
	reconciler Reconciler
	resolver   *shift.Resolver
	mirror     Mirror
	sessions   *SessionManager
	locks      *keyedMutex
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
	onClear    func()
}

// NewService wires a new reporting service instance.
func NewService(store Store, reconciler Reconciler, resolver *shift.Resolver, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		reconciler: reconciler,
		resolver:   resolver,
		sessions:   NewSessionManager(),
		locks:      newKeyedMutex(),
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// SetMirror enables best-effort mirroring of saved reports.
func (s *Service) SetMirror(m Mirror) {
	s.mirror = m
}

// SetClearHook registers fn to run after shift sales were deleted.
func (s *Service) SetClearHook(fn func()) {
	s.onClear = fn
}

// SaveShiftReport upserts the report for (ownerID, sh, day). The totals are
// taken from figures; a nil figures saves zero totals.
func (s *Service) SaveShiftReport(ctx context.Context, key models.ReportKey, figures *inventory.Figures, salesLines, remainingLines []models.ReportLine, feedback string) (models.SaveOutcome, error) {
	key, err := s.checkKey(key)
	if err != nil {
		return "", err
	}

	unlock := s.locks.Lock(lockKey(key.OwnerID, key.Shift))
	defer unlock()

	report := s.buildReport(key, figures, salesLines, remainingLines, feedback)
	return s.save(ctx, report)
}

// GenerateShiftReport reconciles the owner's shift, snapshots its sales and
// remaining lines and saves the report.
func (s *Service) GenerateShiftReport(ctx context.Context, req GenerateRequest) (*models.ShiftReport, models.SaveOutcome, error) {
	key, err := s.checkKey(models.ReportKey{OwnerID: req.OwnerID, Shift: req.Shift, Day: req.Day})
	if err != nil {
		return nil, "", err
	}

	// The session is claimed under the lock so a second caller only sees it
	// completed once the first save has finished or been released.
	unlock := s.locks.Lock(lockKey(key.OwnerID, key.Shift))
	defer unlock()

	session := s.sessions.Get(req.SessionID)
	if !session.Complete() {
		return nil, session.Outcome(), ErrSessionCompleted
	}

	report, outcome, err := s.generate(ctx, key, req.Feedback)
	if err != nil {
		session.Release()
		return nil, "", err
	}
	session.record(outcome)
	return report, outcome, nil
}

// GetShiftReport loads the saved report for key.
func (s *Service) GetShiftReport(ctx context.Context, key models.ReportKey) (*models.ShiftReport, error) {
	key, err := s.checkKey(key)
	if err != nil {
		return nil, err
	}
	report, err := s.store.FindReport(ctx, key)
	if err != nil {
		return nil, models.StoreFailure("find report", err)
	}
	return report, nil
}

// ClearShiftSales deletes every sales event of ownerID in sh. It waits for any
// in-flight save of the same owner and shift.
func (s *Service) ClearShiftSales(ctx context.Context, ownerID string, sh models.Shift) (int64, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return 0, models.Invalid("owner_id", "required")
	}
	if !sh.Valid() {
		return 0, models.Invalid("shift", fmt.Sprintf("unknown shift %q", sh))
	}

	unlock := s.locks.Lock(lockKey(ownerID, sh))
	defer unlock()
	return s.clear(ctx, ownerID, sh)
}

// EndShift saves the shift report, unless the session already did, and then
// clears the owner's shift sales. The clear never starts before the save ends.
func (s *Service) EndShift(ctx context.Context, req GenerateRequest) (*EndShiftResult, error) {
	key, err := s.checkKey(models.ReportKey{OwnerID: req.OwnerID, Shift: req.Shift, Day: req.Day})
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(lockKey(key.OwnerID, key.Shift))
	defer unlock()

	result := &EndShiftResult{}
	session := s.sessions.Get(req.SessionID)
	if session.Complete() {
		report, outcome, err := s.generate(ctx, key, req.Feedback)
		if err != nil {
			session.Release()
			return nil, err
		}
		session.record(outcome)
		result.Report = report
		result.Outcome = outcome
	} else {
		result.Outcome = session.Outcome()
		s.logger.Debug("session already saved, clearing only", zap.String("session_id", req.SessionID))
	}

	cleared, err := s.clear(ctx, key.OwnerID, key.Shift)
	if err != nil {
		return result, err
	}
	result.SalesCleared = cleared
	return result, nil
}

func (s *Service) generate(ctx context.Context, key models.ReportKey, feedback string) (*models.ShiftReport, models.SaveOutcome, error) {
	window, err := s.resolver.Window(key.Shift, key.Day)
	if err != nil {
		return nil, "", err
	}

	figures, err := s.reconciler.Reconcile(ctx, inventory.Query{OwnerID: key.OwnerID, Shift: key.Shift, Day: key.Day})
	if err != nil {
		return nil, "", err
	}

	sales, err := s.store.ListSales(ctx, repository.EventFilter{
		OwnerID: key.OwnerID,
		Shift:   key.Shift,
		From:    window.Start,
		To:      window.End,
	})
	if err != nil {
		return nil, "", models.StoreFailure("load sales", err)
	}
	remaining, err := s.store.ListRemaining(ctx, key.OwnerID)
	if err != nil {
		return nil, "", models.StoreFailure("load remaining stock", err)
	}

	salesLines, remainingLines := BuildLines(figures, sales, remaining)
	report := s.buildReport(key, figures, salesLines, remainingLines, feedback)
	outcome, err := s.save(ctx, report)
	if err != nil {
		return nil, "", err
	}
	return report, outcome, nil
}

// save runs the find-then-insert-or-update upsert. The caller holds the lock.
func (s *Service) save(ctx context.Context, report *models.ShiftReport) (models.SaveOutcome, error) {
	logger := s.logger.With(
		zap.String("owner_id", report.OwnerID),
		zap.String("shift", string(report.Shift)),
		zap.String("day", report.Day))

	existing, err := s.store.FindReport(ctx, report.Key())
	switch {
	case err == nil:
		if err := s.overwrite(ctx, existing, report); err != nil {
			return "", err
		}
		logger.Info("shift report updated")
		s.mirrorReport(ctx, report)
		return models.ReportUpdated, nil
	case !errors.Is(err, models.ErrNotFound):
		return "", models.StoreFailure("find report", err)
	}

	err = s.store.InsertReport(ctx, report)
	if err == nil {
		logger.Info("shift report created")
		s.mirrorReport(ctx, report)
		return models.ReportCreated, nil
	}
	if !errors.Is(err, repository.ErrDuplicateKey) {
		return "", models.StoreFailure("insert report", err)
	}

	// Another writer inserted the key first; converge on its row.
	existing, err = s.store.FindReport(ctx, report.Key())
	if err != nil {
		return "", models.StoreFailure("find report", err)
	}
	if err := s.overwrite(ctx, existing, report); err != nil {
		return "", err
	}
	logger.Info("duplicate shift report converted to update")
	s.mirrorReport(ctx, report)
	return models.ReportUpdated, nil
}

func (s *Service) overwrite(ctx context.Context, existing, report *models.ShiftReport) error {
	report.ID = existing.ID
	report.CreatedAt = existing.CreatedAt
	if err := s.store.UpdateReport(ctx, report); err != nil {
		return models.StoreFailure("update report", err)
	}
	return nil
}

func (s *Service) clear(ctx context.Context, ownerID string, sh models.Shift) (int64, error) {
	n, err := s.store.DeleteSales(ctx, ownerID, sh)
	if err != nil {
		return 0, models.StoreFailure("clear shift sales", err)
	}
	s.logger.Info("shift sales cleared", zap.String("owner_id", ownerID), zap.String("shift", string(sh)), zap.Int64("deleted", n))
	if s.onClear != nil {
		s.onClear()
	}
	return n, nil
}

func (s *Service) mirrorReport(ctx context.Context, report *models.ShiftReport) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.AppendReport(ctx, report); err != nil {
		s.logger.Warn("failed to mirror shift report", zap.String("report_id", report.ID), zap.Error(err))
	}
}

func (s *Service) buildReport(key models.ReportKey, figures *inventory.Figures, salesLines, remainingLines []models.ReportLine, feedback string) *models.ShiftReport {
	now := s.now()
	report := &models.ShiftReport{
		ID:             s.newID(),
		OwnerID:        key.OwnerID,
		Shift:          key.Shift,
		Day:            key.Day,
		SalesLines:     salesLines,
		RemainingLines: remainingLines,
		Feedback:       strings.TrimSpace(feedback),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if report.SalesLines == nil {
		report.SalesLines = []models.ReportLine{}
	}
	if report.RemainingLines == nil {
		report.RemainingLines = []models.ReportLine{}
	}
	if figures != nil {
		report.Revenue = figures.Totals.SoldValue.InexactFloat64()
		report.ItemsSold = figures.Totals.SoldUnits
		report.RemainingValue = figures.Totals.RemainingTarget.InexactFloat64()
	}
	return report
}

func (s *Service) checkKey(key models.ReportKey) (models.ReportKey, error) {
	key.OwnerID = strings.TrimSpace(key.OwnerID)
	if key.OwnerID == "" {
		return key, models.Invalid("owner_id", "required")
	}
	if !key.Shift.Valid() {
		return key, models.Invalid("shift", fmt.Sprintf("unknown shift %q", key.Shift))
	}
	if key.Day == "" {
		key.Day = s.resolver.Today(s.now())
	}
	if _, err := s.resolver.Window(key.Shift, key.Day); err != nil {
		return key, err
	}
	return key, nil
}

// BuildLines snapshots sales events and remaining entries into report lines,
// priced from the reconciled figures.
func BuildLines(figures *inventory.Figures, sales []models.SalesEvent, remaining []models.RemainingStockEntry) ([]models.ReportLine, []models.ReportLine) {
	products := make(map[string]inventory.ProductFigures)
	if figures != nil {
		for _, p := range figures.Products {
			products[p.ProductID] = p
		}
	}

	salesLines := make([]models.ReportLine, 0, len(sales))
	for _, e := range sales {
		p := products[e.ProductID]
		price := p.UnitPrice
		if e.UnitPrice != nil {
			price = decimal.NewFromFloat(*e.UnitPrice)
		}
		salesLines = append(salesLines, models.ReportLine{
			ProductID:   e.ProductID,
			ProductName: p.ProductName,
			Quantity:    e.Quantity,
			UnitPrice:   price.InexactFloat64(),
			Discount:    e.Discount,
			Amount:      inventory.LineAmount(e, p.UnitPrice).InexactFloat64(),
		})
	}

	remainingLines := make([]models.ReportLine, 0, len(remaining))
	for _, e := range remaining {
		p := products[e.ProductID]
		remainingLines = append(remainingLines, models.ReportLine{
			ProductID:   e.ProductID,
			ProductName: p.ProductName,
			Quantity:    e.Quantity,
			UnitPrice:   p.UnitPrice.InexactFloat64(),
			Amount:      decimal.NewFromInt(int64(e.Quantity)).Mul(p.UnitPrice).InexactFloat64(),
		})
	}
	return salesLines, remainingLines
}

func lockKey(ownerID string, sh models.Shift) string {
	return ownerID + "|" + string(sh)
}
