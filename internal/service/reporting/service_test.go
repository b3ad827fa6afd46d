package reporting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mamadbah2/fournil/internal/domain/models"
	"github.com/mamadbah2/fournil/internal/repository"
	"github.com/mamadbah2/fournil/internal/repository/gormstore"
	"github.com/mamadbah2/fournil/internal/service/inventory"
	"github.com/mamadbah2/fournil/internal/shift"
	"github.com/mamadbah2/fournil/internal/testutil"
)

const day = "2025-05-20"

var (
	dayStart = time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)
	key      = models.ReportKey{OwnerID: "U1", Shift: models.ShiftMorning, Day: day}
)

type recordingMirror struct {
	mu      sync.Mutex
	reports []models.ShiftReport
	err     error
}

func (m *recordingMirror) AppendReport(_ context.Context, r *models.ShiftReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, *r)
	return m.err
}

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()
	resolver := shift.NewResolver(time.UTC)
	var reader inventory.Reader
	if gs, ok := store.(inventory.Reader); ok {
		reader = gs
	}
	svc := NewService(store, inventory.NewService(reader, resolver, zap.NewNop()), resolver, zap.NewNop())
	svc.now = func() time.Time { return dayStart.Add(12 * time.Hour) }
	ids := 0
	svc.newID = func() string {
		ids++
		return fmt.Sprintf("report-%d", ids)
	}
	return svc
}

func countReports(t *testing.T, store *gormstore.Store) int {
	t.Helper()
	n := 0
	for _, sh := range []models.Shift{models.ShiftMorning, models.ShiftNight} {
		for _, owner := range []string{"U1", "U2"} {
			if _, err := store.FindReport(context.Background(), models.ReportKey{OwnerID: owner, Shift: sh, Day: day}); err == nil {
				n++
			}
		}
	}
	return n
}

func TestSaveShiftReportIsIdempotent(t *testing.T) {
	store := testutil.NewStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	first, err := svc.SaveShiftReport(ctx, key, nil, nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, models.ReportCreated, first)

	second, err := svc.SaveShiftReport(ctx, key, nil, nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, models.ReportUpdated, second)
	assert.Equal(t, 1, countReports(t, store))
}

func TestSaveShiftReportOverwritesFeedback(t *testing.T) {
	store := testutil.NewStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	_, err := svc.SaveShiftReport(ctx, key, nil, nil, nil, "slow morning")
	require.NoError(t, err)
	outcome, err := svc.SaveShiftReport(ctx, key, nil, []models.ReportLine{{ProductID: "bread", Quantity: 2, Amount: 1000}}, nil, "busy after all")
	require.NoError(t, err)
	assert.Equal(t, models.ReportUpdated, outcome)

	saved, err := svc.GetShiftReport(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "busy after all", saved.Feedback)
	assert.Equal(t, "report-1", saved.ID)
	require.Len(t, saved.SalesLines, 1)
	assert.Equal(t, 1, countReports(t, store))
}

func TestSaveShiftReportValidation(t *testing.T) {
	svc := newTestService(t, testutil.NewStore(t))
	ctx := context.Background()

	tests := []struct {
		name string
		key  models.ReportKey
	}{
		{"missing owner", models.ReportKey{Shift: models.ShiftMorning, Day: day}},
		{"unknown shift", models.ReportKey{OwnerID: "U1", Shift: "noon", Day: day}},
		{"bad day", models.ReportKey{OwnerID: "U1", Shift: models.ShiftMorning, Day: "20/05/2025"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SaveShiftReport(ctx, tt.key, nil, nil, nil, "")
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

// racingStore lets a competing writer insert the same key between the
// lookup and the insert of the service.
type racingStore struct {
	*gormstore.Store
	raced bool
}

func (r *racingStore) FindReport(ctx context.Context, k models.ReportKey) (*models.ShiftReport, error) {
	if !r.raced {
		return nil, fmt.Errorf("find report: %w", models.ErrNotFound)
	}
	return r.Store.FindReport(ctx, k)
}

func (r *racingStore) InsertReport(ctx context.Context, rep *models.ShiftReport) error {
	if !r.raced {
		r.raced = true
		competitor := *rep
		competitor.ID = "competitor"
		competitor.Feedback = "first writer"
		if err := r.Store.InsertReport(ctx, &competitor); err != nil {
			return err
		}
	}
	return r.Store.InsertReport(ctx, rep)
}

func TestSaveShiftReportConvertsDuplicateToUpdate(t *testing.T) {
	store := &racingStore{Store: testutil.NewStore(t)}
	svc := newTestService(t, store)
	ctx := context.Background()

	outcome, err := svc.SaveShiftReport(ctx, key, nil, nil, nil, "second writer")
	require.NoError(t, err)
	assert.Equal(t, models.ReportUpdated, outcome)

	saved, err := store.Store.FindReport(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "competitor", saved.ID)
	assert.Equal(t, "second writer", saved.Feedback)
	assert.Equal(t, 1, countReports(t, store.Store))
}

type failingReportStore struct {
	*gormstore.Store
}

func (f *failingReportStore) FindReport(context.Context, models.ReportKey) (*models.ShiftReport, error) {
	return nil, errors.New("connection reset")
}

func TestSaveShiftReportStoreFailureIsRetryable(t *testing.T) {
	svc := newTestService(t, &failingReportStore{Store: testutil.NewStore(t)})
	_, err := svc.SaveShiftReport(context.Background(), key, nil, nil, nil, "")
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

func seedShift(t *testing.T, store *gormstore.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateProduct(ctx, &models.Product{ID: "bread", Name: "White Bread", UnitPrice: 500}))
	require.NoError(t, store.InsertProduction(ctx, &models.ProductionEvent{ID: "p1", ProductID: "bread", Quantity: 50, Shift: models.ShiftMorning, OccurredAt: dayStart.Add(6 * time.Hour)}))
	price := 450.0
	sales := []models.SalesEvent{
		{ID: "s1", ProductID: "bread", Quantity: 20, Shift: models.ShiftMorning, OwnerID: "U1", OccurredAt: dayStart.Add(8 * time.Hour)},
		{ID: "s2", ProductID: "bread", Quantity: 10, UnitPrice: &price, Discount: 100, Shift: models.ShiftMorning, OwnerID: "U1", OccurredAt: dayStart.Add(9 * time.Hour)},
		{ID: "s3", ProductID: "bread", Quantity: 5, Shift: models.ShiftMorning, OwnerID: "U2", OccurredAt: dayStart.Add(9 * time.Hour)},
		{ID: "s4", ProductID: "bread", Quantity: 4, Shift: models.ShiftNight, OwnerID: "U1", OccurredAt: dayStart.Add(20 * time.Hour)},
	}
	for i := range sales {
		require.NoError(t, store.InsertSale(ctx, &sales[i]))
	}
	require.NoError(t, store.UpsertRemaining(ctx, &models.RemainingStockEntry{ID: "r1", OwnerID: "U1", ProductID: "bread", Quantity: 3, UpdatedAt: dayStart}))
}

func TestGenerateShiftReport(t *testing.T) {
	store := testutil.NewStore(t)
	seedShift(t, store)
	mirror := &recordingMirror{}
	svc := newTestService(t, store)
	svc.SetMirror(mirror)

	report, outcome, err := svc.GenerateShiftReport(context.Background(), GenerateRequest{OwnerID: "U1", Shift: models.ShiftMorning, Day: day, Feedback: " fine "})
	require.NoError(t, err)
	assert.Equal(t, models.ReportCreated, outcome)

	// 20*500 + (10*450 - 100)
	assert.Equal(t, 14400.0, report.Revenue)
	assert.Equal(t, 30, report.ItemsSold)
	// (25000 - 14400) + 3*500
	assert.Equal(t, 12100.0, report.RemainingValue)
	assert.Equal(t, "fine", report.Feedback)

	require.Len(t, report.SalesLines, 2)
	assert.Equal(t, "White Bread", report.SalesLines[0].ProductName)
	assert.Equal(t, 10000.0, report.SalesLines[0].Amount)
	assert.Equal(t, 450.0, report.SalesLines[1].UnitPrice)
	assert.Equal(t, 4400.0, report.SalesLines[1].Amount)
	require.Len(t, report.RemainingLines, 1)
	assert.Equal(t, 1500.0, report.RemainingLines[0].Amount)

	require.Len(t, mirror.reports, 1)
	assert.Equal(t, report.ID, mirror.reports[0].ID)
}

func TestGenerateShiftReportSessionIsSingleUse(t *testing.T) {
	store := testutil.NewStore(t)
	seedShift(t, store)
	svc := newTestService(t, store)
	ctx := context.Background()

	req := GenerateRequest{OwnerID: "U1", Shift: models.ShiftMorning, Day: day, SessionID: "tab-1"}
	_, outcome, err := svc.GenerateShiftReport(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.ReportCreated, outcome)

	_, outcome, err = svc.GenerateShiftReport(ctx, req)
	require.ErrorIs(t, err, ErrSessionCompleted)
	assert.Equal(t, models.ReportCreated, outcome)

	req.SessionID = "tab-2"
	_, outcome, err = svc.GenerateShiftReport(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.ReportUpdated, outcome)
}

// gatedStore holds the first report insert until release is closed and can
// fail it.
type gatedStore struct {
	*gormstore.Store
	entered   chan struct{}
	release   chan struct{}
	failFirst bool

	once sync.Once
}

func newGatedStore(t *testing.T, failFirst bool) *gatedStore {
	return &gatedStore{
		Store:     testutil.NewStore(t),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
		failFirst: failFirst,
	}
}

func (g *gatedStore) InsertReport(ctx context.Context, rep *models.ShiftReport) error {
	first := false
	g.once.Do(func() { first = true })
	if !first {
		return g.Store.InsertReport(ctx, rep)
	}
	close(g.entered)
	<-g.release
	if g.failFirst {
		return errors.New("connection reset")
	}
	return g.Store.InsertReport(ctx, rep)
}

type generateResult struct {
	outcome models.SaveOutcome
	err     error
}

func TestGenerateShiftReportSameSessionConcurrently(t *testing.T) {
	store := newGatedStore(t, false)
	seedShift(t, store.Store)
	svc := newTestService(t, store)
	ctx := context.Background()
	req := GenerateRequest{OwnerID: "U1", Shift: models.ShiftMorning, Day: day, SessionID: "s1"}

	results := make(chan generateResult, 2)
	run := func() {
		_, outcome, err := svc.GenerateShiftReport(ctx, req)
		results <- generateResult{outcome, err}
	}

	go run()
	<-store.entered
	go run()
	time.Sleep(20 * time.Millisecond)
	close(store.release)

	var saved, skipped int
	for i := 0; i < 2; i++ {
		r := <-results
		assert.Equal(t, models.ReportCreated, r.outcome)
		if errors.Is(r.err, ErrSessionCompleted) {
			skipped++
			continue
		}
		require.NoError(t, r.err)
		saved++
	}
	assert.Equal(t, 1, saved)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 1, countReports(t, store.Store))
}

func TestGenerateShiftReportRetriesAfterFailedSaveOnSameSession(t *testing.T) {
	store := newGatedStore(t, true)
	seedShift(t, store.Store)
	svc := newTestService(t, store)
	ctx := context.Background()
	req := GenerateRequest{OwnerID: "U1", Shift: models.ShiftMorning, Day: day, SessionID: "s1"}

	first := make(chan generateResult, 1)
	second := make(chan generateResult, 1)
	go func() {
		_, outcome, err := svc.GenerateShiftReport(ctx, req)
		first <- generateResult{outcome, err}
	}()
	<-store.entered
	go func() {
		_, outcome, err := svc.GenerateShiftReport(ctx, req)
		second <- generateResult{outcome, err}
	}()
	time.Sleep(20 * time.Millisecond)
	close(store.release)

	r := <-first
	assert.ErrorIs(t, r.err, models.ErrStoreUnavailable)

	r = <-second
	require.NoError(t, r.err, "a failed save must not mark the session as saved")
	assert.Equal(t, models.ReportCreated, r.outcome)
	assert.Equal(t, 1, countReports(t, store.Store))
}

func TestClearShiftSalesWaitsForInFlightSave(t *testing.T) {
	store := newGatedStore(t, false)
	seedShift(t, store.Store)
	svc := newTestService(t, store)
	ctx := context.Background()

	saved := make(chan error, 1)
	go func() {
		_, _, err := svc.GenerateShiftReport(ctx, GenerateRequest{OwnerID: "U1", Shift: models.ShiftMorning, Day: day})
		saved <- err
	}()
	<-store.entered

	cleared := make(chan int64, 1)
	go func() {
		n, err := svc.ClearShiftSales(ctx, "U1", models.ShiftMorning)
		assert.NoError(t, err)
		cleared <- n
	}()

	select {
	case <-cleared:
		t.Fatal("sales cleared while the report save was still running")
	case <-time.After(50 * time.Millisecond):
	}
	sales, err := store.ListSales(ctx, repository.EventFilter{OwnerID: "U1", Shift: models.ShiftMorning})
	require.NoError(t, err)
	assert.Len(t, sales, 2)

	close(store.release)
	require.NoError(t, <-saved)
	assert.Equal(t, int64(2), <-cleared)

	report, err := svc.GetShiftReport(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 30, report.ItemsSold)
}

func TestKeyedMutexDropsReleasedKeys(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("U1|morning")

	waiting := make(chan struct{})
	acquired := make(chan struct{})
	go func() {
		close(waiting)
		release := k.Lock("U1|morning")
		close(acquired)
		release()
	}()
	<-waiting
	unlock()
	<-acquired

	require.Eventually(t, func() bool {
		k.mu.Lock()
		defer k.mu.Unlock()
		return len(k.locks) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestMirrorFailureIsNotSurfaced(t *testing.T) {
	svc := newTestService(t, testutil.NewStore(t))
	svc.SetMirror(&recordingMirror{err: errors.New("quota exceeded")})

	outcome, err := svc.SaveShiftReport(context.Background(), key, nil, nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, models.ReportCreated, outcome)
}

func TestEndShiftSavesThenClears(t *testing.T) {
	store := testutil.NewStore(t)
	seedShift(t, store)
	svc := newTestService(t, store)
	ctx := context.Background()

	req := GenerateRequest{OwnerID: "U1", Shift: models.ShiftMorning, Day: day, Feedback: "done", SessionID: "tab-1"}
	_, _, err := svc.GenerateShiftReport(ctx, req)
	require.NoError(t, err)

	result, err := svc.EndShift(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, result.Report, "session already saved")
	assert.Equal(t, models.ReportCreated, result.Outcome)
	assert.Equal(t, int64(2), result.SalesCleared)

	saved, err := svc.GetShiftReport(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 30, saved.ItemsSold, "report keeps the figures from before the clear")

	left, err := store.ListSales(ctx, repository.EventFilter{})
	require.NoError(t, err)
	require.Len(t, left, 2)
	for _, e := range left {
		assert.False(t, e.OwnerID == "U1" && e.Shift == models.ShiftMorning)
	}
}

func TestEndShiftWithoutPriorSave(t *testing.T) {
	store := testutil.NewStore(t)
	seedShift(t, store)
	svc := newTestService(t, store)

	result, err := svc.EndShift(context.Background(), GenerateRequest{OwnerID: "U1", Shift: models.ShiftMorning, Day: day})
	require.NoError(t, err)
	require.NotNil(t, result.Report)
	assert.Equal(t, models.ReportCreated, result.Outcome)
	assert.Equal(t, 30, result.Report.ItemsSold)
	assert.Equal(t, int64(2), result.SalesCleared)
}

func TestClearShiftSalesValidation(t *testing.T) {
	svc := newTestService(t, testutil.NewStore(t))
	_, err := svc.ClearShiftSales(context.Background(), "", models.ShiftMorning)
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = svc.ClearShiftSales(context.Background(), "U1", "noon")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSessionManagerReusesAndExpires(t *testing.T) {
	sm := NewSessionManager()
	now := dayStart
	sm.now = func() time.Time { return now }

	s := sm.Get("a")
	require.True(t, s.Complete())
	assert.Same(t, s, sm.Get("a"))
	assert.False(t, sm.Get("a").Complete())

	now = now.Add(sessionTTL + time.Minute)
	fresh := sm.Get("a")
	assert.NotSame(t, s, fresh)
	assert.True(t, fresh.Complete())

	assert.NotSame(t, sm.Get(""), sm.Get(""))
}
