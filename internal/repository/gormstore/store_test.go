package gormstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/fournil/internal/domain/models"
	"github.com/mamadbah2/fournil/internal/repository"
	"github.com/mamadbah2/fournil/internal/testutil"
)

func TestEventWindowFilter(t *testing.T) {
	store := testutil.NewStore(t)
	ctx := context.Background()
	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	events := []models.ProductionEvent{
		{ID: "e1", ProductID: "p1", Quantity: 10, Shift: models.ShiftMorning, OccurredAt: day.Add(-time.Minute)},
		{ID: "e2", ProductID: "p1", Quantity: 20, Shift: models.ShiftMorning, OccurredAt: day},
		{ID: "e3", ProductID: "p1", Quantity: 30, Shift: models.ShiftNight, OccurredAt: day.Add(20 * time.Hour)},
		{ID: "e4", ProductID: "p2", Quantity: 40, Shift: models.ShiftMorning, OccurredAt: day.Add(23*time.Hour + 59*time.Minute)},
		{ID: "e5", ProductID: "p1", Quantity: 50, Shift: models.ShiftMorning, OccurredAt: day.AddDate(0, 0, 1)},
	}
	for i := range events {
		require.NoError(t, store.InsertProduction(ctx, &events[i]))
	}

	got, err := store.ListProduction(ctx, repository.EventFilter{
		Shift: models.ShiftMorning,
		From:  day,
		To:    day.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, e := range got {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"e2", "e4"}, ids)
}

func TestSalesOverrideAndDelete(t *testing.T) {
	store := testutil.NewStore(t)
	ctx := context.Background()
	price := 450.0
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertSale(ctx, &models.SalesEvent{ID: "s1", ProductID: "p1", Quantity: 2, UnitPrice: &price, Shift: models.ShiftMorning, OwnerID: "u1", OccurredAt: now}))
	require.NoError(t, store.InsertSale(ctx, &models.SalesEvent{ID: "s2", ProductID: "p1", Quantity: 1, Shift: models.ShiftMorning, OwnerID: "u2", OccurredAt: now}))
	require.NoError(t, store.InsertSale(ctx, &models.SalesEvent{ID: "s3", ProductID: "p1", Quantity: 1, Shift: models.ShiftNight, OwnerID: "u1", OccurredAt: now}))

	sales, err := store.ListSales(ctx, repository.EventFilter{OwnerID: "u1", Shift: models.ShiftMorning})
	require.NoError(t, err)
	require.Len(t, sales, 1)
	require.NotNil(t, sales[0].UnitPrice)
	assert.Equal(t, 450.0, *sales[0].UnitPrice)

	n, err := store.DeleteSales(ctx, "u1", models.ShiftMorning)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	rest, err := store.ListSales(ctx, repository.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}

func TestUpsertRemainingKeepsOneRowPerOwnerProduct(t *testing.T) {
	store := testutil.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertRemaining(ctx, &models.RemainingStockEntry{ID: "r1", OwnerID: "u1", ProductID: "p1", Quantity: 4}))
	require.NoError(t, store.UpsertRemaining(ctx, &models.RemainingStockEntry{ID: "r2", OwnerID: "u1", ProductID: "p1", Quantity: 7}))
	require.NoError(t, store.UpsertRemaining(ctx, &models.RemainingStockEntry{ID: "r3", OwnerID: "u2", ProductID: "p1", Quantity: 1}))

	mine, err := store.ListRemaining(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, 7, mine[0].Quantity)

	all, err := store.ListRemaining(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestBatchSequenceAndUniqueNumber(t *testing.T) {
	store := testutil.NewStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.NextBatchSequence(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	other, err := store.NextBatchSequence(ctx, "p2")
	require.NoError(t, err)
	assert.EqualValues(t, 1, other)

	b := &models.Batch{ID: "b1", ProductID: "p1", BatchNumber: "WB-0001", Status: models.BatchPlanning, Shift: models.ShiftMorning, OwnerID: "u1", EstimatedDurationMinutes: 60}
	require.NoError(t, store.InsertBatch(ctx, b))
	dup := *b
	dup.ID = "b2"
	assert.ErrorIs(t, store.InsertBatch(ctx, &dup), repository.ErrDuplicateKey)

	sameNumberOtherProduct := *b
	sameNumberOtherProduct.ID = "b3"
	sameNumberOtherProduct.ProductID = "p2"
	assert.NoError(t, store.InsertBatch(ctx, &sameNumberOtherProduct))
}

func TestUpdateBatchIsConditional(t *testing.T) {
	store := testutil.NewStore(t)
	ctx := context.Background()

	b := &models.Batch{ID: "b1", ProductID: "p1", BatchNumber: "1", Status: models.BatchPlanning, Shift: models.ShiftMorning, OwnerID: "u1", EstimatedDurationMinutes: 60}
	require.NoError(t, store.InsertBatch(ctx, b))

	started := *b
	started.Status = models.BatchActive
	require.NoError(t, store.UpdateBatch(ctx, &started, models.BatchPlanning))

	stale := *b
	stale.Status = models.BatchCancelled
	assert.ErrorIs(t, store.UpdateBatch(ctx, &stale, models.BatchPlanning), repository.ErrConflict)

	got, err := store.GetBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchActive, got.Status)

	active, err := store.ListBatches(ctx, repository.BatchFilter{Statuses: []models.BatchStatus{models.BatchActive}})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestReportKeyIsUnique(t *testing.T) {
	store := testutil.NewStore(t)
	ctx := context.Background()

	r := &models.ShiftReport{
		ID: "r1", OwnerID: "u1", Shift: models.ShiftMorning, Day: "2025-06-02",
		Revenue:    100,
		SalesLines: []models.ReportLine{{ProductID: "p1", ProductName: "Baguette", Quantity: 2, UnitPrice: 50, Amount: 100}},
	}
	require.NoError(t, store.InsertReport(ctx, r))

	dup := *r
	dup.ID = "r2"
	assert.ErrorIs(t, store.InsertReport(ctx, &dup), repository.ErrDuplicateKey)

	found, err := store.FindReport(ctx, r.Key())
	require.NoError(t, err)
	require.Len(t, found.SalesLines, 1)
	assert.Equal(t, "Baguette", found.SalesLines[0].ProductName)

	found.Feedback = "busy morning"
	require.NoError(t, store.UpdateReport(ctx, found))
	again, err := store.FindReport(ctx, r.Key())
	require.NoError(t, err)
	assert.Equal(t, "busy morning", again.Feedback)

	_, err = store.FindReport(ctx, models.ReportKey{OwnerID: "u1", Shift: models.ShiftNight, Day: "2025-06-02"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestShiftSelectionUpsert(t *testing.T) {
	store := testutil.NewStore(t)
	ctx := context.Background()

	_, err := store.GetShiftSelection(ctx, "u1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, store.SaveShiftSelection(ctx, &models.ShiftSelection{OwnerID: "u1", Shift: models.ShiftMorning}))
	require.NoError(t, store.SaveShiftSelection(ctx, &models.ShiftSelection{OwnerID: "u1", Shift: models.ShiftNight}))

	sel, err := store.GetShiftSelection(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.ShiftNight, sel.Shift)
}
