package alerts

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/mamadbah2/fournil/internal/domain/models"
	"github.com/mamadbah2/fournil/internal/service/inventory"
	client "github.com/mamadbah2/fournil/pkg/clients/whatsapp"
)

type fakeNotifier struct {
	sent []models.Notification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, n models.Notification) error {
	f.sent = append(f.sent, n)
	return f.err
}

func snapshot(statuses ...inventory.Status) *inventory.Figures {
	f := &inventory.Figures{Shift: models.ShiftMorning, Day: "2025-05-20"}
	for i, st := range statuses {
		p := inventory.ProductFigures{
			ProductID:         string(rune('a' + i)),
			ProductName:       "Product " + string(rune('A'+i)),
			ProducedUnits:     1500,
			CurrentStockUnits: 12,
			RemainingTarget:   decimal.NewFromInt(6000),
			Status:            st,
		}
		f.Products = append(f.Products, p)
		switch st {
		case inventory.StatusLow:
			f.Totals.LowCount++
		case inventory.StatusOut:
			f.Totals.OutCount++
		}
	}
	return f
}

func TestObserveAlertsOnlyOnChange(t *testing.T) {
	n := &fakeNotifier{}
	svc := NewService(n, "224600000000", language.English, nil)
	ctx := context.Background()

	svc.Observe(ctx, snapshot(inventory.StatusNormal, inventory.StatusHigh))
	assert.Empty(t, n.sent, "healthy first snapshot is silent")

	svc.Observe(ctx, snapshot(inventory.StatusLow, inventory.StatusHigh))
	require.Len(t, n.sent, 1)
	assert.Equal(t, "224600000000", n.sent[0].To)
	assert.Contains(t, n.sent[0].Message, "Product A: low, 12 left of 1,500 produced, 6,000 remaining value")
	assert.Contains(t, n.sent[0].Message, "Low: 1, out: 0")

	svc.Observe(ctx, snapshot(inventory.StatusLow, inventory.StatusHigh))
	assert.Len(t, n.sent, 1, "same set does not alert twice")

	svc.Observe(ctx, snapshot(inventory.StatusOut, inventory.StatusHigh))
	assert.Len(t, n.sent, 2)

	svc.Observe(ctx, snapshot(inventory.StatusNormal, inventory.StatusHigh))
	require.Len(t, n.sent, 3)
	assert.Contains(t, n.sent[2].Message, "back to normal")
}

func TestObserveRetriesAfterFailure(t *testing.T) {
	n := &fakeNotifier{err: errors.New("timeout")}
	svc := NewService(n, "1", language.English, nil)
	ctx := context.Background()

	svc.Observe(ctx, snapshot(inventory.StatusOut))
	svc.Observe(ctx, snapshot(inventory.StatusOut))
	assert.Len(t, n.sent, 2)

	n.err = nil
	svc.Observe(ctx, snapshot(inventory.StatusOut))
	svc.Observe(ctx, snapshot(inventory.StatusOut))
	assert.Len(t, n.sent, 3)
}

func TestObserveScopesPerShift(t *testing.T) {
	n := &fakeNotifier{}
	svc := NewService(n, "1", language.English, nil)
	ctx := context.Background()

	morning := snapshot(inventory.StatusLow)
	night := snapshot(inventory.StatusLow)
	night.Shift = models.ShiftNight

	svc.Observe(ctx, morning)
	svc.Observe(ctx, night)
	assert.Len(t, n.sent, 2)
}

type fakeClient struct {
	req client.SendTextMessageRequest
}

func (f *fakeClient) SendTextMessage(_ context.Context, req client.SendTextMessageRequest) (*client.SendTextMessageResponse, error) {
	f.req = req
	return &client.SendTextMessageResponse{}, nil
}

func TestWhatsAppNotifierFormatsTitle(t *testing.T) {
	c := &fakeClient{}
	err := NewWhatsAppNotifier(c).Notify(context.Background(), models.Notification{To: "1", Title: "Stock", Message: "bread low"})
	require.NoError(t, err)
	assert.Equal(t, "1", c.req.To)
	assert.Equal(t, "*Stock*\nbread low", c.req.Body)
}

func TestNopNotifier(t *testing.T) {
	assert.NoError(t, NopNotifier{}.Notify(context.Background(), models.Notification{}))
}
