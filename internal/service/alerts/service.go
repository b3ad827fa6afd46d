// Package alerts notifies operators when the set of low or out-of-stock
// products changes.
package alerts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/mamadbah2/fournil/internal/domain/models"
	"github.com/mamadbah2/fournil/internal/service/inventory"
	client "github.com/mamadbah2/fournil/pkg/clients/whatsapp"
)

const sendTimeout = 10 * time.Second

// Notifier delivers a notification.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// WhatsAppNotifier sends notifications as WhatsApp text messages.
type WhatsAppNotifier struct {
	client client.Client
}

// NewWhatsAppNotifier wraps a WhatsApp client.
func NewWhatsAppNotifier(c client.Client) *WhatsAppNotifier {
	return &WhatsAppNotifier{client: c}
}

// Notify sends the title in bold followed by the message.
func (w *WhatsAppNotifier) Notify(ctx context.Context, n models.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	body := n.Message
	if n.Title != "" {
		body = "*" + n.Title + "*\n" + n.Message
	}
	_, err := w.client.SendTextMessage(ctx, client.SendTextMessageRequest{To: n.To, Body: body})
	return err
}

// NopNotifier drops notifications. Used when no channel is configured.
type NopNotifier struct {
	Logger *zap.Logger
}

// Notify logs and discards n.
func (n NopNotifier) Notify(_ context.Context, msg models.Notification) error {
	if n.Logger != nil {
		n.Logger.Debug("alert dropped, no notifier configured", zap.String("title", msg.Title))
	}
	return nil
}

// Service compares successive inventory snapshots and alerts on changes.
type Service struct {
	notifier  Notifier
	recipient string
	printer   *message.Printer
	logger    *zap.Logger

	mu   sync.Mutex
	last map[string]string
}

// NewService wires the alert service. The printer formats amounts in tag.
func NewService(notifier Notifier, recipient string, tag language.Tag, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		notifier:  notifier,
		recipient: recipient,
		printer:   message.NewPrinter(tag),
		logger:    logger,
		last:      make(map[string]string),
	}
}

// Observe is an inventory.Subscriber. The first snapshot of a scope only
// alerts when something is already low or out.
func (s *Service) Observe(ctx context.Context, f *inventory.Figures) {
	if f == nil {
		return
	}
	scope := string(f.Shift) + "|" + f.Day + "|" + f.OwnerID
	alerting := f.Alerting()
	signature := signatureOf(alerting)

	s.mu.Lock()
	previous, seen := s.last[scope]
	if seen && previous == signature {
		s.mu.Unlock()
		return
	}
	s.last[scope] = signature
	s.mu.Unlock()

	if !seen && len(alerting) == 0 {
		return
	}

	n := s.compose(f, alerting)
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Error("failed to send stock alert", zap.String("scope", scope), zap.Error(err))
		// Forget the scope so the next poll retries.
		s.mu.Lock()
		if s.last[scope] == signature {
			delete(s.last, scope)
		}
		s.mu.Unlock()
		return
	}
	s.logger.Info("stock alert sent", zap.String("scope", scope), zap.Int("products", len(alerting)))
}

func (s *Service) compose(f *inventory.Figures, alerting []inventory.ProductFigures) models.Notification {
	title := s.printer.Sprintf("Stock %s shift, %s", f.Shift, f.Day)
	if len(alerting) == 0 {
		return models.Notification{To: s.recipient, Title: title, Message: "All products are back to normal stock."}
	}

	var b strings.Builder
	for _, p := range alerting {
		name := p.ProductName
		if name == "" {
			name = p.ProductID
		}
		b.WriteString(s.printer.Sprintf("- %s: %s, %d left of %d produced, %.0f remaining value\n",
			name, p.Status, p.CurrentStockUnits, p.ProducedUnits, p.RemainingTarget.InexactFloat64()))
	}
	b.WriteString(s.printer.Sprintf("Low: %d, out: %d", f.Totals.LowCount, f.Totals.OutCount))
	return models.Notification{To: s.recipient, Title: title, Message: b.String()}
}

func signatureOf(products []inventory.ProductFigures) string {
	parts := make([]string, 0, len(products))
	for _, p := range products {
		parts = append(parts, p.ProductID+"="+string(p.Status))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
