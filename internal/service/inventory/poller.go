package inventory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reconciler is implemented by Service.
type Reconciler interface {
	Reconcile(ctx context.Context, q Query) (*Figures, error)
}

// Subscriber receives every fresh snapshot.
type Subscriber func(ctx context.Context, f *Figures)

// Poller re-runs reconciliation on a fixed interval and on demand. Staleness
// is bounded by the interval; readers never wait for a fresher snapshot.
type Poller struct {
	source   Reconciler
	queries  func() []Query
	interval time.Duration
	logger   *zap.Logger

	refresh chan struct{}

	mu          sync.RWMutex
	latest      map[Query]*Figures
	subscribers []Subscriber
}

// NewPoller builds a poller. queries is evaluated on every poll so the day
// rolls over without a restart.
func NewPoller(source Reconciler, queries func() []Query, interval time.Duration, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		source:   source,
		queries:  queries,
		interval: interval,
		logger:   logger,
		refresh:  make(chan struct{}, 1),
		latest:   make(map[Query]*Figures),
	}
}

// Subscribe registers fn for future snapshots.
func (p *Poller) Subscribe(fn Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, fn)
}

// Refresh requests an immediate poll, e.g. after connectivity is restored.
// Requests coalesce while one is pending.
func (p *Poller) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// snapshot returns the last successful snapshot for q, or nil.
func (p *Poller) snapshot(q Query) *Figures {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest[q]
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("inventory poller started", zap.Duration("interval", p.interval))
	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("inventory poller stopped")
			return
		case <-ticker.C:
			p.poll(ctx)
		case <-p.refresh:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	for _, q := range p.queries() {
		figures, err := p.source.Reconcile(ctx, q)
		if err != nil {
			p.logger.Warn("inventory poll failed, keeping last snapshot", zap.String("shift", string(q.Shift)), zap.Error(err))
			continue
		}

		p.mu.Lock()
		p.latest[q] = figures
		subs := append([]Subscriber(nil), p.subscribers...)
		p.mu.Unlock()

		for _, fn := range subs {
			fn(ctx, figures)
		}
	}
}
