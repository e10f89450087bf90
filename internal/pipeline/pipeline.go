package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gammazero/deque"

	"orderbook-viewer/internal/depth"
	"orderbook-viewer/internal/metrics"
	"orderbook-viewer/internal/state"
)

// Publisher receives every rebuilt view.
type Publisher func(depth.View)

// Pipeline moves feed updates into the session book in arrival order and
// republishes the grouped view: right away after a snapshot, throttled after
// deltas.
type Pipeline struct {
	st       *state.State
	log      *slog.Logger
	publish  Publisher
	throttle *Throttler

	mu     sync.Mutex
	queue  deque.Deque[depth.Update]
	signal chan struct{}
}

func New(st *state.State, interval time.Duration, publish Publisher, logger *slog.Logger) *Pipeline {
	p := &Pipeline{
		st:      st,
		log:     logger,
		publish: publish,
		signal:  make(chan struct{}, 1),
	}
	p.throttle = NewThrottler(interval, p.Refresh)
	return p
}

// Push enqueues an update. It never blocks, so the socket reader is not held
// up by view building.
func (p *Pipeline) Push(up depth.Update) {
	p.mu.Lock()
	p.queue.PushBack(up)
	metrics.QueueDepth.Set(float64(p.queue.Len()))
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// Consume forwards updates from a feed channel until it closes or ctx ends.
func (p *Pipeline) Consume(ctx context.Context, updates <-chan depth.Update) {
	for {
		select {
		case up, ok := <-updates:
			if !ok {
				return
			}
			p.Push(up)
		case <-ctx.Done():
			return
		}
	}
}

// Run applies queued updates one at a time until ctx ends. It is the only
// writer of the session book.
func (p *Pipeline) Run(ctx context.Context) {
	defer p.throttle.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.signal:
		}
		for {
			up, ok := p.pop()
			if !ok {
				break
			}
			p.apply(up)
		}
	}
}

func (p *Pipeline) pop() (depth.Update, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue.Len() == 0 {
		return depth.Update{}, false
	}
	up := p.queue.PopFront()
	metrics.QueueDepth.Set(float64(p.queue.Len()))
	return up, true
}

func (p *Pipeline) apply(up depth.Update) {
	if !p.st.Apply(up) {
		p.log.Debug("dropped update for inactive market",
			slog.String("market", up.Market),
			slog.String("kind", up.Kind.String()),
		)
		return
	}
	if up.Kind == depth.Snapshot {
		p.log.Info("book snapshot applied",
			slog.String("market", up.Market),
			slog.Int("bids", len(up.Bids)),
			slog.Int("asks", len(up.Asks)),
		)
		p.Refresh()
		return
	}
	p.throttle.Trigger()
}

// Refresh rebuilds and publishes the view immediately.
func (p *Pipeline) Refresh() {
	start := time.Now()
	v := p.st.View()
	metrics.ViewBuildSeconds.Observe(time.Since(start).Seconds())
	metrics.ViewBuilds.Inc()
	p.publish(v)
}
