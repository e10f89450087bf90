package feed

import (
	"context"
	"strings"
	"sync"

	"orderbook-viewer/internal/depth"
)

// ---------- Test/mock feed (handy for integration tests & demos) ----------
type MockDepthFeed struct {
	mu        sync.Mutex
	updates   chan depth.Update
	errors    chan error
	connected bool
	killed    bool
	subMarket string
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewMockDepthFeed() DepthFeed {
	return &MockDepthFeed{
		updates:   make(chan depth.Update, 10),
		errors:    make(chan error, 10),
		connected: true,
	}
}

func (m *MockDepthFeed) Run(ctx context.Context, onStatus func(connected bool)) {
	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	connected := m.connected
	m.mu.Unlock()
	go func() {
		onStatus(connected)
		<-m.ctx.Done()
	}()
}

func (m *MockDepthFeed) SubscribeMarket(market string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subMarket = strings.ToUpper(strings.TrimSpace(market))
	return nil
}

func (m *MockDepthFeed) Unsubscribe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subMarket = ""
}

func (m *MockDepthFeed) Kill() {
	m.mu.Lock()
	m.killed = true
	m.connected = false
	m.mu.Unlock()
	m.errors <- ErrFeedKilled
}

func (m *MockDepthFeed) Reconnect() {
	m.mu.Lock()
	m.killed = false
	m.connected = true
	m.mu.Unlock()
}

func (m *MockDepthFeed) Killed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.killed
}

func (m *MockDepthFeed) Updates() <-chan depth.Update { return m.updates }
func (m *MockDepthFeed) Errors() <-chan error         { return m.errors }

func (m *MockDepthFeed) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockDepthFeed) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	close(m.updates)
	close(m.errors)
}

// Helpers for tests
func (m *MockDepthFeed) SendUpdate(u depth.Update) { m.updates <- u }
func (m *MockDepthFeed) SendError(e error)         { m.errors <- e }

func (m *MockDepthFeed) SetConnected(c bool) {
	m.mu.Lock()
	m.connected = c
	m.mu.Unlock()
}

func (m *MockDepthFeed) Market() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subMarket
}
