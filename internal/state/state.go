package state

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"orderbook-viewer/internal/depth"
	"orderbook-viewer/internal/metrics"
)

var (
	ErrUnknownMarket     = errors.New("unknown market")
	ErrInvalidTicketSize = errors.New("ticket size not offered for market")
)

// Market is a tradable product and the bucket widths offered for it.
type Market struct {
	ID          string
	TicketSizes []decimal.Decimal
}

// State is the single active book session: which market is subscribed, the
// grouping in use, and the raw levels. Writes to the book are serialized by
// bookMu; readers get a copy and build the view outside the lock.
type State struct {
	activeMu   sync.RWMutex
	markets    []Market
	active     int
	ticketSize decimal.Decimal

	connected atomic.Bool

	bookMu sync.RWMutex
	book   *depth.Store
}

// NewState starts on defaultMarket, or the first market when it is empty.
func NewState(markets []Market, defaultMarket string) (*State, error) {
	if len(markets) == 0 {
		return nil, errors.New("no markets configured")
	}
	s := &State{
		markets: markets,
		book:    depth.NewStore(),
	}
	if defaultMarket == "" {
		defaultMarket = markets[0].ID
	}
	if err := s.SetMarket(defaultMarket); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *State) Markets() []Market { return s.markets }

func (s *State) Market() string {
	s.activeMu.RLock()
	defer s.activeMu.RUnlock()
	return s.markets[s.active].ID
}

// SetMarket activates a market, resets the grouping to its first ticket size
// and clears the book until the next snapshot arrives.
func (s *State) SetMarket(id string) error {
	canon := strings.ToUpper(strings.TrimSpace(id))
	idx := -1
	for i, m := range s.markets {
		if m.ID == canon {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownMarket, id)
	}
	s.activate(idx)
	return nil
}

// ToggleMarket cycles to the next configured market and returns its id.
func (s *State) ToggleMarket() string {
	s.activeMu.RLock()
	next := (s.active + 1) % len(s.markets)
	s.activeMu.RUnlock()
	s.activate(next)
	return s.markets[next].ID
}

func (s *State) activate(idx int) {
	s.activeMu.Lock()
	s.active = idx
	s.ticketSize = decimal.Zero
	if sizes := s.markets[idx].TicketSizes; len(sizes) > 0 {
		s.ticketSize = sizes[0]
	}
	// reset under activeMu: Apply holds it across its market check
	s.bookMu.Lock()
	s.book.Reset()
	s.bookMu.Unlock()
	s.activeMu.Unlock()
}

func (s *State) TicketSizes() []decimal.Decimal {
	s.activeMu.RLock()
	defer s.activeMu.RUnlock()
	return s.markets[s.active].TicketSizes
}

func (s *State) TicketSize() decimal.Decimal {
	s.activeMu.RLock()
	defer s.activeMu.RUnlock()
	return s.ticketSize
}

func (s *State) SetTicketSize(v decimal.Decimal) error {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	m := s.markets[s.active]
	for _, ts := range m.TicketSizes {
		if ts.Equal(v) {
			s.ticketSize = ts
			return nil
		}
	}
	return fmt.Errorf("%w: %s on %s", ErrInvalidTicketSize, v, m.ID)
}

func (s *State) SetConnected(v bool) { s.connected.Store(v) }
func (s *State) Connected() bool     { return s.connected.Load() }

// Apply writes a feed update to the book. Updates tagged with another
// product (frames still in flight after a market switch) are dropped. The
// market check and the write both hold activeMu. Lock order is activeMu then
// bookMu.
func (s *State) Apply(up depth.Update) bool {
	s.activeMu.RLock()
	if up.Market != "" && !strings.EqualFold(up.Market, s.markets[s.active].ID) {
		s.activeMu.RUnlock()
		metrics.UpdatesDropped.Inc()
		return false
	}
	s.bookMu.Lock()
	s.book.Apply(up)
	bids, asks := s.book.Len(depth.Bid), s.book.Len(depth.Ask)
	s.bookMu.Unlock()
	s.activeMu.RUnlock()

	metrics.UpdatesApplied.WithLabelValues(up.Kind.String()).Inc()
	metrics.LiveLevels.WithLabelValues("bid").Set(float64(bids))
	metrics.LiveLevels.WithLabelValues("ask").Set(float64(asks))
	return true
}

func (s *State) ResetBook() {
	s.bookMu.Lock()
	s.book.Reset()
	s.bookMu.Unlock()
}

// View builds the grouped book at the active ticket size.
func (s *State) View() depth.View {
	return s.ViewAt(s.TicketSize())
}

// ViewAt builds the grouped book at an arbitrary ticket size.
func (s *State) ViewAt(ticketSize decimal.Decimal) depth.View {
	s.bookMu.RLock()
	bids := s.book.Levels(depth.Bid)
	asks := s.book.Levels(depth.Ask)
	s.bookMu.RUnlock()
	return depth.BuildView(bids, asks, ticketSize)
}

// LevelCounts reports raw levels per side.
func (s *State) LevelCounts() (bids, asks int) {
	s.bookMu.RLock()
	defer s.bookMu.RUnlock()
	return s.book.Len(depth.Bid), s.book.Len(depth.Ask)
}
