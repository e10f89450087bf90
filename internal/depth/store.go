package depth

import (
	"github.com/shopspring/decimal"
)

// Store holds the raw, ungrouped price levels of one book. It is not safe for
// concurrent use; callers serialize writes and copy out for reads.
type Store struct {
	bids map[string]Level
	asks map[string]Level
}

func NewStore() *Store {
	return &Store{
		bids: map[string]Level{},
		asks: map[string]Level{},
	}
}

// Apply dispatches a decoded feed update.
func (s *Store) Apply(up Update) {
	switch up.Kind {
	case Snapshot:
		s.ApplySnapshot(up.Bids, up.Asks)
	case Delta:
		for _, l := range up.Bids {
			s.ApplyDelta(Bid, l.Price, l.Size)
		}
		for _, l := range up.Asks {
			s.ApplyDelta(Ask, l.Price, l.Size)
		}
	}
}

// ApplySnapshot replaces both sides. Snapshots are authoritative, so
// zero-size entries are kept as received.
func (s *Store) ApplySnapshot(bids, asks []Level) {
	s.bids = make(map[string]Level, len(bids))
	s.asks = make(map[string]Level, len(asks))
	for _, l := range bids {
		s.bids[canonicalPriceKey(l.Price)] = l
	}
	for _, l := range asks {
		s.asks[canonicalPriceKey(l.Price)] = l
	}
}

// ApplyDelta upserts a level, or removes it when size is zero.
func (s *Store) ApplyDelta(side Side, price, size decimal.Decimal) {
	m := s.side(side)
	k := canonicalPriceKey(price)
	if size.IsZero() {
		delete(m, k)
		return
	}
	m[k] = Level{Price: price, Size: size}
}

// Reset drops every level, as when the active subscription changes.
func (s *Store) Reset() {
	s.ApplySnapshot(nil, nil)
}

// Levels returns a copy of one side in no particular order.
func (s *Store) Levels(side Side) []Level {
	m := s.side(side)
	out := make([]Level, 0, len(m))
	for _, l := range m {
		out = append(out, l)
	}
	return out
}

// Size returns the quantity at price and whether the level exists.
func (s *Store) Size(side Side, price decimal.Decimal) (decimal.Decimal, bool) {
	l, ok := s.side(side)[canonicalPriceKey(price)]
	return l.Size, ok
}

func (s *Store) Len(side Side) int { return len(s.side(side)) }

// View groups the current levels at ticketSize.
func (s *Store) View(ticketSize decimal.Decimal) View {
	return BuildView(s.Levels(Bid), s.Levels(Ask), ticketSize)
}

func (s *Store) side(side Side) map[string]Level {
	if side == Ask {
		return s.asks
	}
	return s.bids
}

// canonicalPriceKey normalizes a Decimal so numerically equal values hash to the same key.
// String() drops redundant trailing zeros ("100.00" -> "100").
func canonicalPriceKey(p decimal.Decimal) string {
	return p.String()
}
