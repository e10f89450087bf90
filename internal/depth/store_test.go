package depth

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func lvl(price, size string) Level { return Level{Price: d(price), Size: d(size)} }

func sizeAt(t *testing.T, s *Store, side Side, price string) decimal.Decimal {
	t.Helper()
	v, ok := s.Size(side, d(price))
	require.True(t, ok, "expected level %s on %s", price, side)
	return v
}

func TestStore_SnapshotReplacesState(t *testing.T) {
	s := NewStore()
	s.ApplyDelta(Bid, d("900"), d("3"))
	s.ApplyDelta(Ask, d("1300"), d("4"))

	s.ApplySnapshot(
		[]Level{lvl("1000", "40"), lvl("1005", "0")},
		[]Level{lvl("1200", "50")},
	)

	assert.Equal(t, 2, s.Len(Bid))
	assert.Equal(t, 1, s.Len(Ask))
	_, ok := s.Size(Bid, d("900"))
	assert.False(t, ok, "pre-snapshot bid must be gone")
	_, ok = s.Size(Ask, d("1300"))
	assert.False(t, ok, "pre-snapshot ask must be gone")

	assert.True(t, sizeAt(t, s, Bid, "1000").Equal(d("40")))
	// zero-size snapshot entries are kept verbatim
	assert.True(t, sizeAt(t, s, Bid, "1005").IsZero())
	assert.True(t, sizeAt(t, s, Ask, "1200").Equal(d("50")))
}

func TestStore_SnapshotIsIdempotent(t *testing.T) {
	bids := []Level{lvl("1000", "40"), lvl("1005", "10")}
	asks := []Level{lvl("1200", "50")}

	a := NewStore()
	a.ApplySnapshot(bids, asks)
	b := NewStore()
	b.ApplySnapshot(bids, asks)
	b.ApplySnapshot(bids, asks)

	assert.ElementsMatch(t, a.Levels(Bid), b.Levels(Bid))
	assert.ElementsMatch(t, a.Levels(Ask), b.Levels(Ask))
}

func TestStore_DeltaInsert(t *testing.T) {
	s := NewStore()
	s.Apply(Update{
		Kind: Delta,
		Bids: []Level{lvl("1000", "20")},
		Asks: []Level{lvl("1200", "10")},
	})

	assert.Equal(t, []Level{lvl("1000", "20")}, s.Levels(Bid))
	assert.Equal(t, []Level{lvl("1200", "10")}, s.Levels(Ask))
}

func TestStore_DeltaUpdate(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot(
		[]Level{lvl("1000", "40"), lvl("1005", "10")},
		[]Level{lvl("1200", "50"), lvl("1205", "20")},
	)

	s.Apply(Update{
		Kind: Delta,
		Bids: []Level{lvl("1000", "20")},
		Asks: []Level{lvl("1200", "10")},
	})

	assert.True(t, sizeAt(t, s, Ask, "1200").Equal(d("10")))
	assert.True(t, sizeAt(t, s, Ask, "1205").Equal(d("20")))
	assert.True(t, sizeAt(t, s, Bid, "1000").Equal(d("20")))
	assert.True(t, sizeAt(t, s, Bid, "1005").Equal(d("10")))
}

func TestStore_DeltaDelete(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot(
		[]Level{lvl("1000", "40"), lvl("1005", "10")},
		[]Level{lvl("1200", "50"), lvl("1205", "20")},
	)

	s.Apply(Update{
		Kind: Delta,
		Bids: []Level{lvl("1000", "0")},
		Asks: []Level{lvl("1200", "0")},
	})

	_, ok := s.Size(Ask, d("1200"))
	assert.False(t, ok)
	_, ok = s.Size(Bid, d("1000"))
	assert.False(t, ok)
	assert.True(t, sizeAt(t, s, Ask, "1205").Equal(d("20")))
	assert.True(t, sizeAt(t, s, Bid, "1005").Equal(d("10")))

	// removing an absent level is a no-op
	s.ApplyDelta(Bid, d("777"), decimal.Zero)
	assert.Equal(t, 1, s.Len(Bid))
	assert.Equal(t, 1, s.Len(Ask))
}

func TestStore_DeltaLastWriteWins(t *testing.T) {
	s := NewStore()
	s.Apply(Update{
		Kind: Delta,
		Bids: []Level{lvl("1000", "5"), lvl("1000", "7")},
		Asks: []Level{lvl("1200", "3"), lvl("1200", "0"), lvl("1201", "1"), lvl("1201", "9")},
	})

	assert.True(t, sizeAt(t, s, Bid, "1000").Equal(d("7")))
	_, ok := s.Size(Ask, d("1200"))
	assert.False(t, ok, "insert then delete in one delta leaves nothing")
	assert.True(t, sizeAt(t, s, Ask, "1201").Equal(d("9")))
}

func TestStore_EqualPricesShareKey(t *testing.T) {
	s := NewStore()
	s.ApplyDelta(Ask, d("1200"), d("5"))
	s.ApplyDelta(Ask, d("1200.00"), d("8"))

	assert.Equal(t, 1, s.Len(Ask))
	assert.True(t, sizeAt(t, s, Ask, "1200.0").Equal(d("8")))

	s.ApplyDelta(Ask, d("1200.000"), decimal.Zero)
	assert.Equal(t, 0, s.Len(Ask))
}

func TestStore_LevelsAreCopies(t *testing.T) {
	s := NewStore()
	s.ApplyDelta(Bid, d("1000"), d("1"))

	levels := s.Levels(Bid)
	levels[0].Size = d("999")

	assert.True(t, sizeAt(t, s, Bid, "1000").Equal(d("1")))
}

func TestStore_Reset(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot([]Level{lvl("1", "1")}, []Level{lvl("2", "2")})
	s.Reset()

	assert.Zero(t, s.Len(Bid))
	assert.Zero(t, s.Len(Ask))
}
