package depth

import (
	"github.com/shopspring/decimal"
)

// MaxRows is the number of grouped price levels displayed per side.
const MaxRows = 10

type Side string

const (
	Bid Side = "BID"
	Ask Side = "ASK"
)

// Level is one raw price level as received from the feed.
type Level struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"` // 0 in a delta means "remove"
}

type UpdateKind int

const (
	Snapshot UpdateKind = iota
	Delta
)

func (k UpdateKind) String() string {
	if k == Snapshot {
		return "snapshot"
	}
	return "delta"
}

// Update is a decoded feed event: a full snapshot or an incremental delta.
type Update struct {
	Kind   UpdateKind
	Market string // product id, e.g. PI_XBTUSD
	Bids   []Level
	Asks   []Level
}

// OrderLevel is one display row of the grouped book.
type OrderLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
	Total decimal.Decimal `json:"total"`
	Depth float64         `json:"depth"` // 0..100, relative to the larger side
}

// View is the grouped, bounded book handed to presentation. Both sides are
// sorted by descending price.
type View struct {
	Bids []OrderLevel `json:"bids"`
	Asks []OrderLevel `json:"asks"`
}

func emptyView() View {
	return View{Bids: []OrderLevel{}, Asks: []OrderLevel{}}
}
