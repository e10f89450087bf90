package depth

import (
	"slices"

	"github.com/shopspring/decimal"
)

// BuildView groups raw levels into ticketSize buckets and produces the
// display rows for both sides. It does not retain or modify its inputs.
//
// Asks keep the 10 lowest buckets, bids the 10 highest, so each side shows the
// levels nearest the spread. Depth is relative to the larger displayed side
// so both bars share one scale.
func BuildView(bids, asks []Level, ticketSize decimal.Decimal) View {
	if !ticketSize.IsPositive() || (len(bids) == 0 && len(asks) == 0) {
		return emptyView()
	}

	groupedAsks := group(sortDesc(asks), ticketSize)
	if len(groupedAsks) > MaxRows {
		groupedAsks = groupedAsks[len(groupedAsks)-MaxRows:]
	}
	groupedBids := group(sortDesc(bids), ticketSize)
	if len(groupedBids) > MaxRows {
		groupedBids = groupedBids[:MaxRows]
	}

	askTotal := sum(groupedAsks)
	bidTotal := sum(groupedBids)
	maxTotal := decimal.Max(askTotal, bidTotal)

	return View{
		Asks: askRows(groupedAsks, maxTotal),
		Bids: bidRows(groupedBids, bidTotal, maxTotal),
	}
}

func sortDesc(levels []Level) []Level {
	out := slices.Clone(levels)
	slices.SortFunc(out, func(a, b Level) int {
		return b.Price.Cmp(a.Price)
	})
	return out
}

// group buckets price-sorted levels by floor(price/ticketSize)*ticketSize.
// Input is sorted, so equal buckets are adjacent and bucket order follows
// the input order.
func group(sorted []Level, ticketSize decimal.Decimal) []Level {
	out := make([]Level, 0, len(sorted))
	for _, l := range sorted {
		bucket := floorToTicket(l.Price, ticketSize)
		if n := len(out); n > 0 && out[n-1].Price.Equal(bucket) {
			out[n-1].Size = out[n-1].Size.Add(l.Size)
			continue
		}
		out = append(out, Level{Price: bucket, Size: l.Size})
	}
	return out
}

// floorToTicket uses an exact integer quotient. Div rounds to
// DivisionPrecision digits, which can lift a quotient just under a whole
// number up to it and put the price in the bucket above.
func floorToTicket(price, ticketSize decimal.Decimal) decimal.Decimal {
	q, r := price.QuoRem(ticketSize, 0)
	if r.IsNegative() {
		q = q.Sub(decimal.NewFromInt(1))
	}
	return q.Mul(ticketSize)
}

func sum(levels []Level) decimal.Decimal {
	total := decimal.Zero
	for _, l := range levels {
		total = total.Add(l.Size)
	}
	return total
}

// askRows accumulates from the top row down, each row including its own size.
func askRows(levels []Level, maxTotal decimal.Decimal) []OrderLevel {
	rows := make([]OrderLevel, 0, len(levels))
	acc := decimal.Zero
	for _, l := range levels {
		acc = acc.Add(l.Size)
		rows = append(rows, OrderLevel{
			Price: l.Price,
			Size:  l.Size,
			Total: acc,
			Depth: depthPercent(acc, maxTotal),
		})
	}
	return rows
}

// bidRows starts at the side total on the best bid and steps down by each
// row's size.
func bidRows(levels []Level, bidTotal, maxTotal decimal.Decimal) []OrderLevel {
	rows := make([]OrderLevel, 0, len(levels))
	acc := bidTotal
	for _, l := range levels {
		rows = append(rows, OrderLevel{
			Price: l.Price,
			Size:  l.Size,
			Total: acc,
			Depth: depthPercent(acc, maxTotal),
		})
		acc = acc.Sub(l.Size)
	}
	return rows
}

func depthPercent(total, maxTotal decimal.Decimal) float64 {
	if !maxTotal.IsPositive() {
		return 0
	}
	t, _ := total.Float64()
	m, _ := maxTotal.Float64()
	return t / m * 100
}
