package feed

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"orderbook-viewer/internal/depth"
)

// ErrMalformedMessage marks a frame that could not be turned into book levels.
var ErrMalformedMessage = errors.New("malformed feed message")

type MessageKind int

const (
	KindIgnored MessageKind = iota
	KindEvent
	KindSnapshot
	KindDelta
)

// Message is a decoded inbound frame.
type Message struct {
	Kind    MessageKind
	Event   string // "info", "subscribed", "unsubscribed", "alert", "error"
	Text    string // server-provided message for alert/error events
	Product string
	Update  depth.Update
}

type subscription struct {
	Event      string   `json:"event"`
	Feed       string   `json:"feed"`
	ProductIDs []string `json:"product_ids"`
}

type inboundWS struct {
	Event     string              `json:"event"`
	Message   string              `json:"message"`
	Feed      string              `json:"feed"`
	ProductID string              `json:"product_id"`
	NumLevels int                 `json:"numLevels"`
	Bids      [][]decimal.Decimal `json:"bids"`
	Asks      [][]decimal.Decimal `json:"asks"`
}

// Codec encodes subscription commands and decodes book frames for one feed
// name (e.g. "book_ui_1", whose snapshots arrive as "book_ui_1_snapshot").
type Codec struct {
	feed string
}

func NewCodec(feedName string) Codec { return Codec{feed: feedName} }

func (c Codec) Subscribe(product string) []byte   { return c.command("subscribe", product) }
func (c Codec) Unsubscribe(product string) []byte { return c.command("unsubscribe", product) }

func (c Codec) command(event, product string) []byte {
	b, _ := json.Marshal(subscription{Event: event, Feed: c.feed, ProductIDs: []string{product}})
	return b
}

// Decode parses one frame. Level validation happens here so the book only
// ever sees well-formed, non-negative numbers.
func (c Codec) Decode(data []byte) (Message, error) {
	var in inboundWS
	if err := json.Unmarshal(data, &in); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if in.Event != "" {
		return Message{Kind: KindEvent, Event: in.Event, Text: in.Message}, nil
	}

	var kind depth.UpdateKind
	switch in.Feed {
	case c.feed + "_snapshot":
		kind = depth.Snapshot
	case c.feed:
		kind = depth.Delta
	default:
		return Message{Kind: KindIgnored}, nil
	}

	bids, err := toLevels(in.Bids)
	if err != nil {
		return Message{}, fmt.Errorf("bids: %w", err)
	}
	asks, err := toLevels(in.Asks)
	if err != nil {
		return Message{}, fmt.Errorf("asks: %w", err)
	}

	msg := Message{
		Kind:    KindDelta,
		Product: in.ProductID,
		Update: depth.Update{
			Kind:   kind,
			Market: in.ProductID,
			Bids:   bids,
			Asks:   asks,
		},
	}
	if kind == depth.Snapshot {
		msg.Kind = KindSnapshot
	}
	return msg, nil
}

func toLevels(rows [][]decimal.Decimal) ([]depth.Level, error) {
	out := make([]depth.Level, 0, len(rows))
	for i, r := range rows {
		if len(r) != 2 {
			return nil, fmt.Errorf("%w: level %d has %d fields", ErrMalformedMessage, i, len(r))
		}
		if r[0].IsNegative() || r[1].IsNegative() {
			return nil, fmt.Errorf("%w: level %d is negative (%s, %s)", ErrMalformedMessage, i, r[0], r[1])
		}
		out = append(out, depth.Level{Price: r[0], Size: r[1]})
	}
	return out, nil
}
