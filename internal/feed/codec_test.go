package feed

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderbook-viewer/internal/depth"
)

func TestCodec_Commands(t *testing.T) {
	c := NewCodec("book_ui_1")

	var sub subscription
	require.NoError(t, json.Unmarshal(c.Subscribe("PI_XBTUSD"), &sub))
	assert.Equal(t, subscription{Event: "subscribe", Feed: "book_ui_1", ProductIDs: []string{"PI_XBTUSD"}}, sub)

	var unsub subscription
	require.NoError(t, json.Unmarshal(c.Unsubscribe("PI_ETHUSD"), &unsub))
	assert.Equal(t, "unsubscribe", unsub.Event)
	assert.Equal(t, []string{"PI_ETHUSD"}, unsub.ProductIDs)
}

func TestCodec_DecodeSnapshot(t *testing.T) {
	c := NewCodec("book_ui_1")
	msg, err := c.Decode([]byte(`{"numLevels":25,"feed":"book_ui_1_snapshot","product_id":"PI_XBTUSD",
		"bids":[[34000.5,1500],[34000,0]],"asks":[[34010,"2500.5"]]}`))
	require.NoError(t, err)

	assert.Equal(t, KindSnapshot, msg.Kind)
	assert.Equal(t, "PI_XBTUSD", msg.Product)
	assert.Equal(t, depth.Snapshot, msg.Update.Kind)
	require.Len(t, msg.Update.Bids, 2)
	assert.Equal(t, "34000.5", msg.Update.Bids[0].Price.String())
	assert.True(t, msg.Update.Bids[1].Size.IsZero())
	require.Len(t, msg.Update.Asks, 1)
	assert.Equal(t, "2500.5", msg.Update.Asks[0].Size.String())
}

func TestCodec_DecodeDelta(t *testing.T) {
	c := NewCodec("book_ui_1")
	msg, err := c.Decode([]byte(`{"feed":"book_ui_1","product_id":"PI_ETHUSD","bids":[],"asks":[[2100.05,0]]}`))
	require.NoError(t, err)

	assert.Equal(t, KindDelta, msg.Kind)
	assert.Equal(t, depth.Delta, msg.Update.Kind)
	assert.Equal(t, "PI_ETHUSD", msg.Update.Market)
	assert.Empty(t, msg.Update.Bids)
	require.Len(t, msg.Update.Asks, 1)
	assert.True(t, msg.Update.Asks[0].Size.IsZero())
}

func TestCodec_DecodeEvents(t *testing.T) {
	c := NewCodec("book_ui_1")

	msg, err := c.Decode([]byte(`{"event":"subscribed","feed":"book_ui_1","product_ids":["PI_XBTUSD"]}`))
	require.NoError(t, err)
	assert.Equal(t, KindEvent, msg.Kind)
	assert.Equal(t, "subscribed", msg.Event)

	msg, err = c.Decode([]byte(`{"event":"alert","message":"Bad request"}`))
	require.NoError(t, err)
	assert.Equal(t, "alert", msg.Event)
	assert.Equal(t, "Bad request", msg.Text)

	msg, err = c.Decode([]byte(`{"feed":"heartbeat"}`))
	require.NoError(t, err)
	assert.Equal(t, KindIgnored, msg.Kind)
}

func TestCodec_RejectsMalformed(t *testing.T) {
	c := NewCodec("book_ui_1")
	frames := map[string]string{
		"not json":       `{"feed":`,
		"string price":   `{"feed":"book_ui_1","bids":[["abc",1]]}`,
		"short level":    `{"feed":"book_ui_1","bids":[[1000]]}`,
		"long level":     `{"feed":"book_ui_1","asks":[[1000,1,2]]}`,
		"negative size":  `{"feed":"book_ui_1","asks":[[1000,-1]]}`,
		"negative price": `{"feed":"book_ui_1_snapshot","bids":[[-5,1]]}`,
		"object level":   `{"feed":"book_ui_1","bids":[{"price":1}]}`,
	}
	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decode([]byte(frame))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedMessage), "got %v", err)
		})
	}
}
