package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"orderbook-viewer/internal/depth"
	"orderbook-viewer/internal/metrics"
)

// ErrFeedKilled is emitted when the feed is taken down on request.
var ErrFeedKilled = errors.New("feed killed")

const (
	readTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
	writeTimeout = 10 * time.Second
)

type DepthFeed interface {
	Run(ctx context.Context, onStatus func(connected bool))
	SubscribeMarket(market string) error
	Unsubscribe()
	// Kill drops the connection with ErrFeedKilled; the feed stays down until Reconnect.
	Kill()
	Reconnect()
	Killed() bool
	Updates() <-chan depth.Update
	Errors() <-chan error
	Connected() bool
	Close()
}

// CryptoFacilitiesFeed implements DepthFeed against the Crypto Facilities
// public websocket. It keeps one product subscribed at a time. A dropped
// connection is reported on Errors() and is not retried until Reconnect.
type CryptoFacilitiesFeed struct {
	url   string
	codec Codec
	log   *slog.Logger

	mu        sync.RWMutex
	market    string
	connected bool
	killed    bool
	wsConn    *websocket.Conn
	writeMu   sync.Mutex

	updCh     chan depth.Update
	errCh     chan error
	reconnect chan struct{}
	runDone   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

func NewCryptoFacilitiesFeed(url, feedName string, logger *slog.Logger) *CryptoFacilitiesFeed {
	return &CryptoFacilitiesFeed{
		url:       url,
		codec:     NewCodec(feedName),
		log:       logger,
		updCh:     make(chan depth.Update, 1024),
		errCh:     make(chan error, 16),
		reconnect: make(chan struct{}, 1),
		runDone:   make(chan struct{}),
	}
}

func (f *CryptoFacilitiesFeed) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

func (f *CryptoFacilitiesFeed) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
	if v {
		metrics.FeedConnected.Set(1)
	} else {
		metrics.FeedConnected.Set(0)
	}
}

func (f *CryptoFacilitiesFeed) Killed() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.killed
}

func (f *CryptoFacilitiesFeed) Updates() <-chan depth.Update { return f.updCh }
func (f *CryptoFacilitiesFeed) Errors() <-chan error         { return f.errCh }

func (f *CryptoFacilitiesFeed) currentMarket() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.market
}

// SubscribeMarket switches the active product. On a live socket the old
// product is unsubscribed and the new one subscribed; otherwise the next
// connection subscribes it.
func (f *CryptoFacilitiesFeed) SubscribeMarket(market string) error {
	canon := strings.ToUpper(strings.TrimSpace(market))
	if canon == "" {
		return fmt.Errorf("empty market")
	}
	f.mu.Lock()
	prev := f.market
	f.market = canon
	ws := f.wsConn
	f.mu.Unlock()

	if ws == nil {
		return nil
	}
	if prev != "" && prev != canon {
		if err := f.write(ws, f.codec.Unsubscribe(prev)); err != nil {
			return fmt.Errorf("unsubscribe %s: %w", prev, err)
		}
	}
	if err := f.write(ws, f.codec.Subscribe(canon)); err != nil {
		return fmt.Errorf("subscribe %s: %w", canon, err)
	}
	return nil
}

func (f *CryptoFacilitiesFeed) Unsubscribe() {
	f.mu.Lock()
	prev := f.market
	ws := f.wsConn
	f.market = ""
	f.mu.Unlock()

	if ws != nil && prev != "" {
		_ = f.write(ws, f.codec.Unsubscribe(prev))
	}
}

func (f *CryptoFacilitiesFeed) Kill() {
	f.mu.Lock()
	if f.killed {
		f.mu.Unlock()
		return
	}
	f.killed = true
	ws := f.wsConn
	f.mu.Unlock()

	metrics.FeedKills.Inc()
	if ws != nil {
		_ = ws.Close()
	}
	f.emitErr(ErrFeedKilled)
}

func (f *CryptoFacilitiesFeed) Reconnect() {
	f.mu.Lock()
	f.killed = false
	f.mu.Unlock()
	select {
	case f.reconnect <- struct{}{}:
	default:
	}
}

func (f *CryptoFacilitiesFeed) Close() {
	f.mu.Lock()
	started := f.cancel != nil
	if started {
		f.cancel()
	}
	ws := f.wsConn
	f.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
	if started {
		<-f.runDone
	}
	close(f.errCh)
	close(f.updCh)
}

func (f *CryptoFacilitiesFeed) Run(ctx context.Context, onStatus func(connected bool)) {
	f.mu.Lock()
	if f.cancel != nil {
		f.mu.Unlock()
		return
	}
	f.ctx, f.cancel = context.WithCancel(ctx)
	f.mu.Unlock()
	defer close(f.runDone)

	for {
		err := f.session(onStatus)
		f.setConnected(false)
		onStatus(false)
		if err != nil && f.ctx.Err() == nil && !f.Killed() {
			f.emitErr(err)
		}

		select {
		case <-f.ctx.Done():
			return
		case <-f.reconnect:
			metrics.FeedReconnects.Inc()
			f.log.Info("feed reconnecting", slog.String("url", f.url))
		}
	}
}

// session runs one connection: dial, subscribe, read until failure.
func (f *CryptoFacilitiesFeed) session(onStatus func(connected bool)) error {
	ws, _, err := websocket.DefaultDialer.DialContext(f.ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("ws open: %w", err)
	}
	defer ws.Close()

	// Kill may have run while dialing, when there was no socket to close.
	f.mu.Lock()
	if f.killed {
		f.mu.Unlock()
		return ErrFeedKilled
	}
	f.wsConn = ws
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.wsConn = nil
		f.mu.Unlock()
	}()

	f.setConnected(true)
	onStatus(true)
	f.log.Info("feed connected", slog.String("url", f.url))

	if m := f.currentMarket(); m != "" {
		if err := f.write(ws, f.codec.Subscribe(m)); err != nil {
			return fmt.Errorf("subscribe %s: %w", m, err)
		}
	}

	stopPing := make(chan struct{})
	defer close(stopPing)
	go f.pingLoop(ws, stopPing)

	return f.readLoop(ws)
}

func (f *CryptoFacilitiesFeed) pingLoop(ws *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

func (f *CryptoFacilitiesFeed) readLoop(ws *websocket.Conn) error {
	ws.SetReadLimit(1 << 20)
	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if f.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ws read: %w", err)
		}
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))

		msg, err := f.codec.Decode(data)
		if err != nil {
			metrics.MalformedMessages.Inc()
			f.log.Warn("dropping feed message", slog.String("err", err.Error()))
			continue
		}

		switch msg.Kind {
		case KindEvent:
			f.handleEvent(msg)
		case KindSnapshot, KindDelta:
			select {
			case f.updCh <- msg.Update:
			case <-f.ctx.Done():
				return nil
			}
		}
	}
}

func (f *CryptoFacilitiesFeed) handleEvent(msg Message) {
	switch msg.Event {
	case "alert", "error":
		f.emitErr(fmt.Errorf("feed %s: %s", msg.Event, msg.Text))
	default:
		f.log.Debug("feed event", slog.String("event", msg.Event))
	}
}

func (f *CryptoFacilitiesFeed) write(ws *websocket.Conn, b []byte) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.WriteMessage(websocket.TextMessage, b)
}

func (f *CryptoFacilitiesFeed) emitErr(err error) {
	select {
	case f.errCh <- err:
	default:
		// drop if buffer full
	}
}
