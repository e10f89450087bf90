package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"orderbook-viewer/internal/config"
	"orderbook-viewer/internal/depth"
	"orderbook-viewer/internal/feed"
	"orderbook-viewer/internal/metrics"
	"orderbook-viewer/internal/state"
)

// Refresher rebuilds and republishes the current view on demand.
type Refresher interface {
	Refresh()
}

type HTTPServer struct {
	cfg     config.Config
	st      *state.State
	feed    feed.DepthFeed
	refresh Refresher
	hub     *hub
	log     *slog.Logger
	mux     *http.ServeMux
	reg     *prometheus.Registry
}

// NewHTTPServer wires the API and websocket hub. reg may be nil to disable /metrics.
func NewHTTPServer(cfg config.Config, st *state.State, f feed.DepthFeed, logger *slog.Logger, reg *prometheus.Registry) *HTTPServer {
	s := &HTTPServer{
		cfg:  cfg,
		st:   st,
		feed: f,
		log:  logger,
		mux:  http.NewServeMux(),
		reg:  reg,
	}
	s.hub = newHub(logger, s.greeting)
	s.routes()
	go s.hub.run()
	return s
}

// SetRefresher attaches the component that republishes the book after a
// grouping or market change.
func (s *HTTPServer) SetRefresher(r Refresher) { s.refresh = r }

func (s *HTTPServer) Router() http.Handler { return s.mux }

// --------- WS broadcasts ----------

func (s *HTTPServer) statusPayload() map[string]any {
	return map[string]any{
		"connected":  s.st.Connected(),
		"killed":     s.feed.Killed(),
		"market":     s.st.Market(),
		"ticketSize": s.st.TicketSize(),
	}
}

func (s *HTTPServer) bookPayload(v depth.View) map[string]any {
	return map[string]any{
		"market":     s.st.Market(),
		"ticketSize": s.st.TicketSize(),
		"bids":       v.Bids,
		"asks":       v.Asks,
	}
}

func (s *HTTPServer) greeting() [][]byte {
	return [][]byte{
		marshalWS("status", s.statusPayload()),
		marshalWS("book", s.bookPayload(s.st.View())),
	}
}

func (s *HTTPServer) BroadcastStatus() {
	s.hub.broadcast <- marshalWS("status", s.statusPayload())
}

func (s *HTTPServer) BroadcastBook(v depth.View) {
	s.hub.broadcast <- marshalWS("book", s.bookPayload(v))
}

func (s *HTTPServer) BroadcastError(msg string) {
	s.hub.broadcast <- marshalWS("error", map[string]string{"message": msg})
}

// --------- Routes ----------

func (s *HTTPServer) routes() {
	// WS
	s.mux.HandleFunc("/ws", s.hub.serveWS)

	// API
	s.mux.HandleFunc("/api/health", s.apiHealth)
	s.mux.HandleFunc("/api/config", s.apiConfig)
	s.mux.HandleFunc("/api/book", s.apiBook)
	s.mux.HandleFunc("/api/ticket", s.apiTicket)
	s.mux.HandleFunc("/api/toggle", s.apiToggle)
	s.mux.HandleFunc("/api/kill", s.apiKill)

	if s.reg != nil {
		s.mux.Handle("/metrics", metrics.Handler(s.reg))
	}
}

func (s *HTTPServer) apiHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"ok":        true,
		"connected": s.st.Connected(),
	})
}

func (s *HTTPServer) apiConfig(w http.ResponseWriter, r *http.Request) {
	markets := make([]map[string]any, 0, len(s.st.Markets()))
	for _, m := range s.st.Markets() {
		markets = append(markets, map[string]any{"id": m.ID, "ticketSizes": m.TicketSizes})
	}
	writeJSON(w, map[string]any{
		"markets":           markets,
		"currentMarket":     s.st.Market(),
		"currentTicketSize": s.st.TicketSize(),
		"ticketSizes":       s.st.TicketSizes(),
		"levels":            depth.MaxRows,
		"refreshIntervalMs": s.cfg.RefreshIntervalMs,
	})
}

func (s *HTTPServer) apiBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET required", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.bookPayload(s.st.View()))
}

// POST /api/ticket { "ticketSize": "1" }
func (s *HTTPServer) apiTicket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		TicketSize decimal.Decimal `json:"ticketSize"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.st.SetTicketSize(req.TicketSize); err != nil {
		if errors.Is(err, state.ErrInvalidTicketSize) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info("ticket size changed",
		slog.String("market", s.st.Market()),
		slog.String("ticket_size", s.st.TicketSize().String()),
	)
	s.republish()
	writeJSON(w, map[string]any{"ok": true, "ticketSize": s.st.TicketSize()})
}

// POST /api/toggle switches the feed to the next market.
func (s *HTTPServer) apiToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	prev, prevTicket := s.st.Market(), s.st.TicketSize()
	market := s.st.ToggleMarket()
	if err := s.feed.SubscribeMarket(market); err != nil {
		s.log.Error("subscribe failed", slog.String("market", market), slog.String("err", err.Error()))
		// Stay on the market the socket is still subscribed to.
		if rerr := s.st.SetMarket(prev); rerr == nil {
			_ = s.st.SetTicketSize(prevTicket)
		}
		if rerr := s.feed.SubscribeMarket(prev); rerr != nil {
			s.log.Warn("resubscribe failed", slog.String("market", prev), slog.String("err", rerr.Error()))
		}
		s.BroadcastError(err.Error())
		s.BroadcastStatus()
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.log.Info("market toggled", slog.String("market", market))
	s.republish()
	writeJSON(w, map[string]any{"ok": true, "market": market, "ticketSize": s.st.TicketSize()})
}

// POST /api/kill drops the feed, or brings it back when already killed.
func (s *HTTPServer) apiKill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if s.feed.Killed() {
		s.feed.Reconnect()
		s.log.Info("feed reconnect requested")
	} else {
		s.feed.Kill()
		s.log.Warn("feed killed on request")
	}
	s.BroadcastStatus()
	writeJSON(w, map[string]any{"ok": true, "killed": s.feed.Killed()})
}

func (s *HTTPServer) republish() {
	if s.refresh != nil {
		s.refresh.Refresh()
	} else {
		s.BroadcastBook(s.st.View())
	}
	s.BroadcastStatus()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
