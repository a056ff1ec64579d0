package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"venue/internal/engine"
	"venue/internal/symbol"
)

// marketDataMessage is the JSON shape broadcast to browser-based
// observers — a supplemental, non-authoritative view of the same
// TRADE/TOP_OF_BOOK stream the binary multicast feed carries.
type marketDataMessage struct {
	Kind   string `json:"kind"`
	Symbol string `json:"symbol"`

	Side string `json:"side,omitempty"`

	BuyUserID       uint32 `json:"buyUserId,omitempty"`
	BuyUserOrderID  uint32 `json:"buyUserOrderId,omitempty"`
	SellUserID      uint32 `json:"sellUserId,omitempty"`
	SellUserOrderID uint32 `json:"sellUserOrderId,omitempty"`

	Price    uint32 `json:"price"`
	Quantity uint32 `json:"quantity"`
}

func toMarketDataMessage(r engine.Response) marketDataMessage {
	msg := marketDataMessage{Symbol: symbolText(r.Symbol), Price: r.Price, Quantity: r.Quantity}
	switch r.Kind {
	case engine.Trade:
		msg.Kind = "trade"
		msg.BuyUserID = r.BuyUserID
		msg.BuyUserOrderID = r.BuyUserOrderID
		msg.SellUserID = r.SellUserID
		msg.SellUserOrderID = r.SellUserOrderID
	case engine.TopOfBook:
		msg.Kind = "top_of_book"
		if r.Side == engine.Buy {
			msg.Side = "BUY"
		} else {
			msg.Side = "SELL"
		}
	}
	return msg
}

func symbolText(s symbol.Symbol) string {
	if s.IsUnknown() {
		return "<UNK>"
	}
	return s.String()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// MarketDataHub fans TRADE and TOP_OF_BOOK responses out to every
// connected WebSocket client as JSON. It is a supplemental feed, not a
// replacement for the authoritative multicast stream.
type MarketDataHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewMarketDataHub creates an empty hub.
func NewMarketDataHub() *MarketDataHub {
	return &MarketDataHub{clients: make(map[*websocket.Conn]struct{})}
}

// ServeHTTP upgrades the request to a WebSocket and registers the
// resulting connection as a broadcast subscriber until it disconnects.
func (h *MarketDataHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("market data websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *MarketDataHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// Broadcast sends r, re-encoded as JSON, to every connected client.
// A client whose write fails is dropped.
func (h *MarketDataHub) Broadcast(r engine.Response) {
	payload, err := json.Marshal(toMarketDataMessage(r))
	if err != nil {
		log.Error().Err(err).Msg("market data json encode failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// Serve starts an HTTP server exposing the WebSocket upgrade endpoint on
// addr until ctx is cancelled.
func (h *MarketDataHub) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/marketdata", h)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
