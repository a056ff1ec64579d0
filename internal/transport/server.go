// Package transport wires the matching engine to the outside world: a
// TCP order-entry listener, a UDP multicast market-data fan-out, and a
// supplemental WebSocket market-data feed. The engine itself never
// touches a socket; everything here exists to get Requests to it and
// Responses back out, per the routing contract in SPEC_FULL.md §6.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"venue/internal/config"
	"venue/internal/engine"
	"venue/internal/metrics"
	"venue/internal/wire"
)

// MulticastSink is the subset of *Multicast the server depends on, so
// tests can substitute a fake.
type MulticastSink interface {
	Send(payload []byte)
}

// MarketDataSink is the subset of *MarketDataHub the server depends on.
type MarketDataSink interface {
	Broadcast(r engine.Response)
}

// inboundRequest wraps a decoded Request on its way to the engine
// goroutine.
type inboundRequest struct {
	request engine.Request
}

// Server owns the order-entry listener and the single engine goroutine
// that drains it. Per §5, exactly one goroutine ever calls Process.
type Server struct {
	cfg config.Config
	eng *engine.MatchingEngine

	pool    *Pool
	inbound chan inboundRequest

	multicast  MulticastSink
	marketData MarketDataSink

	sessionsMu sync.Mutex
	sessions   map[uint32]net.Conn // userID -> the connection representing them
}

// New creates a server around eng, ready to Run. multicast and
// marketData may be nil to disable those sinks (used by tests).
func New(cfg config.Config, eng *engine.MatchingEngine, multicast MulticastSink, marketData MarketDataSink) *Server {
	s := &Server{
		cfg:        cfg,
		eng:        eng,
		inbound:    make(chan inboundRequest, cfg.InboundQueueDepth),
		multicast:  multicast,
		marketData: marketData,
		sessions:   make(map[uint32]net.Conn),
	}
	s.pool = NewPool(cfg.WorkerPoolSize, s.handleConnection)
	return s
}

// Run accepts connections and drives the engine goroutine until ctx is
// cancelled or an unrecoverable error occurs.
func (s *Server) Run(ctx context.Context) error {
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("transport: listen on %s: %w", s.cfg.ListenAddr, err)
	}
	defer listener.Close()

	s.pool.Start(t)

	t.Go(func() error {
		s.engineLoop(t)
		return nil
	})

	log.Info().Str("addr", s.cfg.ListenAddr).Str("protocol", string(s.cfg.Protocol)).Msg("order-entry listener running")

	t.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-t.Dying():
					return nil
				default:
					log.Error().Err(err).Msg("accept failed")
					continue
				}
			}
			metrics.ActiveConnections.Inc()
			if !s.pool.Submit(conn) {
				log.Warn().Str("addr", conn.RemoteAddr().String()).Msg("connection pool saturated, dropping connection")
				metrics.ActiveConnections.Dec()
				conn.Close()
			}
		}
	})

	<-t.Dying()
	listener.Close()
	return t.Wait()
}

// engineLoop is the single engine goroutine: it drains inbound and
// routes every response the engine produces. No other goroutine may
// call eng.Process.
func (s *Server) engineLoop(t *tomb.Tomb) {
	buf := &engine.ResponseBuffer{}
	for {
		select {
		case <-t.Dying():
			return
		case req := <-s.inbound:
			s.eng.Process(req.request, buf)
			metrics.MessagesProcessed.WithLabelValues(requestKindLabel(req.request.Kind)).Inc()
			s.route(buf)
		}
	}
}

// route delivers every response in buf per the routing contract: ACK and
// CANCEL_ACK to the originating client only, TRADE to both counterparties
// plus the market-data sinks, TOP_OF_BOOK to the market-data sinks only.
func (s *Server) route(buf *engine.ResponseBuffer) {
	for _, r := range buf.Responses {
		switch r.Kind {
		case engine.Ack, engine.CancelAck:
			s.sendTo(r.UserID, r)
		case engine.Trade:
			s.sendTo(r.BuyUserID, r)
			if r.SellUserID != r.BuyUserID {
				s.sendTo(r.SellUserID, r)
			}
			s.publish(r)
		case engine.TopOfBook:
			s.publish(r)
		}
	}
}

// publish forwards r to the multicast and supplemental WebSocket sinks,
// if configured.
func (s *Server) publish(r engine.Response) {
	if s.multicast != nil {
		s.multicast.Send(wire.EncodeResponse(r))
	}
	if s.marketData != nil {
		s.marketData.Broadcast(r)
	}
}

func (s *Server) sendTo(userID uint32, r engine.Response) {
	s.sessionsMu.Lock()
	conn, ok := s.sessions[userID]
	s.sessionsMu.Unlock()
	if !ok {
		return
	}

	var payload []byte
	if s.cfg.Protocol == config.ProtocolCSV {
		payload = []byte(wire.EncodeCSVLine(r) + "\n")
	} else {
		payload = wire.EncodeFrame(wire.EncodeResponse(r))
	}
	if _, err := conn.Write(payload); err != nil {
		log.Error().Err(err).Uint32("userID", userID).Msg("failed writing response, dropping session")
		s.deregisterConn(conn)
	}
}

// handleConnection owns conn for its entire lifetime: it decodes
// requests off it, one per line (CSV) or one per frame (binary), until
// the connection closes or framing desyncs.
func (s *Server) handleConnection(t *tomb.Tomb, conn net.Conn) {
	sessionID := uuid.New()
	log.Debug().Str("session", sessionID.String()).Str("addr", conn.RemoteAddr().String()).Msg("connection accepted")

	defer func() {
		metrics.ActiveConnections.Dec()
		s.deregisterConn(conn)
		conn.Close()
		log.Debug().Str("session", sessionID.String()).Msg("connection closed")
	}()

	reader := bufio.NewReader(conn)
	for {
		select {
		case <-t.Dying():
			return
		default:
		}

		var req engine.Request
		var err error
		if s.cfg.Protocol == config.ProtocolCSV {
			req, err = s.readCSVRequest(reader)
		} else {
			req, err = s.readBinaryRequest(reader)
		}
		if err != nil {
			if err != errBlankLineSkip {
				return
			}
			continue
		}

		if req.Kind == engine.NewOrder || req.Kind == engine.Cancel {
			s.registerConn(req.UserID, conn)
		}

		select {
		case s.inbound <- inboundRequest{request: req}:
		default:
			metrics.InboundQueueDrops.Inc()
		}
	}
}

var errBlankLineSkip = fmt.Errorf("transport: blank line, not a protocol error")

func (s *Server) readCSVRequest(reader *bufio.Reader) (engine.Request, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return engine.Request{}, err
	}
	req, decodeErr := wire.DecodeCSVLine(line)
	if decodeErr == wire.ErrBlankLine {
		return engine.Request{}, errBlankLineSkip
	}
	if decodeErr != nil {
		metrics.DecodeErrors.WithLabelValues("csv").Inc()
		return engine.Request{}, errBlankLineSkip
	}
	return req, nil
}

func (s *Server) readBinaryRequest(reader *bufio.Reader) (engine.Request, error) {
	payload, err := wire.ReadFrame(reader)
	if err != nil {
		return engine.Request{}, err
	}
	req, decodeErr := wire.DecodeRequest(payload)
	if decodeErr != nil {
		metrics.DecodeErrors.WithLabelValues("binary").Inc()
		// A malformed binary frame desyncs the stream; there is no
		// resynchronization point, so the connection is torn down.
		return engine.Request{}, decodeErr
	}
	return req, nil
}

func (s *Server) registerConn(userID uint32, conn net.Conn) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	s.sessions[userID] = conn
}

func (s *Server) deregisterConn(conn net.Conn) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	for userID, c := range s.sessions {
		if c == conn {
			delete(s.sessions, userID)
		}
	}
}

func requestKindLabel(k engine.RequestKind) string {
	switch k {
	case engine.NewOrder:
		return "new_order"
	case engine.Cancel:
		return "cancel"
	case engine.Flush:
		return "flush"
	case engine.TopOfBookQuery:
		return "top_of_book_query"
	default:
		return "unknown"
	}
}
