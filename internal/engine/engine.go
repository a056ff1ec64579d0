package engine

import (
	"fmt"

	"venue/internal/symbol"
)

// orderKey packs (userID, userOrderID) into a single comparable index
// key. User order IDs are only unique per user, so the index must be
// keyed on the pair, not either field alone.
func orderKey(userID, userOrderID uint32) uint64 {
	return uint64(userID)<<32 | uint64(userOrderID)
}

// MatchingEngine owns every symbol's OrderBook plus the single index
// needed to resolve a CANCEL back to its resting order and book. It is
// not safe for concurrent use: per §5, exactly one goroutine (the
// "engine goroutine") ever calls Process.
type MatchingEngine struct {
	books           map[symbol.Symbol]*OrderBook
	index           map[uint64]*indexEntry
	sequenceCounter uint64
}

type indexEntry struct {
	book  *OrderBook
	order *Order
}

// New creates an empty engine with no registered symbols.
func New() *MatchingEngine {
	return &MatchingEngine{
		books: make(map[symbol.Symbol]*OrderBook),
		index: make(map[uint64]*indexEntry),
	}
}

// RegisterSymbol ensures a book exists for sym, creating one on first
// use. It is idempotent and safe to call for
// every NEW_ORDER/TOP_OF_BOOK_QUERY that names a symbol.
func (e *MatchingEngine) RegisterSymbol(sym symbol.Symbol) *OrderBook {
	if book, ok := e.books[sym]; ok {
		return book
	}
	if len(e.books) >= MaxSymbols {
		panic(fmt.Sprintf("matching engine: exceeded max symbols (%d)", MaxSymbols))
	}
	book := NewOrderBook(sym)
	book.onFilled = func(userID, userOrderID uint32) {
		delete(e.index, orderKey(userID, userOrderID))
	}
	e.books[sym] = book
	return book
}

// nextSequence hands out the next monotonically increasing sequence
// number, used to break price ties in arrival order.
func (e *MatchingEngine) nextSequence() uint64 {
	e.sequenceCounter++
	return e.sequenceCounter
}

// Process is the engine's single entry point: it dispatches req by Kind,
// appending every output produced to buf. buf is cleared on entry so the
// caller can reuse the same buffer across calls without reallocating.
func (e *MatchingEngine) Process(req Request, buf *ResponseBuffer) {
	buf.Reset()

	switch req.Kind {
	case NewOrder:
		e.processNewOrder(req, buf)
	case Cancel:
		e.processCancel(req, buf)
	case Flush:
		e.processFlush(buf)
	case TopOfBookQuery:
		e.processTopOfBookQuery(req, buf)
	default:
		panic(fmt.Sprintf("matching engine: unknown request kind %d", req.Kind))
	}
}

func (e *MatchingEngine) processNewOrder(req Request, buf *ResponseBuffer) {
	book := e.RegisterSymbol(req.Symbol)

	order := &Order{
		UserID:       req.UserID,
		UserOrderID:  req.UserOrderID,
		Symbol:       req.Symbol,
		Price:        req.Price,
		OriginalQty:  req.Quantity,
		RemainingQty: req.Quantity,
		Side:         req.Side,
		Sequence:     e.nextSequence(),
	}

	book.AddOrder(order, buf)

	// Only a resting LIMIT order needs to be cancelable later; a fully
	// filled order or a MARKET order's discarded residual has nothing
	// left for a CANCEL to find.
	if order.level != nil {
		e.index[orderKey(order.UserID, order.UserOrderID)] = &indexEntry{book: book, order: order}
	}
}

func (e *MatchingEngine) processCancel(req Request, buf *ResponseBuffer) {
	key := orderKey(req.UserID, req.UserOrderID)
	entry, ok := e.index[key]
	if !ok {
		// Unknown order: still ACK'd, per §7, with the UNKNOWN sentinel
		// symbol rather than the (unknowable) original symbol.
		buf.emit(Response{
			Kind:        CancelAck,
			UserID:      req.UserID,
			UserOrderID: req.UserOrderID,
			Symbol:      symbol.Unknown,
		})
		return
	}

	delete(e.index, key)
	entry.book.Cancel(entry.order, buf)
}

func (e *MatchingEngine) processFlush(buf *ResponseBuffer) {
	e.index = make(map[uint64]*indexEntry)
	for _, book := range e.books {
		book.Flush(buf)
	}
}

func (e *MatchingEngine) processTopOfBookQuery(req Request, buf *ResponseBuffer) {
	book, ok := e.books[req.Symbol]
	if !ok {
		return
	}

	bidPrice, bidQty, askPrice, askQty := book.TopOfBook()
	if bidQty > 0 {
		buf.emit(Response{
			Kind:     TopOfBook,
			Symbol:   req.Symbol,
			Side:     Buy,
			Price:    bidPrice,
			Quantity: uint32(bidQty),
		})
	}
	if askQty > 0 {
		buf.emit(Response{
			Kind:     TopOfBook,
			Symbol:   req.Symbol,
			Side:     Sell,
			Price:    askPrice,
			Quantity: uint32(askQty),
		})
	}
}
