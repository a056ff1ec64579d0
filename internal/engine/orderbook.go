package engine

import (
	"fmt"

	"github.com/tidwall/btree"

	"venue/internal/symbol"
)

// priceLevels is a BTreeG of *PriceLevel ordered by price. Bids and asks
// use opposite comparators so that, for both, Min() yields the best
// (most aggressive) level — exactly the level the matching loop needs
// first.
type priceLevels = btree.BTreeG[*PriceLevel]

// topOfBook is the per-side (price, aggregate quantity) pair cached by
// OrderBook to detect changes after every mutating request. (0, 0) means
// the side is empty.
type topOfBook struct {
	bidPrice uint32
	bidQty   uint64
	askPrice uint32
	askQty   uint64
}

// OrderBook holds the full two-sided book for a single symbol: sorted
// price levels on each side, plus the previous top-of-book snapshot used
// to detect and report changes.
type OrderBook struct {
	Symbol symbol.Symbol

	bids *priceLevels // sorted strictly descending by price
	asks *priceLevels // sorted strictly ascending by price

	prevTop topOfBook

	// onFilled is invoked whenever a resting order is fully consumed by
	// a trade, so the engine can drop it from its (user,order) index in
	// the same step — the index has no other way to learn a resting
	// order disappeared mid-match. Set by the engine at registration;
	// nil in standalone book tests, where no index exists to update.
	onFilled func(userID, userOrderID uint32)
}

// NewOrderBook creates an empty book for sym.
func NewOrderBook(sym symbol.Symbol) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price > b.Price
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price < b.Price
	})
	return &OrderBook{Symbol: sym, bids: bids, asks: asks}
}

// AddOrder runs the full NEW_ORDER pipeline against this book: ACK, then
// aggressive matching, then resting insertion for any limit residual,
// then top-of-book change detection. Outputs are appended to buf in
// exactly that order, matching the ordering contract in spec.md §4.4.
func (book *OrderBook) AddOrder(order *Order, buf *ResponseBuffer) {
	buf.emit(Response{
		Kind:        Ack,
		UserID:      order.UserID,
		UserOrderID: order.UserOrderID,
		Symbol:      order.Symbol,
	})

	book.match(order, buf)

	if order.Type() == Limit && order.RemainingQty > 0 {
		book.insert(order)
	}
	// Market order residual, if any, is discarded silently here: it is
	// never inserted and order.level stays nil, so the caller's index
	// entry is simply never created for it.

	book.emitTopOfBookChanges(buf)
}

// match walks the opposing side from the best price outward, executing
// trades in strict price-time priority until the incoming order is
// filled or no further price can cross.
func (book *OrderBook) match(order *Order, buf *ResponseBuffer) {
	opposing := book.asks
	if order.Side == Sell {
		opposing = book.bids
	}

	iterations := 0
	for order.RemainingQty > 0 {
		level, ok := opposing.MinMut()
		if !ok {
			break
		}
		if !order.CanMatchAgainst(level.Price) {
			// Sorted order means no level further out can cross either.
			break
		}

		for order.RemainingQty > 0 && !level.IsEmpty() {
			iterations++
			if iterations > MaxMatchIterations {
				panic(fmt.Sprintf("order book %s: matching loop exceeded %d iterations", book.Symbol, MaxMatchIterations))
			}

			passive, _ := level.Front()
			qty := order.RemainingQty
			if passive.RemainingQty < qty {
				qty = passive.RemainingQty
			}
			if qty == 0 {
				break
			}

			book.emitTrade(buf, order, passive, level.Price, qty)

			order.Fill(qty)
			passive.Fill(qty)
			level.OnFill(qty)

			if passive.IsFilled() {
				level.PopFilledPrefix()
				if book.onFilled != nil {
					book.onFilled(passive.UserID, passive.UserOrderID)
				}
			}
		}

		if level.IsEmpty() {
			opposing.Delete(level)
		}
	}
}

// emitTrade appends a TRADE response. The buyer fields always come from
// whichever of aggressor/passive is the BUY-side order, and likewise for
// seller, regardless of which one was aggressive; price is always the
// passive (resting) order's price — the aggressor receives price
// improvement, never the reverse.
func (book *OrderBook) emitTrade(buf *ResponseBuffer, aggressor, passive *Order, price uint32, qty uint32) {
	if qty == 0 {
		return
	}
	buy, sell := aggressor, passive
	if aggressor.Side == Sell {
		buy, sell = passive, aggressor
	}
	buf.emit(Response{
		Kind:            Trade,
		Symbol:          book.Symbol,
		BuyUserID:       buy.UserID,
		BuyUserOrderID:  buy.UserOrderID,
		SellUserID:      sell.UserID,
		SellUserOrderID: sell.UserOrderID,
		Price:           price,
		Quantity:        qty,
	})
}

// insert places a resting limit order into its side's sorted level list,
// appending to an existing level at that price or creating a new one.
func (book *OrderBook) insert(order *Order) {
	levels := book.asks
	if order.Side == Buy {
		levels = book.bids
	}

	level, ok := levels.GetMut(&PriceLevel{Price: order.Price})
	if !ok {
		if levels.Len() >= MaxPriceLevelsPerSide {
			panic(fmt.Sprintf("order book %s: exceeded max price levels per side (%d)", book.Symbol, MaxPriceLevelsPerSide))
		}
		level = NewPriceLevel(order.Price)
		levels.Set(level)
	}
	level.Append(order)
}

// Cancel removes order from its resting level (identified via the
// back-pointer Order.level set by PriceLevel.Append) and emits the
// CANCEL_ACK plus any resulting top-of-book change. The caller
// (MatchingEngine) is responsible for the (user, order) index removal.
func (book *OrderBook) Cancel(order *Order, buf *ResponseBuffer) {
	level := order.level
	var side *priceLevels
	if order.Side == Buy {
		side = book.bids
	} else {
		side = book.asks
	}

	if level != nil {
		level.RemoveByIdentity(order.UserID, order.UserOrderID)
		if level.IsEmpty() {
			side.Delete(level)
		}
	}

	buf.emit(Response{
		Kind:        CancelAck,
		UserID:      order.UserID,
		UserOrderID: order.UserOrderID,
		Symbol:      book.Symbol,
	})

	book.emitTopOfBookChanges(buf)
}

// Flush clears both sides of the book. Per the FLUSH policy decided in
// SPEC_FULL.md §9, this does not emit a CANCEL_ACK per resting order —
// only the top-of-book eliminations resulting from the clear.
func (book *OrderBook) Flush(buf *ResponseBuffer) {
	book.bids = btree.NewBTreeG(func(a, b *PriceLevel) bool { return a.Price > b.Price })
	book.asks = btree.NewBTreeG(func(a, b *PriceLevel) bool { return a.Price < b.Price })
	book.emitTopOfBookChanges(buf)
}

// currentTop reads the live top of book directly from the sorted trees.
func (book *OrderBook) currentTop() topOfBook {
	var top topOfBook
	if lvl, ok := book.bids.Min(); ok {
		top.bidPrice = lvl.Price
		top.bidQty = lvl.AggregateQuantity()
	}
	if lvl, ok := book.asks.Min(); ok {
		top.askPrice = lvl.Price
		top.askQty = lvl.AggregateQuantity()
	}
	return top
}

// TopOfBook returns the current (bidPrice, bidQty, askPrice, askQty)
// snapshot without mutating any state or touching prevTop.
func (book *OrderBook) TopOfBook() (bidPrice uint32, bidQty uint64, askPrice uint32, askQty uint64) {
	top := book.currentTop()
	return top.bidPrice, top.bidQty, top.askPrice, top.askQty
}

// emitTopOfBookChanges compares the live top of book against prevTop,
// emits a TOP_OF_BOOK response per side that changed (an elimination —
// price=0, qty=0 — if that side went from populated to empty), and
// updates prevTop.
func (book *OrderBook) emitTopOfBookChanges(buf *ResponseBuffer) {
	top := book.currentTop()

	if top.bidPrice != book.prevTop.bidPrice || top.bidQty != book.prevTop.bidQty {
		buf.emit(Response{
			Kind:     TopOfBook,
			Symbol:   book.Symbol,
			Side:     Buy,
			Price:    top.bidPrice,
			Quantity: uint32(top.bidQty),
		})
	}
	if top.askPrice != book.prevTop.askPrice || top.askQty != book.prevTop.askQty {
		buf.emit(Response{
			Kind:     TopOfBook,
			Symbol:   book.Symbol,
			Side:     Sell,
			Price:    top.askPrice,
			Quantity: uint32(top.askQty),
		})
	}
	book.prevTop = top
}

// BidLevels and AskLevels return the live price levels in book-priority
// order (best first). They exist for tests and diagnostics — never on the
// matching hot path.
func (book *OrderBook) BidLevels() []*PriceLevel {
	return collectLevels(book.bids)
}

func (book *OrderBook) AskLevels() []*PriceLevel {
	return collectLevels(book.asks)
}

func collectLevels(tree *priceLevels) []*PriceLevel {
	out := make([]*PriceLevel, 0, tree.Len())
	tree.Scan(func(l *PriceLevel) bool {
		out = append(out, l)
		return true
	})
	return out
}
