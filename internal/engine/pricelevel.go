package engine

import "fmt"

// compactionThreshold is the smallest head index at which PriceLevel
// considers reclaiming the consumed prefix. maybeCompact additionally
// waits until the consumed prefix outnumbers the live orders, so
// compaction is amortized O(1) per removal rather than triggered on
// every pop.
const compactionThreshold = 64

// PriceLevel is a FIFO queue of orders resting at a single price, backed
// by a growable slice with a head-advance index rather than a linked
// list: matching walks the live orders front-to-back, and a contiguous
// array is far friendlier to the cache than pointer-chasing nodes.
type PriceLevel struct {
	Price              uint32
	orders             []*Order
	head               int
	aggregateRemaining uint64
}

// NewPriceLevel creates an empty level at price.
func NewPriceLevel(price uint32) *PriceLevel {
	return &PriceLevel{Price: price}
}

// Append adds order to the tail of the level. order must already carry
// the level's price and have positive remaining quantity.
func (l *PriceLevel) Append(order *Order) {
	if order.Price != l.Price {
		panic(fmt.Sprintf("price level %d: appended order priced at %d", l.Price, order.Price))
	}
	if order.RemainingQty == 0 {
		panic("price level: appended order has zero remaining quantity")
	}
	if len(l.orders)-l.head >= MaxOrdersPerPriceLevel {
		panic(fmt.Sprintf("price level %d: exceeded max orders per level (%d)", l.Price, MaxOrdersPerPriceLevel))
	}
	order.level = l
	l.orders = append(l.orders, order)
	l.aggregateRemaining += uint64(order.RemainingQty)
}

// Front returns the oldest live order, or (nil, false) if the level is empty.
func (l *PriceLevel) Front() (*Order, bool) {
	if l.head >= len(l.orders) {
		return nil, false
	}
	return l.orders[l.head], true
}

// OnFill records that n units were just matched away from this level's
// aggregate (the order itself is updated separately via Order.Fill).
func (l *PriceLevel) OnFill(n uint32) {
	if uint64(n) > l.aggregateRemaining {
		panic(fmt.Sprintf("price level %d: fill of %d exceeds aggregate remaining %d", l.Price, n, l.aggregateRemaining))
	}
	l.aggregateRemaining -= uint64(n)
}

// PopFilledPrefix advances head past every leading order that is now
// fully filled, then compacts if the consumed prefix has grown large.
func (l *PriceLevel) PopFilledPrefix() {
	for l.head < len(l.orders) && l.orders[l.head].IsFilled() {
		l.orders[l.head] = nil
		l.head++
	}
	l.maybeCompact()
}

func (l *PriceLevel) maybeCompact() {
	if l.head < compactionThreshold {
		return
	}
	live := len(l.orders) - l.head
	if l.head <= live {
		// The consumed prefix is not yet dominating the slice; not worth
		// the copy.
		return
	}
	copy(l.orders, l.orders[l.head:])
	l.orders = l.orders[:live]
	l.head = 0
}

// RemoveByIdentity removes the order matching (userID, userOrderID) via a
// bounded linear scan from the front of the live queue, shifting the
// remainder down. Returns whether an order was found and removed.
func (l *PriceLevel) RemoveByIdentity(userID, userOrderID uint32) bool {
	for i := l.head; i < len(l.orders); i++ {
		o := l.orders[i]
		if o.UserID == userID && o.UserOrderID == userOrderID {
			l.aggregateRemaining -= uint64(o.RemainingQty)
			copy(l.orders[i:], l.orders[i+1:])
			l.orders[len(l.orders)-1] = nil
			l.orders = l.orders[:len(l.orders)-1]
			o.level = nil
			return true
		}
	}
	return false
}

// IsEmpty reports whether the level has no live orders.
func (l *PriceLevel) IsEmpty() bool {
	return l.head >= len(l.orders)
}

// AggregateQuantity returns the sum of remaining quantity across all live
// orders at this level.
func (l *PriceLevel) AggregateQuantity() uint64 {
	return l.aggregateRemaining
}

// Orders returns the live orders in arrival order (oldest first). It is
// intended for tests and diagnostics, not the matching hot path.
func (l *PriceLevel) Orders() []*Order {
	out := make([]*Order, 0, len(l.orders)-l.head)
	for i := l.head; i < len(l.orders); i++ {
		out = append(out, l.orders[i])
	}
	return out
}
