package engine

import (
	"fmt"

	"venue/internal/symbol"
)

// Order is a mutable order record. Orders are pure data with respect to
// each other; they do not know which book they belong to. The level
// back-pointer is non-owning — it lets cancel locate the owning
// PriceLevel in O(1) instead of a second lookup.
type Order struct {
	UserID          uint32
	UserOrderID     uint32
	Symbol          symbol.Symbol
	Price           uint32 // 0 means MARKET
	OriginalQty     uint32
	RemainingQty    uint32
	Side            Side
	Sequence        uint64
	level           *PriceLevel
}

// Type derives the order type from price.
func (o *Order) Type() OrderType {
	if o.Price == 0 {
		return Market
	}
	return Limit
}

// Fill consumes n units of remaining quantity. n must be in (0, remaining].
func (o *Order) Fill(n uint32) uint32 {
	if n == 0 || n > o.RemainingQty {
		panic(fmt.Sprintf("order %d/%d: invalid fill of %d against remaining %d",
			o.UserID, o.UserOrderID, n, o.RemainingQty))
	}
	o.RemainingQty -= n
	return n
}

// IsFilled reports whether the order has no remaining quantity.
func (o *Order) IsFilled() bool {
	return o.RemainingQty == 0
}

// CanMatchAgainst reports whether this order may trade against a passive
// order resting at passivePrice. MARKET orders always can; LIMIT BUY
// requires its price to be at least the passive price; LIMIT SELL
// requires its price to be at most the passive price.
func (o *Order) CanMatchAgainst(passivePrice uint32) bool {
	if o.Type() == Market {
		return true
	}
	if o.Side == Buy {
		return o.Price >= passivePrice
	}
	return o.Price <= passivePrice
}
