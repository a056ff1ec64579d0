package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venue/internal/symbol"
)

var testSymbol = symbol.Pack("ACME")

func placeLimit(t *testing.T, book *OrderBook, buf *ResponseBuffer, userID, userOrderID uint32, price, qty uint32, side Side) *Order {
	t.Helper()
	order := &Order{
		UserID:       userID,
		UserOrderID:  userOrderID,
		Symbol:       testSymbol,
		Price:        price,
		OriginalQty:  qty,
		RemainingQty: qty,
		Side:         side,
	}
	buf.Reset()
	book.AddOrder(order, buf)
	return order
}

func TestOrderBookRestsNonCrossingOrders(t *testing.T) {
	book := NewOrderBook(testSymbol)
	buf := &ResponseBuffer{}

	placeLimit(t, book, buf, 1, 1, 99, 100, Buy)
	require.Len(t, buf.Responses, 2) // Ack + TOB
	assert.Equal(t, Ack, buf.Responses[0].Kind)
	assert.Equal(t, TopOfBook, buf.Responses[1].Kind)
	assert.Equal(t, uint32(99), buf.Responses[1].Price)

	placeLimit(t, book, buf, 2, 1, 101, 50, Sell)
	require.Len(t, buf.Responses, 2)
	assert.Equal(t, Ack, buf.Responses[0].Kind)
	assert.Equal(t, TopOfBook, buf.Responses[1].Kind)

	bidPrice, bidQty, askPrice, askQty := book.TopOfBook()
	assert.Equal(t, uint32(99), bidPrice)
	assert.Equal(t, uint64(100), bidQty)
	assert.Equal(t, uint32(101), askPrice)
	assert.Equal(t, uint64(50), askQty)
}

func TestOrderBookFullMatch(t *testing.T) {
	book := NewOrderBook(testSymbol)
	buf := &ResponseBuffer{}

	placeLimit(t, book, buf, 1, 1, 100, 100, Sell)
	placeLimit(t, book, buf, 2, 1, 100, 100, Buy)

	require.Len(t, buf.Responses, 3) // Ack, Trade, TOB (ask side eliminated)
	assert.Equal(t, Ack, buf.Responses[0].Kind)
	trade := buf.Responses[1]
	assert.Equal(t, Trade, trade.Kind)
	assert.Equal(t, uint32(2), trade.BuyUserID)
	assert.Equal(t, uint32(1), trade.SellUserID)
	assert.Equal(t, uint32(100), trade.Price)
	assert.Equal(t, uint32(100), trade.Quantity)

	tob := buf.Responses[2]
	assert.Equal(t, TopOfBook, tob.Kind)
	assert.Equal(t, Sell, tob.Side)
	assert.Equal(t, uint32(0), tob.Price)
	assert.Equal(t, uint32(0), tob.Quantity)

	assert.Len(t, book.AskLevels(), 0)
	assert.Len(t, book.BidLevels(), 0)
}

func TestOrderBookPartialMatchLeavesResidual(t *testing.T) {
	book := NewOrderBook(testSymbol)
	buf := &ResponseBuffer{}

	placeLimit(t, book, buf, 1, 1, 100, 100, Sell)
	buyer := placeLimit(t, book, buf, 2, 1, 100, 40, Buy)

	assert.Equal(t, uint32(0), buyer.RemainingQty)
	levels := book.AskLevels()
	require.Len(t, levels, 1)
	assert.Equal(t, uint64(60), levels[0].AggregateQuantity())
}

func TestOrderBookPriceTimePriority(t *testing.T) {
	book := NewOrderBook(testSymbol)
	buf := &ResponseBuffer{}

	placeLimit(t, book, buf, 1, 1, 100, 50, Sell)
	placeLimit(t, book, buf, 2, 1, 100, 50, Sell)
	placeLimit(t, book, buf, 3, 1, 100, 80, Buy)

	trades := filterTrades(buf.Responses)
	require.Len(t, trades, 2)
	assert.Equal(t, uint32(1), trades[0].SellUserID, "earlier resting order fills first")
	assert.Equal(t, uint32(50), trades[0].Quantity)
	assert.Equal(t, uint32(2), trades[1].SellUserID)
	assert.Equal(t, uint32(30), trades[1].Quantity)
}

func TestOrderBookMarketOrderSweepsAndDiscardsResidual(t *testing.T) {
	book := NewOrderBook(testSymbol)
	buf := &ResponseBuffer{}

	placeLimit(t, book, buf, 1, 1, 100, 50, Sell)

	order := &Order{UserID: 2, UserOrderID: 1, Symbol: testSymbol, Price: 0, OriginalQty: 200, RemainingQty: 200, Side: Buy}
	buf.Reset()
	book.AddOrder(order, buf)

	trades := filterTrades(buf.Responses)
	require.Len(t, trades, 1)
	assert.Equal(t, uint32(50), trades[0].Quantity)
	assert.Equal(t, uint32(150), order.RemainingQty, "unfilled market residual is discarded, not inserted")
	assert.Nil(t, order.level)
	assert.Len(t, book.AskLevels(), 0)
}

func TestOrderBookCancelRestingOrder(t *testing.T) {
	book := NewOrderBook(testSymbol)
	buf := &ResponseBuffer{}

	order := placeLimit(t, book, buf, 1, 1, 99, 100, Buy)

	buf.Reset()
	book.Cancel(order, buf)
	require.Len(t, buf.Responses, 2)
	assert.Equal(t, CancelAck, buf.Responses[0].Kind)
	assert.Equal(t, TopOfBook, buf.Responses[1].Kind)
	assert.Equal(t, uint32(0), buf.Responses[1].Price)
	assert.Len(t, book.BidLevels(), 0)
}

func TestOrderBookFlushEliminatesBothSidesWithoutCancelAcks(t *testing.T) {
	book := NewOrderBook(testSymbol)
	buf := &ResponseBuffer{}

	placeLimit(t, book, buf, 1, 1, 99, 100, Buy)
	placeLimit(t, book, buf, 2, 1, 101, 50, Sell)

	buf.Reset()
	book.Flush(buf)
	require.Len(t, buf.Responses, 2)
	for _, r := range buf.Responses {
		assert.Equal(t, TopOfBook, r.Kind)
		assert.Equal(t, uint32(0), r.Price)
		assert.Equal(t, uint32(0), r.Quantity)
	}
	assert.Len(t, book.BidLevels(), 0)
	assert.Len(t, book.AskLevels(), 0)
}

func TestOrderBookTopOfBookQueryDoesNotMutatePrevTop(t *testing.T) {
	book := NewOrderBook(testSymbol)
	buf := &ResponseBuffer{}

	placeLimit(t, book, buf, 1, 1, 99, 100, Buy)

	before := book.prevTop
	_, _, _, _ = book.TopOfBook()
	assert.Equal(t, before, book.prevTop)
}

func filterTrades(responses []Response) []Response {
	var out []Response
	for _, r := range responses {
		if r.Kind == Trade {
			out = append(out, r)
		}
	}
	return out
}
