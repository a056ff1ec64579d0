package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRestingOrder(userID, userOrderID uint32, price, qty uint32, side Side) *Order {
	return &Order{
		UserID:       userID,
		UserOrderID:  userOrderID,
		Price:        price,
		OriginalQty:  qty,
		RemainingQty: qty,
		Side:         side,
	}
}

func TestPriceLevelAppendFrontFIFO(t *testing.T) {
	level := NewPriceLevel(100)
	a := newRestingOrder(1, 1, 100, 10, Buy)
	b := newRestingOrder(2, 1, 100, 20, Buy)
	level.Append(a)
	level.Append(b)

	front, ok := level.Front()
	require.True(t, ok)
	assert.Same(t, a, front)
	assert.Equal(t, uint64(30), level.AggregateQuantity())
}

func TestPriceLevelAppendWrongPricePanics(t *testing.T) {
	level := NewPriceLevel(100)
	assert.Panics(t, func() {
		level.Append(newRestingOrder(1, 1, 101, 10, Buy))
	})
}

func TestPriceLevelOnFillAndPopFilledPrefix(t *testing.T) {
	level := NewPriceLevel(100)
	a := newRestingOrder(1, 1, 100, 10, Buy)
	b := newRestingOrder(2, 1, 100, 20, Buy)
	level.Append(a)
	level.Append(b)

	a.Fill(10)
	level.OnFill(10)
	level.PopFilledPrefix()

	front, ok := level.Front()
	require.True(t, ok)
	assert.Same(t, b, front)
	assert.Equal(t, uint64(20), level.AggregateQuantity())
}

func TestPriceLevelRemoveByIdentity(t *testing.T) {
	level := NewPriceLevel(100)
	a := newRestingOrder(1, 1, 100, 10, Buy)
	b := newRestingOrder(2, 1, 100, 20, Buy)
	c := newRestingOrder(3, 1, 100, 30, Buy)
	level.Append(a)
	level.Append(b)
	level.Append(c)

	require.True(t, level.RemoveByIdentity(2, 1))
	assert.Nil(t, b.level)
	assert.Equal(t, uint64(40), level.AggregateQuantity())

	orders := level.Orders()
	require.Len(t, orders, 2)
	assert.Same(t, a, orders[0])
	assert.Same(t, c, orders[1])

	assert.False(t, level.RemoveByIdentity(99, 1))
}

func TestPriceLevelIsEmpty(t *testing.T) {
	level := NewPriceLevel(100)
	assert.True(t, level.IsEmpty())

	a := newRestingOrder(1, 1, 100, 10, Buy)
	level.Append(a)
	assert.False(t, level.IsEmpty())

	a.Fill(10)
	level.OnFill(10)
	level.PopFilledPrefix()
	assert.True(t, level.IsEmpty())
}

func TestPriceLevelCompactsAfterManyRemovals(t *testing.T) {
	level := NewPriceLevel(100)
	var orders []*Order
	for i := uint32(0); i < compactionThreshold+10; i++ {
		o := newRestingOrder(i, 1, 100, 1, Buy)
		level.Append(o)
		orders = append(orders, o)
	}
	for i := 0; i < compactionThreshold+5; i++ {
		orders[i].Fill(1)
		level.OnFill(1)
	}
	level.PopFilledPrefix()

	assert.Less(t, level.head, compactionThreshold)
	assert.Equal(t, uint64(5), level.AggregateQuantity())
}
