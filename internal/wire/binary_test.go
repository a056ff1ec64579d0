package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venue/internal/engine"
	"venue/internal/symbol"
)

func TestBinaryPayloadSizesMatchWireContract(t *testing.T) {
	newOrder := EncodeRequest(engine.Request{Kind: engine.NewOrder, Symbol: symbol.Pack("IBM"), Price: 100, Quantity: 50})
	assert.Len(t, newOrder, 27)

	cancel := EncodeRequest(engine.Request{Kind: engine.Cancel, UserID: 1, UserOrderID: 1})
	assert.Len(t, cancel, 18)

	flush := EncodeRequest(engine.Request{Kind: engine.Flush})
	assert.Len(t, flush, 2)

	ack := EncodeResponse(engine.Response{Kind: engine.Ack})
	assert.Len(t, ack, 18)

	trade := EncodeResponse(engine.Response{Kind: engine.Trade})
	assert.Len(t, trade, 34)

	tob := EncodeResponse(engine.Response{Kind: engine.TopOfBook})
	assert.Len(t, tob, 20)
}

func TestBinaryRequestRoundTripNewOrder(t *testing.T) {
	req := engine.Request{
		Kind: engine.NewOrder, UserID: 42, UserOrderID: 7,
		Symbol: symbol.Pack("IBM"), Price: 100, Quantity: 50, Side: engine.Sell,
	}
	decoded, err := DecodeRequest(EncodeRequest(req))
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}

func TestBinaryRequestRoundTripCancel(t *testing.T) {
	req := engine.Request{Kind: engine.Cancel, UserID: 42, UserOrderID: 7}
	decoded, err := DecodeRequest(EncodeRequest(req))
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}

func TestBinaryRequestRoundTripFlush(t *testing.T) {
	req := engine.Request{Kind: engine.Flush}
	decoded, err := DecodeRequest(EncodeRequest(req))
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}

func TestBinaryResponseRoundTripEachKind(t *testing.T) {
	cases := []engine.Response{
		{Kind: engine.Ack, UserID: 1, UserOrderID: 2, Symbol: symbol.Pack("IBM")},
		{Kind: engine.CancelAck, UserID: 7, UserOrderID: 7, Symbol: symbol.Unknown},
		{Kind: engine.Trade, Symbol: symbol.Pack("IBM"), BuyUserID: 1, BuyUserOrderID: 1, SellUserID: 2, SellUserOrderID: 1, Price: 100, Quantity: 50},
		{Kind: engine.TopOfBook, Symbol: symbol.Pack("IBM"), Side: engine.Buy, Price: 100, Quantity: 50},
		{Kind: engine.TopOfBook, Symbol: symbol.Pack("IBM"), Side: engine.Sell}, // elimination
	}
	for _, want := range cases {
		decoded, err := DecodeResponse(EncodeResponse(want))
		require.NoError(t, err)
		assert.Equal(t, want, decoded)
	}
}

func TestDecodeRequestRejectsBadMagic(t *testing.T) {
	payload := EncodeRequest(engine.Request{Kind: engine.Flush})
	payload[0] = 0x00
	_, err := DecodeRequest(payload)
	assert.Error(t, err)
}

func TestDecodeRequestRejectsWrongLength(t *testing.T) {
	payload := EncodeRequest(engine.Request{Kind: engine.NewOrder, Quantity: 1})
	_, err := DecodeRequest(payload[:len(payload)-1])
	assert.Error(t, err)
}

func TestDecodeRequestRejectsZeroQuantity(t *testing.T) {
	payload := EncodeRequest(engine.Request{Kind: engine.NewOrder, Quantity: 0})
	_, err := DecodeRequest(payload)
	assert.Error(t, err)
}

func TestFrameRoundTrip(t *testing.T) {
	payload := EncodeRequest(engine.Request{Kind: engine.Flush})
	frame := EncodeFrame(payload)

	got, err := ReadFrame(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var lenBuf [4]byte
	lenBuf[0] = 0xFF // absurdly large length
	_, err := ReadFrame(bytes.NewReader(lenBuf[:]))
	assert.Error(t, err)
}

func TestUnknownSymbolIsEightZeroBytes(t *testing.T) {
	payload := EncodeResponse(engine.Response{Kind: engine.Ack, Symbol: symbol.Unknown})
	assert.Equal(t, make([]byte, 8), payload[10:18])
}
