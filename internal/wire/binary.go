package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"venue/internal/engine"
	"venue/internal/symbol"
)

// magicByte opens every binary payload, input or output, as a cheap
// sync check before the type byte is trusted.
const magicByte = 0x4D

// Input payload type bytes.
const (
	typeNewOrder byte = 0x01
	typeCancel   byte = 0x02
	typeFlush    byte = 0x03
)

// Output payload type bytes.
const (
	typeAck       byte = 0x10
	typeCancelAck byte = 0x11
	typeTrade     byte = 0x12
	typeTopOfBook byte = 0x13
)

// Exact payload sizes in bytes, including the 2-byte magic+type header.
// See SPEC_FULL.md §9 decision 5 for the CANCEL padding rationale.
const (
	newOrderPayloadSize = 27
	cancelPayloadSize   = 18
	flushPayloadSize    = 2
	ackPayloadSize      = 18
	tradePayloadSize    = 34
	topOfBookPayloadSize = 20
)

const maxFrameLen = 1 << 20

// ReadFrame reads one length-prefixed frame ([frame_len u32 BE][payload])
// from r and returns the payload. io.EOF is returned unmodified when the
// stream ends cleanly between frames.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	frameLen := binary.BigEndian.Uint32(lenBuf[:])
	if frameLen == 0 || frameLen > maxFrameLen {
		return nil, fmt.Errorf("wire: invalid frame length %d", frameLen)
	}
	payload := make([]byte, frameLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// EncodeFrame prepends the big-endian frame length to payload.
func EncodeFrame(payload []byte) []byte {
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(payload)))
	copy(frame[4:], payload)
	return frame
}

// DecodeRequest parses one binary payload (magic+type onward, no frame
// length) into an engine.Request.
func DecodeRequest(payload []byte) (engine.Request, error) {
	if len(payload) < 2 {
		return engine.Request{}, fmt.Errorf("wire: payload too short (%d bytes)", len(payload))
	}
	if payload[0] != magicByte {
		return engine.Request{}, fmt.Errorf("wire: bad magic byte 0x%02x", payload[0])
	}

	switch payload[1] {
	case typeNewOrder:
		return decodeNewOrderBinary(payload)
	case typeCancel:
		return decodeCancelBinary(payload)
	case typeFlush:
		if len(payload) != flushPayloadSize {
			return engine.Request{}, fmt.Errorf("wire: FLUSH frame must be %d bytes, got %d", flushPayloadSize, len(payload))
		}
		return engine.Request{Kind: engine.Flush}, nil
	default:
		return engine.Request{}, fmt.Errorf("wire: unknown input type byte 0x%02x", payload[1])
	}
}

func decodeNewOrderBinary(payload []byte) (engine.Request, error) {
	if len(payload) != newOrderPayloadSize {
		return engine.Request{}, fmt.Errorf("wire: NEW_ORDER frame must be %d bytes, got %d", newOrderPayloadSize, len(payload))
	}
	b := payload[2:]
	userID := binary.BigEndian.Uint32(b[0:4])
	userOrderID := binary.BigEndian.Uint32(b[4:8])
	sym := decodeSymbolBinary(b[8:16])
	price := binary.BigEndian.Uint32(b[16:20])
	quantity := binary.BigEndian.Uint32(b[20:24])
	side, err := decodeSideByte(b[24])
	if err != nil {
		return engine.Request{}, fmt.Errorf("wire: NEW_ORDER side: %w", err)
	}
	if quantity == 0 {
		return engine.Request{}, fmt.Errorf("wire: NEW_ORDER quantity must be > 0")
	}
	return engine.Request{
		Kind:        engine.NewOrder,
		UserID:      userID,
		UserOrderID: userOrderID,
		Symbol:      sym,
		Price:       price,
		Quantity:    quantity,
		Side:        side,
	}, nil
}

func decodeCancelBinary(payload []byte) (engine.Request, error) {
	if len(payload) != cancelPayloadSize {
		return engine.Request{}, fmt.Errorf("wire: CANCEL frame must be %d bytes, got %d", cancelPayloadSize, len(payload))
	}
	b := payload[2:]
	userID := binary.BigEndian.Uint32(b[0:4])
	userOrderID := binary.BigEndian.Uint32(b[4:8])
	// b[8:16] is the reserved/padding field; ignored on decode.
	return engine.Request{Kind: engine.Cancel, UserID: userID, UserOrderID: userOrderID}, nil
}

// EncodeResponse renders one engine.Response as its fixed-layout binary
// payload (magic+type onward, no frame length).
func EncodeResponse(r engine.Response) []byte {
	switch r.Kind {
	case engine.Ack, engine.CancelAck:
		payload := make([]byte, ackPayloadSize)
		payload[0] = magicByte
		if r.Kind == engine.Ack {
			payload[1] = typeAck
		} else {
			payload[1] = typeCancelAck
		}
		b := payload[2:]
		binary.BigEndian.PutUint32(b[0:4], r.UserID)
		binary.BigEndian.PutUint32(b[4:8], r.UserOrderID)
		encodeSymbolBinary(b[8:16], r.Symbol)
		return payload

	case engine.Trade:
		payload := make([]byte, tradePayloadSize)
		payload[0] = magicByte
		payload[1] = typeTrade
		b := payload[2:]
		encodeSymbolBinary(b[0:8], r.Symbol)
		binary.BigEndian.PutUint32(b[8:12], r.BuyUserID)
		binary.BigEndian.PutUint32(b[12:16], r.BuyUserOrderID)
		binary.BigEndian.PutUint32(b[16:20], r.SellUserID)
		binary.BigEndian.PutUint32(b[20:24], r.SellUserOrderID)
		binary.BigEndian.PutUint32(b[24:28], r.Price)
		binary.BigEndian.PutUint32(b[28:32], r.Quantity)
		return payload

	case engine.TopOfBook:
		payload := make([]byte, topOfBookPayloadSize)
		payload[0] = magicByte
		payload[1] = typeTopOfBook
		b := payload[2:]
		encodeSymbolBinary(b[0:8], r.Symbol)
		b[8] = encodeSideByte(r.Side)
		binary.BigEndian.PutUint32(b[9:13], r.Price)
		binary.BigEndian.PutUint32(b[13:17], r.Quantity)
		// b[17] is the trailing padding byte, left zero.
		return payload

	default:
		panic(fmt.Sprintf("wire: unknown response kind %d", r.Kind))
	}
}

// DecodeResponse parses one binary output payload into an engine.Response,
// for the benefit of clients that speak the binary protocol.
func DecodeResponse(payload []byte) (engine.Response, error) {
	if len(payload) < 2 {
		return engine.Response{}, fmt.Errorf("wire: payload too short (%d bytes)", len(payload))
	}
	if payload[0] != magicByte {
		return engine.Response{}, fmt.Errorf("wire: bad magic byte 0x%02x", payload[0])
	}

	switch payload[1] {
	case typeAck, typeCancelAck:
		if len(payload) != ackPayloadSize {
			return engine.Response{}, fmt.Errorf("wire: ACK/CANCEL_ACK frame must be %d bytes, got %d", ackPayloadSize, len(payload))
		}
		b := payload[2:]
		kind := engine.Ack
		if payload[1] == typeCancelAck {
			kind = engine.CancelAck
		}
		return engine.Response{
			Kind:        kind,
			UserID:      binary.BigEndian.Uint32(b[0:4]),
			UserOrderID: binary.BigEndian.Uint32(b[4:8]),
			Symbol:      decodeSymbolBinary(b[8:16]),
		}, nil

	case typeTrade:
		if len(payload) != tradePayloadSize {
			return engine.Response{}, fmt.Errorf("wire: TRADE frame must be %d bytes, got %d", tradePayloadSize, len(payload))
		}
		b := payload[2:]
		return engine.Response{
			Kind:            engine.Trade,
			Symbol:          decodeSymbolBinary(b[0:8]),
			BuyUserID:       binary.BigEndian.Uint32(b[8:12]),
			BuyUserOrderID:  binary.BigEndian.Uint32(b[12:16]),
			SellUserID:      binary.BigEndian.Uint32(b[16:20]),
			SellUserOrderID: binary.BigEndian.Uint32(b[20:24]),
			Price:           binary.BigEndian.Uint32(b[24:28]),
			Quantity:        binary.BigEndian.Uint32(b[28:32]),
		}, nil

	case typeTopOfBook:
		if len(payload) != topOfBookPayloadSize {
			return engine.Response{}, fmt.Errorf("wire: TOP_OF_BOOK frame must be %d bytes, got %d", topOfBookPayloadSize, len(payload))
		}
		b := payload[2:]
		side, err := decodeSideByte(b[8])
		if err != nil {
			return engine.Response{}, fmt.Errorf("wire: TOP_OF_BOOK side: %w", err)
		}
		return engine.Response{
			Kind:     engine.TopOfBook,
			Symbol:   decodeSymbolBinary(b[0:8]),
			Side:     side,
			Price:    binary.BigEndian.Uint32(b[9:13]),
			Quantity: binary.BigEndian.Uint32(b[13:17]),
		}, nil

	default:
		return engine.Response{}, fmt.Errorf("wire: unknown output type byte 0x%02x", payload[1])
	}
}

// EncodeRequest renders one engine.Request as its fixed-layout binary
// payload. Only NEW_ORDER, CANCEL, and FLUSH have wire representations;
// TOP_OF_BOOK_QUERY is a text-protocol-only convenience in this system,
// matching spec.md's binary payload list in §6.
func EncodeRequest(req engine.Request) []byte {
	switch req.Kind {
	case engine.NewOrder:
		payload := make([]byte, newOrderPayloadSize)
		payload[0] = magicByte
		payload[1] = typeNewOrder
		b := payload[2:]
		binary.BigEndian.PutUint32(b[0:4], req.UserID)
		binary.BigEndian.PutUint32(b[4:8], req.UserOrderID)
		encodeSymbolBinary(b[8:16], req.Symbol)
		binary.BigEndian.PutUint32(b[16:20], req.Price)
		binary.BigEndian.PutUint32(b[20:24], req.Quantity)
		b[24] = encodeSideByte(req.Side)
		return payload

	case engine.Cancel:
		payload := make([]byte, cancelPayloadSize)
		payload[0] = magicByte
		payload[1] = typeCancel
		b := payload[2:]
		binary.BigEndian.PutUint32(b[0:4], req.UserID)
		binary.BigEndian.PutUint32(b[4:8], req.UserOrderID)
		// b[8:16] reserved, left zero.
		return payload

	case engine.Flush:
		payload := make([]byte, flushPayloadSize)
		payload[0] = magicByte
		payload[1] = typeFlush
		return payload

	default:
		panic(fmt.Sprintf("wire: request kind %d has no binary encoding", req.Kind))
	}
}

func decodeSideByte(b byte) (engine.Side, error) {
	switch b {
	case 0:
		return engine.Buy, nil
	case 1:
		return engine.Sell, nil
	default:
		return 0, fmt.Errorf("invalid side byte 0x%02x", b)
	}
}

func encodeSideByte(s engine.Side) byte {
	if s == engine.Buy {
		return 0
	}
	return 1
}

// encodeSymbolBinary writes sym into dst (must be 8 bytes) left-aligned,
// zero-padded — which for the packed-uint64 representation is simply its
// big-endian form, including the all-zero UNKNOWN sentinel.
func encodeSymbolBinary(dst []byte, sym symbol.Symbol) {
	binary.BigEndian.PutUint64(dst, uint64(sym))
}

func decodeSymbolBinary(src []byte) symbol.Symbol {
	return symbol.Symbol(binary.BigEndian.Uint64(src))
}
