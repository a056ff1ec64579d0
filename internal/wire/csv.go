// Package wire implements the two external encodings for engine.Request
// and engine.Response: a line-oriented, comma-separated text protocol
// and a fixed-layout binary protocol. Both protocols speak the same
// sentinel value for an unresolved symbol; only its surface rendering
// differs (symbol.Unknown).
package wire

import (
	"fmt"
	"strconv"
	"strings"

	"venue/internal/engine"
	"venue/internal/symbol"
)

// unknownToken is the CSV rendering of the UNKNOWN sentinel symbol.
const unknownToken = "<UNK>"

// elidedField is the CSV rendering of a numeric field omitted on a
// TOP_OF_BOOK elimination.
const elidedField = "-"

// ErrBlankLine is returned by DecodeCSVLine for comments and blank lines,
// which the caller should simply skip rather than count as a protocol
// error.
var ErrBlankLine = fmt.Errorf("wire: blank or comment line")

// DecodeCSVLine parses one line of the text input protocol into a
// engine.Request. Leading/trailing whitespace around the line and each
// field is trimmed. Lines that are empty or start with '#' return
// ErrBlankLine.
func DecodeCSVLine(line string) (engine.Request, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return engine.Request{}, ErrBlankLine
	}

	fields := splitCSV(line)
	if len(fields) == 0 {
		return engine.Request{}, ErrBlankLine
	}

	switch fields[0] {
	case "N":
		return decodeNewOrder(fields)
	case "C":
		return decodeCancel(fields)
	case "F":
		if len(fields) != 1 {
			return engine.Request{}, fmt.Errorf("wire: FLUSH takes no fields, got %d", len(fields)-1)
		}
		return engine.Request{Kind: engine.Flush}, nil
	case "Q":
		return decodeTopOfBookQuery(fields)
	default:
		return engine.Request{}, fmt.Errorf("wire: unknown input tag %q", fields[0])
	}
}

func decodeNewOrder(fields []string) (engine.Request, error) {
	if len(fields) != 7 {
		return engine.Request{}, fmt.Errorf("wire: NEW_ORDER expects 6 fields, got %d", len(fields)-1)
	}
	userID, err := parseUint32(fields[1])
	if err != nil {
		return engine.Request{}, fmt.Errorf("wire: NEW_ORDER user_id: %w", err)
	}
	price, err := parseUint32(fields[3])
	if err != nil {
		return engine.Request{}, fmt.Errorf("wire: NEW_ORDER price: %w", err)
	}
	qty, err := parseUint32(fields[4])
	if err != nil {
		return engine.Request{}, fmt.Errorf("wire: NEW_ORDER quantity: %w", err)
	}
	if qty == 0 {
		return engine.Request{}, fmt.Errorf("wire: NEW_ORDER quantity must be > 0")
	}
	side, err := decodeSide(fields[5])
	if err != nil {
		return engine.Request{}, fmt.Errorf("wire: NEW_ORDER side: %w", err)
	}
	userOrderID, err := parseUint32(fields[6])
	if err != nil {
		return engine.Request{}, fmt.Errorf("wire: NEW_ORDER user_order_id: %w", err)
	}

	return engine.Request{
		Kind:        engine.NewOrder,
		UserID:      userID,
		UserOrderID: userOrderID,
		Symbol:      decodeSymbol(fields[2]),
		Price:       price,
		Quantity:    qty,
		Side:        side,
	}, nil
}

func decodeCancel(fields []string) (engine.Request, error) {
	if len(fields) != 3 {
		return engine.Request{}, fmt.Errorf("wire: CANCEL expects 2 fields, got %d", len(fields)-1)
	}
	userID, err := parseUint32(fields[1])
	if err != nil {
		return engine.Request{}, fmt.Errorf("wire: CANCEL user_id: %w", err)
	}
	userOrderID, err := parseUint32(fields[2])
	if err != nil {
		return engine.Request{}, fmt.Errorf("wire: CANCEL user_order_id: %w", err)
	}
	return engine.Request{Kind: engine.Cancel, UserID: userID, UserOrderID: userOrderID}, nil
}

func decodeTopOfBookQuery(fields []string) (engine.Request, error) {
	if len(fields) != 2 {
		return engine.Request{}, fmt.Errorf("wire: TOP_OF_BOOK_QUERY expects 1 field, got %d", len(fields)-1)
	}
	return engine.Request{Kind: engine.TopOfBookQuery, Symbol: decodeSymbol(fields[1])}, nil
}

// EncodeCSVLine renders a single engine.Response as one line of the text
// output protocol, with no trailing newline.
func EncodeCSVLine(r engine.Response) string {
	switch r.Kind {
	case engine.Ack:
		return fmt.Sprintf("A,%d,%d,%s", r.UserID, r.UserOrderID, encodeSymbol(r.Symbol))
	case engine.CancelAck:
		return fmt.Sprintf("X,%d,%d,%s", r.UserID, r.UserOrderID, encodeSymbol(r.Symbol))
	case engine.Trade:
		return fmt.Sprintf("T,%s,%d,%d,%d,%d,%d,%d",
			encodeSymbol(r.Symbol), r.BuyUserID, r.BuyUserOrderID, r.SellUserID, r.SellUserOrderID, r.Price, r.Quantity)
	case engine.TopOfBook:
		if r.Price == 0 && r.Quantity == 0 {
			return fmt.Sprintf("B,%s,%s,%s,%s", encodeSymbol(r.Symbol), encodeSide(r.Side), elidedField, elidedField)
		}
		return fmt.Sprintf("B,%s,%s,%d,%d", encodeSymbol(r.Symbol), encodeSide(r.Side), r.Price, r.Quantity)
	default:
		panic(fmt.Sprintf("wire: unknown response kind %d", r.Kind))
	}
}

func decodeSide(field string) (engine.Side, error) {
	switch field {
	case "B":
		return engine.Buy, nil
	case "S":
		return engine.Sell, nil
	default:
		return 0, fmt.Errorf("invalid side %q", field)
	}
}

func encodeSide(s engine.Side) string {
	if s == engine.Buy {
		return "B"
	}
	return "S"
}

func decodeSymbol(field string) symbol.Symbol {
	if field == unknownToken {
		return symbol.Unknown
	}
	return symbol.Pack(field)
}

func encodeSymbol(s symbol.Symbol) string {
	if s.IsUnknown() {
		return unknownToken
	}
	return s.String()
}

func parseUint32(field string) (uint32, error) {
	n, err := strconv.ParseUint(field, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

// splitCSV splits on commas and trims whitespace from each field,
// matching the "comma-separated, trimmed whitespace" wire contract.
func splitCSV(line string) []string {
	raw := strings.Split(line, ",")
	fields := make([]string, len(raw))
	for i, f := range raw {
		fields[i] = strings.TrimSpace(f)
	}
	return fields
}
