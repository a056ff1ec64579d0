package main

import (
	"bufio"
	"fmt"
	"net"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"venue/internal/config"
	"venue/internal/engine"
	"venue/internal/symbol"
	"venue/internal/wire"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatal().Err(err).Msg("client exited with error")
	}
}

func newRootCommand() *cobra.Command {
	var serverAddr string
	var protocol string

	root := &cobra.Command{
		Use:   "venue-client",
		Short: "Sends order-entry requests to a venue server and prints the responses it hears back.",
	}
	root.PersistentFlags().StringVar(&serverAddr, "server", "127.0.0.1:7890", "order-entry server address")
	root.PersistentFlags().StringVar(&protocol, "protocol", string(config.ProtocolBinary), "wire protocol: csv|binary")

	root.AddCommand(newPlaceCommand(&serverAddr, &protocol))
	root.AddCommand(newCancelCommand(&serverAddr, &protocol))
	root.AddCommand(newFlushCommand(&serverAddr, &protocol))
	root.AddCommand(newQueryCommand(&serverAddr, &protocol))
	return root
}

func newPlaceCommand(serverAddr, protocol *string) *cobra.Command {
	var userID, userOrderID uint32
	var symbolText, side string
	var price, quantity uint32

	cmd := &cobra.Command{
		Use:   "place",
		Short: "Place a new limit or market order (price 0 means MARKET).",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := parseSide(side)
			if err != nil {
				return err
			}
			return sendOneShot(*serverAddr, *protocol, engine.Request{
				Kind:        engine.NewOrder,
				UserID:      userID,
				UserOrderID: userOrderID,
				Symbol:      symbol.Pack(symbolText),
				Price:       price,
				Quantity:    quantity,
				Side:        s,
			})
		},
	}

	flags := cmd.Flags()
	flags.Uint32Var(&userID, "user", 0, "user id")
	flags.Uint32Var(&userOrderID, "order-id", 0, "user order id")
	flags.StringVar(&symbolText, "symbol", "", "ticker symbol, up to 8 chars")
	flags.StringVar(&side, "side", "buy", "buy|sell")
	flags.Uint32Var(&price, "price", 0, "limit price, or 0 for a MARKET order")
	flags.Uint32Var(&quantity, "qty", 0, "quantity, must be > 0")
	return cmd
}

func newCancelCommand(serverAddr, protocol *string) *cobra.Command {
	var userID, userOrderID uint32

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a resting order by (user, user-order-id).",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendOneShot(*serverAddr, *protocol, engine.Request{
				Kind: engine.Cancel, UserID: userID, UserOrderID: userOrderID,
			})
		},
	}
	cmd.Flags().Uint32Var(&userID, "user", 0, "user id")
	cmd.Flags().Uint32Var(&userOrderID, "order-id", 0, "user order id")
	return cmd
}

func newFlushCommand(serverAddr, protocol *string) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Clear every book on the server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendOneShot(*serverAddr, *protocol, engine.Request{Kind: engine.Flush})
		},
	}
}

func newQueryCommand(serverAddr, protocol *string) *cobra.Command {
	var symbolText string

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Ask for the current top of book for a symbol.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if *protocol != string(config.ProtocolCSV) {
				return fmt.Errorf("client: TOP_OF_BOOK_QUERY is only available over the CSV protocol")
			}
			return sendOneShot(*serverAddr, *protocol, engine.Request{
				Kind: engine.TopOfBookQuery, Symbol: symbol.Pack(symbolText),
			})
		},
	}
	cmd.Flags().StringVar(&symbolText, "symbol", "", "ticker symbol, up to 8 chars")
	return cmd
}

func parseSide(s string) (engine.Side, error) {
	switch s {
	case "buy", "B", "b":
		return engine.Buy, nil
	case "sell", "S", "s":
		return engine.Sell, nil
	default:
		return 0, fmt.Errorf("client: unknown side %q", s)
	}
}

// sendOneShot dials the server, writes req, then prints every response
// line it hears back until the connection closes.
func sendOneShot(serverAddr, protocol string, req engine.Request) error {
	conn, err := net.Dial("tcp", serverAddr)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", serverAddr, err)
	}
	defer conn.Close()

	if protocol == string(config.ProtocolCSV) {
		if _, err := fmt.Fprintln(conn, requestToCSV(req)); err != nil {
			return err
		}
	} else {
		if req.Kind == engine.TopOfBookQuery {
			return fmt.Errorf("client: TOP_OF_BOOK_QUERY has no binary encoding")
		}
		if _, err := conn.Write(wire.EncodeFrame(wire.EncodeRequest(req))); err != nil {
			return err
		}
	}

	return printResponses(conn, protocol)
}

func requestToCSV(req engine.Request) string {
	switch req.Kind {
	case engine.NewOrder:
		side := "B"
		if req.Side == engine.Sell {
			side = "S"
		}
		return fmt.Sprintf("N,%d,%s,%d,%d,%s,%d", req.UserID, req.Symbol.String(), req.Price, req.Quantity, side, req.UserOrderID)
	case engine.Cancel:
		return fmt.Sprintf("C,%d,%d", req.UserID, req.UserOrderID)
	case engine.Flush:
		return "F"
	case engine.TopOfBookQuery:
		return fmt.Sprintf("Q,%s", req.Symbol.String())
	default:
		panic("client: unknown request kind")
	}
}

func printResponses(conn net.Conn, protocol string) error {
	if protocol == string(config.ProtocolCSV) {
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			fmt.Println(scanner.Text())
		}
		return scanner.Err()
	}

	reader := bufio.NewReader(conn)
	for {
		payload, err := wire.ReadFrame(reader)
		if err != nil {
			return nil
		}
		resp, err := wire.DecodeResponse(payload)
		if err != nil {
			fmt.Fprintln(os.Stderr, "client: decode error:", err)
			continue
		}
		fmt.Println(formatResponse(resp))
	}
}

func formatResponse(r engine.Response) string {
	switch r.Kind {
	case engine.Ack:
		return fmt.Sprintf("ACK user=%d order=%d symbol=%s", r.UserID, r.UserOrderID, symbolText(r.Symbol))
	case engine.CancelAck:
		return fmt.Sprintf("CANCEL_ACK user=%d order=%d symbol=%s", r.UserID, r.UserOrderID, symbolText(r.Symbol))
	case engine.Trade:
		return fmt.Sprintf("TRADE symbol=%s buy=%d/%d sell=%d/%d price=%d qty=%d",
			symbolText(r.Symbol), r.BuyUserID, r.BuyUserOrderID, r.SellUserID, r.SellUserOrderID, r.Price, r.Quantity)
	case engine.TopOfBook:
		if r.Price == 0 && r.Quantity == 0 {
			return fmt.Sprintf("TOP_OF_BOOK symbol=%s side=%s ELIMINATED", symbolText(r.Symbol), r.Side)
		}
		return fmt.Sprintf("TOP_OF_BOOK symbol=%s side=%s price=%d qty=%d", symbolText(r.Symbol), r.Side, r.Price, r.Quantity)
	default:
		return "unknown response"
	}
}

func symbolText(s symbol.Symbol) string {
	if s.IsUnknown() {
		return "<UNK>"
	}
	return s.String()
}
