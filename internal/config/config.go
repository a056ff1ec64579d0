// Package config holds the small set of knobs the server and client
// binaries expose as cobra flags. There is no file-based configuration
// or environment-variable layering in scope — this is intentionally thin
// glue over the flag set, not a configuration framework.
package config

import "fmt"

// Protocol selects which wire encoding a listener or client speaks.
type Protocol string

const (
	ProtocolCSV    Protocol = "csv"
	ProtocolBinary Protocol = "binary"
)

func (p Protocol) Validate() error {
	switch p {
	case ProtocolCSV, ProtocolBinary:
		return nil
	default:
		return fmt.Errorf("config: unknown protocol %q (want %q or %q)", p, ProtocolCSV, ProtocolBinary)
	}
}

// Config is the full set of tunables for cmd/server.
type Config struct {
	// ListenAddr is the TCP address the order-entry listener binds.
	ListenAddr string

	// MulticastGroup and MulticastPort address the UDP multicast
	// market-data sink.
	MulticastGroup string
	MulticastPort  int

	// MarketDataAddr is the TCP address the supplemental WebSocket
	// market-data feed binds, empty to disable it.
	MarketDataAddr string

	// MetricsAddr is the TCP address /metrics is served from, empty to
	// disable it.
	MetricsAddr string

	// WorkerPoolSize bounds concurrent order-entry connections.
	WorkerPoolSize int

	// InboundQueueDepth bounds the engine's single inbound channel.
	InboundQueueDepth int

	// Protocol selects CSV or binary framing for the order-entry listener.
	Protocol Protocol
}

// Default returns the configuration cmd/server falls back to when no
// flags override it.
func Default() Config {
	return Config{
		ListenAddr:        ":7890",
		MulticastGroup:    "239.0.0.1",
		MulticastPort:     7891,
		MarketDataAddr:    ":7892",
		MetricsAddr:       ":7893",
		WorkerPoolSize:    32,
		InboundQueueDepth: 4096,
		Protocol:          ProtocolBinary,
	}
}
