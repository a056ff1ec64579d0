package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	tomb "gopkg.in/tomb.v2"

	"venue/internal/config"
	"venue/internal/engine"
	"venue/internal/metrics"
	"venue/internal/transport"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
}

func newRootCommand() *cobra.Command {
	cfg := config.Default()
	var protocol string

	cmd := &cobra.Command{
		Use:   "venue-server",
		Short: "Runs the matching engine's order-entry, multicast, and market-data listeners.",
		RunE: func(cmd *cobra.Command, args []string) error {
			proto := config.Protocol(protocol)
			if err := proto.Validate(); err != nil {
				return err
			}
			cfg.Protocol = proto
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "order-entry TCP listen address")
	flags.StringVar(&cfg.MulticastGroup, "multicast-group", cfg.MulticastGroup, "market-data multicast group")
	flags.IntVar(&cfg.MulticastPort, "multicast-port", cfg.MulticastPort, "market-data multicast port")
	flags.StringVar(&cfg.MarketDataAddr, "marketdata-listen", cfg.MarketDataAddr, "supplemental WebSocket market-data listen address, empty to disable")
	flags.StringVar(&cfg.MetricsAddr, "metrics-listen", cfg.MetricsAddr, "Prometheus /metrics listen address, empty to disable")
	flags.IntVar(&cfg.WorkerPoolSize, "workers", cfg.WorkerPoolSize, "order-entry connection worker pool size")
	flags.IntVar(&cfg.InboundQueueDepth, "queue-depth", cfg.InboundQueueDepth, "engine inbound queue depth")
	flags.StringVar(&protocol, "protocol", string(cfg.Protocol), "order-entry wire protocol: csv|binary")

	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	eng := engine.New()

	mcast, err := transport.NewMulticast(cfg.MulticastGroup, cfg.MulticastPort)
	if err != nil {
		return err
	}
	defer mcast.Close()

	// marketDataSink stays a nil interface value (not a nil-but-typed
	// *MarketDataHub) when the feed is disabled, so transport.Server's
	// "!= nil" check in its publish path works correctly.
	var marketDataSink transport.MarketDataSink
	if cfg.MarketDataAddr != "" {
		hub := transport.NewMarketDataHub()
		marketDataSink = hub
		go func() {
			if err := hub.Serve(ctx, cfg.MarketDataAddr); err != nil {
				log.Error().Err(err).Msg("market data server exited")
			}
		}()
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				log.Error().Err(err).Msg("metrics server exited")
			}
		}()
	}

	t, ctx := tomb.WithContext(ctx)
	mcast.Start(t)

	srv := transport.New(cfg, eng, mcast, marketDataSink)
	t.Go(func() error {
		return srv.Run(ctx)
	})

	log.Info().Msg("venue server running")
	<-ctx.Done()
	t.Kill(nil)
	return t.Wait()
}
