package transport

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venue/internal/config"
	"venue/internal/engine"
)

type fakeMulticastSink struct {
	sent [][]byte
}

func (f *fakeMulticastSink) Send(payload []byte) {
	f.sent = append(f.sent, payload)
}

func startTestServer(t *testing.T, protocol config.Protocol) (addr string, sink *fakeMulticastSink, stop func()) {
	t.Helper()

	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.WorkerPoolSize = 4
	cfg.InboundQueueDepth = 64
	cfg.Protocol = protocol

	eng := engine.New()
	sink = &fakeMulticastSink{}
	srv := New(cfg, eng, sink, nil)

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	require.NoError(t, err)
	addr = listener.Addr().String()
	listener.Close()
	srv.cfg.ListenAddr = addr

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()

	// Give the listener a moment to bind before the test dials it.
	time.Sleep(50 * time.Millisecond)

	return addr, sink, func() {
		cancel()
		<-done
	}
}

func TestServerCSVRoundTripSingleMatch(t *testing.T) {
	addr, _, stop := startTestServer(t, config.ProtocolCSV)
	defer stop()

	buyer, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer buyer.Close()

	seller, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer seller.Close()

	_, err = buyer.Write([]byte("N,1,IBM,100,50,B,1\n"))
	require.NoError(t, err)

	buyerReader := bufio.NewReader(buyer)
	line, err := buyerReader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "A,1,1,IBM\n", line)

	_, err = seller.Write([]byte("N,2,IBM,100,50,S,1\n"))
	require.NoError(t, err)

	sellerReader := bufio.NewReader(seller)
	ack, err := sellerReader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "A,2,1,IBM\n", ack)

	trade, err := sellerReader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "T,IBM,1,1,2,1,100,50\n", trade)

	buyerTrade, err := buyerReader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "T,IBM,1,1,2,1,100,50\n", buyerTrade)
}
