package transport

import (
	"net"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 256

// ConnHandler is the per-connection work function a Pool runs. It owns
// conn for its entire lifetime — reading, decoding, and closing it —
// and returns when the connection is done, not after a single message.
type ConnHandler func(t *tomb.Tomb, conn net.Conn)

// Pool is a fixed-size, tomb-supervised pool of long-lived connection
// handlers. Unlike a short-task worker pool, each worker claims one
// connection and keeps it until the connection closes, so pool size
// bounds concurrent connections rather than throughput.
type Pool struct {
	size  int
	tasks chan net.Conn
	work  ConnHandler
}

// NewPool creates a pool of size workers, each running work against one
// connection at a time.
func NewPool(size int, work ConnHandler) *Pool {
	return &Pool{
		size:  size,
		tasks: make(chan net.Conn, taskChanSize),
		work:  work,
	}
}

// Start launches the pool's workers under t. It returns immediately;
// workers run until t begins dying.
func (p *Pool) Start(t *tomb.Tomb) {
	log.Info().Int("workers", p.size).Msg("starting connection worker pool")
	for i := 0; i < p.size; i++ {
		t.Go(func() error {
			p.worker(t)
			return nil
		})
	}
}

func (p *Pool) worker(t *tomb.Tomb) {
	for {
		select {
		case <-t.Dying():
			return
		case conn := <-p.tasks:
			p.work(t, conn)
		}
	}
}

// Submit hands conn to the pool. If every worker is busy and the task
// queue is full, Submit returns false without taking conn, rather than
// blocking the accept loop indefinitely; closing conn is then up to the
// caller.
func (p *Pool) Submit(conn net.Conn) bool {
	select {
	case p.tasks <- conn:
		return true
	default:
		return false
	}
}
