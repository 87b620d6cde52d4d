package transport

import (
	"context"
	"net"
	"time"

	"golang.org/x/net/netutil"
	"golang.org/x/sync/semaphore"
)

// Listener accepts TCP connections for an RPC server, bounding how many it
// hands off to the application concurrently (the §5 worker-pool pattern:
// independent peers run on independent goroutines, never sharing one
// Conn). Unlike a SO_REUSEPORT deployment with one listening socket per
// worker thread, this single-process Listener multiplexes one socket
// across a bounded goroutine pool via a semaphore — the concurrency limit
// the source's SO_REUSEPORT workers would have enforced via the kernel's
// own load balancing, reproduced here as an explicit gate since Go's
// listener accept loop is already single-threaded per net.Listener.
type Listener struct {
	ln   net.Listener
	sem  *semaphore.Weighted
	stop chan struct{}
}

// Listen opens addr and returns a Listener that never admits more than
// maxConns concurrently-handled connections. maxConns <= 0 means
// unlimited (equivalent to a bare net.Listener).
func Listen(addr string, maxConns int) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	return &Listener{
		ln:   ln,
		sem:  semaphore.NewWeighted(int64(maxOrUnlimited(maxConns))),
		stop: make(chan struct{}),
	}, nil
}

func maxOrUnlimited(n int) int {
	if n <= 0 {
		return 1 << 30
	}
	return n
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Serve accepts connections until Shutdown is called or accept fails,
// invoking handle(conn) in its own goroutine for each one gated by the
// listener's semaphore. It polls the stop flag every 100ms around Accept,
// matching the source's shutdown-polling loop shape.
func (l *Listener) Serve(ctx context.Context, handle func(net.Conn)) error {
	type acceptResult struct {
		conn net.Conn
		err  error
	}
	results := make(chan acceptResult)
	go func() {
		for {
			conn, err := l.ln.Accept()
			select {
			case results <- acceptResult{conn, err}:
			case <-l.stop:
				if conn != nil {
					conn.Close()
				}
				return
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case r := <-results:
			if r.err != nil {
				select {
				case <-l.stop:
					return nil
				default:
					return r.err
				}
			}
			if tc, ok := r.conn.(*net.TCPConn); ok {
				tc.SetNoDelay(true)
			}
			if err := l.sem.Acquire(ctx, 1); err != nil {
				r.conn.Close()
				return err
			}
			go func(c net.Conn) {
				defer l.sem.Release(1)
				handle(c)
			}(r.conn)
		case <-ticker.C:
			// Wake up periodically so Shutdown is observed promptly even
			// while the accept goroutine above is still blocked in Accept.
		}
	}
}

// Shutdown stops Serve's accept loop and closes the underlying listener.
func (l *Listener) Shutdown() error {
	close(l.stop)
	return l.ln.Close()
}
