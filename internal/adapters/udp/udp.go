// Package udp receives PSS datagrams on an IPv4 socket and feeds them to the
// ingestion queue.
package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/pss/internal/adapters/mq/queue"
	"github.com/okian/pss/internal/domain/model"
	"github.com/okian/pss/pkg/logger"
	"github.com/okian/pss/pkg/metrics"
)

const (
	defaultBind        = "0.0.0.0"
	defaultPort        = 6000
	defaultReadBuffer  = 2 << 20
	defaultMaxDatagram = 65535
	readPollInterval   = 100 * time.Millisecond
)

// Sink accepts decoded messages.
type Sink interface {
	Enqueue(ctx context.Context, m queue.Message) bool
}

// Counter receives transport-level counts.
type Counter interface {
	RecordDatagram()
	RecordDecodeError()
}

// Receiver owns one UDP socket.
type Receiver struct {
	sink         Sink
	stats        Counter
	bind         string
	iface        string
	port         int
	readBuffer   int
	maxDatagram  int
	encoding     string
	connected    string
	disconnected string
	decoder      *Decoder
	now          func() time.Time

	mu       sync.Mutex
	conn     *net.UDPConn
	running  atomic.Bool
	shutdown chan struct{}
	done     chan struct{}

	received     atomic.Int64
	decodeErrors atomic.Int64

	logger logger.Logger
}

// New creates a receiver. The encoding is resolved eagerly.
func New(sink Sink, opts ...Option) (*Receiver, error) {
	r := &Receiver{
		sink:         sink,
		bind:         defaultBind,
		port:         defaultPort,
		readBuffer:   defaultReadBuffer,
		maxDatagram:  defaultMaxDatagram,
		connected:    model.CodeConnected,
		disconnected: model.CodeDisconnected,
		now:          time.Now,
		logger:       logger.Get().Named("udp"),
	}
	for _, opt := range opts {
		opt(r)
	}

	dec, err := NewDecoder(r.encoding)
	if err != nil {
		return nil, err
	}
	r.decoder = dec
	return r, nil
}

// Start binds the socket and begins reading. Bind failures wrap ErrBind.
func (r *Receiver) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running.Load() {
		return nil
	}

	addr, err := r.resolve()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBind, err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBind, addr, err)
	}
	if err := conn.SetReadBuffer(r.readBuffer); err != nil {
		r.logger.Warn(ctx, "could not set socket read buffer", logger.Int("bytes", r.readBuffer), logger.Error(err))
	}

	r.conn = conn
	r.shutdown = make(chan struct{})
	r.done = make(chan struct{})
	r.running.Store(true)

	r.logger.Info(ctx, "listening",
		logger.String("addr", conn.LocalAddr().String()),
		logger.String("encoding", r.decoder.Name()),
	)

	go func() {
		defer close(r.done)
		r.readLoop(ctx, conn)
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (r *Receiver) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Received returns how many datagrams were accepted.
func (r *Receiver) Received() int64 { return r.received.Load() }

// DecodeErrors returns how many datagrams were dropped as undecodable.
func (r *Receiver) DecodeErrors() int64 { return r.decodeErrors.Load() }

// Stop closes the socket and waits for the read loop to exit.
func (r *Receiver) Stop(timeout time.Duration) error {
	if !r.running.CompareAndSwap(true, false) {
		return nil
	}

	r.mu.Lock()
	close(r.shutdown)
	_ = r.conn.Close()
	done := r.done
	r.mu.Unlock()

	select {
	case <-done:
	case <-time.After(timeout):
		return fmt.Errorf("%w after %v", ErrStopTimeout, timeout)
	}

	r.mu.Lock()
	r.conn = nil
	r.mu.Unlock()
	return nil
}

func (r *Receiver) resolve() (*net.UDPAddr, error) {
	if r.iface == "" {
		ip := net.ParseIP(r.bind)
		if ip == nil || ip.To4() == nil {
			return nil, fmt.Errorf("bind address %q is not IPv4", r.bind)
		}
		return &net.UDPAddr{IP: ip.To4(), Port: r.port}, nil
	}

	ifc, err := net.InterfaceByName(r.iface)
	if err != nil {
		return nil, err
	}
	addrs, err := ifc.Addrs()
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		if n, ok := a.(*net.IPNet); ok && n.IP.To4() != nil {
			return &net.UDPAddr{IP: n.IP.To4(), Port: r.port}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoIPv4, r.iface)
}

func (r *Receiver) readLoop(ctx context.Context, conn *net.UDPConn) {
	buf := make([]byte, r.maxDatagram)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.shutdown:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(readPollInterval))
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) || !r.running.Load() {
				return
			}
			metrics.RecordSocketError()
			r.logger.Warn(ctx, "socket read failed", logger.Error(err))
			continue
		}

		r.handle(ctx, buf[:n], from)
	}
}

func (r *Receiver) handle(ctx context.Context, data []byte, from *net.UDPAddr) {
	now := r.now()
	r.received.Add(1)
	metrics.RecordDatagram(len(data), now.Unix())
	if r.stats != nil {
		r.stats.RecordDatagram()
	}

	text, err := r.decoder.Decode(data)
	if err != nil {
		r.decodeErrors.Add(1)
		metrics.RecordDecodeError()
		if r.stats != nil {
			r.stats.RecordDecodeError()
		}
		r.logger.Debug(ctx, "datagram dropped", logger.Int("bytes", len(data)), logger.Error(err))
		return
	}

	msg := queue.Message{Text: text, ReceivedAt: now}
	if from != nil {
		msg.Source = from.String()
	}
	if code, ok := r.sentinel(text); ok {
		msg.Text = code
		msg.Sentinel = true
	}
	r.sink.Enqueue(ctx, msg)
}

// sentinel maps the hardware's connection markers onto the zero-field
// connection event codes.
func (r *Receiver) sentinel(text string) (string, bool) {
	t := strings.TrimSuffix(strings.TrimSpace(text), ";")
	switch {
	case strings.EqualFold(t, r.connected):
		return model.CodeConnected, true
	case strings.EqualFold(t, r.disconnected):
		return model.CodeDisconnected, true
	}
	return "", false
}
