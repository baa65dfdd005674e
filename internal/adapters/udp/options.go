package udp

import (
	"time"

	"github.com/okian/pss/pkg/logger"
)

// Option applies a configuration option to the Receiver.
type Option func(*Receiver)

// WithBind sets the IPv4 address to bind.
func WithBind(addr string) Option {
	return func(r *Receiver) {
		if addr != "" {
			r.bind = addr
		}
	}
}

// WithInterface binds the first IPv4 address of the named interface.
// It takes precedence over WithBind.
func WithInterface(name string) Option {
	return func(r *Receiver) { r.iface = name }
}

// WithPort sets the UDP port. Zero picks an ephemeral port.
func WithPort(port int) Option {
	return func(r *Receiver) {
		if port >= 0 {
			r.port = port
		}
	}
}

// WithReadBuffer sets the socket receive buffer in bytes.
func WithReadBuffer(n int) Option {
	return func(r *Receiver) {
		if n > 0 {
			r.readBuffer = n
		}
	}
}

// WithMaxDatagramSize sets the read buffer for a single datagram.
func WithMaxDatagramSize(n int) Option {
	return func(r *Receiver) {
		if n > 0 {
			r.maxDatagram = n
		}
	}
}

// WithEncoding sets the charset used to decode datagrams.
func WithEncoding(name string) Option {
	return func(r *Receiver) { r.encoding = name }
}

// WithSentinels sets the marker strings the hardware sends on connection changes.
func WithSentinels(connected, disconnected string) Option {
	return func(r *Receiver) {
		if connected != "" {
			r.connected = connected
		}
		if disconnected != "" {
			r.disconnected = disconnected
		}
	}
}

// WithStats attaches transport counters.
func WithStats(c Counter) Option {
	return func(r *Receiver) { r.stats = c }
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Receiver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the receive timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Receiver) {
		if now != nil {
			r.now = now
		}
	}
}
