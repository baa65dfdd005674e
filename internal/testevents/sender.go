package testevents

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/okian/pss/pkg/logger"
)

// Sender writes datagrams to a PSS receiver at a fixed rate.
type Sender struct {
	conn net.Conn
	rate int
	log  logger.Logger
}

// Dial connects a UDP sender to addr. rate is datagrams per second; 0 is unthrottled.
func Dial(addr string, rate int) (*Sender, error) {
	conn, err := net.Dial("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Sender{conn: conn, rate: rate, log: logger.Get().Named("sender")}, nil
}

// Send writes every datagram in order and returns how many were written.
// It stops early when ctx is done.
func (s *Sender) Send(ctx context.Context, datagrams [][]byte) (int, error) {
	var tick <-chan time.Time
	if s.rate > 0 {
		t := time.NewTicker(time.Second / time.Duration(s.rate))
		defer t.Stop()
		tick = t.C
	}

	sent := 0
	for i, d := range datagrams {
		if tick != nil && i > 0 {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return sent, err
		}
		if _, err := s.conn.Write(d); err != nil {
			s.log.Debug(ctx, "write failed", logger.Int("index", i), logger.Error(err))
			return sent, fmt.Errorf("write datagram %d: %w", i, err)
		}
		sent++
	}
	return sent, nil
}

// Close releases the socket.
func (s *Sender) Close() error {
	return s.conn.Close()
}
