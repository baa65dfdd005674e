package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/pss/internal/adapters/mq/hub"
	"github.com/okian/pss/pkg/logger"
	"github.com/okian/pss/pkg/metrics"
)

const defaultSubject = "pss.events"

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// DialNATS connects to url with reconnects enabled.
func DialNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DrainTimeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher forwards hub envelopes to NATS subjects:
// <prefix>.event.<code>, <prefix>.match and <prefix>.unknown.
type NATSPublisher struct {
	conn   Conn
	prefix string
	sub    *hub.Subscription
	done   chan struct{}
	log    logger.Logger
}

// NewNATSPublisher binds a connection to a hub subscription.
func NewNATSPublisher(conn Conn, prefix string, sub *hub.Subscription) *NATSPublisher {
	if prefix == "" {
		prefix = defaultSubject
	}
	return &NATSPublisher{
		conn:   conn,
		prefix: prefix,
		sub:    sub,
		done:   make(chan struct{}),
		log:    logger.Get().Named("nats"),
	}
}

// Run publishes until the subscription closes or ctx is canceled, then drains.
func (p *NATSPublisher) Run(ctx context.Context) {
	defer close(p.done)
	defer func() {
		if err := p.conn.Drain(); err != nil {
			p.log.Warn(ctx, "nats drain failed", logger.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-p.sub.C():
			if !ok {
				return
			}
			p.publish(ctx, env)
		}
	}
}

// Done is closed when Run returns.
func (p *NATSPublisher) Done() <-chan struct{} { return p.done }

// Subject returns the subject an envelope is published on.
func (p *NATSPublisher) Subject(env hub.Envelope) string { //nolint:gocritic // hugeParam: envelopes arrive by value
	switch env.Kind {
	case hub.KindEvent:
		code := "unknown"
		if env.Event != nil && env.Event.EventCode != "" && validToken(env.Event.EventCode) {
			code = env.Event.EventCode
		}
		return p.prefix + ".event." + code
	case hub.KindMatchDelta:
		return p.prefix + ".match"
	default:
		return p.prefix + "." + string(env.Kind)
	}
}

func (p *NATSPublisher) publish(ctx context.Context, env hub.Envelope) { //nolint:gocritic // hugeParam: envelopes arrive by value
	data, err := json.Marshal(env)
	if err != nil {
		p.log.Error(ctx, "encode envelope", logger.Error(err))
		return
	}
	if err := p.conn.Publish(p.Subject(env), data); err != nil {
		metrics.RecordStoreError("nats_publish")
		p.log.Debug(ctx, "nats publish failed", logger.Error(err))
	}
}

// validToken reports whether s can be used as one NATS subject token.
func validToken(s string) bool {
	for _, r := range s {
		if r <= ' ' || r == '.' || r == '*' || r == '>' || r > 0x7e {
			return false
		}
	}
	return true
}
