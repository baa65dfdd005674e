package repository

import (
	"context"

	"github.com/okian/pss/internal/adapters/mq/hub"
	"github.com/okian/pss/pkg/logger"
	"github.com/okian/pss/pkg/metrics"
)

// Persister drains a hub subscription into the store.
type Persister struct {
	store *Store
	sub   *hub.Subscription
	done  chan struct{}
	log   logger.Logger
}

// NewPersister binds a store to a subscription.
func NewPersister(store *Store, sub *hub.Subscription) *Persister {
	return &Persister{
		store: store,
		sub:   sub,
		done:  make(chan struct{}),
		log:   logger.Get().Named("persister"),
	}
}

// Run writes envelopes until the subscription closes or ctx is canceled.
func (p *Persister) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-p.sub.C():
			if !ok {
				return
			}
			p.write(ctx, env)
		}
	}
}

// Done is closed when Run returns.
func (p *Persister) Done() <-chan struct{} { return p.done }

func (p *Persister) write(ctx context.Context, env hub.Envelope) { //nolint:gocritic // hugeParam: envelopes arrive by value
	var (
		op  string
		err error
	)
	switch env.Kind {
	case hub.KindEvent:
		op, err = "save_event", p.store.SaveEvent(ctx, env.Event)
	case hub.KindMatchDelta:
		op, err = "save_match_snapshot", p.store.SaveMatchSnapshot(ctx, *env.Delta)
	case hub.KindUnknown:
		op, err = "upsert_unknown", p.store.UpsertUnknown(ctx, *env.Unknown)
	default:
		return
	}
	if err != nil {
		metrics.RecordStoreError(op)
		p.log.Error(ctx, "store write failed", logger.String("op", op), logger.Error(err))
	}
}
