// Package service assembles the ingestion engine: the UDP receiver, the
// classification pipeline, match tracking, fan-out sinks and the operator API.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/okian/pss/internal/adapters/http/api"
	"github.com/okian/pss/internal/adapters/http/swagger"
	"github.com/okian/pss/internal/adapters/mq/hub"
	"github.com/okian/pss/internal/adapters/mq/queue"
	"github.com/okian/pss/internal/adapters/mq/worker"
	"github.com/okian/pss/internal/adapters/push"
	"github.com/okian/pss/internal/adapters/repository"
	"github.com/okian/pss/internal/adapters/udp"
	"github.com/okian/pss/internal/config"
	"github.com/okian/pss/internal/domain/catalog"
	"github.com/okian/pss/internal/domain/matchstate"
	"github.com/okian/pss/internal/domain/registry"
	"github.com/okian/pss/internal/domain/stats"
	"github.com/okian/pss/pkg/logger"
)

const (
	receiverStopTimeout = time.Second
	natsClientName      = "pss-engine"
)

// Service owns every component of a running engine.
type Service struct {
	mu sync.Mutex

	cfg      *config.Config
	natsConn push.Conn

	// Core components
	store     *repository.Store
	registry  *registry.Registry
	queue     *queue.InMemoryQueue
	hub       *hub.Hub
	tracker   *matchstate.Tracker
	catalog   *catalog.Catalog
	stats     *stats.Aggregator
	receiver  *udp.Receiver
	pipeline  *worker.Pipeline
	persister *repository.Persister
	nats      *push.NATSPublisher
	api       *api.Server
	ws        *push.WebSocket
	stopWatch func()

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. The default is config.New().
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithNATSConn enables the NATS publisher on an existing connection
// instead of dialing cfg.NATSURL.
func WithNATSConn(conn push.Conn) Option {
	return func(s *Service) { s.natsConn = conn }
}

// New constructs a Service. Components are built by Start.
func New(opts ...Option) *Service {
	s := &Service{cfg: config.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds and starts every component. A bind failure is returned
// wrapping udp.ErrBind and leaves nothing running.
func (s *Service) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	defer func() {
		if err != nil {
			s.teardown(ctx)
		}
	}()

	s.logger.Info(ctx, "starting pss engine...")

	if s.cfg.DBPath != "" {
		if s.store, err = repository.Open(ctx, s.cfg.DBPath); err != nil {
			return fmt.Errorf("open store: %w", err)
		}
	}

	if err = s.startRegistry(ctx); err != nil {
		return err
	}

	s.stats = stats.New(
		stats.WithTopN(s.cfg.TopErrors),
		stats.WithErrorCapacity(s.cfg.ErrorTrackingCapacity),
	)
	s.queue = queue.NewInMemoryQueue(
		queue.WithCapacity(s.cfg.QueueSize),
		queue.WithDropHook(func() { s.stats.RecordQueueDrops(1) }),
	)
	s.hub = hub.New(hub.WithBuffer(s.cfg.HubBuffer))
	s.tracker = matchstate.New(
		matchstate.WithOverrideBufferSize(s.cfg.OverrideBufferSize),
		matchstate.WithHitLevelHistory(s.cfg.HitLevelHistory),
		matchstate.WithPublisher(s.hub.PublishDelta),
	)

	if err = s.startCatalog(ctx); err != nil {
		return err
	}

	s.pipeline = worker.NewPipeline(s.queue, s.registry,
		worker.WithProtocolVersion(s.cfg.ProtocolVersion),
		worker.WithTracker(s.tracker),
		worker.WithCatalog(s.catalog),
		worker.WithStats(s.stats),
		worker.WithPublisher(s.hub),
	)

	if err = s.startSinks(ctx); err != nil {
		return err
	}

	s.ws = push.NewWebSocket(s.hub, push.WithInitialState(s.tracker.Snapshot))
	apiOpts := []api.Option{
		api.WithStats(s.stats),
		api.WithCatalog(s.catalog),
		api.WithTracker(s.tracker),
		api.WithRegistry(s.registry),
		api.WithWebSocket(s.ws),
		api.WithTopErrors(s.cfg.TopErrors),
	}
	if s.store != nil {
		apiOpts = append(apiOpts, api.WithStore(s.store))
	}
	s.api = api.NewServer(apiOpts...)

	// Sinks and the pipeline outlive ctx so shutdown can drain them.
	background := context.WithoutCancel(ctx)
	s.pipeline.Start(background)

	s.receiver, err = udp.New(s.queue,
		udp.WithBind(s.cfg.UDPBind),
		udp.WithInterface(s.cfg.UDPInterface),
		udp.WithPort(s.cfg.UDPPort),
		udp.WithReadBuffer(s.cfg.UDPReadBuffer),
		udp.WithMaxDatagramSize(s.cfg.MaxDatagramSize),
		udp.WithEncoding(s.cfg.TextEncoding),
		udp.WithSentinels(s.cfg.ConnectedSentinel, s.cfg.DisconnectedSentinel),
		udp.WithStats(s.stats),
	)
	if err != nil {
		return fmt.Errorf("create receiver: %w", err)
	}
	if err = s.receiver.Start(ctx); err != nil {
		return err
	}

	s.started = true
	s.logger.Info(ctx, "pss engine started",
		logger.String("udp", s.receiver.Addr().String()),
		logger.String("protocol_version", s.cfg.ProtocolVersion),
		logger.Int("queue_size", s.cfg.QueueSize),
		logger.Bool("persistence", s.store != nil),
		logger.Bool("nats", s.nats != nil),
		logger.String("session_id", s.stats.SessionID()),
	)
	return nil
}

func (s *Service) startRegistry(ctx context.Context) error {
	var sources []registry.Source
	if s.cfg.GrammarPath != "" {
		sources = append(sources, registry.FileSource{Path: s.cfg.GrammarPath})
	} else {
		sources = append(sources, registry.DefaultSource{})
	}
	if s.store != nil {
		sources = append(sources, registry.StoreSource{Store: s.store})
	}
	s.registry = registry.New(registry.WithSources(sources...))
	if _, err := s.registry.Reload(ctx); err != nil {
		return fmt.Errorf("load grammar: %w", err)
	}

	if s.cfg.WatchGrammar && s.cfg.GrammarPath != "" {
		stop, err := s.registry.WatchFile(context.WithoutCancel(ctx), s.cfg.GrammarPath)
		if err != nil {
			s.logger.Warn(ctx, "grammar hot reload disabled", logger.Error(err))
			return nil
		}
		s.stopWatch = stop
	}
	return nil
}

func (s *Service) startCatalog(ctx context.Context) error {
	opts := []catalog.Option{catalog.WithProtocolVersion(s.cfg.ProtocolVersion)}
	if s.store != nil {
		opts = append(opts, catalog.WithPromotion(s.store, s.registry))
	}
	s.catalog = catalog.New(opts...)
	if s.store == nil {
		return nil
	}
	recs, err := s.store.ListUnknowns(ctx, 0)
	if err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	s.catalog.Seed(recs)
	return nil
}

func (s *Service) startSinks(ctx context.Context) error {
	background := context.WithoutCancel(ctx)

	if s.store != nil {
		s.persister = repository.NewPersister(s.store, s.hub.Subscribe("store"))
		go s.persister.Run(background)
	}

	conn := s.natsConn
	if conn == nil && s.cfg.NATSURL != "" {
		nc, err := push.DialNATS(s.cfg.NATSURL, natsClientName)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		conn = nc
	}
	if conn != nil {
		s.nats = push.NewNATSPublisher(conn, s.cfg.NATSSubject, s.hub.Subscribe("nats"))
		go s.nats.Run(background)
	}
	return nil
}

// Shutdown stops intake, drains accepted datagrams within the configured
// drain timeout, flushes the sinks and closes the store.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping pss engine...")
	err := s.teardown(ctx)
	s.started = false
	s.logger.Info(ctx, "pss engine stopped")
	return err
}

// teardown releases whatever Start managed to build.
func (s *Service) teardown(ctx context.Context) error {
	var errs []error

	if s.receiver != nil {
		if err := s.receiver.Stop(receiverStopTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.pipeline != nil {
		drainCtx, cancel := context.WithTimeout(ctx, s.cfg.DrainTimeout())
		err := s.pipeline.Shutdown(drainCtx)
		cancel()
		if err != nil && !errors.Is(err, worker.ErrNotRunning) {
			errs = append(errs, err)
		}
	}
	if s.stopWatch != nil {
		s.stopWatch()
		s.stopWatch = nil
	}
	if s.hub != nil {
		s.hub.Close()
		s.waitSinks(ctx)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) waitSinks(ctx context.Context) {
	var done []<-chan struct{}
	if s.persister != nil {
		done = append(done, s.persister.Done())
	}
	if s.nats != nil {
		done = append(done, s.nats.Done())
	}
	for _, ch := range done {
		select {
		case <-ch:
		case <-ctx.Done():
			s.logger.Warn(ctx, "sink did not flush before shutdown deadline")
			return
		}
	}
}

// Register attaches the operator API and its documentation to mux.
func (s *Service) Register(mux *http.ServeMux) {
	s.api.Register(mux)
	swagger.Register(mux)
}

// UDPAddr returns the bound datagram address, or nil before Start.
func (s *Service) UDPAddr() net.Addr {
	if s.receiver == nil {
		return nil
	}
	return s.receiver.Addr()
}

// Stats returns the live statistics aggregator.
func (s *Service) Stats() *stats.Aggregator { return s.stats }

// Tracker returns the match state tracker.
func (s *Service) Tracker() *matchstate.Tracker { return s.tracker }

// Catalog returns the unknown pattern catalog.
func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// Registry returns the grammar registry.
func (s *Service) Registry() *registry.Registry { return s.registry }

// Store returns the durable store, or nil when persistence is disabled.
func (s *Service) Store() *repository.Store { return s.store }

// Hub returns the fan-out hub.
func (s *Service) Hub() *hub.Hub { return s.hub }
