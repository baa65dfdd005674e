package testevents

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/pss/internal/domain/registry"
	"github.com/okian/pss/pkg/logger"
)

// Run generates the configured datagrams and sends them to cfg.Addr.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting pss datagram run",
		logger.String("addr", cfg.Addr),
		logger.String("mode", string(cfg.Mode)),
		logger.Int("count", cfg.Count),
		logger.Int("rate", cfg.Rate))

	snap, err := loadSnapshot(ctx, cfg.GrammarPath)
	if err != nil {
		return stats, err
	}

	opts := []GeneratorOption{WithProtocolVersion(cfg.ProtocolVersion)}
	if cfg.Seed != 0 {
		opts = append(opts, WithSeed(cfg.Seed))
	}
	datagrams, err := NewGenerator(snap, opts...).Datagrams(cfg.Mode, cfg.Count)
	if err != nil {
		return stats, err
	}
	stats.Generated = len(datagrams)

	sender, err := Dial(cfg.Addr, cfg.Rate)
	if err != nil {
		return stats, err
	}
	defer func() {
		if err := sender.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close sender", logger.Error(err))
		}
	}()

	stats.Sent, err = sender.Send(ctx, datagrams)
	stats.Failed = stats.Generated - stats.Sent
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(ctx, stats)
	if err != nil {
		return stats, fmt.Errorf("send failed: %w", err)
	}
	return stats, nil
}

func loadSnapshot(ctx context.Context, grammarPath string) (*registry.Snapshot, error) {
	var opts []registry.Option
	if grammarPath != "" {
		opts = append(opts, registry.WithSource(registry.FileSource{Path: grammarPath}))
	}
	snap, err := registry.New(opts...).Reload(ctx)
	if err != nil {
		return nil, fmt.Errorf("load grammar: %w", err)
	}
	return snap, nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.Sent) / stats.Duration.Seconds()
	}
	logger.Get().Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("sent", stats.Sent),
		logger.Int("failed", stats.Failed),
		logger.Duration("duration", stats.Duration),
		logger.Float64("datagrams_per_second", perSecond))
}
