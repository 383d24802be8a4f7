package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tokenwatch/internal/alerting"
	"tokenwatch/internal/cache"
	"tokenwatch/internal/market"
	"tokenwatch/internal/scheduler"
)

// PriceResolver is the single resolution entry point the scheduler shares
// with interactive command handlers.
type PriceResolver interface {
	Resolve(ctx context.Context, ref string, chain market.Chain, skipCache bool) (*market.Record, error)
}

// AlertStore is the slice of alert persistence the scheduler needs.
type AlertStore interface {
	GetAllActiveAlerts(ctx context.Context) ([]market.Alert, error)
	MarkAlertTriggered(ctx context.Context, id int64, at time.Time) error
}

// WatchlistStore lists the tokens the warm-up loop keeps fresh.
type WatchlistStore interface {
	ListWatchlist(ctx context.Context) ([]market.Query, error)
}

// CacheSweeper deletes expired durable cache rows.
type CacheSweeper interface {
	CleanExpiredCache(ctx context.Context) (int64, error)
}

// Options govern the three periodic loops.
type Options struct {
	AlertInterval     time.Duration
	WatchlistInterval time.Duration
	SweepInterval     time.Duration
	StartupDelay      time.Duration
}

// Service runs alert evaluation, watchlist warm-up, and cache sweeping over
// the shared resolver/cache path.
type Service struct {
	resolver  PriceResolver
	alerts    AlertStore
	watchlist WatchlistStore
	sweeper   CacheSweeper
	memory    *cache.Memory
	notifier  alerting.Notifier
	opts      Options
	logger    zerolog.Logger
	now       func() time.Time
}

// New constructs the scheduler service. watchlist, sweeper, memory, and
// notifier may each be nil; the corresponding work is skipped.
func New(res PriceResolver, alerts AlertStore, watchlist WatchlistStore, sweeper CacheSweeper, memory *cache.Memory, notifier alerting.Notifier, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		resolver:  res,
		alerts:    alerts,
		watchlist: watchlist,
		sweeper:   sweeper,
		memory:    memory,
		notifier:  notifier,
		opts:      opts,
		logger:    logger.With().Str("component", "service").Logger(),
		now:       time.Now,
	}
}

// Run starts the three loops and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	loops := []struct {
		name     string
		interval time.Duration
		tick     scheduler.TickFunc
	}{
		{"alerts", s.opts.AlertInterval, func(ctx context.Context, at time.Time) error { return s.EvaluateAlerts(ctx, at) }},
		{"watchlist", s.opts.WatchlistInterval, func(ctx context.Context, _ time.Time) error { return s.WarmWatchlist(ctx) }},
		{"cache_sweep", s.opts.SweepInterval, func(ctx context.Context, at time.Time) error { return s.SweepCache(ctx, at) }},
	}

	for _, loop := range loops {
		if loop.interval <= 0 {
			continue
		}
		sched := scheduler.New(scheduler.Options{
			Name:         loop.name,
			Interval:     loop.interval,
			StartupDelay: s.opts.StartupDelay,
		}, s.logger)

		wg.Add(1)
		go func(tick scheduler.TickFunc) {
			defer wg.Done()
			_ = sched.Run(ctx, tick)
		}(loop.tick)
	}

	wg.Wait()
	return ctx.Err()
}

// GroupAlerts buckets alerts by their (reference, chain) query key so each
// distinct token costs at most one resolution call per cycle.
func GroupAlerts(alerts []market.Alert) map[market.Query][]market.Alert {
	groups := make(map[market.Query][]market.Alert, len(alerts))
	for _, a := range alerts {
		groups[a.Query] = append(groups[a.Query], a)
	}
	return groups
}

// EvaluateAlerts runs one evaluation cycle. A resolution failure skips only
// that token-group; a delivery failure affects only its own alert. The cycle
// always completes and logs a run timestamp.
func (s *Service) EvaluateAlerts(ctx context.Context, at time.Time) error {
	started := s.now()

	alerts, err := s.alerts.GetAllActiveAlerts(ctx)
	if err != nil {
		return err
	}

	var fired, skippedGroups, deliveryFailures int
	groups := GroupAlerts(alerts)
	for q, group := range groups {
		rec, err := s.resolver.Resolve(ctx, q.Ref, q.Chain, false)
		if err != nil {
			// Silent to end users: the affected alerts are retried next cycle.
			skippedGroups++
			s.logger.Warn().Str("ref", q.Ref).Str("chain", string(q.Chain)).
				Int("alerts", len(group)).Msg("resolution failed, skipping group")
			continue
		}

		for _, alert := range group {
			if !alert.Crossed(rec.Price) {
				continue
			}
			if !alert.CooldownElapsed(s.now()) {
				continue
			}

			if s.notifier != nil {
				if err := s.notifier.Notify(ctx, alerting.Notification{Alert: alert, Record: rec}); err != nil {
					deliveryFailures++
					s.logger.Error().Err(err).Int64("alert_id", alert.ID).Msg("alert delivery failed")
					continue
				}
			}
			if err := s.alerts.MarkAlertTriggered(ctx, alert.ID, s.now()); err != nil {
				s.logger.Error().Err(err).Int64("alert_id", alert.ID).Msg("failed to stamp alert")
				continue
			}
			fired++
		}
	}

	s.logger.Info().Time("run_at", at).
		Dur("took", s.now().Sub(started)).
		Int("alerts", len(alerts)).
		Int("groups", len(groups)).
		Int("fired", fired).
		Int("skipped_groups", skippedGroups).
		Int("delivery_failures", deliveryFailures).
		Msg("alert cycle complete")
	return nil
}

// WarmWatchlist refreshes every distinct watchlist token, bypassing the
// cache so both tiers end up holding fresh data.
func (s *Service) WarmWatchlist(ctx context.Context) error {
	if s.watchlist == nil {
		return nil
	}

	queries, err := s.watchlist.ListWatchlist(ctx)
	if err != nil {
		return err
	}

	warmed := 0
	for _, q := range queries {
		if _, err := s.resolver.Resolve(ctx, q.Ref, q.Chain, true); err != nil {
			s.logger.Warn().Str("ref", q.Ref).Str("chain", string(q.Chain)).Msg("watchlist warm-up miss")
			continue
		}
		warmed++
	}

	s.logger.Info().Int("tokens", len(queries)).Int("warmed", warmed).Msg("watchlist warm-up complete")
	return nil
}

// SweepCache purges expired entries from both tiers.
func (s *Service) SweepCache(ctx context.Context, at time.Time) error {
	dropped := 0
	if s.memory != nil {
		dropped = s.memory.Purge(at)
	}

	var deleted int64
	if s.sweeper != nil {
		var err error
		deleted, err = s.sweeper.CleanExpiredCache(ctx)
		if err != nil {
			return err
		}
	}

	s.logger.Info().Int("memory_dropped", dropped).Int64("durable_deleted", deleted).Msg("cache sweep complete")
	return nil
}
