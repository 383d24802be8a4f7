package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"tokenwatch/internal/alerting"
	"tokenwatch/internal/cache"
	"tokenwatch/internal/config"
	"tokenwatch/internal/resolver"
	"tokenwatch/internal/service"
	"tokenwatch/internal/source"
	"tokenwatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// newSources builds the fallback chain. The configured primary source leads
// for symbol lookups; the rest keep their fixed fallback order.
func (a *App) newSources() []source.Source {
	p := a.Config.Providers

	coingecko := source.NewCoinGecko(source.CoinGeckoOptions{
		BaseURL:   p.CoinGecko.BaseURL,
		APIKey:    p.CoinGecko.APIKey,
		Timeout:   p.CoinGecko.RequestTimeout,
		RateLimit: p.CoinGecko.RateLimit,
	}, a.Logger)

	dexscreener := source.NewDexScreener(source.DexScreenerOptions{
		BaseURL:      p.DexScreener.BaseURL,
		Timeout:      p.DexScreener.RequestTimeout,
		MinLiquidity: p.DexScreener.MinLiquidity,
		MinVolume:    p.DexScreener.MinVolume,
		MinPairAge:   p.DexScreener.MinPairAge,
		TopPairs:     p.DexScreener.TopPairs,
	}, a.Logger)

	binance := source.NewBinance(source.BinanceOptions{
		BaseURL: p.Binance.BaseURL,
		Timeout: p.Binance.RequestTimeout,
	}, a.Logger)

	ordered := []source.Source{coingecko, binance, dexscreener}
	for i, src := range ordered {
		if src.Name() == p.Primary && i > 0 {
			ordered = append([]source.Source{src}, append(ordered[:i:i], ordered[i+1:]...)...)
			break
		}
	}
	return ordered
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Telegram.Enabled {
		return nil
	}
	t := a.Config.Telegram
	return alerting.NewTelegramNotifier(t.BotToken, t.APIBase, t.RequestTimeout, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// newResolver wires sources, the in-process tier, and the durable tier. The
// store may be nil, leaving only the memory tier in front of the sources.
func (a *App) newResolver(store *storage.Store) (*resolver.Resolver, *cache.Memory) {
	memory := cache.NewMemory(a.Config.Cache.MemoryTTL)

	var durable resolver.DurableCache
	if store != nil {
		durable = store
	}

	res := resolver.New(a.newSources(), memory, durable, resolver.Options{
		PriceTTL: a.Config.Cache.PriceTTL,
	}, a.Logger)

	return res, memory
}

// Run executes the long-running scheduler service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn is required to run the alert scheduler")
	}
	defer closeStore()

	res, memory := a.newResolver(store)
	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("telegram disabled; alerts will be evaluated but not delivered")
	}

	svc := service.New(res, store, store, store, memory, notifier, service.Options{
		AlertInterval:     a.Config.Scheduler.AlertInterval,
		WatchlistInterval: a.Config.Scheduler.WatchlistInterval,
		SweepInterval:     a.Config.Scheduler.SweepInterval,
		StartupDelay:      a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	a.Logger.Info().Msg("starting alert scheduler")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("alert scheduler stopped")
	return nil
}
