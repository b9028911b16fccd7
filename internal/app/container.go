package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	decimal "github.com/shopspring/decimal"

	"github.com/kruthika/companion/internal/ads"
	"github.com/kruthika/companion/internal/auth"
	"github.com/kruthika/companion/internal/cache"
	"github.com/kruthika/companion/internal/chatlog"
	"github.com/kruthika/companion/internal/config"
	"github.com/kruthika/companion/internal/conversation"
	"github.com/kruthika/companion/internal/db"
	"github.com/kruthika/companion/internal/generation"
	"github.com/kruthika/companion/internal/health"
	"github.com/kruthika/companion/internal/limits"
	"github.com/kruthika/companion/internal/observability"
	"github.com/kruthika/companion/internal/quota"
	"github.com/kruthika/companion/internal/redisclient"
	"github.com/kruthika/companion/internal/settings"
	"github.com/kruthika/companion/internal/timeutil"
)

// Container aggregates runtime dependencies for handlers and services.
type Container struct {
	Config        *config.Config
	DBPool        *pgxpool.Pool
	Redis         *redis.Client
	Queries       *db.Queries
	Clock         *timeutil.Clock
	Settings      settings.Store
	Ledger        *quota.Ledger
	Cache         cache.ResponseCache
	Greetings     *cache.GreetingCache
	Generator     generation.Generator
	History       conversation.History
	ChatLog       chatlog.Sink
	Activity      *chatlog.PostgresSink
	AdSettings    *ads.SettingsProvider
	AdController  *ads.Controller
	AdTrigger     *ads.Trigger
	Conversation  *conversation.Service
	AdminAuth     *auth.AdminAuthService
	RateLimiter   *limits.RateLimiter
	HealthMon     *health.Monitor
	Observability *observability.Provider
	Logger        *slog.Logger

	rateLimitMu      sync.RWMutex
	DefaultLimit     limits.LimitConfig
	DeviceRateLimits map[string]limits.LimitConfig
}

// NewContainer builds a dependency container from the provided primitives.
// A nil pool keeps settings in memory and disables the Postgres chat log; a
// nil redis client requires every pluggable store to use the memory backend.
func NewContainer(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger := slog.Default()

	loc, err := timeutil.LoadLocation(cfg.Reporting.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load reporting timezone: %w", err)
	}
	clock := timeutil.NewClock(loc, nil)

	for name, backend := range map[string]string{
		"quota.store":       cfg.Quota.Store,
		"cache.backend":     cfg.Cache.Backend,
		"ads.counter_store": cfg.Ads.CounterStore,
	} {
		if backend == config.BackendRedis && redisClient == nil {
			return nil, fmt.Errorf("%s=redis requires a redis client", name)
		}
	}

	obsProvider, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("setup observability: %w", err)
	}

	var (
		queries       *db.Queries
		settingsStore settings.Store = settings.NewMemoryStore()
		activity      *chatlog.PostgresSink
	)
	if pool != nil {
		queries = db.New(pool)
		settingsStore = settings.NewPostgresStore(queries)
		activity = chatlog.NewPostgresSink(queries, cfg.ChatLog.TextLimit, loc)
	}

	var quotaStore quota.Store = quota.NewMemoryStore()
	if cfg.Quota.Store == config.BackendRedis {
		quotaStore = quota.NewRedisStore(redisClient)
	}
	ledger := quota.NewLedger(quotaStore, quota.Options{
		DailyTokenLimit: cfg.Quota.DailyTokenLimit,
		DelayThreshold:  cfg.Quota.DelayThreshold,
		DelayMin:        cfg.Quota.DelayMin,
		DelayMax:        cfg.Quota.DelayMax,
		DeclineMessage:  cfg.Quota.DeclineMessage,
		DelayMessage:    cfg.Quota.DelayMessage,
		PricePer1K:      decimal.NewFromFloat(cfg.Quota.PricePer1K),
		Clock:           clock,
		Logger:          logger,
		Observer:        obsProvider,
	})
	ledger.StartSweeper(ctx, cfg.Quota.SweepInterval)

	cacheOpts := cache.Options{
		Timeout:    cfg.Cache.Timeout,
		MaxEntries: cfg.Cache.MaxEntries,
		EvictBatch: cfg.Cache.EvictBatch,
		Now:        clock.Now,
	}
	var responseCache cache.ResponseCache
	if cfg.Cache.Backend == config.BackendRedis {
		responseCache = cache.NewRedisCache(redisClient, cacheOpts, obsProvider, logger)
	} else {
		responseCache = cache.NewMemoryCache(cacheOpts, obsProvider)
	}
	greetings := cache.NewGreetingCache(redisClient, cfg.Conversation.GreetingFreshness, clock.Now)

	var history conversation.History = conversation.NewMemoryHistory(cfg.Conversation.HistoryLimit)
	if redisClient != nil {
		history = conversation.NewRedisHistory(redisClient, cfg.Conversation.HistoryLimit)
	}

	generator, err := buildGenerator(cfg.Generation, obsProvider)
	if err != nil {
		return nil, err
	}

	adSettings := ads.NewSettingsProvider(settingsStore, cfg.Ads.SettingsKey, logger)
	if err := adSettings.Refresh(ctx); err != nil {
		logger.Warn("initial ad settings load failed", slog.String("error", err.Error()))
	}
	adSettings.Start(ctx, cfg.Ads.RefreshInterval)

	var (
		counterStore ads.CounterStore   = ads.NewMemoryCounterStore()
		msgCounter   ads.MessageCounter = ads.NewMemoryMessageCounter()
		fallbackNav  ads.Navigator
	)
	if cfg.Ads.CounterStore == config.BackendRedis {
		counterStore = ads.NewRedisCounterStore(redisClient, cfg.Ads.SessionTTL)
		msgCounter = ads.NewRedisMessageCounter(redisClient)
	}
	if redisClient != nil {
		fallbackNav = ads.NewPublishNavigator(redisClient, cfg.Ads.PublishChannel)
	}
	controller := ads.NewController(counterStore, ads.InlineNavigator{}, ads.ControllerOptions{
		Clock:    clock,
		Fallback: fallbackNav,
		Logger:   logger,
		Observer: obsProvider,
	})
	trigger := ads.NewTrigger(controller, adSettings, ads.TriggerOptions{
		Counter: msgCounter,
		Logger:  logger,
	})

	chatLog := buildChatLog(cfg.ChatLog, activity, logger)

	convo, err := conversation.NewService(conversation.Dependencies{
		Ledger:    ledger,
		Cache:     responseCache,
		Generator: generator,
		History:   history,
		ChatLog:   chatLog,
		Trigger:   trigger,
		Settings:  settingsStore,
		Greetings: greetings,
		Clock:     clock,
		Logger:    logger,
		Observer:  obsProvider,
	}, conversation.Options{
		ChatID:           cfg.Conversation.ChatID,
		TokensPerMessage: cfg.Quota.TokensPerMessage,
		PromptHistory:    cfg.Conversation.PromptHistory,
		ProfileKey:       cfg.Conversation.ProfileKey,
		MediaAssetsKey:   cfg.Conversation.MediaAssetsKey,
		InlineWait:       cfg.Ads.InlineWait,
		GreetingAway:     cfg.Conversation.GreetingAwayThreshold,
		GreetingChance:   cfg.Conversation.GreetingChance,
	})
	if err != nil {
		return nil, fmt.Errorf("init conversation: %w", err)
	}

	adminAuth, err := auth.NewAdminAuthService(cfg.Admin)
	if err != nil {
		return nil, fmt.Errorf("init admin auth: %w", err)
	}

	monitor := health.NewMonitor(30*time.Second, 3*time.Second)
	if pool != nil {
		monitor.Register("postgres", true, pool.Ping)
	}
	if redisClient != nil {
		monitor.Register("redis", true, redisclient.HealthCheck(redisClient))
	}
	monitor.Start(ctx)

	container := &Container{
		Config:           cfg,
		DBPool:           pool,
		Redis:            redisClient,
		Queries:          queries,
		Clock:            clock,
		Settings:         settingsStore,
		Ledger:           ledger,
		Cache:            responseCache,
		Greetings:        greetings,
		Generator:        generator,
		History:          history,
		ChatLog:          chatLog,
		Activity:         activity,
		AdSettings:       adSettings,
		AdController:     controller,
		AdTrigger:        trigger,
		Conversation:     convo,
		AdminAuth:        adminAuth,
		RateLimiter:      limits.NewRateLimiter(redisClient),
		HealthMon:        monitor,
		Observability:    obsProvider,
		Logger:           logger,
		DeviceRateLimits: make(map[string]limits.LimitConfig),
	}
	container.UpdateRateLimitConfig(cfg.RateLimits)
	if err := LoadRateLimitDefaults(ctx, settingsStore, container); err != nil {
		return nil, fmt.Errorf("load rate limit defaults: %w", err)
	}

	return container, nil
}

// ReportingLoc returns the timezone that defines the quota and activity day.
func (c *Container) ReportingLoc() *time.Location {
	if c == nil || c.Clock == nil {
		return timeutil.EnsureLocation(nil)
	}
	return c.Clock.Location()
}

func buildGenerator(cfg config.GenerationConfig, obs *observability.Provider) (generation.Generator, error) {
	var backend generation.Generator
	switch cfg.Provider {
	case "openai":
		gen, err := generation.NewOpenAIGenerator(generation.OpenAIOptions{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init generator: %w", err)
		}
		backend = gen
	default:
		backend = generation.NewSimulatedGenerator(rand.IntN)
	}
	return generation.NewFlow(backend, generation.FlowOptions{
		Name:     cfg.Provider,
		Observer: obs,
	}), nil
}

func buildChatLog(cfg config.ChatLogConfig, activity *chatlog.PostgresSink, logger *slog.Logger) chatlog.Sink {
	if !cfg.Enabled {
		return nil
	}
	sinks := []chatlog.Sink{chatlog.NewLogSink(logger, cfg.TextLimit)}
	if activity != nil {
		sinks = append(sinks, activity)
	}
	if webhook := chatlog.NewWebhookSink(cfg.Webhooks, cfg.WebhookConfig, cfg.TextLimit, logger); webhook != nil {
		sinks = append(sinks, webhook)
	}
	return chatlog.NewCompositeSink(sinks...)
}
