package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Backend names shared by the pluggable stores.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config captures the runtime configuration for the companion service.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Quota         QuotaConfig         `mapstructure:"quota"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Ads           AdsConfig           `mapstructure:"ads"`
	RateLimits    RateLimitConfig     `mapstructure:"rate_limits"`
	Reporting     ReportingConfig     `mapstructure:"reporting"`
	Generation    GenerationConfig    `mapstructure:"generation"`
	Conversation  ConversationConfig  `mapstructure:"conversation"`
	ChatLog       ChatLogConfig       `mapstructure:"chat_log"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Admin         AdminConfig         `mapstructure:"admin"`
}

type ServerConfig struct {
	ListenAddr            string        `mapstructure:"listen_addr"`
	BodyLimitMB           int           `mapstructure:"body_limit_mb"`
	ReadTimeout           time.Duration `mapstructure:"read_timeout"`
	IdleTimeout           time.Duration `mapstructure:"idle_timeout"`
	ProxyHeader           string        `mapstructure:"proxy_header"`
	GracefulShutdownDelay time.Duration `mapstructure:"graceful_shutdown_delay"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	RunMigrations   bool          `mapstructure:"run_migrations"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MinConns        int32         `mapstructure:"min_conns"`
}

// Enabled reports whether a database was configured.
func (d DatabaseConfig) Enabled() bool { return strings.TrimSpace(d.URL) != "" }

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.URL) != "" }

type QuotaConfig struct {
	Store            string        `mapstructure:"store"`
	DailyTokenLimit  int64         `mapstructure:"daily_token_limit"`
	DelayThreshold   float64       `mapstructure:"delay_threshold"`
	DelayMin         time.Duration `mapstructure:"delay_min"`
	DelayMax         time.Duration `mapstructure:"delay_max"`
	TokensPerMessage int64         `mapstructure:"tokens_per_message"`
	PricePer1K       float64       `mapstructure:"price_per_1k_tokens"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	DeclineMessage   string        `mapstructure:"decline_message"`
	DelayMessage     string        `mapstructure:"delay_message"`
}

type CacheConfig struct {
	Backend    string        `mapstructure:"backend"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxEntries int           `mapstructure:"max_entries"`
	EvictBatch int           `mapstructure:"evict_batch"`
}

type AdsConfig struct {
	CounterStore    string        `mapstructure:"counter_store"`
	SettingsKey     string        `mapstructure:"settings_key"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	InlineWait      time.Duration `mapstructure:"inline_wait"`
	PublishChannel  string        `mapstructure:"publish_channel"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	RequestsPerHour   int `mapstructure:"requests_per_hour"`
	RequestsPerDay    int `mapstructure:"requests_per_day"`
	ParallelRequests  int `mapstructure:"parallel_requests"`
}

type ReportingConfig struct {
	Timezone string `mapstructure:"timezone"`
}

type GenerationConfig struct {
	Provider    string        `mapstructure:"provider"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int64         `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type ConversationConfig struct {
	ChatID                string        `mapstructure:"chat_id"`
	HistoryLimit          int           `mapstructure:"history_limit"`
	PromptHistory         int           `mapstructure:"prompt_history"`
	GreetingFreshness     time.Duration `mapstructure:"greeting_freshness"`
	GreetingAwayThreshold time.Duration `mapstructure:"greeting_away_threshold"`
	GreetingChance        float64       `mapstructure:"greeting_chance"`
	ProfileKey            string        `mapstructure:"profile_key"`
	MediaAssetsKey        string        `mapstructure:"media_assets_key"`
}

type ChatLogConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	TextLimit     int           `mapstructure:"text_limit"`
	Webhooks      []string      `mapstructure:"webhooks"`
	WebhookConfig WebhookConfig `mapstructure:"webhook"`
}

type WebhookConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type ObservabilityConfig struct {
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
	EnableOTLP    bool   `mapstructure:"enable_otlp"`
	EnableMetrics bool   `mapstructure:"enable_metrics"`
}

type AdminConfig struct {
	Enabled bool               `mapstructure:"enabled"`
	Session AdminSessionConfig `mapstructure:"session"`
	Local   LocalAuthConfig    `mapstructure:"local"`
}

type AdminSessionConfig struct {
	JWTSecret       string        `mapstructure:"jwt_secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

type LocalAuthConfig struct {
	Email        string `mapstructure:"email"`
	PasswordHash string `mapstructure:"password_hash"`
}

// Options controls the config loader behavior.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// Load returns the merged configuration sourced from YAML and environment variables.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		_ = godotenv.Load(opts.EnvFile)
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	explicitFile := false
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		explicitFile = true
	} else if cfg := os.Getenv("COMPANION_CONFIG_FILE"); cfg != "" {
		v.SetConfigFile(cfg)
		explicitFile = true
	}

	if !explicitFile {
		v.SetConfigName("companion")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("COMPANION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(timeStringToDurationHook())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fills derived defaults and rejects inconsistent values.
func (c *Config) Validate() error {
	if err := c.Quota.validate(); err != nil {
		return err
	}
	if err := c.Cache.validate(); err != nil {
		return err
	}
	if err := c.Ads.validate(); err != nil {
		return err
	}
	if err := c.Generation.validate(); err != nil {
		return err
	}
	if err := c.Conversation.validate(); err != nil {
		return err
	}
	if err := c.ChatLog.validate(); err != nil {
		return err
	}
	if err := c.Admin.validate(); err != nil {
		return err
	}

	var missing []string
	for name, backend := range map[string]string{
		"quota.store":       c.Quota.Store,
		"cache.backend":     c.Cache.Backend,
		"ads.counter_store": c.Ads.CounterStore,
	} {
		if backend == BackendRedis && !c.Redis.Enabled() {
			missing = append(missing, fmt.Sprintf("COMPANION_REDIS_URL (required by %s=redis)", name))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.RateLimits.RequestsPerMinute < 0 || c.RateLimits.RequestsPerHour < 0 || c.RateLimits.RequestsPerDay < 0 || c.RateLimits.ParallelRequests < 0 {
		return fmt.Errorf("rate_limits values must be >= 0")
	}

	if c.Database.RunMigrations && !c.Database.Enabled() {
		c.Database.RunMigrations = false
	}
	if c.Database.MaxConns < 0 {
		return fmt.Errorf("database.max_conns must be >= 0")
	}
	if c.Redis.PoolSize < 0 {
		return fmt.Errorf("redis.pool_size must be >= 0")
	}

	tz := strings.TrimSpace(c.Reporting.Timezone)
	if tz == "" {
		tz = "Asia/Kolkata"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("invalid reporting.timezone: %w", err)
	}
	c.Reporting.Timezone = tz

	if c.Server.BodyLimitMB <= 0 {
		c.Server.BodyLimitMB = 1
	}
	return nil
}

func (q *QuotaConfig) validate() error {
	q.Store = normalizeBackend(q.Store)
	if q.Store == "" {
		return fmt.Errorf("quota.store must be memory or redis")
	}
	if q.DailyTokenLimit <= 0 {
		return fmt.Errorf("quota.daily_token_limit must be > 0")
	}
	if q.DelayThreshold <= 0 || q.DelayThreshold >= 1 {
		return fmt.Errorf("quota.delay_threshold must be between 0 and 1 exclusive")
	}
	if q.DelayMin <= 0 {
		q.DelayMin = 2 * time.Second
	}
	if q.DelayMax < q.DelayMin {
		return fmt.Errorf("quota.delay_max cannot be less than quota.delay_min")
	}
	if q.TokensPerMessage <= 0 {
		return fmt.Errorf("quota.tokens_per_message must be > 0")
	}
	if q.PricePer1K < 0 {
		return fmt.Errorf("quota.price_per_1k_tokens must be >= 0")
	}
	if q.SweepInterval <= 0 {
		q.SweepInterval = time.Hour
	}
	return nil
}

func (c *CacheConfig) validate() error {
	c.Backend = normalizeBackend(c.Backend)
	if c.Backend == "" {
		return fmt.Errorf("cache.backend must be memory or redis")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("cache.timeout must be > 0")
	}
	if c.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be > 0")
	}
	if c.EvictBatch <= 0 || c.EvictBatch > c.MaxEntries {
		return fmt.Errorf("cache.evict_batch must be between 1 and cache.max_entries")
	}
	return nil
}

func (a *AdsConfig) validate() error {
	a.CounterStore = normalizeBackend(a.CounterStore)
	if a.CounterStore == "" {
		return fmt.Errorf("ads.counter_store must be memory or redis")
	}
	if strings.TrimSpace(a.SettingsKey) == "" {
		return fmt.Errorf("ads.settings_key must be provided")
	}
	if a.RefreshInterval <= 0 {
		a.RefreshInterval = time.Minute
	}
	if a.SessionTTL <= 0 {
		a.SessionTTL = 12 * time.Hour
	}
	if a.InlineWait <= 0 {
		a.InlineWait = 250 * time.Millisecond
	}
	if strings.TrimSpace(a.PublishChannel) == "" {
		a.PublishChannel = "ads:open"
	}
	return nil
}

func (g *GenerationConfig) validate() error {
	g.Provider = strings.ToLower(strings.TrimSpace(g.Provider))
	switch g.Provider {
	case "":
		if strings.TrimSpace(g.APIKey) != "" {
			g.Provider = "openai"
		} else {
			g.Provider = "simulated"
		}
	case "openai":
		if strings.TrimSpace(g.APIKey) == "" {
			return fmt.Errorf("generation.api_key must be provided when provider is openai")
		}
	case "simulated":
	default:
		return fmt.Errorf("generation.provider must be openai or simulated")
	}
	if g.Provider == "openai" && strings.TrimSpace(g.Model) == "" {
		return fmt.Errorf("generation.model must be provided")
	}
	if g.MaxTokens <= 0 {
		return fmt.Errorf("generation.max_tokens must be > 0")
	}
	if g.Timeout <= 0 {
		g.Timeout = 30 * time.Second
	}
	return nil
}

func (c *ConversationConfig) validate() error {
	if strings.TrimSpace(c.ChatID) == "" {
		c.ChatID = "kruthika_chat"
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 10
	}
	if c.PromptHistory <= 0 || c.PromptHistory > c.HistoryLimit {
		c.PromptHistory = min(5, c.HistoryLimit)
	}
	if c.GreetingFreshness <= 0 {
		c.GreetingFreshness = time.Hour
	}
	if c.GreetingChance < 0 || c.GreetingChance > 1 {
		return fmt.Errorf("conversation.greeting_chance must be between 0 and 1")
	}
	return nil
}

func (l *ChatLogConfig) validate() error {
	if l.TextLimit <= 0 {
		l.TextLimit = 500
	}
	l.Webhooks = normalizeStringSlice(l.Webhooks)
	if l.WebhookConfig.Timeout <= 0 {
		l.WebhookConfig.Timeout = 5 * time.Second
	}
	if l.WebhookConfig.MaxRetries <= 0 {
		l.WebhookConfig.MaxRetries = 3
	}
	return nil
}

func (a *AdminConfig) validate() error {
	if !a.Enabled {
		return nil
	}
	if a.Session.JWTSecret == "" {
		return fmt.Errorf("admin.session.jwt_secret must be provided")
	}
	if a.Session.AccessTokenTTL <= 0 {
		return fmt.Errorf("admin.session.access_token_ttl must be > 0")
	}
	if a.Session.RefreshTokenTTL <= 0 {
		return fmt.Errorf("admin.session.refresh_token_ttl must be > 0")
	}
	if strings.TrimSpace(a.Local.Email) == "" || strings.TrimSpace(a.Local.PasswordHash) == "" {
		return fmt.Errorf("admin.local.email and admin.local.password_hash must be provided when admin is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.body_limit_mb", 1)
	v.SetDefault("server.read_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.proxy_header", "")
	v.SetDefault("server.graceful_shutdown_delay", "5s")

	v.SetDefault("database.url", "")
	v.SetDefault("database.migrations_dir", "")
	v.SetDefault("database.run_migrations", true)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("quota.store", BackendMemory)
	v.SetDefault("quota.daily_token_limit", 5000)
	v.SetDefault("quota.delay_threshold", 0.8)
	v.SetDefault("quota.delay_min", "2s")
	v.SetDefault("quota.delay_max", "5s")
	v.SetDefault("quota.tokens_per_message", 100)
	v.SetDefault("quota.price_per_1k_tokens", 0.0003)
	v.SetDefault("quota.sweep_interval", "1h")
	v.SetDefault("quota.decline_message", "I'm feeling a bit tired today... Can we continue our chat tomorrow? I'll miss you! 💕")
	v.SetDefault("quota.delay_message", "I need to think about this... Give me a moment, okay? 😊")

	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.timeout", "1h")
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.evict_batch", 200)

	v.SetDefault("ads.counter_store", BackendMemory)
	v.SetDefault("ads.settings_key", "ad_settings_kruthika_chat_v1")
	v.SetDefault("ads.refresh_interval", "1m")
	v.SetDefault("ads.session_ttl", "12h")
	v.SetDefault("ads.inline_wait", "250ms")
	v.SetDefault("ads.publish_channel", "ads:open")

	v.SetDefault("rate_limits.requests_per_minute", 30)
	v.SetDefault("rate_limits.requests_per_hour", 200)
	v.SetDefault("rate_limits.requests_per_day", 1000)
	v.SetDefault("rate_limits.parallel_requests", 2)

	v.SetDefault("reporting.timezone", "Asia/Kolkata")

	v.SetDefault("generation.provider", "")
	v.SetDefault("generation.api_key", "")
	v.SetDefault("generation.base_url", "")
	v.SetDefault("generation.model", "gemini-1.5-flash")
	v.SetDefault("generation.max_tokens", 100)
	v.SetDefault("generation.temperature", 0.8)
	v.SetDefault("generation.timeout", "30s")

	v.SetDefault("conversation.chat_id", "kruthika_chat")
	v.SetDefault("conversation.history_limit", 10)
	v.SetDefault("conversation.prompt_history", 5)
	v.SetDefault("conversation.greeting_freshness", "1h")
	v.SetDefault("conversation.greeting_away_threshold", "2h")
	v.SetDefault("conversation.greeting_chance", 0.3)
	v.SetDefault("conversation.profile_key", "ai_profile_kruthika_chat_v1")
	v.SetDefault("conversation.media_assets_key", "ai_media_assets_config_v1")

	v.SetDefault("chat_log.enabled", true)
	v.SetDefault("chat_log.text_limit", 500)
	v.SetDefault("chat_log.webhooks", []string{})
	v.SetDefault("chat_log.webhook.timeout", "5s")
	v.SetDefault("chat_log.webhook.max_retries", 3)

	v.SetDefault("observability.enable_otlp", false)
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.otlp_endpoint", "http://localhost:4317")

	v.SetDefault("admin.enabled", false)
	v.SetDefault("admin.session.jwt_secret", "")
	v.SetDefault("admin.local.email", "")
	v.SetDefault("admin.local.password_hash", "")
	v.SetDefault("admin.session.access_token_ttl", "15m")
	v.SetDefault("admin.session.refresh_token_ttl", "24h")
}

func normalizeBackend(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", BackendMemory:
		return BackendMemory
	case BackendRedis:
		return BackendRedis
	default:
		return ""
	}
}

func normalizeStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	clean := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	return clean
}

func timeStringToDurationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case time.Duration:
			return v, nil
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, err
			}
			return d, nil
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		default:
			return nil, fmt.Errorf("cannot decode %T into time.Duration", data)
		}
	}
}
