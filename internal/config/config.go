package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Pipeline    PipelineConfig    `yaml:"pipeline" mapstructure:"pipeline"`
	Enrich      EnrichConfig      `yaml:"enrich" mapstructure:"enrich"`
	Serper      SerperConfig      `yaml:"serper" mapstructure:"serper"`
	Geocode     GeocodeConfig     `yaml:"geocode" mapstructure:"geocode"`
	Budget      BudgetConfig      `yaml:"budget" mapstructure:"budget"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Sink        SinkConfig        `yaml:"sink" mapstructure:"sink"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics" mapstructure:"diagnostics"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// LLMConfig selects the generation backend and its credentials. Keys are
// read from the KeySlot environment slots (KEY, KEY2 ... KEYn) first, then
// from Keys.
type LLMConfig struct {
	Provider  string   `yaml:"provider" mapstructure:"provider"` // groq | openai | anthropic | gemini
	BaseURL   string   `yaml:"base_url" mapstructure:"base_url"`
	Model     string   `yaml:"model" mapstructure:"model"`
	KeySlot   string   `yaml:"key_slot" mapstructure:"key_slot"`
	SlotCount int      `yaml:"slot_count" mapstructure:"slot_count"`
	Keys      []string `yaml:"keys" mapstructure:"keys"`
}

// PipelineConfig tunes the stage executor.
type PipelineConfig struct {
	CooldownsMs       []int  `yaml:"cooldowns_ms" mapstructure:"cooldowns_ms"`
	DefaultCooldownMs int    `yaml:"default_cooldown_ms" mapstructure:"default_cooldown_ms"`
	RetryAttempts     int    `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs    int    `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	RetryMaxBackoffMs int    `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
	GroupConcurrency  int    `yaml:"group_concurrency" mapstructure:"group_concurrency"`
	CatalogPath       string `yaml:"catalog_path" mapstructure:"catalog_path"`
}

// EnrichConfig configures image lookups for the final itinerary.
type EnrichConfig struct {
	Enabled          bool    `yaml:"enabled" mapstructure:"enabled"`
	Concurrency      int     `yaml:"concurrency" mapstructure:"concurrency"`
	RPS              float64 `yaml:"rps" mapstructure:"rps"`
	CircuitThreshold int     `yaml:"circuit_threshold" mapstructure:"circuit_threshold"`
	CircuitResetSecs int     `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// SerperConfig configures the Serper image search API.
type SerperConfig struct {
	BaseURL   string   `yaml:"base_url" mapstructure:"base_url"`
	KeySlot   string   `yaml:"key_slot" mapstructure:"key_slot"`
	SlotCount int      `yaml:"slot_count" mapstructure:"slot_count"`
	Keys      []string `yaml:"keys" mapstructure:"keys"`
}

// GeocodeConfig configures the Google geocoder used for budget floors.
type GeocodeConfig struct {
	GoogleKey string  `yaml:"google_key" mapstructure:"google_key"`
	RPS       float64 `yaml:"rps" mapstructure:"rps"`
}

// BudgetConfig configures the budget floor estimate.
type BudgetConfig struct {
	Enabled        bool    `yaml:"enabled" mapstructure:"enabled"`
	Currency       string  `yaml:"currency" mapstructure:"currency"`
	TransportBase  float64 `yaml:"transport_base" mapstructure:"transport_base"`
	TransportPerKM float64 `yaml:"transport_per_km" mapstructure:"transport_per_km"`
	RoomPerNight   float64 `yaml:"room_per_night" mapstructure:"room_per_night"`
	FoodPerDay     float64 `yaml:"food_per_day" mapstructure:"food_per_day"`
}

// StoreConfig configures the trip store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite | postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CacheConfig configures the redis plan cache. An empty address disables it.
type CacheConfig struct {
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
	Prefix        string `yaml:"prefix" mapstructure:"prefix"`
	TTLHours      int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// SinkConfig selects where finished runs are delivered.
type SinkConfig struct {
	Kind       string `yaml:"kind" mapstructure:"kind"` // store | webhook | amqp | none
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
	AMQPURL    string `yaml:"amqp_url" mapstructure:"amqp_url"`
	Queue      string `yaml:"queue" mapstructure:"queue"`
}

// DiagnosticsConfig configures the persisted failure log.
type DiagnosticsConfig struct {
	Path        string `yaml:"path" mapstructure:"path"`
	MaxRawBytes int    `yaml:"max_raw_bytes" mapstructure:"max_raw_bytes"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("llm.provider", "groq")
	v.SetDefault("llm.model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.key_slot", "GROQ_API_KEY")
	v.SetDefault("llm.slot_count", 5)
	v.SetDefault("pipeline.cooldowns_ms", []int{2000, 2000})
	v.SetDefault("pipeline.default_cooldown_ms", 2000)
	v.SetDefault("pipeline.retry_attempts", 3)
	v.SetDefault("pipeline.retry_backoff_ms", 1000)
	v.SetDefault("pipeline.retry_max_backoff_ms", 15000)
	v.SetDefault("pipeline.group_concurrency", 1)
	v.SetDefault("enrich.enabled", true)
	v.SetDefault("enrich.concurrency", 4)
	v.SetDefault("enrich.rps", 5.0)
	v.SetDefault("enrich.circuit_threshold", 5)
	v.SetDefault("enrich.circuit_reset_secs", 30)
	v.SetDefault("serper.base_url", "https://google.serper.dev")
	v.SetDefault("serper.key_slot", "SERPER_API_KEY")
	v.SetDefault("serper.slot_count", 2)
	v.SetDefault("geocode.rps", 10.0)
	v.SetDefault("budget.enabled", true)
	v.SetDefault("budget.currency", "INR")
	v.SetDefault("budget.transport_base", 300.0)
	v.SetDefault("budget.transport_per_km", 1.5)
	v.SetDefault("budget.room_per_night", 1500.0)
	v.SetDefault("budget.food_per_day", 800.0)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "trips.db")
	v.SetDefault("cache.prefix", "trip-planner")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("sink.kind", "store")
	v.SetDefault("sink.queue", "trip-planner.trips")
	v.SetDefault("diagnostics.path", "diagnostics.log")
	v.SetDefault("diagnostics.max_raw_bytes", 2000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode needs. mode is one of
// "plan", "serve" or "trips".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "plan", "serve":
		switch strings.ToLower(c.LLM.Provider) {
		case "groq", "openai", "anthropic", "gemini":
		default:
			errs = append(errs, fmt.Sprintf("llm.provider %q is not supported", c.LLM.Provider))
		}
		if c.LLM.SlotCount < 1 && len(c.LLM.Keys) == 0 {
			errs = append(errs, "llm.slot_count or llm.keys is required")
		}
		if c.Pipeline.RetryAttempts < 1 {
			errs = append(errs, "pipeline.retry_attempts must be >= 1")
		}
		if c.Pipeline.GroupConcurrency < 0 || c.Enrich.Concurrency < 0 {
			errs = append(errs, "concurrency must not be negative")
		}
		switch strings.ToLower(c.Sink.Kind) {
		case "", "none", "store":
		case "webhook":
			if c.Sink.WebhookURL == "" {
				errs = append(errs, "sink.webhook_url is required for the webhook sink")
			}
		case "amqp":
			if c.Sink.AMQPURL == "" {
				errs = append(errs, "sink.amqp_url is required for the amqp sink")
			}
		default:
			errs = append(errs, fmt.Sprintf("sink.kind %q is not supported", c.Sink.Kind))
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "trips":
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
