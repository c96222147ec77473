package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trip-planner/internal/agent"
	"github.com/sells-group/trip-planner/internal/budget"
	"github.com/sells-group/trip-planner/internal/cache"
	"github.com/sells-group/trip-planner/internal/config"
	"github.com/sells-group/trip-planner/internal/cost"
	"github.com/sells-group/trip-planner/internal/credential"
	"github.com/sells-group/trip-planner/internal/db"
	"github.com/sells-group/trip-planner/internal/enrich"
	"github.com/sells-group/trip-planner/internal/pipeline"
	"github.com/sells-group/trip-planner/internal/planner"
	"github.com/sells-group/trip-planner/internal/recovery"
	"github.com/sells-group/trip-planner/internal/resilience"
	"github.com/sells-group/trip-planner/internal/sink"
	"github.com/sells-group/trip-planner/internal/stage"
	"github.com/sells-group/trip-planner/internal/store"
	"github.com/sells-group/trip-planner/pkg/geocode"
	"github.com/sells-group/trip-planner/pkg/serper"
)

// appEnv holds everything the plan and serve commands need.
type appEnv struct {
	Store    store.Store
	Catalog  *stage.Catalog
	Executor *pipeline.Executor
	Planner  *planner.Service

	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (a *appEnv) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			zap.L().Warn("close failed", zap.Error(err))
		}
	}
}

func (a *appEnv) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// initApp validates the config for mode and wires the store, credential
// pools, generation backend, enrichment, cache, sink and executor. Callers
// should defer env.Close().
func initApp(ctx context.Context, mode string) (env *appEnv, err error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env = &appEnv{}
	defer func() {
		if err != nil {
			env.Close()
			env = nil
		}
	}()

	st, err := initStore(ctx)
	if err != nil {
		return env, err
	}
	env.Store = st
	env.onClose(st.Close)

	catalog, err := stage.LoadCatalog(cfg.Pipeline.CatalogPath)
	if err != nil {
		return env, eris.Wrap(err, "load stage catalog")
	}
	env.Catalog = catalog

	// A nil pool keeps the process up; every plan then fails with a
	// configuration error on its first credential draw.
	llmKeys, keyErr := loadCredentials(cfg.LLM.KeySlot, cfg.LLM.SlotCount, cfg.LLM.Keys)
	if keyErr != nil {
		zap.L().Warn("llm credentials missing; plans will fail until a key is configured",
			zap.String("provider", cfg.LLM.Provider), zap.Error(keyErr))
		llmKeys = nil
	} else {
		zap.L().Info("llm credentials loaded", zap.String("provider", cfg.LLM.Provider), zap.Int("keys", llmKeys.Len()))
	}

	backend, err := agent.NewBackend(agent.BackendConfig{
		Provider: cfg.LLM.Provider,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
	})
	if err != nil {
		return env, err
	}
	invoker, err := agent.NewInvoker(backend, catalog)
	if err != nil {
		return env, eris.Wrap(err, "build stage invoker")
	}

	rc, err := recovery.NewController(cfg.Diagnostics.Path, cfg.Diagnostics.MaxRawBytes)
	if err != nil {
		return env, eris.Wrap(err, "open diagnostics log")
	}
	env.onClose(rc.Close)

	opts := pipeline.Options{
		Cooldown:         cooldownFromConfig(cfg.Pipeline),
		Retry:            resilience.FromRetryConfig(cfg.Pipeline.RetryAttempts, cfg.Pipeline.RetryBackoffMs, cfg.Pipeline.RetryMaxBackoffMs),
		GroupConcurrency: cfg.Pipeline.GroupConcurrency,
		Costs:            cost.NewCalculator(cost.DefaultRates()),
	}
	if cfg.Enrich.Enabled {
		svc, err := initEnricher(rc)
		if err != nil {
			zap.L().Warn("image enrichment disabled", zap.Error(err))
		} else {
			opts.Enricher = svc
		}
	}
	if est := initBudget(); est != nil {
		opts.BudgetHint = est
	}

	env.Executor = pipeline.New(invoker, llmKeys, catalog.Graph(), rc, opts)

	planCache := initCache(env)
	out, err := initSink(env)
	if err != nil {
		return env, err
	}
	env.Planner = planner.New(env.Executor, planner.Options{Cache: planCache, Sink: out})
	return env, nil
}

// initStore opens the configured trip store and runs its migration.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, store.Config{
		Driver:      cfg.Store.Driver,
		DatabaseURL: cfg.Store.DatabaseURL,
		Pool:        &db.PoolConfig{MaxConns: cfg.Store.MaxConns, MinConns: cfg.Store.MinConns},
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

// loadCredentials reads the numbered environment slots for base, then the
// configured keys, which are served to credential.Load as extra slots.
func loadCredentials(base string, slots int, keys []string) (*credential.Pool, error) {
	names := credential.Slots(base, slots)
	configured := make(map[string]string, len(keys))
	for i, k := range keys {
		name := fmt.Sprintf("keys[%d]", i)
		configured[name] = k
		names = append(names, name)
	}
	return credential.Load(func(name string) (string, bool) {
		if v, ok := configured[name]; ok {
			return v, true
		}
		return os.LookupEnv(name)
	}, names...)
}

func cooldownFromConfig(pc config.PipelineConfig) pipeline.TimerCooldown {
	delays := make([]time.Duration, len(pc.CooldownsMs))
	for i, ms := range pc.CooldownsMs {
		delays[i] = time.Duration(ms) * time.Millisecond
	}
	return pipeline.TimerCooldown{
		Delays:  delays,
		Default: time.Duration(pc.DefaultCooldownMs) * time.Millisecond,
		Sleep:   resilience.TimerSleep,
	}
}

func initEnricher(rc *recovery.Controller) (*enrich.Service, error) {
	keys, err := loadCredentials(cfg.Serper.KeySlot, cfg.Serper.SlotCount, cfg.Serper.Keys)
	if err != nil {
		return nil, eris.Wrap(err, "serper credentials")
	}
	var opts []serper.Option
	if cfg.Serper.BaseURL != "" {
		opts = append(opts, serper.WithBaseURL(cfg.Serper.BaseURL))
	}
	lookup := enrich.NewSerperLookup(serper.NewClient(opts...), keys)
	return enrich.NewService(lookup, enrich.Options{
		Concurrency: cfg.Enrich.Concurrency,
		RPS:         cfg.Enrich.RPS,
		Breaker:     resilience.FromCircuitConfig(cfg.Enrich.CircuitThreshold, cfg.Enrich.CircuitResetSecs),
		Recovery:    rc,
	}), nil
}

func initBudget() *budget.Estimator {
	if !cfg.Budget.Enabled {
		return nil
	}
	if cfg.Geocode.GoogleKey == "" {
		zap.L().Debug("TRIP_GEOCODE_GOOGLE_KEY not set, budget floor disabled")
		return nil
	}
	geo := geocode.NewClient(cfg.Geocode.GoogleKey, geocode.WithRateLimit(cfg.Geocode.RPS))
	return budget.NewEstimator(geo, budget.Rates{
		Currency:       cfg.Budget.Currency,
		TransportBase:  cfg.Budget.TransportBase,
		TransportPerKM: cfg.Budget.TransportPerKM,
		RoomPerNight:   cfg.Budget.RoomPerNight,
		FoodPerDay:     cfg.Budget.FoodPerDay,
	})
}

func initCache(env *appEnv) cache.Cache {
	if cfg.Cache.RedisAddr == "" {
		return cache.Nop{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	rc := cache.NewRedisCache(client, cfg.Cache.Prefix, time.Duration(cfg.Cache.TTLHours)*time.Hour)
	env.onClose(rc.Close)
	zap.L().Info("plan cache enabled", zap.String("addr", cfg.Cache.RedisAddr))
	return rc
}

func initSink(env *appEnv) (sink.Sink, error) {
	switch strings.ToLower(cfg.Sink.Kind) {
	case "", "store":
		return sink.NewStoreSink(env.Store), nil
	case "webhook":
		return sink.NewWebhookSink(cfg.Sink.WebhookURL, &http.Client{Timeout: 30 * time.Second}), nil
	case "amqp":
		s, err := sink.NewAMQPSink(sink.AMQPConfig{URL: cfg.Sink.AMQPURL, Queue: cfg.Sink.Queue})
		if err != nil {
			return nil, eris.Wrap(err, "connect amqp sink")
		}
		env.onClose(s.Close)
		return s, nil
	case "none":
		return sink.Nop{}, nil
	default:
		return nil, eris.Errorf("unknown sink kind %q", cfg.Sink.Kind)
	}
}
