package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-waterfall/internal/cache"
	"github.com/sells-group/enrich-waterfall/internal/config"
	"github.com/sells-group/enrich-waterfall/internal/metrics"
	"github.com/sells-group/enrich-waterfall/internal/model"
	"github.com/sells-group/enrich-waterfall/internal/resilience"
	"github.com/sells-group/enrich-waterfall/internal/store"
	"github.com/sells-group/enrich-waterfall/internal/waterfall"
	"github.com/sells-group/enrich-waterfall/internal/waterfall/provider"
)

// sweeper is implemented by caches that need expired entries removed.
type sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// engineEnv holds the wired collaborators shared by the serve, enrich and
// admin commands.
type engineEnv struct {
	Store        store.Store
	Cache        cache.Cache
	Registry     *provider.Registry
	Health       *resilience.HealthTracker
	Configs      *waterfall.ConfigResolver
	Orchestrator *waterfall.Orchestrator

	redis *redis.Client
}

// Close releases resources held by the environment.
func (e *engineEnv) Close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "memory":
		st = store.NewMemory()
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEngine validates config for mode, then builds the store, cache,
// provider registry, health tracker and orchestrator. Callers should defer
// env.Close().
func initEngine(ctx context.Context, mode string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &engineEnv{Store: st}

	if err := env.initCache(ctx); err != nil {
		env.Close()
		return nil, err
	}

	env.Registry = provider.NewRegistry(st)
	if err := registerProviders(ctx, env.Registry, st, cfg.Providers, time.Now().UTC()); err != nil {
		env.Close()
		return nil, err
	}

	env.Health = resilience.NewHealthTracker(st,
		resilience.FromCircuitConfig(cfg.Circuit.FailureThreshold, cfg.Circuit.OpenDurationSecs),
		resilience.WithStateChange(func(_, providerID string, _, to model.CircuitState) {
			metrics.CircuitTransitionsTotal.WithLabelValues(providerID, string(to)).Inc()
		}),
	)

	var file *waterfall.Config
	if cfg.Waterfall.ConfigPath != "" {
		file, err = waterfall.LoadConfig(cfg.Waterfall.ConfigPath)
		if err != nil {
			env.Close()
			return nil, eris.Wrap(err, "load waterfall config")
		}
		zap.L().Info("waterfall defaults loaded",
			zap.String("path", cfg.Waterfall.ConfigPath),
			zap.Int("configured_fields", len(file.Fields)),
		)
	}
	env.Configs = waterfall.NewConfigResolver(st, file)

	env.Orchestrator = waterfall.NewOrchestrator(waterfall.Deps{
		Contacts: st,
		Registry: env.Registry,
		Configs:  env.Configs,
		Health:   env.Health,
		Cache:    env.Cache,
		Jobs:     st,
	}, waterfall.Options{
		FieldConcurrency: cfg.Waterfall.FieldConcurrency,
		AcceptBestEffort: cfg.Waterfall.AcceptBestEffort,
		MaxCostPerJob:    cfg.Waterfall.MaxCostPerJob,
	})

	return env, nil
}

func (e *engineEnv) initCache(ctx context.Context) error {
	switch cfg.Cache.Backend {
	case "memory":
		e.Cache = cache.NewMemoryCache()
	case "redis":
		e.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rc := cache.NewRedisCache(e.redis, cfg.Redis.Prefix)
		if err := rc.Ping(ctx); err != nil {
			return eris.Wrap(err, "connect redis cache")
		}
		e.Cache = rc
	case "store", "":
		e.Cache = cache.NewStoreCache(e.Store)
	default:
		return eris.Errorf("unsupported cache backend: %s", cfg.Cache.Backend)
	}
	zap.L().Debug("cache backend ready", zap.String("backend", cfg.Cache.Backend))
	return nil
}

// registerProviders builds an adapter per configured provider and makes
// sure each has a global catalog entry. Static attributes follow the
// config; the enabled flag and rolling stats of an existing entry are kept.
func registerProviders(ctx context.Context, reg *provider.Registry, catalog provider.CatalogStore, providers []config.ProviderConfig, now time.Time) error {
	retry := resilience.FromRetryConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)
	client := &http.Client{}

	for _, pc := range providers {
		a, err := buildAdapter(pc, retry, client)
		if err != nil {
			return err
		}
		reg.Register(a)

		typ := pc.Type
		if typ == "" {
			typ = "http"
		}
		name := pc.Name
		if name == "" {
			name = pc.ID
		}

		entry, err := catalog.GetProvider(ctx, "", pc.ID)
		switch {
		case errors.Is(err, model.ErrNotFound):
			p, err := model.NewProvider(pc.ID, name, typ, pc.Fields, pc.CostPerLookup, now)
			if err != nil {
				return eris.Wrapf(err, "provider %s", pc.ID)
			}
			p.Priority = pc.Priority
			p.Enabled = !pc.Disabled
			if pc.BaseURL != "" {
				p.Config = map[string]any{"base_url": pc.BaseURL}
			}
			entry = &p
		case err != nil:
			return eris.Wrapf(err, "load catalog entry %s", pc.ID)
		default:
			entry.Name = name
			entry.Type = typ
			entry.SupportedFields = pc.Fields
			entry.CostPerLookup = pc.CostPerLookup
			entry.Priority = pc.Priority
			entry.UpdatedAt = now
		}
		if err := reg.Save(ctx, *entry); err != nil {
			return eris.Wrapf(err, "provider %s", pc.ID)
		}
		zap.L().Debug("provider registered",
			zap.String("provider", pc.ID),
			zap.String("type", typ),
			zap.Strings("fields", pc.Fields),
		)
	}
	return nil
}

func buildAdapter(pc config.ProviderConfig, retry resilience.RetryConfig, client *http.Client) (provider.Adapter, error) {
	switch pc.Type {
	case "static":
		values := make(map[string]provider.FieldValue, len(pc.Values))
		for field, v := range pc.Values {
			values[field] = provider.FieldValue{Field: field, Value: v, Confidence: pc.Confidence}
		}
		return &provider.StaticAdapter{
			ProviderID: pc.ID,
			Fields:     pc.Fields,
			Values:     values,
			Cost:       pc.CostPerLookup,
		}, nil
	case "", "http":
		a, err := provider.NewHTTPAdapter(provider.HTTPConfig{
			ID:            pc.ID,
			BaseURL:       pc.BaseURL,
			APIKey:        pc.APIKey,
			Fields:        pc.Fields,
			CostPerLookup: pc.CostPerLookup,
			RatePerSecond: pc.RatePerSecond,
			Burst:         pc.Burst,
			Retry:         retry,
			Client:        client,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, eris.Errorf("provider %s: unsupported type %q", pc.ID, pc.Type)
	}
}
