package generation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	internal "github.com/ZanzyTHEbar/automation-analyzer/analyzer"
	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/cache"
	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/cache/adapters"
	cacheports "github.com/ZanzyTHEbar/automation-analyzer/analyzer/cache/ports"
	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/config"
	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/db"
	genadapters "github.com/ZanzyTHEbar/automation-analyzer/analyzer/generation/adapters"
	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/generation/models"
	ports "github.com/ZanzyTHEbar/automation-analyzer/analyzer/generation/ports"
	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/heuristics"
)

// Factory creates and wires service components from configuration.
type Factory struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// NewFactory creates a new factory.
func NewFactory(cfg *config.Config, logger zerolog.Logger) *Factory {
	return &Factory{cfg: cfg, logger: logger}
}

// Runtime owns everything the factory opened. Close releases it in reverse order.
type Runtime struct {
	Service *Service
	Caches  []Maintainer

	closers []func() error
}

// Maintainer is the namespace maintenance surface shared by every cache instance.
type Maintainer interface {
	Namespace() string
	Stats(ctx context.Context) (cache.Stats, error)
	Sweep(ctx context.Context) (int, error)
	Clear(ctx context.Context) (int, error)
}

// Close stops background work and closes the database, if any.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build wires a Service and its caches from the configuration.
func (f *Factory) Build(ctx context.Context) (*Runtime, error) {
	rt := &Runtime{}
	tracer := adapters.NewZerologTracer(f.logger)

	var (
		subtasks  *cache.Cache[[]models.Subtask]
		workflows *cache.Cache[models.Workflow]
		jobText   *cache.Cache[string]
	)
	if f.cfg.Cache.Enabled {
		store, err := f.createStore(ctx, rt)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}

		if subtasks, err = newCache[[]models.Subtask](f, rt, store, tracer, internal.SubtasksCacheName, f.cfg.Cache.SubtasksTTL, false); err != nil {
			_ = rt.Close()
			return nil, err
		}
		if workflows, err = newCache[models.Workflow](f, rt, store, tracer, internal.WorkflowCacheName, f.cfg.Cache.WorkflowTTL, false); err != nil {
			_ = rt.Close()
			return nil, err
		}
		if jobText, err = newCache[string](f, rt, store, tracer, internal.JobTextCacheName, f.cfg.Cache.JobTextTTL, true); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	provider, err := f.createProvider()
	if err != nil && !errors.Is(err, ErrFeatureUnavailable) {
		_ = rt.Close()
		return nil, err
	}

	svc, err := NewService(ServiceConfig{
		Provider:       provider,
		Scraper:        f.createScraper(),
		Limiter:        f.createRateLimiter(),
		Tracer:         tracer,
		SubtasksCache:  subtasks,
		WorkflowCache:  workflows,
		JobTextCache:   jobText,
		Classifier:     heuristics.NewClassifier(),
		ComputeTimeout: f.cfg.LLM.Timeout,
		Concurrency:    f.cfg.Analysis.Concurrency,
		MaxTasks:       f.cfg.Analysis.MaxTasks,
		MaxTokens:      f.cfg.LLM.MaxTokens,
		Temperature:    f.cfg.LLM.Temperature,
		Logger:         f.logger,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Service = svc
	return rt, nil
}

func newCache[T any](f *Factory, rt *Runtime, store cacheports.Store, tracer cacheports.Tracer, name string, ttl time.Duration, async bool) (*cache.Cache[T], error) {
	c, err := cache.New[T](cache.Options{
		Namespace:   cache.Namespace(name, f.cfg.Cache.Version),
		TTL:         ttl,
		Store:       store,
		Tracer:      tracer,
		Logger:      f.logger,
		AsyncWrites: async,
	})
	if err != nil {
		return nil, err
	}
	c.StartSweeper(f.cfg.Cache.SweepInterval)
	rt.Caches = append(rt.Caches, c)
	rt.closers = append(rt.closers, c.Close)
	return c, nil
}

// createStore opens the configured cache backend.
func (f *Factory) createStore(ctx context.Context, rt *Runtime) (cacheports.Store, error) {
	switch f.cfg.Cache.Backend {
	case "memory":
		return adapters.NewMemoryStore(), nil
	case "libsql":
		path := f.cfg.Database.DSN
		if !filepath.IsAbs(path) && f.cfg.Database.LibSQLDataDir != "" && filepath.Dir(path) == "." {
			path = filepath.Join(f.cfg.Database.LibSQLDataDir, path)
		}
		conn, err := db.ConnectToDB(ctx, path, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache database: %w", err)
		}
		rt.closers = append(rt.closers, conn.Close)
		return adapters.NewLibSQLStore(conn), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", f.cfg.Cache.Backend)
	}
}

// createProvider returns ErrFeatureUnavailable when no API key is configured.
func (f *Factory) createProvider() (ports.Provider, error) {
	if !f.cfg.LLM.AIEnabled() {
		return nil, ErrFeatureUnavailable
	}
	switch f.cfg.LLM.Provider {
	case "", "openai":
		p, err := genadapters.NewOpenAIProvider(genadapters.OpenAIConfig{
			APIKey:     f.cfg.LLM.APIKey,
			Model:      f.cfg.LLM.Model,
			BaseURL:    f.cfg.LLM.BaseURL,
			MaxRetries: f.cfg.LLM.MaxRetries,
		}, f.logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", f.cfg.LLM.Provider)
	}
}

func (f *Factory) createScraper() ports.Scraper {
	if !f.cfg.Scraper.Enabled {
		return nil
	}
	return genadapters.NewHTTPScraper(genadapters.HTTPScraperConfig{
		BaseURL:  f.cfg.Scraper.BaseURL,
		APIKey:   f.cfg.Scraper.APIKey,
		Timeout:  f.cfg.Scraper.Timeout,
		MaxBytes: f.cfg.Scraper.MaxBytes,
	}, f.logger)
}

func (f *Factory) createRateLimiter() ports.RateLimiter {
	if !f.cfg.RateLimit.Enabled {
		return genadapters.NoopLimiter{}
	}
	return genadapters.NewTokenBucket(f.cfg.RateLimit.Capacity, f.cfg.RateLimit.RefillRate)
}
