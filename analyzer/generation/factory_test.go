package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/config"
	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/generation/models"
)

func TestFactory_Build(t *testing.T) {
	for _, backend := range []string{"memory", "libsql"} {
		t.Run(backend, func(t *testing.T) {
			cfg := &config.Config{
				Cache: config.CacheConfig{
					Enabled:     true,
					Backend:     backend,
					Version:     1,
					SubtasksTTL: time.Hour,
					WorkflowTTL: time.Hour,
					JobTextTTL:  time.Hour,
				},
				Database:  config.DatabaseConfig{DSN: filepath.Join(t.TempDir(), "cache.db")},
				LLM:       config.LLMConfig{Timeout: time.Second},
				Scraper:   config.ScraperConfig{Enabled: true, Timeout: time.Second},
				RateLimit: config.RateLimitConfig{Enabled: true, Capacity: 5, RefillRate: time.Second},
				Analysis:  config.AnalysisConfig{Concurrency: 2, MaxTasks: 5},
			}

			rt, err := NewFactory(cfg, zerolog.Nop()).Build(context.Background())
			require.NoError(t, err)
			defer rt.Close()

			assert.False(t, rt.Service.AIAvailable())
			require.Len(t, rt.Caches, 3)
			assert.Equal(t, "subtasks_cache_v1", rt.Caches[0].Namespace())

			ctx := context.Background()
			res, err := rt.Service.Subtasks(ctx, "Erstelle Social Media Posts")
			require.NoError(t, err)
			assert.Equal(t, models.SourceHeuristic, res.Source)

			// Heuristic answers never land in the cache
			stats, err := rt.Caches[0].Stats(ctx)
			require.NoError(t, err)
			assert.Zero(t, stats.Entries)
		})
	}
}

func TestFactory_RejectsUnknownProvider(t *testing.T) {
	cfg := &config.Config{
		LLM:      config.LLMConfig{Provider: "mystery", APIKey: "k", Model: "m", Timeout: time.Second},
		Analysis: config.AnalysisConfig{Concurrency: 1},
	}
	_, err := NewFactory(cfg, zerolog.Nop()).Build(context.Background())
	assert.ErrorContains(t, err, "unsupported llm provider")
}

func TestFactory_BuildWithProviderCachesAIResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{"role": "assistant", "content": `{"subtasks":[{"title":"Draft","automationPotential":90,"estimatedMinutes":20}]}`},
			}},
		})
	}))
	defer server.Close()

	cfg := &config.Config{
		Cache: config.CacheConfig{
			Enabled:       true,
			Backend:       "libsql",
			Version:       2,
			SubtasksTTL:   time.Hour,
			WorkflowTTL:   time.Hour,
			JobTextTTL:    time.Hour,
			SweepInterval: time.Minute,
		},
		Database: config.DatabaseConfig{DSN: filepath.Join(t.TempDir(), "cache.db")},
		LLM: config.LLMConfig{
			Provider: "openai",
			BaseURL:  server.URL,
			APIKey:   "test-key",
			Model:    "gpt-4o-mini",
			Timeout:  5 * time.Second,
		},
		Analysis: config.AnalysisConfig{Concurrency: 1},
	}

	rt, err := NewFactory(cfg, zerolog.Nop()).Build(context.Background())
	require.NoError(t, err)
	defer rt.Close()

	assert.True(t, rt.Service.AIAvailable())
	assert.Equal(t, "subtasks_cache_v2", rt.Caches[0].Namespace())

	ctx := context.Background()
	first, err := rt.Service.Subtasks(ctx, "Erstelle Social Media Posts")
	require.NoError(t, err)
	assert.Equal(t, models.SourceAI, first.Source)

	second, err := rt.Service.Subtasks(ctx, "Erstelle Social Media Posts")
	require.NoError(t, err)
	assert.Equal(t, models.SourceCache, second.Source)
	assert.Equal(t, first.Subtasks, second.Subtasks)

	cleared, err := rt.Caches[0].Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cleared)
}

func TestRuntime_CloseIsIdempotent(t *testing.T) {
	cfg := &config.Config{
		Cache: config.CacheConfig{
			Enabled:       true,
			Backend:       "memory",
			Version:       1,
			SubtasksTTL:   time.Hour,
			WorkflowTTL:   time.Hour,
			JobTextTTL:    time.Hour,
			SweepInterval: time.Millisecond,
		},
		LLM:      config.LLMConfig{Timeout: time.Second},
		Analysis: config.AnalysisConfig{Concurrency: 1},
	}

	rt, err := NewFactory(cfg, zerolog.Nop()).Build(context.Background())
	require.NoError(t, err)
	assert.NoError(t, rt.Close())
	assert.NoError(t, rt.Close())
}

func TestFactory_RejectsUnknownBackend(t *testing.T) {
	cfg := &config.Config{
		Cache:    config.CacheConfig{Enabled: true, Backend: "redis", SubtasksTTL: time.Hour},
		LLM:      config.LLMConfig{Timeout: time.Second},
		Analysis: config.AnalysisConfig{Concurrency: 1},
	}
	_, err := NewFactory(cfg, zerolog.Nop()).Build(context.Background())
	assert.ErrorContains(t, err, "unsupported cache backend")
}
