package generation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/cache"
	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/cache/adapters"
	genadapters "github.com/ZanzyTHEbar/automation-analyzer/analyzer/generation/adapters"
	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/generation/models"
	ports "github.com/ZanzyTHEbar/automation-analyzer/analyzer/generation/ports"
)

const (
	subtasksReply = "Here you go:\n```json\n" + `{"subtasks":[
  {"title":"Themen recherchieren","automationPotential":60,"estimatedMinutes":30,"category":"content","tools":["Perplexity"]},
  {"title":"Texte schreiben","automationPotential":80.4,"estimatedMinutes":30,"tools":["ChatGPT"]}
]}` + "\n```"
	workflowReply = `{"title":"Social posts","nodes":[
  {"id":"t","label":"Calendar entry","kind":"trigger"},
  {"id":"a","label":"Draft","kind":"ai"},
  {"id":"o","label":"Publish","kind":"output"}],
  "edges":[{"from":"t","to":"a"},{"from":"a","to":"o"}],"integrations":["Buffer"]}`
	tasksReply = `{"tasks":["Erstelle Social Media Posts","Rechnungen prüfen und buchen"]}`
)

// StubProvider implements Provider for testing.
type StubProvider struct {
	calls          atomic.Int32
	completionFunc func(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error)
}

func (p *StubProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	p.calls.Add(1)
	if p.completionFunc != nil {
		return p.completionFunc(ctx, in, opts)
	}
	switch in.Meta["kind"] {
	case "subtasks":
		return ports.Completion{Text: subtasksReply}, nil
	case "workflow":
		return ports.Completion{Text: workflowReply}, nil
	case "tasks":
		return ports.Completion{Text: tasksReply}, nil
	}
	return ports.Completion{}, errors.New("unexpected prompt")
}

// mockScraper is a testify mock for the Scraper port.
type mockScraper struct {
	mock.Mock
}

func (m *mockScraper) Fetch(ctx context.Context, url string) (string, error) {
	args := m.Called(ctx, url)
	return args.String(0), args.Error(1)
}

type testDeps struct {
	provider ports.Provider
	scraper  ports.Scraper
	limiter  ports.RateLimiter
	timeout  time.Duration
	noCache  bool
}

func newTestService(t *testing.T, deps testDeps) *Service {
	t.Helper()

	cfg := ServiceConfig{
		Provider:       deps.provider,
		Scraper:        deps.scraper,
		Limiter:        deps.limiter,
		ComputeTimeout: deps.timeout,
		Concurrency:    2,
		MaxTasks:       10,
		Logger:         zerolog.Nop(),
	}
	if cfg.ComputeTimeout == 0 {
		cfg.ComputeTimeout = time.Second
	}

	if !deps.noCache {
		store := adapters.NewMemoryStore()
		cfg.SubtasksCache = mustCache[[]models.Subtask](t, store, "subtasks_cache_v1", 14*24*time.Hour)
		cfg.WorkflowCache = mustCache[models.Workflow](t, store, "workflow_cache_v1", 14*24*time.Hour)
		cfg.JobTextCache = mustCache[string](t, store, "jobtext_cache_v1", 24*time.Hour)
	}

	svc, err := NewService(cfg)
	require.NoError(t, err)
	return svc
}

func mustCache[T any](t *testing.T, store *adapters.MemoryStore, ns string, ttl time.Duration) *cache.Cache[T] {
	t.Helper()
	c, err := cache.New[T](cache.Options{Namespace: ns, TTL: ttl, Store: store})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSubtasks_AIThenCache(t *testing.T) {
	provider := &StubProvider{}
	svc := newTestService(t, testDeps{provider: provider})
	ctx := context.Background()

	res, err := svc.Subtasks(ctx, "Erstelle Social Media Posts")
	require.NoError(t, err)
	assert.Equal(t, models.SourceAI, res.Source)
	require.Len(t, res.Subtasks, 2)
	assert.Equal(t, "Themen recherchieren", res.Subtasks[0].Title)
	assert.Equal(t, 80, res.Subtasks[1].AutomationPotential)

	// Same content after normalization is served from the cache
	again, err := svc.Subtasks(ctx, "  erstelle social media POSTS ")
	require.NoError(t, err)
	assert.Equal(t, models.SourceCache, again.Source)
	assert.Equal(t, res.Subtasks, again.Subtasks)
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestSubtasks_InvalidOutputFallsBackAndIsNotCached(t *testing.T) {
	provider := &StubProvider{
		completionFunc: func(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
			// automationPotential out of range
			return ports.Completion{Text: `{"subtasks":[{"title":"x","automationPotential":250}]}`}, nil
		},
	}
	svc := newTestService(t, testDeps{provider: provider})
	ctx := context.Background()

	res, err := svc.Subtasks(ctx, "Erstelle Social Media Posts")
	require.NoError(t, err)
	assert.Equal(t, models.SourceHeuristic, res.Source)
	assert.Len(t, res.Subtasks, 3)

	res, err = svc.Subtasks(ctx, "Erstelle Social Media Posts")
	require.NoError(t, err)
	assert.Equal(t, models.SourceHeuristic, res.Source)
	assert.Equal(t, int32(2), provider.calls.Load())
}

func TestSubtasks_NoProvider(t *testing.T) {
	svc := newTestService(t, testDeps{})
	assert.False(t, svc.AIAvailable())

	res, err := svc.Subtasks(context.Background(), "Rechnungen prüfen")
	require.NoError(t, err)
	assert.Equal(t, models.SourceHeuristic, res.Source)
	assert.Equal(t, "finance", res.Subtasks[0].Category)
}

func TestSubtasks_TimeoutFallsBack(t *testing.T) {
	provider := &StubProvider{
		completionFunc: func(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
			<-ctx.Done()
			return ports.Completion{}, ctx.Err()
		},
	}
	svc := newTestService(t, testDeps{provider: provider, timeout: 20 * time.Millisecond})

	start := time.Now()
	res, err := svc.Subtasks(context.Background(), "Write weekly report")
	require.NoError(t, err)
	assert.Equal(t, models.SourceHeuristic, res.Source)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSubtasks_CallerCancellationIsReturned(t *testing.T) {
	svc := newTestService(t, testDeps{provider: &StubProvider{}, noCache: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Subtasks(ctx, "Write weekly report")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubtasks_RateLimitedFallsBack(t *testing.T) {
	provider := &StubProvider{}
	svc := newTestService(t, testDeps{provider: provider, limiter: genadapters.NewTokenBucket(1, time.Hour)})
	ctx := context.Background()

	first, err := svc.Subtasks(ctx, "Erstelle Social Media Posts")
	require.NoError(t, err)
	assert.Equal(t, models.SourceAI, first.Source)

	second, err := svc.Subtasks(ctx, "Rechnungen prüfen")
	require.NoError(t, err)
	assert.Equal(t, models.SourceHeuristic, second.Source)
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestSubtasks_EmptyInput(t *testing.T) {
	svc := newTestService(t, testDeps{})
	_, err := svc.Subtasks(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = svc.Workflow(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = svc.AnalyzeJob(context.Background(), "\n")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestWorkflow(t *testing.T) {
	provider := &StubProvider{}
	svc := newTestService(t, testDeps{provider: provider})
	ctx := context.Background()

	res, err := svc.Workflow(ctx, "Erstelle Social Media Posts")
	require.NoError(t, err)
	assert.Equal(t, models.SourceAI, res.Source)
	assert.Equal(t, "Social posts", res.Workflow.Title)
	assert.Len(t, res.Workflow.Nodes, 3)

	res, err = svc.Workflow(ctx, "Erstelle Social Media Posts")
	require.NoError(t, err)
	assert.Equal(t, models.SourceCache, res.Source)
}

func TestWorkflow_DanglingEdgeFallsBack(t *testing.T) {
	provider := &StubProvider{
		completionFunc: func(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
			return ports.Completion{Text: `{"title":"x","nodes":[{"id":"a","label":"A","kind":"trigger"},{"id":"b","label":"B","kind":"output"}],"edges":[{"from":"a","to":"zzz"}]}`}, nil
		},
	}
	svc := newTestService(t, testDeps{provider: provider})

	res, err := svc.Workflow(context.Background(), "Rechnungen prüfen")
	require.NoError(t, err)
	assert.Equal(t, models.SourceHeuristic, res.Source)
	assert.Equal(t, models.NodeTrigger, res.Workflow.Nodes[0].Kind)
}

func TestJobText_CachedAndUnavailable(t *testing.T) {
	scraper := &mockScraper{}
	scraper.On("Fetch", mock.Anything, "https://jobs.example.com/1").Return("- Erstelle Social Media Posts", nil).Once()

	svc := newTestService(t, testDeps{scraper: scraper})
	ctx := context.Background()

	for range 2 {
		text, err := svc.JobText(ctx, "https://jobs.example.com/1")
		require.NoError(t, err)
		assert.Equal(t, "- Erstelle Social Media Posts", text)
	}
	scraper.AssertExpectations(t)

	_, err := newTestService(t, testDeps{}).JobText(ctx, "https://jobs.example.com/1")
	assert.ErrorIs(t, err, ErrFeatureUnavailable)
}

func TestJobText_ErrorsAreReturned(t *testing.T) {
	scraper := &mockScraper{}
	scraper.On("Fetch", mock.Anything, mock.Anything).Return("", errors.New("status 404"))

	svc := newTestService(t, testDeps{scraper: scraper})
	_, err := svc.AnalyzeJob(context.Background(), "https://jobs.example.com/missing")
	assert.ErrorContains(t, err, "status 404")
}

func TestAnalyzeJob_Heuristic(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, testDeps{})
	svc.now = func() time.Time { return now }

	analysis, err := svc.AnalyzeJob(context.Background(), "Ihre Aufgaben:\n- Erstelle Social Media Posts\n- Rechnungen prüfen und buchen")
	require.NoError(t, err)

	_, err = uuid.Parse(analysis.ID)
	assert.NoError(t, err)
	assert.Equal(t, now, analysis.CreatedAt)
	assert.Empty(t, analysis.SourceURL)

	require.Len(t, analysis.Tasks, 2)
	assert.Equal(t, "Erstelle Social Media Posts", analysis.Tasks[0].Task)
	assert.Equal(t, "content", analysis.Tasks[0].Category)
	assert.InDelta(t, 72.3, analysis.Tasks[0].AutomationPotential, 1e-9)
	assert.Equal(t, 55, analysis.Tasks[0].EstimatedMinutes)
	assert.Equal(t, models.SourceHeuristic, analysis.Tasks[0].Source)

	assert.Equal(t, "Rechnungen prüfen und buchen", analysis.Tasks[1].Task)
	assert.InDelta(t, 77.3, analysis.Tasks[1].AutomationPotential, 1e-9)
	assert.InDelta(t, 74.8, analysis.OverallPotential, 1e-9)
}

func TestAnalyzeJob_URLWithAI(t *testing.T) {
	scraper := &mockScraper{}
	scraper.On("Fetch", mock.Anything, "https://jobs.example.com/42").Return("Marketing Assistant\nlots of text", nil).Once()
	provider := &StubProvider{}

	svc := newTestService(t, testDeps{provider: provider, scraper: scraper})
	analysis, err := svc.AnalyzeJob(context.Background(), "https://jobs.example.com/42")
	require.NoError(t, err)

	assert.Equal(t, "https://jobs.example.com/42", analysis.SourceURL)
	require.Len(t, analysis.Tasks, 2)
	assert.Equal(t, "Rechnungen prüfen und buchen", analysis.Tasks[1].Task)
	for _, ta := range analysis.Tasks {
		assert.Equal(t, models.SourceAI, ta.Source)
		// (60*30 + 80*30) / 60
		assert.InDelta(t, 70.0, ta.AutomationPotential, 1e-9)
		assert.Equal(t, []string{"Perplexity", "ChatGPT"}, ta.Tools)
	}
	assert.InDelta(t, 70.0, analysis.OverallPotential, 1e-9)
	// one task extraction and one subtask call per task
	assert.Equal(t, int32(3), provider.calls.Load())
	scraper.AssertExpectations(t)
}

func TestWeightedMean(t *testing.T) {
	assert.Equal(t, 0.0, weightedMean(nil, nil))
	assert.InDelta(t, 50.0, weightedMean([]float64{40, 60}, []float64{0, 0}), 1e-9)
	assert.InDelta(t, 55.0, weightedMean([]float64{40, 60}, []float64{1, 3}), 1e-9)
}
