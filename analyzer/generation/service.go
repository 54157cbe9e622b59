// Package generation is the authoritative compute path for subtasks, workflows and job
// analyses. Every AI result goes through a content-addressed cache; when the model is
// unavailable, slow or returns unusable output, the heuristic classifier answers instead
// and that answer is never cached.
package generation

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/cache"
	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/cache/adapters"
	cacheports "github.com/ZanzyTHEbar/automation-analyzer/analyzer/cache/ports"
	genadapters "github.com/ZanzyTHEbar/automation-analyzer/analyzer/generation/adapters"
	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/generation/models"
	ports "github.com/ZanzyTHEbar/automation-analyzer/analyzer/generation/ports"
	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/heuristics"
)

var (
	// ErrFeatureUnavailable means the backend a feature needs is not configured.
	ErrFeatureUnavailable = errors.New("feature unavailable: backend not configured")
	// ErrEmptyInput is returned for blank task or job text.
	ErrEmptyInput = errors.New("input is empty")
)

const (
	schemaSubtasks = "subtasks"
	schemaWorkflow = "workflow"
	schemaTasks    = "tasks"

	limiterKey = "llm"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ServiceConfig wires a Service. Provider and Scraper may be nil, which disables the AI
// path and URL input respectively. Nil caches disable caching for that kind.
type ServiceConfig struct {
	Provider ports.Provider
	Scraper  ports.Scraper
	Limiter  ports.RateLimiter
	Tracer   cacheports.Tracer

	SubtasksCache *cache.Cache[[]models.Subtask]
	WorkflowCache *cache.Cache[models.Workflow]
	JobTextCache  *cache.Cache[string]

	Classifier     *heuristics.Classifier
	ComputeTimeout time.Duration // per model call, after which the heuristic answers
	Concurrency    int           // parallel subtask computations in AnalyzeJob
	MaxTasks       int           // tasks taken from one job description
	MaxTokens      int
	Temperature    float64

	Logger zerolog.Logger
	Clock  func() time.Time
}

// Service produces subtasks, workflows and job analyses.
type Service struct {
	provider   ports.Provider
	scraper    ports.Scraper
	limiter    ports.RateLimiter
	tracer     cacheports.Tracer
	subtasks   *cache.Cache[[]models.Subtask]
	workflows  *cache.Cache[models.Workflow]
	jobText    *cache.Cache[string]
	classifier *heuristics.Classifier
	prompts    *PromptBuilder
	parser     *OutputParser
	validator  *JSONValidator

	computeTimeout time.Duration
	concurrency    int
	maxTasks       int
	opts           ports.Options

	logger zerolog.Logger
	now    func() time.Time
}

// NewService validates cfg and builds a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	validator, err := loadValidator()
	if err != nil {
		return nil, err
	}

	s := &Service{
		provider:       cfg.Provider,
		scraper:        cfg.Scraper,
		limiter:        cfg.Limiter,
		tracer:         cfg.Tracer,
		subtasks:       cfg.SubtasksCache,
		workflows:      cfg.WorkflowCache,
		jobText:        cfg.JobTextCache,
		classifier:     cfg.Classifier,
		prompts:        NewPromptBuilder(),
		parser:         NewOutputParser(),
		validator:      validator,
		computeTimeout: cfg.ComputeTimeout,
		concurrency:    cfg.Concurrency,
		maxTasks:       cfg.MaxTasks,
		opts: ports.Options{
			MaxNewTokens: cfg.MaxTokens,
			Temperature:  cfg.Temperature,
			JSONMode:     true,
		},
		logger: cfg.Logger,
		now:    cfg.Clock,
	}
	if s.limiter == nil {
		s.limiter = genadapters.NoopLimiter{}
	}
	if s.tracer == nil {
		s.tracer = adapters.NoopTracer{}
	}
	if s.classifier == nil {
		s.classifier = heuristics.NewClassifier()
	}
	if s.computeTimeout <= 0 {
		return nil, fmt.Errorf("compute timeout must be positive, got %s", cfg.ComputeTimeout)
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	if s.now == nil {
		s.now = time.Now
	}

	if s.provider == nil {
		s.logger.Warn().Err(ErrFeatureUnavailable).Msg("No LLM provider configured; using heuristic results only")
	}
	return s, nil
}

func loadValidator() (*JSONValidator, error) {
	schemas := make(map[string][]byte, 3)
	for _, name := range []string{schemaSubtasks, schemaWorkflow, schemaTasks} {
		raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", name, err)
		}
		schemas[name] = raw
	}
	return NewJSONValidator(schemas)
}

// AIAvailable reports whether a model backend is configured.
func (s *Service) AIAvailable() bool { return s.provider != nil }

// Subtasks breaks task into subtasks with automation estimates. It only fails when
// the input is empty or ctx ends; every compute failure degrades to the heuristic.
func (s *Service) Subtasks(ctx context.Context, task string) (res models.SubtaskResult, err error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return res, ErrEmptyInput
	}

	ctx, finish := s.tracer.StartSpan(ctx, "subtasks", map[string]any{"task_key": cache.ComputeKey(task)})
	defer func() { finish(err) }()

	subtasks, source, err := resolve(ctx, s, s.subtasks, task, s.aiSubtasks, s.classifier.FallbackSubtasks)
	if err != nil {
		return res, err
	}
	return models.SubtaskResult{Subtasks: subtasks, Source: source}, nil
}

// Workflow designs an automation workflow for task, with the same fallback rules as Subtasks.
func (s *Service) Workflow(ctx context.Context, task string) (res models.WorkflowResult, err error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return res, ErrEmptyInput
	}

	ctx, finish := s.tracer.StartSpan(ctx, "workflow", map[string]any{"task_key": cache.ComputeKey(task)})
	defer func() { finish(err) }()

	wf, source, err := resolve(ctx, s, s.workflows, task, s.aiWorkflow, s.classifier.FallbackWorkflow)
	if err != nil {
		return res, err
	}
	return models.WorkflowResult{Workflow: wf, Source: source}, nil
}

// JobText returns the text of the job posting at url. There is no fallback: without a
// scraper it fails with ErrFeatureUnavailable.
func (s *Service) JobText(ctx context.Context, url string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", ErrEmptyInput
	}
	if s.scraper == nil {
		return "", fmt.Errorf("job page scraping: %w", ErrFeatureUnavailable)
	}

	if s.jobText == nil {
		return s.scraper.Fetch(ctx, url)
	}
	text, _, err := s.jobText.GetOrCompute(ctx, url, func(ctx context.Context) (string, error) {
		return s.scraper.Fetch(ctx, url)
	})
	return text, err
}

// resolve runs the cached AI path and falls back to the heuristic on any compute error.
// Only the caller's own cancellation is returned as an error.
func resolve[T any](
	ctx context.Context,
	s *Service,
	c *cache.Cache[T],
	input string,
	compute func(context.Context, string) (T, error),
	fallback func(string) T,
) (T, models.Source, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, "", err
	}
	run := func(ctx context.Context) (T, error) { return compute(ctx, input) }

	var (
		value T
		hit   bool
		err   error
	)
	if c != nil {
		value, hit, err = c.GetOrCompute(ctx, input, run)
	} else {
		value, err = run(ctx)
	}

	switch {
	case err == nil && hit:
		return value, models.SourceCache, nil
	case err == nil:
		return value, models.SourceAI, nil
	case ctx.Err() != nil:
		var zero T
		return zero, "", ctx.Err()
	}

	event := s.logger.Warn()
	if errors.Is(err, ErrFeatureUnavailable) {
		event = s.logger.Debug()
	}
	event.Err(err).Str("input_key", cache.ComputeKey(input)).Msg("AI path failed, using heuristic result")
	return fallback(input), models.SourceHeuristic, nil
}

// complete makes one rate-limited model call bounded by the compute timeout and returns
// the schema-validated JSON it produced.
func (s *Service) complete(ctx context.Context, in ports.PromptInput, schema string) (json.RawMessage, error) {
	if s.provider == nil {
		return nil, ErrFeatureUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, s.computeTimeout)
	defer cancel()

	release, err := s.limiter.Acquire(ctx, limiterKey)
	if err != nil {
		return nil, fmt.Errorf("acquiring rate limit: %w", err)
	}
	defer release()

	completion, err := s.provider.Complete(ctx, in, s.opts)
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	raw, err := s.parser.ParseJSONOutput(completion.Text)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(schema, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// aiSubtask is the model's wire shape; numbers may come back as floats.
type aiSubtask struct {
	Title               string   `json:"title"`
	AutomationPotential float64  `json:"automationPotential"`
	EstimatedMinutes    float64  `json:"estimatedMinutes"`
	Category            string   `json:"category"`
	Tools               []string `json:"tools"`
}

func (s *Service) aiSubtasks(ctx context.Context, task string) ([]models.Subtask, error) {
	raw, err := s.complete(ctx, s.prompts.Subtasks(task), schemaSubtasks)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Subtasks []aiSubtask `json:"subtasks"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decoding subtasks: %w", err)
	}

	subtasks := make([]models.Subtask, 0, len(envelope.Subtasks))
	for _, st := range envelope.Subtasks {
		subtasks = append(subtasks, models.Subtask{
			Title:               strings.TrimSpace(st.Title),
			AutomationPotential: int(math.Round(st.AutomationPotential)),
			EstimatedMinutes:    int(math.Round(st.EstimatedMinutes)),
			Category:            st.Category,
			Tools:               st.Tools,
		})
	}
	return subtasks, nil
}

func (s *Service) aiWorkflow(ctx context.Context, task string) (models.Workflow, error) {
	raw, err := s.complete(ctx, s.prompts.Workflow(task), schemaWorkflow)
	if err != nil {
		return models.Workflow{}, err
	}

	var wf models.Workflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		return models.Workflow{}, fmt.Errorf("decoding workflow: %w", err)
	}
	if err := checkEdges(wf); err != nil {
		return models.Workflow{}, err
	}
	return wf, nil
}

// checkEdges rejects edges that reference unknown nodes.
func checkEdges(wf models.Workflow) error {
	ids := make(map[string]bool, len(wf.Nodes))
	for _, n := range wf.Nodes {
		ids[n.ID] = true
	}
	for _, e := range wf.Edges {
		if !ids[e.From] || !ids[e.To] {
			return fmt.Errorf("workflow edge %s -> %s references an unknown node", e.From, e.To)
		}
	}
	return nil
}

// ExtractTasks lists the tasks in a job description, by model when available and by
// line splitting otherwise.
func (s *Service) ExtractTasks(ctx context.Context, jobText string) ([]string, models.Source) {
	if raw, err := s.complete(ctx, s.prompts.Tasks(jobText), schemaTasks); err == nil {
		var envelope struct {
			Tasks []string `json:"tasks"`
		}
		if err := json.Unmarshal(raw, &envelope); err == nil {
			var tasks []string
			for _, t := range envelope.Tasks {
				if t = strings.TrimSpace(t); t != "" {
					tasks = append(tasks, t)
				}
			}
			if len(tasks) > 0 {
				if s.maxTasks > 0 && len(tasks) > s.maxTasks {
					tasks = tasks[:s.maxTasks]
				}
				return tasks, models.SourceAI
			}
		}
	} else if !errors.Is(err, ErrFeatureUnavailable) {
		s.logger.Warn().Err(err).Msg("Task extraction failed, splitting job text instead")
	}

	return heuristics.SplitTasks(jobText, s.maxTasks), models.SourceHeuristic
}

// AnalyzeJob analyzes a job given as free text or as a posting URL. Tasks are analyzed
// concurrently; the overall potential is the time-weighted mean over tasks.
func (s *Service) AnalyzeJob(ctx context.Context, input string) (analysis *models.Analysis, err error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	ctx, finish := s.tracer.StartSpan(ctx, "analyze_job", nil)
	defer func() { finish(err) }()

	analysis = &models.Analysis{
		ID:        uuid.NewString(),
		Input:     input,
		CreatedAt: s.now(),
	}

	jobText := input
	if genadapters.IsURL(input) {
		analysis.SourceURL = input
		if jobText, err = s.JobText(ctx, input); err != nil {
			return nil, fmt.Errorf("failed to fetch job posting: %w", err)
		}
	}

	tasks, _ := s.ExtractTasks(ctx, jobText)
	if len(tasks) == 0 {
		tasks = []string{jobText}
	}

	type indexed struct {
		i    int
		task models.TaskAnalysis
	}

	p := pool.NewWithResults[indexed]().WithContext(ctx).WithMaxGoroutines(s.concurrency)
	for i, task := range tasks {
		p.Go(func(ctx context.Context) (indexed, error) {
			res, err := s.Subtasks(ctx, task)
			if err != nil {
				return indexed{}, err
			}
			return indexed{i: i, task: s.summarizeTask(task, res)}, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return nil, err
	}

	analysis.Tasks = make([]models.TaskAnalysis, len(tasks))
	for _, r := range results {
		analysis.Tasks[r.i] = r.task
	}
	analysis.OverallPotential = overallPotential(analysis.Tasks)

	s.logger.Info().
		Str("analysis_id", analysis.ID).
		Int("tasks", len(analysis.Tasks)).
		Float64("overall_potential", analysis.OverallPotential).
		Msg("Job analysis complete")
	return analysis, nil
}

func (s *Service) summarizeTask(task string, res models.SubtaskResult) models.TaskAnalysis {
	ta := models.TaskAnalysis{
		Task:     task,
		Category: s.classifier.Classify(task).Rule.Category,
		Subtasks: res.Subtasks,
		Source:   res.Source,
	}

	potentials := make([]float64, len(res.Subtasks))
	minutes := make([]float64, len(res.Subtasks))
	seen := make(map[string]bool)
	for i, st := range res.Subtasks {
		potentials[i] = float64(st.AutomationPotential)
		minutes[i] = float64(st.EstimatedMinutes)
		ta.EstimatedMinutes += st.EstimatedMinutes
		for _, tool := range st.Tools {
			if !seen[tool] {
				seen[tool] = true
				ta.Tools = append(ta.Tools, tool)
			}
		}
	}
	ta.AutomationPotential = weightedMean(potentials, minutes)
	if len(ta.Tools) == 0 {
		ta.Tools = s.classifier.RecommendTools(task)
	}
	return ta
}

func overallPotential(tasks []models.TaskAnalysis) float64 {
	potentials := make([]float64, len(tasks))
	minutes := make([]float64, len(tasks))
	for i, t := range tasks {
		potentials[i] = t.AutomationPotential
		minutes[i] = float64(t.EstimatedMinutes)
	}
	return weightedMean(potentials, minutes)
}

// weightedMean is the mean of values weighted by time, falling back to the plain mean
// when no time estimates are known. The result is rounded to one decimal.
func weightedMean(values, weights []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if floats.Sum(weights) <= 0 {
		weights = nil
	}
	return math.Round(stat.Mean(values, weights)*10) / 10
}
