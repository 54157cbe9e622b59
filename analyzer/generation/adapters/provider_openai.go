package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	ports "github.com/ZanzyTHEbar/automation-analyzer/analyzer/generation/ports"
)

const defaultOpenAIURL = "https://api.openai.com/v1/chat/completions"

// OpenAIConfig configures an OpenAI-compatible chat completions backend.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
	Backoff    time.Duration // first retry delay, doubled per attempt
	Client     *http.Client
}

// OpenAIProvider implements the Provider interface over the chat completions API.
type OpenAIProvider struct {
	apiKey     string
	model      string
	baseURL    string
	maxRetries int
	backoff    time.Duration
	client     *http.Client
	logger     zerolog.Logger
}

// NewOpenAIProvider creates a provider. A missing API key is a configuration error.
func NewOpenAIProvider(cfg OpenAIConfig, logger zerolog.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is not set")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai: model is not set")
	}

	p := &OpenAIProvider{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    cfg.BaseURL,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		client:     cfg.Client,
		logger:     logger.With().Str("provider", "openai").Logger(),
	}
	if p.baseURL == "" {
		p.baseURL = defaultOpenAIURL
	}
	if p.backoff <= 0 {
		p.backoff = time.Second
	}
	if p.client == nil {
		// Callers bound each request with a context deadline
		p.client = &http.Client{Timeout: 120 * time.Second}
	}
	return p, nil
}

// Complete sends one chat completion request, retrying upstream rate limits and 5xx.
func (o *OpenAIProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	maxTokens := opts.MaxNewTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	messages := make([]openaiMessage, 0, len(in.Messages)+1)
	if in.System != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: in.System})
	}
	for _, m := range in.Messages {
		messages = append(messages, openaiMessage{Role: m.Role, Content: m.Content})
	}

	body := openaiRequest{
		Model:     o.model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if opts.Temperature > 0 {
		body.Temperature = &opts.Temperature
	}
	if opts.JSONMode {
		body.ResponseFormat = &openaiResponseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("marshaling request: %w", err)
	}

	var resp ports.Completion
	attempt := 0
	err = retryWithBackoff(ctx, o.maxRetries, o.backoff, func() error {
		attempt++
		if attempt > 1 {
			o.logger.Debug().Int("attempt", attempt).Msg("Retrying completion request")
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

		httpResp, err := o.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer httpResp.Body.Close()

		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		switch {
		case httpResp.StatusCode == http.StatusTooManyRequests:
			return &rateLimitError{}
		case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
			return &authError{message: string(respBody)}
		case httpResp.StatusCode >= 500:
			return &serverError{statusCode: httpResp.StatusCode, body: string(respBody)}
		case httpResp.StatusCode != http.StatusOK:
			return fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, string(respBody))
		}

		var result openaiResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
		if len(result.Choices) == 0 {
			return fmt.Errorf("no choices in response")
		}
		if result.Choices[0].Message.Content == "" {
			return fmt.Errorf("empty text content in API response")
		}

		resp = ports.Completion{
			Text: result.Choices[0].Message.Content,
			Usage: &ports.Usage{
				PromptTokens:     result.Usage.PromptTokens,
				CompletionTokens: result.Usage.CompletionTokens,
				TotalTokens:      result.Usage.TotalTokens,
			},
		}
		return nil
	})

	return resp, err
}

type openaiRequest struct {
	Model          string                `json:"model"`
	Messages       []openaiMessage       `json:"messages"`
	MaxTokens      int                   `json:"max_tokens"`
	Temperature    *float64              `json:"temperature,omitempty"`
	ResponseFormat *openaiResponseFormat `json:"response_format,omitempty"`
}

type openaiResponseFormat struct {
	Type string `json:"type"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Message openaiMessage `json:"message"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

var _ ports.Provider = (*OpenAIProvider)(nil)
