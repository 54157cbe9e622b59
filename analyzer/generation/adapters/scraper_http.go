package adapters

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	ports "github.com/ZanzyTHEbar/automation-analyzer/analyzer/generation/ports"
)

// ErrInvalidURL is returned for inputs that are not absolute http(s) URLs.
var ErrInvalidURL = errors.New("scraper: not an http(s) url")

// HTTPScraperConfig configures the job page fetcher.
type HTTPScraperConfig struct {
	// BaseURL of a scraping service called as GET {BaseURL}?url={target}. Empty fetches
	// the target directly.
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	MaxBytes int64
	Client   *http.Client
}

// HTTPScraper fetches a page and reduces it to readable text, one block per line.
type HTTPScraper struct {
	baseURL  string
	apiKey   string
	timeout  time.Duration
	maxBytes int64
	client   *http.Client
	logger   zerolog.Logger
}

// NewHTTPScraper creates a scraper.
func NewHTTPScraper(cfg HTTPScraperConfig, logger zerolog.Logger) *HTTPScraper {
	s := &HTTPScraper{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		timeout:  cfg.Timeout,
		maxBytes: cfg.MaxBytes,
		client:   cfg.Client,
		logger:   logger.With().Str("component", "scraper").Logger(),
	}
	if s.maxBytes <= 0 {
		s.maxBytes = 2 << 20
	}
	if s.client == nil {
		s.client = &http.Client{}
	}
	return s
}

// IsURL reports whether input looks like an absolute http(s) URL.
func IsURL(input string) bool {
	u, err := url.Parse(strings.TrimSpace(input))
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Fetch returns the text content of the page at target.
func (s *HTTPScraper) Fetch(ctx context.Context, target string) (string, error) {
	target = strings.TrimSpace(target)
	if !IsURL(target) {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, target)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	reqURL := target
	if s.baseURL != "" {
		reqURL = s.baseURL + "?url=" + url.QueryEscape(target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/html, text/plain;q=0.9")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: unexpected status %d", target, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", target, err)
	}

	text := string(body)
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		text = ExtractText(text)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("fetching %s: page has no text content", target)
	}

	s.logger.Debug().Str("url", target).Int("bytes", len(body)).Int("chars", len(text)).Msg("Fetched job page")
	return text, nil
}

var (
	dropBlocks  = regexp.MustCompile(`(?is)<(script|style|noscript|svg|head)\b.*?</(script|style|noscript|svg|head)>`)
	comments    = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockTags   = regexp.MustCompile(`(?i)<(br|/?p|/?div|/?li|/?ul|/?ol|/?tr|/?h[1-6]|/?section|/?article)\b[^>]*>`)
	listItem    = regexp.MustCompile(`(?i)<li\b[^>]*>`)
	anyTag      = regexp.MustCompile(`(?s)<[^>]+>`)
	inlineSpace = regexp.MustCompile(`[ \t\f\v\p{Zs}]+`)
)

// ExtractText turns an HTML document into plain text, keeping one line per block
// element and marking list items with "- " so job duties survive as bullets.
func ExtractText(doc string) string {
	doc = dropBlocks.ReplaceAllString(doc, " ")
	doc = comments.ReplaceAllString(doc, " ")
	doc = listItem.ReplaceAllString(doc, "\n- ")
	doc = blockTags.ReplaceAllString(doc, "\n")
	doc = anyTag.ReplaceAllString(doc, " ")
	doc = html.UnescapeString(doc)

	var lines []string
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(inlineSpace.ReplaceAllString(line, " "))
		if line != "" && line != "-" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

var _ ports.Scraper = (*HTTPScraper)(nil)
