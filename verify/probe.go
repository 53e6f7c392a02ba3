package verify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// defaultUserAgent is the shared browser-like header profile for probe
// requests. Several academy directories serve different pages to obvious
// bots.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// ProberConfig configures the HTTP prober.
type ProberConfig struct {
	// Timeout bounds each probe request. Default: 15s.
	Timeout time.Duration
	// MaxBytes caps the response body read. Default: 2MB.
	MaxBytes int64
	// UserAgent sent with requests. Default: a browser-like profile.
	UserAgent string
}

func (c *ProberConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 2 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
}

// ProbeResult is one fetched page: status, body text, and the page title
// extracted for diagnostics.
type ProbeResult struct {
	StatusCode int
	Body       string
	Title      string
}

// Prober issues bounded, read-only GET requests against record identifiers.
type Prober struct {
	client *http.Client
	config ProberConfig
}

// NewProber creates a Prober. Redirects are followed, bounded at 5 hops.
func NewProber(cfg ProberConfig) *Prober {
	cfg.defaults()
	return &Prober{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Get fetches a URL and returns status, capped body, and page title.
// Non-2xx statuses are not errors here, classification is the caller's job;
// only transport-level failures return an error.
func (p *Prober) Get(ctx context.Context, url string) (*ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", p.config.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.config.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	text := string(body)
	return &ProbeResult{
		StatusCode: resp.StatusCode,
		Body:       text,
		Title:      pageTitle(text),
	}, nil
}

// pageTitle extracts the <title> text of an HTML page, collapsed to one line.
// Returns "" when the document has no title or is not HTML.
func pageTitle(body string) string {
	z := html.NewTokenizer(strings.NewReader(body))
	inTitle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			if string(name) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.Join(strings.Fields(string(z.Text())), " ")
			}
		case html.EndTagToken:
			inTitle = false
		}
	}
}
