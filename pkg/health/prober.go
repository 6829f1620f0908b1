package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shipway/shipway/pkg/types"
)

// Prober issues a single liveness check and classifies the result. Probers
// never retry: retry policy lives in the state machine so attempt counts
// and backoff stay on one configuration surface.
type Prober interface {
	Probe(ctx context.Context) types.HealthResult
}

// HTTPProber performs a bounded-timeout HTTP GET against the target's
// declared health endpoint. Healthy means a 2xx status AND a JSON body
// whose health indicator field is affirmative.
type HTTPProber struct {
	// URL is the full health endpoint (e.g. "https://api.example.com/health").
	URL string

	// Headers are custom HTTP headers to include in the request.
	Headers map[string]string

	// Client is the HTTP client to use (allows custom configuration).
	Client *http.Client
}

// NewHTTPProber creates a prober for the given endpoint with the given
// per-probe timeout.
func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		URL:     url,
		Headers: make(map[string]string),
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithHeader adds a custom HTTP header.
func (p *HTTPProber) WithHeader(key, value string) *HTTPProber {
	p.Headers[key] = value
	return p
}

// maxHealthBody caps how much of a health response is read. Health bodies
// are tiny; anything larger is itself suspicious.
const maxHealthBody = 64 * 1024

// Probe performs the health check.
func (p *HTTPProber) Probe(ctx context.Context) types.HealthResult {
	start := time.Now()

	fail := func(detail string) types.HealthResult {
		return types.HealthResult{
			Healthy:   false,
			Detail:    detail,
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fail(fmt.Sprintf("failed to create request: %v", err))
	}
	for key, value := range p.Headers {
		req.Header.Set(key, value)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return fail(fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHealthBody))
	if err != nil {
		return fail(fmt.Sprintf("failed to read body: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}

	healthy, detail := classifyBody(body)
	return types.HealthResult{
		Healthy:   healthy,
		Detail:    detail,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// healthFields are the JSON fields checked, in order, for the health
// indicator.
var healthFields = []string{"healthy", "status", "ok"}

// classifyBody inspects the JSON health indicator. Accepted affirmative
// values: true, "true", "ok", "healthy", "up", "pass". A body that is not
// JSON, or carries none of the known fields, is classified unhealthy; an
// endpoint that answers 200 with garbage is not evidence of health.
func classifyBody(body []byte) (bool, string) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return false, "empty health response"
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return false, fmt.Sprintf("non-JSON health response: %.80s", trimmed)
	}

	for _, field := range healthFields {
		v, ok := payload[field]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case bool:
			return val, fmt.Sprintf("%s=%t", field, val)
		case string:
			lower := strings.ToLower(val)
			affirmative := lower == "true" || lower == "ok" || lower == "healthy" ||
				lower == "up" || lower == "pass"
			return affirmative, fmt.Sprintf("%s=%q", field, val)
		}
	}
	return false, "no health indicator field in response"
}
