package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Model is a generative model endpoint: one prompt in, free-form text out.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Name() string
}

// Sampling holds the generation parameters sent with every request.
type Sampling struct {
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int // 0 leaves the provider default
}

// DefaultSampling favors structurally consistent output over variety.
func DefaultSampling() Sampling {
	return Sampling{Temperature: 0.3, TopP: 0.8, TopK: 40}
}

// Request is a single-turn prompt: instruction text plus optional inline image.
type Request struct {
	Prompt    string
	Image     []byte
	ImageMIME string
	Sampling  Sampling
}

// Response is the text the model produced.
type Response struct {
	Text         string
	FinishReason string
	Model        string
}

// APIError is returned for any non-2xx provider response.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("%s: API returned status %d: %s", e.Provider, e.StatusCode, body)
}

// ClientOptions is shared by the HTTP-backed models.
type ClientOptions struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the default client. Tests inject httptest clients here.
	HTTPClient *http.Client
}

func (o ClientOptions) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &http.Client{Timeout: timeout}
}

// closeIdle releases pooled connections held by c.
func closeIdle(c *http.Client) {
	if c != nil {
		c.CloseIdleConnections()
	}
}
