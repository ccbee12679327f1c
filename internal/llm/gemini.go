package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

const geminiDefaultModel = "gemini-2.0-flash"

// GeminiClient calls generateContent through the Gen AI SDK.
type GeminiClient struct {
	client     *genai.Client
	model      string
	httpClient *http.Client
}

// NewGeminiClient creates a Gemini client. An empty model selects the default.
func NewGeminiClient(opts ClientOptions) (*GeminiClient, error) {
	model := opts.Model
	if model == "" {
		model = geminiDefaultModel
	}
	hc := opts.httpClient()

	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{
			BaseURL:    strings.TrimRight(opts.BaseURL, "/") + "/",
			APIVersion: "v1beta",
		}
	}
	client, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiClient{client: client, model: model, httpClient: hc}, nil
}

// Name returns the provider/model pair.
func (c *GeminiClient) Name() string {
	return "gemini/" + c.model
}

// Generate sends one generateContent call. There is no retry.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (*Response, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if len(req.Image) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Image, req.ImageMIME))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, generationConfig(req.Sampling))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("gemini: %w", ctxErr)
		}
		return nil, geminiError(err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return nil, errors.New("gemini: response has no candidates")
	}

	cand := resp.Candidates[0]
	var text strings.Builder
	if cand.Content != nil {
		for _, p := range cand.Content.Parts {
			text.WriteString(p.Text)
		}
	}
	model := resp.ModelVersion
	if model == "" {
		model = c.model
	}
	return &Response{Text: text.String(), FinishReason: string(cand.FinishReason), Model: model}, nil
}

// Close releases idle connections.
func (c *GeminiClient) Close() error {
	closeIdle(c.httpClient)
	return nil
}

func generationConfig(s Sampling) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(s.Temperature)),
		TopP:        genai.Ptr(float32(s.TopP)),
		TopK:        genai.Ptr(float32(s.TopK)),
	}
	if s.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(s.MaxOutputTokens)
	}
	return cfg
}

// geminiError maps SDK status errors onto APIError.
func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return &APIError{Provider: "gemini", StatusCode: apiErr.Code, Body: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr.Code != 0 {
		return &APIError{Provider: "gemini", StatusCode: apiErrPtr.Code, Body: apiErrPtr.Message}
	}
	return fmt.Errorf("gemini: generate content: %w", err)
}
