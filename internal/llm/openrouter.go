package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	openRouterBaseURL      = "https://openrouter.ai/api/v1"
	openRouterDefaultModel = "google/gemini-2.0-flash-001"
)

// OpenRouterClient talks to OpenRouter's OpenAI-compatible chat completions
// endpoint through the OpenAI SDK.
type OpenRouterClient struct {
	client     openai.Client
	model      string
	httpClient *http.Client
}

// NewOpenRouterClient creates an OpenRouter client. An empty model selects the default.
func NewOpenRouterClient(opts ClientOptions) *OpenRouterClient {
	model := opts.Model
	if model == "" {
		model = openRouterDefaultModel
	}
	base := opts.BaseURL
	if base == "" {
		base = openRouterBaseURL
	}
	hc := opts.httpClient()
	client := openai.NewClient(
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(strings.TrimRight(base, "/")+"/"),
		option.WithHTTPClient(hc),
		option.WithHeader("X-Title", "flowsketch"),
		option.WithMaxRetries(0),
	)
	return &OpenRouterClient{client: client, model: model, httpClient: hc}
}

// Name returns the provider/model pair.
func (c *OpenRouterClient) Name() string {
	return "openrouter/" + c.model
}

// Generate sends one non-streaming completion request.
func (c *OpenRouterClient) Generate(ctx context.Context, req Request) (*Response, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(req.Prompt)}
	if len(req.Image) > 0 {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: "data:" + req.ImageMIME + ";base64," + base64.StdEncoding.EncodeToString(req.Image),
		}))
	}

	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(parts)},
		Temperature: openai.Float(req.Sampling.Temperature),
		TopP:        openai.Float(req.Sampling.TopP),
	}
	if req.Sampling.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.Sampling.MaxOutputTokens))
	}
	var extra []option.RequestOption
	if req.Sampling.TopK > 0 {
		// top_k is an OpenRouter extension to the OpenAI schema.
		extra = append(extra, option.WithJSONSet("top_k", req.Sampling.TopK))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params, extra...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("openrouter: %w", ctxErr)
		}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &APIError{Provider: "openrouter", StatusCode: apiErr.StatusCode, Body: apiErr.RawJSON()}
		}
		return nil, fmt.Errorf("openrouter: send request: %w", err)
	}

	// OpenRouter reports some upstream failures as a 200 with an error body.
	var body struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if raw := resp.RawJSON(); raw != "" && json.Unmarshal([]byte(raw), &body) == nil && body.Error != nil {
		return nil, fmt.Errorf("openrouter: %s", body.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openrouter: response has no choices")
	}
	return &Response{
		Text:         resp.Choices[0].Message.Content,
		FinishReason: resp.Choices[0].FinishReason,
		Model:        resp.Model,
	}, nil
}

// Close releases idle connections.
func (c *OpenRouterClient) Close() error {
	closeIdle(c.httpClient)
	return nil
}
