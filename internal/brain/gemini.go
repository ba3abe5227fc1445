package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

const (
	DefaultGeminiModel    = "gemini-2.0-flash"
	DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"
)

// GeminiOptions configures a GeminiProvider. Zero values take defaults.
type GeminiOptions struct {
	APIKey   string
	Model    string
	Endpoint string
	Timeout  time.Duration
	// RequestsPerSecond paces outgoing calls. Zero means unlimited.
	RequestsPerSecond float64
	Logger            *log.Logger
}

// GeminiProvider implements the Provider interface for Google's Gemini models
type GeminiProvider struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	backoffs []time.Duration
	log      *log.Logger
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(opts GeminiOptions) *GeminiProvider {
	if opts.Model == "" {
		opts.Model = DefaultGeminiModel
	}
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultGeminiEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &GeminiProvider{
		apiKey:   opts.APIKey,
		model:    opts.Model,
		endpoint: strings.TrimRight(opts.Endpoint, "/"),
		client:   &http.Client{Timeout: opts.Timeout},
		limiter:  rate.NewLimiter(limit, 1),
		backoffs: []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
		log:      opts.Logger,
	}
}

func (g *GeminiProvider) Name() string {
	return "gemini/" + g.model
}

func (g *GeminiProvider) Available() bool {
	return g.apiKey != ""
}

// Generate sends one prompt. 429 and 5xx responses are retried with backoff;
// other non-200 responses fail immediately.
func (g *GeminiProvider) Generate(ctx context.Context, req Request) (Response, error) {
	if !g.Available() {
		return Response{}, ErrNotConfigured
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limiter: %w", err)
	}

	body := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: req.UserPrompt}},
		}},
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	if req.MaxTokens > 0 {
		body.GenerationConfig = &geminiGenerationConfig{MaxOutputTokens: req.MaxTokens}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	g.log.Debug("Gemini API request starting", "model", g.model, "prompt_length", len(req.UserPrompt))

	respBody, err := g.doWithRetry(ctx, jsonBody)
	if err != nil {
		return Response{}, err
	}

	var result geminiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return Response{}, fmt.Errorf("failed to parse response: %w", err)
	}

	if result.PromptFeedback.BlockReason != "" && len(result.Candidates) == 0 {
		return Response{}, fmt.Errorf("prompt blocked: %s", result.PromptFeedback.BlockReason)
	}

	var content strings.Builder
	finishReason := ""
	if len(result.Candidates) > 0 {
		for _, part := range result.Candidates[0].Content.Parts {
			content.WriteString(part.Text)
		}
		finishReason = result.Candidates[0].FinishReason
	}

	modelName := g.model
	if result.ModelVersion != "" {
		modelName = result.ModelVersion
	}

	if finishReason == "MAX_TOKENS" {
		g.log.Warn("Gemini response truncated due to max tokens",
			"model", modelName,
			"content_length", content.Len())
	}

	g.log.Debug("Gemini API response",
		"model", modelName,
		"content_length", content.Len(),
		"finish_reason", finishReason)

	return Response{
		Content:      content.String(),
		Model:        modelName,
		FinishReason: finishReason,
	}, nil
}

func (g *GeminiProvider) doWithRetry(ctx context.Context, jsonBody []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", g.endpoint, g.model)
	maxRetries := len(g.backoffs)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", g.apiKey)

		resp, err := g.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			if err := g.wait(ctx, attempt, 0); err != nil {
				return nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read response: %w", readErr)
			if err := g.wait(ctx, attempt, 0); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, string(body))
			g.log.Warn("Gemini API transient error", "status", resp.StatusCode, "attempt", attempt+1)

			var retryAfter time.Duration
			if resp.StatusCode == http.StatusTooManyRequests {
				if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
					retryAfter = min(time.Duration(seconds)*time.Second, 30*time.Second)
				}
			}
			if err := g.wait(ctx, attempt, retryAfter); err != nil {
				return nil, err
			}
			continue
		}

		g.log.Error("Gemini API error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, string(body))
	}

	return nil, fmt.Errorf("gemini API request failed after %d retries: %w", maxRetries, lastErr)
}

// wait sleeps before the next attempt. override replaces the scheduled
// backoff when positive. Nothing is waited after the final attempt.
func (g *GeminiProvider) wait(ctx context.Context, attempt int, override time.Duration) error {
	if attempt >= len(g.backoffs) {
		return nil
	}
	delay := g.backoffs[attempt]
	if override > 0 {
		delay = override
	}
	if delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	ModelVersion string `json:"modelVersion"`
}
