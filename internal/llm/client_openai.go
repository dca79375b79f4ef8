package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"labreport/internal/logging"
	"labreport/internal/types"
)

// OpenAIClient implements types.LLMClient for the OpenAI chat completions API
// and any compatible endpoint.
type OpenAIClient struct {
	apiKey       string
	baseURL      string
	model        string
	temperature  float64
	maxTokens    int
	httpClient   *http.Client
	sem          *semaphore.Weighted
	retryBackoff time.Duration

	mu          sync.Mutex
	lastRequest time.Time
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &OpenAIClient{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		sem:          semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		retryBackoff: time.Second,
	}
}

// Complete sends a prompt and returns the completion.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}
	resp, err := c.CompleteWithTools(ctx, systemPrompt, []types.Message{{Role: "user", Content: userPrompt}}, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CompleteWithTools sends a conversation with tool definitions.
func (c *OpenAIClient) CompleteWithTools(ctx context.Context, systemPrompt string, messages []types.Message, tools []ToolDefinition) (*types.LLMToolResponse, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	if c.apiKey == "" {
		logging.APIError("[OpenAI] API key not configured")
		return nil, fmt.Errorf("API key not configured")
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for request slot: %w", err)
	}
	defer c.sem.Release(1)

	c.throttle()

	startTime := time.Now()
	logging.APIDebug("[OpenAI] request: model=%s messages=%d tools=%d", c.model, len(messages), len(tools))

	reqBody := OpenAIRequest{
		Model:       c.model,
		Messages:    MapMessagesToOpenAI(systemPrompt, messages),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	if len(tools) > 0 {
		reqBody.Tools = MapToolDefinitionsToOpenAI(tools)
	}

	resp, err := ExecuteOpenAIRequest(ctx, c.httpClient, c.baseURL, c.apiKey, reqBody, c.retryBackoff)
	if err != nil {
		logging.APIError("[OpenAI] request failed after %v: %v", time.Since(startTime), err)
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no completion returned")
	}

	choice := resp.Choices[0]
	calls, err := MapOpenAIToolCallsToInternal(choice.Message.ToolCalls)
	if err != nil {
		return nil, err
	}

	stop := "end_turn"
	if len(calls) > 0 || choice.FinishReason == "tool_calls" {
		stop = "tool_use"
	}

	logging.API("[OpenAI] completed in %v: tool_calls=%d tokens=%d", time.Since(startTime), len(calls), resp.Usage.TotalTokens)
	return &types.LLMToolResponse{
		Text:       strings.TrimSpace(choice.Message.Content),
		ToolCalls:  calls,
		StopReason: stop,
		Usage: types.UsageMetadata{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

// throttle spaces consecutive requests by at least 100ms.
func (c *OpenAIClient) throttle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elapsed := time.Since(c.lastRequest); elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
}

// GetModel returns the current model.
func (c *OpenAIClient) GetModel() string {
	return c.model
}
