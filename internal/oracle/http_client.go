package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cogito/internal/logging"
)

// HTTPConfig holds configuration for the chat-completions client.
type HTTPConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// DefaultHTTPConfig returns sensible defaults for an OpenAI-compatible
// endpoint.
func DefaultHTTPConfig(apiKey string) HTTPConfig {
	return HTTPConfig{
		APIKey:    apiKey,
		BaseURL:   "https://api.openai.com/v1",
		Model:     "gpt-4o",
		MaxTokens: 4096,
		Timeout:   120 * time.Second,
	}
}

// HTTPClient implements Client against a chat-completions style API.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// NewHTTPClient creates a client with custom config.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &HTTPClient{
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends a prompt and returns the completion.
func (c *HTTPClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message. Rate-limit
// responses are retried with exponential backoff; anything else surfaces
// as an *Error.
func (c *HTTPClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.apiKey == "" {
		return "", NewError("complete", fmt.Errorf("API key not configured"))
	}

	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	reqBody := chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: 0.1, // Low temperature for structured output
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", NewError("complete", fmt.Errorf("failed to marshal request: %w", err))
	}

	log := logging.Get(logging.CategoryOracle)

	// Retry loop for 429 and transport faults
	const maxRetries = 3
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * time.Second
			log.Debugw("retrying oracle call", "attempt", i, "backoff", backoff)
			select {
			case <-ctx.Done():
				return "", &Error{Op: "complete", Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return "", NewError("complete", fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", &Error{Op: "complete", Err: ctx.Err()}
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return "", NewError("complete", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body)))
		}

		var parsed chatResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", NewError("complete", fmt.Errorf("failed to parse response: %w", err))
		}
		if parsed.Error != nil {
			return "", NewError("complete", fmt.Errorf("API error: %s", parsed.Error.Message))
		}
		if len(parsed.Choices) == 0 {
			return "", NewError("complete", fmt.Errorf("no completion returned"))
		}

		return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
	}

	return "", &Error{Op: "complete", Retryable: true, Err: fmt.Errorf("max retries exceeded: %w", lastErr)}
}

// SetModel changes the model used for completions.
func (c *HTTPClient) SetModel(model string) { c.model = model }

// Model returns the current model.
func (c *HTTPClient) Model() string { return c.model }
