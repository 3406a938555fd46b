// Package openai calls the Chat Completions API to draft lead-agent replies.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"lead-agent/internal/domain"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultMaxTokens = 300
)

var (
	// ErrTruncated is returned when the model stopped at the token limit, so a
	// JSON reply cannot be trusted to be complete.
	ErrTruncated = errors.New("openai: completion truncated at max_tokens")
	// ErrEmptyCompletion is returned when the first choice carries no text.
	ErrEmptyCompletion = errors.New("openai: empty completion")
)

type responseFormat struct {
	Type string `json:"type"`
}

type completionRequest struct {
	Model          string               `json:"model"`
	Messages       []domain.ChatMessage `json:"messages"`
	Temperature    *float64             `json:"temperature,omitempty"`
	MaxTokens      int                  `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat      `json:"response_format,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message      domain.ChatMessage `json:"message"`
		FinishReason string             `json:"finish_reason"`
	} `json:"choices"`
}

// errorEnvelope is the body OpenAI sends with non-2xx responses.
type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("openai: status %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("openai: status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client drafts replies through an OpenAI-compatible chat endpoint. The API
// key lives in Parameter Store under <prefix>/open-ai-token as {"token": ...}.
type Client struct {
	endpoint    string
	httpClient  *http.Client
	getter      Getter
	tokenParam  string
	temperature *float64
	maxTokens   int
	jsonReplies bool

	keyMu  sync.Mutex
	apiKey string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.endpoint = completionsURL(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithTemperature(t float64) Option {
	return func(c *Client) {
		c.temperature = &t
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithJSONReplies asks the model for a single JSON object per completion.
func WithJSONReplies() Option {
	return func(c *Client) {
		c.jsonReplies = true
	}
}

func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("openai: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("openai: parameter prefix must not be empty")
	}
	c := &Client{
		endpoint:   completionsURL(defaultBaseURL),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		getter:     ps,
		tokenParam: paramPrefix + "/open-ai-token",
		maxTokens:  defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Chat returns the text of the first choice for messages.
func (c *Client) Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error) {
	if model == "" {
		return "", errors.New("openai: model must not be empty")
	}
	key, err := c.key(ctx)
	if err != nil {
		return "", err
	}

	in := completionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if c.jsonReplies {
		in.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	var out completionResponse
	if err := c.post(ctx, key, in, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			c.dropKey(key)
		}
		return "", err
	}

	if len(out.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	choice := out.Choices[0]
	if choice.FinishReason == "length" {
		return "", ErrTruncated
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return choice.Message.Content, nil
}

func (c *Client) post(ctx context.Context, key string, in completionRequest, out *completionResponse) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("openai: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openai: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return newAPIError(res.StatusCode, raw)
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("openai: decode response: %w", err)
	}
	return nil
}

func newAPIError(status int, raw []byte) *APIError {
	e := &APIError{StatusCode: status, Message: strings.TrimSpace(string(raw))}
	var env errorEnvelope
	if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
		e.Type = env.Error.Type
		e.Code = env.Error.Code
		e.Message = env.Error.Message
	}
	return e
}

// key returns the cached API key, loading it on first use. A failed load is
// retried on the next call.
func (c *Client) key(ctx context.Context) (string, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.apiKey != "" {
		return c.apiKey, nil
	}
	raw, err := c.getter.GetParameter(ctx, c.tokenParam)
	if err != nil {
		return "", fmt.Errorf("openai: fetch token from paramstore: %w", err)
	}
	key, err := parseToken(raw)
	if err != nil {
		return "", err
	}
	c.apiKey = key
	return key, nil
}

// dropKey forgets key after the API rejected it, so a rotated key is picked
// up on the next call.
func (c *Client) dropKey(key string) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.apiKey == key {
		c.apiKey = ""
	}
}

func parseToken(raw string) (string, error) {
	var tp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("openai: unmarshal paramstore token value as JSON: %w", err)
	}
	if strings.TrimSpace(tp.Token) == "" {
		return "", errors.New("openai: API token is empty")
	}
	return tp.Token, nil
}

func completionsURL(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}
