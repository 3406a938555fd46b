package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lead-agent/internal/domain"
)

type fakeGetter struct {
	val   string
	err   error
	calls int
}

func (f *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.val, f.err
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) (*Client, *fakeGetter) {
	t.Helper()
	g := &fakeGetter{val: `{"token":"sk-test"}`}
	opts = append([]Option{WithBaseURL(srv.URL), WithHTTPClient(&http.Client{Timeout: 2 * time.Second})}, opts...)
	c, err := NewClient(g, "/lead-agent", opts...)
	require.NoError(t, err)
	return c, g
}

func replyWith(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

var hi = []domain.ChatMessage{{Role: "user", Content: "hi"}}

func TestCompletionsURL(t *testing.T) {
	for base, want := range map[string]string{
		"https://api.openai.com/v1":  "https://api.openai.com/v1/chat/completions",
		"https://api.openai.com/v1/": "https://api.openai.com/v1/chat/completions",
		"http://localhost:8080":      "http://localhost:8080/v1/chat/completions",
		"":                           "https://api.openai.com/v1/chat/completions",
	} {
		require.Equal(t, want, completionsURL(base), "base=%q", base)
	}
}

func TestNewClient_Validates(t *testing.T) {
	_, err := NewClient(nil, "/lead-agent")
	require.ErrorContains(t, err, "nil")

	_, err = NewClient(&fakeGetter{}, " / ")
	require.ErrorContains(t, err, "prefix")

	c, err := NewClient(&fakeGetter{}, "/lead-agent/", WithHTTPClient(nil))
	require.NoError(t, err)
	require.Equal(t, "/lead-agent/open-ai-token", c.tokenParam)
	require.NotNil(t, c.httpClient)
}

func TestParseToken(t *testing.T) {
	key, err := parseToken(`{"token":"sk-from-json"}`)
	require.NoError(t, err)
	require.Equal(t, "sk-from-json", key)

	_, err = parseToken(`{"other":"value"}`)
	require.ErrorContains(t, err, "API token is empty")

	_, err = parseToken(`{"broken`)
	require.ErrorContains(t, err, "unmarshal")
}

func TestChat_RequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "gpt-mock", body["model"])
		require.EqualValues(t, 300, body["max_tokens"])
		require.NotContains(t, body, "temperature")
		require.NotContains(t, body, "response_format")
		replyWith(`{"choices":[{"message":{"role":"assistant","content":"Hello from mock"},"finish_reason":"stop"}]}`)(w, r)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	got, err := c.Chat(context.Background(), "gpt-mock", hi)
	require.NoError(t, err)
	require.Equal(t, "Hello from mock", got)
}

func TestChat_Options(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, 0.4, body["temperature"])
		require.EqualValues(t, 120, body["max_tokens"])
		require.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
		replyWith(`{"choices":[{"message":{"role":"assistant","content":"{\"reply\":\"ok\"}"}}]}`)(w, r)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, WithTemperature(0.4), WithMaxTokens(120), WithJSONReplies())
	got, err := c.Chat(context.Background(), "gpt-mock", hi)
	require.NoError(t, err)
	require.Equal(t, `{"reply":"ok"}`, got)
}

func TestChat_KeyIsLoadedOnceAndRetriedAfterFailure(t *testing.T) {
	srv := httptest.NewServer(replyWith(`{"choices":[{"message":{"content":"ok"}}]}`))
	defer srv.Close()

	c, g := newTestClient(t, srv)
	g.err = errors.New("ssm throttled")
	_, err := c.Chat(context.Background(), "gpt-mock", hi)
	require.ErrorContains(t, err, "ssm throttled")

	g.err = nil
	for i := 0; i < 3; i++ {
		_, err = c.Chat(context.Background(), "gpt-mock", hi)
		require.NoError(t, err)
	}
	require.Equal(t, 2, g.calls)
}

func TestChat_UnauthorizedDropsCachedKey(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
			return
		}
		replyWith(`{"choices":[{"message":{"content":"ok"}}]}`)(w, r)
	}))
	defer srv.Close()

	c, g := newTestClient(t, srv)
	_, err := c.Chat(context.Background(), "gpt-mock", hi)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "invalid_api_key", apiErr.Code)

	_, err = c.Chat(context.Background(), "gpt-mock", hi)
	require.NoError(t, err)
	require.Equal(t, 2, g.calls, "key reloaded after 401")
}

func TestChat_APIErrors(t *testing.T) {
	cases := []struct {
		status  int
		body    string
		wantMsg string
		wantTyp string
	}{
		{http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached","type":"requests"}}`, "Rate limit reached", "requests"},
		{http.StatusInternalServerError, `upstream exploded`, "upstream exploded", ""},
		{http.StatusBadRequest, `{"error":"bad request"}`, `{"error":"bad request"}`, ""},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		}))
		c, _ := newTestClient(t, srv)
		_, err := c.Chat(context.Background(), "gpt-mock", hi)
		srv.Close()

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr, tc.status)
		require.Equal(t, tc.status, apiErr.HTTPStatusCode())
		require.Equal(t, tc.wantMsg, apiErr.Message)
		require.Equal(t, tc.wantTyp, apiErr.Type)
	}
}

func TestChat_UnusableCompletions(t *testing.T) {
	cases := map[string]struct {
		body string
		want string
	}{
		"no choices": {`{"choices":[]}`, "no choices"},
		"truncated":  {`{"choices":[{"message":{"content":"{\"reply\":\"Sure, wh"},"finish_reason":"length"}]}`, ErrTruncated.Error()},
		"empty":      {`{"choices":[{"message":{"content":"  "},"finish_reason":"stop"}]}`, ErrEmptyCompletion.Error()},
		"not json":   {`not-a-json`, "decode response"},
	}
	for name, tc := range cases {
		srv := httptest.NewServer(replyWith(tc.body))
		c, _ := newTestClient(t, srv)
		_, err := c.Chat(context.Background(), "gpt-mock", hi)
		srv.Close()
		require.ErrorContains(t, err, tc.want, name)
	}
}

func TestChat_EmptyModel(t *testing.T) {
	c, err := NewClient(&fakeGetter{val: `{"token":"sk-test"}`}, "/lead-agent")
	require.NoError(t, err)
	_, err = c.Chat(context.Background(), "", hi)
	require.ErrorContains(t, err, "model")
}

func TestChat_DeadlineIsPropagated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Chat(ctx, "gpt-mock", hi)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
