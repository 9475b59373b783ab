package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elee1766/threadagent/src/aisdk"
	"github.com/elee1766/threadagent/src/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunks(lines ...string) string {
	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "data: %s\n\n", l)
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

func newTestClient(t *testing.T, srv *httptest.Server, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Model:      "openai/gpt-test",
		RetryDelay: time.Millisecond,
		SiteURL:    "https://example.com",
		SiteName:   "threadagent",
		HTTPClient: srv.Client(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func userTurn(text string) []aisdk.Turn {
	return []aisdk.Turn{{Role: aisdk.RoleUser, Content: []aisdk.ContentBlock{aisdk.TextBlock(text)}}}
}

func collect(t *testing.T, stream aisdk.StreamInterface) ([]aisdk.StreamItem, error) {
	t.Helper()
	var items []aisdk.StreamItem
	err := aisdk.StreamToCallback(stream, func(item *aisdk.StreamItem) error {
		items = append(items, *item)
		return nil
	})
	return items, err
}

func TestStreamTextAndToolCalls(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "https://example.com", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "threadagent", r.Header.Get("X-Title"))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, chunks(
			`{"id":"1","choices":[{"index":0,"delta":{"role":"assistant","content":"Checking "}}]}`,
			`{"id":"1","choices":[{"index":0,"delta":{"content":"now."}}]}`,
			`{"id":"1","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_b","type":"function","function":{"name":"list_directory","arguments":""}}]}}]}`,
			`{"id":"1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"read_file","arguments":"{\"path\":"}}]}}]}`,
			`{"id":"1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"/a\"}"}}]}}]}`,
			`{"id":"1","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
			`{"id":"1","choices":[],"usage":{"prompt_tokens":30,"completion_tokens":7,"total_tokens":37}}`,
		))
	}))
	defer srv.Close()

	temp := 0.5
	stream, err := newTestClient(t, srv, nil).Stream(context.Background(), &aisdk.CompletionRequest{
		SystemPrompt: "system text",
		Turns:        userTurn("look at /a"),
		Tools:        []*aisdk.ChatTool{{Type: "function", Function: aisdk.ChatToolFunction{Name: "read_file"}}},
		MaxTokens:    100,
		Temperature:  &temp,
	})
	require.NoError(t, err)

	items, err := collect(t, stream)
	require.NoError(t, err)
	require.Len(t, items, 5)

	assert.Equal(t, "Checking ", items[0].Text)
	assert.Equal(t, "now.", items[1].Text)

	assert.Equal(t, "call_a", items[2].ToolCall.ID)
	assert.Equal(t, "read_file", items[2].ToolCall.Function.Name)
	assert.JSONEq(t, `{"path":"/a"}`, string(items[2].ToolCall.Function.Arguments))
	assert.Equal(t, "call_b", items[3].ToolCall.ID)
	assert.JSONEq(t, `{}`, string(items[3].ToolCall.Function.Arguments))

	require.Equal(t, aisdk.ItemCompletion, items[4].Type)
	assert.Equal(t, aisdk.StopToolUse, items[4].Completion.StopReason)
	assert.Equal(t, int64(30), items[4].Completion.InputTokens)
	assert.Equal(t, int64(7), items[4].Completion.OutputTokens)

	assert.Equal(t, "openai/gpt-test", body["model"])
	assert.Equal(t, true, body["stream"])
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Len(t, body["tools"], 1)
}

func TestStreamRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error":{"message":"upstream unavailable","type":"server_error","code":"server_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, chunks(`{"id":"1","choices":[{"index":0,"delta":{"content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, func(cfg *Config) { cfg.MaxRetries = 2 })
	stream, err := c.Stream(context.Background(), &aisdk.CompletionRequest{Turns: userTurn("hi")})
	require.NoError(t, err)

	items, err := collect(t, stream)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "ok", items[0].Text)
	assert.Equal(t, aisdk.StopEndTurn, items[1].Completion.StopReason)
	assert.Equal(t, int32(2), calls.Load())
}

func TestStreamAuthErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"No auth credentials found","code":401}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, func(cfg *Config) { cfg.MaxRetries = 3 })
	_, err := c.Stream(context.Background(), &aisdk.CompletionRequest{Turns: userTurn("hi")})
	require.Error(t, err)

	var apiErr *providers.APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.True(t, apiErr.IsAuthError())
	assert.Equal(t, int32(1), calls.Load())
}

func TestStreamEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	stream, err := newTestClient(t, srv, nil).Stream(context.Background(), &aisdk.CompletionRequest{Turns: userTurn("hi")})
	require.NoError(t, err)
	_, err = collect(t, stream)
	assert.ErrorIs(t, err, providers.ErrEmptyResponse)
}

func TestListModelsIsCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[{"id":"anthropic/claude-test","object":"model","owned_by":"anthropic"},{"id":"openai/gpt-test","object":"model","owned_by":"openai"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "anthropic/claude-test", models[0].ID)
	assert.Equal(t, "openai", models[1].OwnedBy)

	_, err = c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Model: "m"})
	assert.ErrorIs(t, err, providers.ErrNoAPIKey)
	_, err = New(Config{APIKey: "k"})
	assert.ErrorIs(t, err, providers.ErrNoModel)
}
