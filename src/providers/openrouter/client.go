// Package openrouter streams completions from OpenRouter's OpenAI compatible API.
package openrouter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/elee1766/threadagent/src/aisdk"
	"github.com/elee1766/threadagent/src/providers"
	openai "github.com/sashabaranov/go-openai"
)

const (
	ProviderName   = "openrouter"
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	defaultTimeout = 5 * time.Minute
	streamBuffer   = 32
)

var (
	_ aisdk.ModelClient     = (*Client)(nil)
	_ providers.ModelLister = (*Client)(nil)
)

// Config holds configuration for the OpenRouter client.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	RetryDelay time.Duration
	// SiteURL and SiteName are sent for OpenRouter app rankings.
	SiteURL    string
	SiteName   string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is a ModelClient bound to one OpenRouter model.
type Client struct {
	client *openai.Client
	config Config
	logger *slog.Logger
	models *providers.ModelCache
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openrouter: %w", providers.ErrNoAPIKey)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openrouter: %w", providers.ErrNoModel)
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	withHeaders := *httpClient
	withHeaders.Transport = &headerTransport{
		base:     httpClient.Transport,
		siteURL:  cfg.SiteURL,
		siteName: cfg.SiteName,
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	clientConfig.HTTPClient = &withHeaders

	c := &Client{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
		logger: logger.With("component", "openrouter_client", "model", cfg.Model),
	}
	c.models = providers.NewModelCache(time.Hour, c.listModelsUncached)
	return c, nil
}

// headerTransport adds the optional ranking headers.
type headerTransport struct {
	base     http.RoundTripper
	siteURL  string
	siteName string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.siteURL == "" && t.siteName == "" {
		return base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	if t.siteURL != "" {
		req.Header.Set("HTTP-Referer", t.siteURL)
	}
	if t.siteName != "" {
		req.Header.Set("X-Title", t.siteName)
	}
	return base.RoundTrip(req)
}

// ModelID implements aisdk.ModelClient.
func (c *Client) ModelID() string {
	return c.config.Model
}

// Stream implements aisdk.ModelClient. Opening the stream is retried;
// failures after the first chunk are not.
func (c *Client) Stream(ctx context.Context, req *aisdk.CompletionRequest) (aisdk.StreamInterface, error) {
	request, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}

	out := aisdk.NewChannelStream(ctx, streamBuffer)
	var stream *openai.ChatCompletionStream
	err = providers.Retry(out.Context(), providers.RetryConfig{
		MaxRetries: c.config.MaxRetries,
		BaseDelay:  c.config.RetryDelay,
		Logger:     c.logger,
	}, func(ctx context.Context) error {
		s, err := c.client.CreateChatCompletionStream(ctx, request)
		if err != nil {
			return wrapError(err, request.Model)
		}
		stream = s
		return nil
	})
	if err != nil {
		out.Close()
		c.logger.Error("stream request failed", "error", err)
		return nil, err
	}

	c.logger.Debug("stream started", "messages", len(request.Messages), "tools", len(request.Tools))
	go c.pump(stream, out, request.Model)
	return out, nil
}

func (c *Client) buildRequest(req *aisdk.CompletionRequest) (openai.ChatCompletionRequest, error) {
	model := req.Model
	if model == "" {
		model = c.config.Model
	}
	messages, err := convertTurns(req.SystemPrompt, providers.NormalizeTurns(req.Turns))
	if err != nil {
		return openai.ChatCompletionRequest{}, fmt.Errorf("openrouter: failed to convert turns: %w", err)
	}
	request := openai.ChatCompletionRequest{
		Model:         model,
		Messages:      messages,
		MaxTokens:     req.MaxTokens,
		Tools:         convertTools(req.Tools),
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	if req.Temperature != nil {
		request.Temperature = float32(*req.Temperature)
	}
	return request, nil
}

type pendingCall struct {
	id        string
	name      string
	arguments strings.Builder
}

// pump reads chunks until EOF. Tool call fragments are keyed by index and
// emitted in index order when the choice finishes.
func (c *Client) pump(stream *openai.ChatCompletionStream, out *aisdk.ChannelStream, model string) {
	defer stream.Close()

	var (
		calls      = map[int]*pendingCall{}
		completion = &aisdk.Completion{}
		chunks     int
		emitted    int
	)

	flush := func() bool {
		indexes := make([]int, 0, len(calls))
		for i := range calls {
			indexes = append(indexes, i)
		}
		sort.Ints(indexes)
		for _, i := range indexes {
			call := calls[i]
			args := call.arguments.String()
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			item := &aisdk.StreamItem{
				Type:     aisdk.ItemToolInvocation,
				ToolCall: aisdk.NewToolCall(call.id, call.name, []byte(args)),
			}
			if !out.Send(item) {
				return false
			}
			emitted++
		}
		clear(calls)
		return true
	}

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			err = wrapError(err, model)
			c.logger.Error("stream failed", "error", err)
			out.Finish(err)
			return
		}
		chunks++

		if resp.Usage != nil {
			completion.InputTokens = int64(resp.Usage.PromptTokens)
			completion.OutputTokens = int64(resp.Usage.CompletionTokens)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]

		if choice.Delta.Content != "" {
			if !out.Send(&aisdk.StreamItem{Type: aisdk.ItemTextDelta, Text: choice.Delta.Content}) {
				return
			}
		}
		for pos, tc := range choice.Delta.ToolCalls {
			index := pos
			if tc.Index != nil {
				index = *tc.Index
			}
			call, ok := calls[index]
			if !ok {
				call = &pendingCall{}
				calls[index] = call
			}
			if tc.ID != "" {
				call.id = tc.ID
			}
			if tc.Function.Name != "" {
				call.name = tc.Function.Name
			}
			call.arguments.WriteString(tc.Function.Arguments)
		}

		if choice.FinishReason != "" {
			completion.StopReason = providers.MapStopReason(string(choice.FinishReason))
			if !flush() {
				return
			}
		}
	}

	if chunks == 0 {
		out.Finish(fmt.Errorf("openrouter: %w", providers.ErrEmptyResponse))
		return
	}
	if !flush() {
		return
	}
	if completion.StopReason == "" {
		completion.StopReason = aisdk.StopEndTurn
		if emitted > 0 {
			completion.StopReason = aisdk.StopToolUse
		}
	}
	c.logger.Debug("stream completed",
		"stop_reason", completion.StopReason,
		"input_tokens", completion.InputTokens,
		"output_tokens", completion.OutputTokens)
	if !out.Send(&aisdk.StreamItem{Type: aisdk.ItemCompletion, Completion: completion}) {
		return
	}
	out.Finish(nil)
}

// ListModels implements providers.ModelLister.
func (c *Client) ListModels(ctx context.Context) ([]providers.ModelInfo, error) {
	return c.models.ListModels(ctx)
}

func (c *Client) listModelsUncached(ctx context.Context) ([]providers.ModelInfo, error) {
	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, wrapError(err, c.config.Model)
	}
	models := make([]providers.ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, providers.ModelInfo{ID: m.ID, Name: m.ID, OwnedBy: m.OwnedBy})
	}
	return models, nil
}

// wrapError converts go-openai errors into providers.APIError.
func wrapError(err error, model string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		out := &providers.APIError{
			Provider:   ProviderName,
			StatusCode: apiErr.HTTPStatusCode,
			Type:       apiErr.Type,
			Message:    apiErr.Message,
			Cause:      err,
		}
		switch code := apiErr.Code.(type) {
		case string:
			out.Code = code
		case float64:
			out.Code = strconv.Itoa(int(code))
		case int:
			out.Code = strconv.Itoa(code)
		}
		return out
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &providers.APIError{
			Provider:   ProviderName,
			StatusCode: reqErr.HTTPStatusCode,
			Message:    strings.TrimSpace(string(reqErr.Body)),
			Cause:      err,
		}
	}
	return fmt.Errorf("openrouter %s: %w", model, err)
}
