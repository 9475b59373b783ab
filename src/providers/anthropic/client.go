// Package anthropic streams completions from the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/elee1766/threadagent/src/aisdk"
	"github.com/elee1766/threadagent/src/providers"
)

const (
	ProviderName     = "anthropic"
	defaultMaxTokens = 4096
	streamBuffer     = 32
)

var (
	_ aisdk.ModelClient     = (*Client)(nil)
	_ providers.ModelLister = (*Client)(nil)
)

// Config configures the client.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is a ModelClient bound to one Anthropic model.
type Client struct {
	client anthropic.Client
	model  string
	logger *slog.Logger
	models *providers.ModelCache
}

// New creates a client. Request retries are left to the SDK.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", providers.ErrNoAPIKey)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic: %w", providers.ErrNoModel)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	c := &Client{
		client: anthropic.NewClient(opts...),
		model:  cfg.Model,
		logger: logger.With("component", "anthropic_client", "model", cfg.Model),
	}
	c.models = providers.NewModelCache(time.Hour, c.listModelsUncached)
	return c, nil
}

// ModelID implements aisdk.ModelClient.
func (c *Client) ModelID() string {
	return c.model
}

// Stream implements aisdk.ModelClient.
func (c *Client) Stream(ctx context.Context, req *aisdk.CompletionRequest) (aisdk.StreamInterface, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	out := aisdk.NewChannelStream(ctx, streamBuffer)
	sdkStream := c.client.Messages.NewStreaming(out.Context(), params)
	c.logger.Debug("stream started", "turns", len(params.Messages), "tools", len(params.Tools))
	go c.pump(sdkStream, out)
	return out, nil
}

func (c *Client) buildParams(req *aisdk.CompletionRequest) (anthropic.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	messages, err := convertTurns(providers.NormalizeTurns(req.Turns))
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert turns: %w", err)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = tools
	}
	return params, nil
}

// pump translates SDK stream events into aisdk stream items.
func (c *Client) pump(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out *aisdk.ChannelStream) {
	defer stream.Close()

	var (
		toolCall   *aisdk.ToolCall
		toolInput  strings.Builder
		completion = &aisdk.Completion{}
		stopped    bool
	)

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			completion.InputTokens = start.Message.Usage.InputTokens
			completion.OutputTokens = start.Message.Usage.OutputTokens

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				toolCall = aisdk.NewToolCall(toolUse.ID, toolUse.Name, nil)
				toolInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" && !out.Send(&aisdk.StreamItem{Type: aisdk.ItemTextDelta, Text: delta.Text}) {
					return
				}
			case "input_json_delta":
				toolInput.WriteString(delta.PartialJSON)
			}

		case "content_block_stop":
			if toolCall == nil {
				continue
			}
			if toolInput.Len() > 0 {
				toolCall.Function.Arguments = json.RawMessage(toolInput.String())
			}
			if !out.Send(&aisdk.StreamItem{Type: aisdk.ItemToolInvocation, ToolCall: toolCall}) {
				return
			}
			toolCall = nil

		case "message_delta":
			delta := event.AsMessageDelta()
			completion.StopReason = providers.MapStopReason(string(delta.Delta.StopReason))
			if delta.Usage.OutputTokens > 0 {
				completion.OutputTokens = delta.Usage.OutputTokens
			}
			if delta.Usage.InputTokens > 0 {
				completion.InputTokens = delta.Usage.InputTokens
			}

		case "message_stop":
			stopped = true
			if completion.StopReason == "" {
				completion.StopReason = aisdk.StopEndTurn
			}
			c.logger.Debug("stream completed",
				"stop_reason", completion.StopReason,
				"input_tokens", completion.InputTokens,
				"output_tokens", completion.OutputTokens)
			if !out.Send(&aisdk.StreamItem{Type: aisdk.ItemCompletion, Completion: completion}) {
				return
			}
		}
	}

	err := stream.Err()
	switch {
	case err != nil:
		err = wrapError(err, c.model)
		c.logger.Error("stream failed", "error", err)
	case !stopped:
		err = fmt.Errorf("anthropic: %w", providers.ErrEmptyResponse)
	}
	out.Finish(err)
}

// ListModels implements providers.ModelLister.
func (c *Client) ListModels(ctx context.Context) ([]providers.ModelInfo, error) {
	return c.models.ListModels(ctx)
}

func (c *Client) listModelsUncached(ctx context.Context) ([]providers.ModelInfo, error) {
	page, err := c.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, wrapError(err, c.model)
	}
	models := make([]providers.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, providers.ModelInfo{ID: m.ID, Name: m.DisplayName, OwnedBy: ProviderName})
	}
	return models, nil
}

type errorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

// wrapError converts SDK errors into providers.APIError.
func wrapError(err error, model string) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("anthropic %s: %w", model, err)
	}

	out := &providers.APIError{
		Provider:   ProviderName,
		StatusCode: apiErr.StatusCode,
		RequestID:  apiErr.RequestID,
		Message:    "request failed",
		Cause:      err,
	}
	var payload errorPayload
	if raw := apiErr.RawJSON(); raw != "" && json.Unmarshal([]byte(raw), &payload) == nil {
		if payload.Error.Message != "" {
			out.Message = payload.Error.Message
		}
		out.Type = payload.Error.Type
		out.Code = payload.Error.Type
		if payload.RequestID != "" {
			out.RequestID = payload.RequestID
		}
	}
	if apiErr.Response != nil {
		if secs, err := strconv.Atoi(apiErr.Response.Header.Get("Retry-After")); err == nil {
			out.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return out
}
