package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/elee1766/threadagent/src/aisdk"
	"github.com/elee1766/threadagent/src/conversation"
	"github.com/elee1766/threadagent/src/events"
	"github.com/elee1766/threadagent/src/storage"
	"github.com/elee1766/threadagent/src/telemetry"
	"github.com/elee1766/threadagent/src/toolexec"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxIterations bounds the model calls of one attempt.
const DefaultMaxIterations = 5

// StopMaxIterations is the stop reason reported when the loop runs out of iterations.
const StopMaxIterations = "max_iterations"

// LoopState is a state of the execution loop.
type LoopState string

const (
	StateFreshStart       LoopState = "fresh-start"
	StateResuming         LoopState = "resuming"
	StateIterating        LoopState = "iterating"
	StateAwaitingApproval LoopState = "awaiting-tool-approval"
	StateCompleted        LoopState = "completed"
	StateFailed           LoopState = "failed"
)

// Stages reported on error events.
const (
	StageModel    = "model"
	StageTool     = "tool"
	StagePersist  = "persist"
	StageFinalize = "finalize"
)

// LoopConfig configures an ExecutionLoop.
type LoopConfig struct {
	Model    aisdk.ModelClient
	Tools    *toolexec.Handler
	Messages *MessageOrchestrator
	Loader   *conversation.Loader

	SystemPrompt  string
	MaxIterations int
	MaxTokens     int
	Temperature   *float64

	Logger *slog.Logger
}

// ExecutionLoop runs the bounded call-model, handle-tool cycle of one attempt.
type ExecutionLoop struct {
	cfg     LoopConfig
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *telemetry.Instruments
}

// NewExecutionLoop creates a loop.
func NewExecutionLoop(cfg LoopConfig) *ExecutionLoop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ExecutionLoop{
		cfg:     cfg,
		logger:  cfg.Logger,
		tracer:  telemetry.Tracer(telemetry.ScopeName),
		metrics: telemetry.Engine(),
	}
}

// Attempt is the input of one loop run.
type Attempt struct {
	Request *storage.AgentRequest
	Message *storage.Message
	Resume  bool
	// Progress is called before every model call with the 1-based iteration.
	Progress func(ctx context.Context, iteration int) error
}

// LoopResult is how a loop run ended.
type LoopResult struct {
	State        LoopState
	Iterations   int
	StopReason   string
	InputTokens  int64
	OutputTokens int64
	Exhausted    bool

	// Checkpoint and PendingToolCall are set in StateAwaitingApproval.
	Checkpoint          *storage.ExecutionCheckpoint
	PendingToolCall     *storage.AgentToolCall
	MaxRevisionsReached bool

	// Err and Stage are set in StateFailed.
	Err   error
	Stage string
}

// Run executes the attempt. Failures are reported through the result and an
// error event, never by panicking out of the loop.
func (l *ExecutionLoop) Run(ctx context.Context, att *Attempt, sink EventSink) *LoopResult {
	res := &LoopResult{State: StateFreshStart}
	if att.Resume {
		res.State = StateResuming
	}
	l.logger.DebugContext(ctx, "execution loop starting", "request_id", att.Request.ID, "state", res.State)
	resuming := att.Resume
	res.State = StateIterating

	for iteration := 1; iteration <= l.cfg.MaxIterations; iteration++ {
		if att.Progress != nil {
			if err := att.Progress(ctx, iteration); err != nil {
				return l.fail(ctx, att, sink, res, StagePersist, err)
			}
		}

		done, err := l.iterate(ctx, att, sink, res, PromptState{
			Iteration:     iteration,
			MaxIterations: l.cfg.MaxIterations,
			Resuming:      resuming,
			ToolsEnabled:  l.cfg.Tools != nil,
		})
		if err != nil {
			var se *stageError
			if errors.As(err, &se) {
				return l.fail(ctx, att, sink, res, se.stage, se.err)
			}
			return l.fail(ctx, att, sink, res, StageModel, err)
		}
		if done {
			return res
		}
	}

	// soft cap: finish with whatever has accumulated
	res.Exhausted = true
	res.StopReason = StopMaxIterations
	l.logger.InfoContext(ctx, "execution loop exhausted its iterations",
		"request_id", att.Request.ID, "iterations", res.Iterations)
	if err := l.complete(ctx, att, sink, res); err != nil {
		return l.fail(ctx, att, sink, res, StagePersist, err)
	}
	return res
}

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func staged(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &stageError{stage: stage, err: err}
}

// iterate makes one model call and handles what it proposed. done is set
// when the loop must stop.
func (l *ExecutionLoop) iterate(ctx context.Context, att *Attempt, sink EventSink, res *LoopResult, state PromptState) (done bool, err error) {
	ctx, span := l.tracer.Start(ctx, "threadagent.loop.iteration", trace.WithAttributes(
		attribute.String("request_id", att.Request.ID),
		attribute.Int("iteration", state.Iteration),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	conv, err := l.cfg.Loader.Load(ctx, att.Request)
	if err != nil {
		return false, staged(StagePersist, err)
	}

	creq := &aisdk.CompletionRequest{
		Model:        l.cfg.Model.ModelID(),
		SystemPrompt: SystemPromptFor(l.cfg.SystemPrompt, state),
		Turns:        conv.Turns,
		MaxTokens:    l.cfg.MaxTokens,
		Temperature:  l.cfg.Temperature,
	}
	if l.cfg.Tools != nil {
		creq.Tools = l.cfg.Tools.Registry().ChatTools()
	}

	res.Iterations++
	l.metrics.Iterations.Add(ctx, 1)

	call, completion, err := l.stream(ctx, att, sink, creq)
	if err != nil {
		return false, err
	}
	if completion != nil {
		res.StopReason = completion.StopReason
		res.InputTokens += completion.InputTokens
		res.OutputTokens += completion.OutputTokens
		l.metrics.Tokens.Add(ctx, completion.InputTokens, metric.WithAttributes(attribute.String("direction", "input")))
		l.metrics.Tokens.Add(ctx, completion.OutputTokens, metric.WithAttributes(attribute.String("direction", "output")))
	}

	if call == nil {
		if err := l.complete(ctx, att, sink, res); err != nil {
			return false, staged(StagePersist, err)
		}
		return true, nil
	}

	if l.cfg.Tools == nil {
		return false, staged(StageTool, fmt.Errorf("%w: %s", toolexec.ErrUnknownTool, call.Function.Name))
	}
	outcome, err := l.cfg.Tools.Handle(ctx, toolexec.Proposal{
		RequestID:   att.Request.ID,
		ThreadID:    att.Request.ThreadID,
		OwnerUserID: att.Request.UserID,
		Call:        call,
	})
	if err != nil {
		return false, staged(StageTool, err)
	}

	if !outcome.NeedsApproval {
		l.cfg.Messages.AppendToolInvocation(att.Message, call, aisdk.InvocationExecuted)
		if err := l.cfg.Messages.Save(ctx, att.Message); err != nil {
			return false, staged(StagePersist, err)
		}
		return false, nil
	}

	l.cfg.Messages.AppendToolInvocation(att.Message, call, aisdk.InvocationAwaitingApproval)
	if err := l.cfg.Messages.Save(ctx, att.Message); err != nil {
		return false, staged(StagePersist, err)
	}
	if err := l.suspend(ctx, att, sink, res, outcome); err != nil {
		return false, staged(StagePersist, err)
	}
	return true, nil
}

// stream consumes one model response. Text goes to the response message and
// out as events; only the first proposed tool invocation is kept.
func (l *ExecutionLoop) stream(ctx context.Context, att *Attempt, sink EventSink, creq *aisdk.CompletionRequest) (*aisdk.ToolCall, *aisdk.Completion, error) {
	stream, err := l.cfg.Model.Stream(ctx, creq)
	if err != nil {
		return nil, nil, staged(StageModel, err)
	}

	var (
		call       *aisdk.ToolCall
		completion *aisdk.Completion
		sinkErr    error
	)
	err = aisdk.StreamToCallback(stream, func(item *aisdk.StreamItem) error {
		switch item.Type {
		case aisdk.ItemTextDelta:
			l.cfg.Messages.AppendText(att.Message, item.Text)
			if err := sink.Emit(ctx, events.TypeTextDelta, events.TextDelta{Text: item.Text}); err != nil {
				sinkErr = err
				return err
			}
		case aisdk.ItemToolInvocation:
			if item.ToolCall == nil {
				return nil
			}
			if call != nil {
				l.logger.WarnContext(ctx, "discarding extra tool invocation in model turn",
					"request_id", att.Request.ID, "kept", call.Function.Name, "discarded", item.ToolCall.Function.Name)
				l.metrics.DiscardedToolInvocations.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", item.ToolCall.Function.Name)))
				return nil
			}
			call = item.ToolCall
			// provider ids repeat across responses (call_0, ...), so the
			// record key is ours; the invocation block and its result carry it
			call.ID = uuid.New().String()
		case aisdk.ItemCompletion:
			completion = item.Completion
		}
		return nil
	})
	if sinkErr != nil {
		return nil, nil, staged(StagePersist, sinkErr)
	}
	if err != nil {
		return nil, nil, staged(StageModel, err)
	}
	return call, completion, nil
}

func (l *ExecutionLoop) complete(ctx context.Context, att *Attempt, sink EventSink, res *LoopResult) error {
	if err := l.cfg.Messages.Save(ctx, att.Message); err != nil {
		return err
	}
	res.State = StateCompleted
	return sink.Emit(ctx, events.TypeCompletion, events.Completion{
		StopReason:   res.StopReason,
		Iterations:   res.Iterations,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
		Exhausted:    res.Exhausted,
	})
}

func (l *ExecutionLoop) suspend(ctx context.Context, att *Attempt, sink EventSink, res *LoopResult, outcome *toolexec.Outcome) error {
	record := outcome.Record
	if err := sink.Emit(ctx, events.TypeToolCallProposed, events.ToolCallProposed{
		ToolCallID:          record.ID,
		ToolName:            record.ToolName,
		Input:               []byte(record.ToolInput),
		Preview:             outcome.Preview,
		RevisionCount:       record.RevisionCount,
		MaxRevisionsReached: outcome.MaxRevisionsReached,
	}); err != nil {
		return err
	}

	conv, err := l.cfg.Loader.Load(ctx, att.Request)
	if err != nil {
		return err
	}

	prior := 0
	if att.Request.Checkpoint != nil {
		prior = att.Request.Checkpoint.IterationCount
	}
	res.State = StateAwaitingApproval
	res.PendingToolCall = record
	res.MaxRevisionsReached = outcome.MaxRevisionsReached
	res.Checkpoint = &storage.ExecutionCheckpoint{
		ConversationHistory: conv.Turns,
		LastToolCall: &storage.CheckpointToolCall{
			ID:    record.ID,
			Name:  record.ToolName,
			Input: []byte(record.ToolInput),
		},
		IterationCount:     prior + res.Iterations,
		AccumulatedContent: messageText(att.Message),
		Status:             storage.CheckpointStatusAwaitingApproval,
		SavedAt:            time.Now().UTC(),
	}
	l.logger.InfoContext(ctx, "execution suspended for tool approval",
		"request_id", att.Request.ID, "tool", record.ToolName, "tool_call_id", record.ID)
	return nil
}

func (l *ExecutionLoop) fail(ctx context.Context, att *Attempt, sink EventSink, res *LoopResult, stage string, err error) *LoopResult {
	res.State = StateFailed
	res.Err = err
	res.Stage = stage
	l.logger.ErrorContext(ctx, "execution attempt failed", "request_id", att.Request.ID, "stage", stage, "error", err)

	// persisting the failure may be what just failed; the request row still records it
	if emitErr := sink.Emit(ctx, events.TypeError, events.Error{Message: err.Error(), Stage: stage}); emitErr != nil {
		l.logger.WarnContext(ctx, "failed to emit error event", "request_id", att.Request.ID, "error", emitErr)
	}
	if att.Message == nil {
		return res
	}
	if saveErr := l.cfg.Messages.Save(ctx, att.Message); saveErr != nil && stage != StagePersist {
		l.logger.WarnContext(ctx, "failed to save partial response", "request_id", att.Request.ID, "error", saveErr)
	}
	return res
}

func messageText(msg *storage.Message) string {
	var out string
	for _, b := range msg.Content {
		if b.Type == aisdk.BlockText {
			out += b.Text
		}
	}
	return out
}
