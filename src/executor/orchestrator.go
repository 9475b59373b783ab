// Package executor drives agent requests: the execution loop, the request
// lifecycle around it and the single response message each request owns.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/elee1766/threadagent/src/aisdk"
	"github.com/elee1766/threadagent/src/conversation"
	"github.com/elee1766/threadagent/src/eventbus"
	"github.com/elee1766/threadagent/src/events"
	"github.com/elee1766/threadagent/src/storage"
	"github.com/elee1766/threadagent/src/telemetry"
	"github.com/elee1766/threadagent/src/toolexec"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Config configures an Orchestrator.
type Config struct {
	DB    storage.ExecQuerier
	Bus   *eventbus.Bus
	Model aisdk.ModelClient
	Tools *toolexec.Handler

	SystemPrompt  string
	MaxIterations int
	HistoryLimit  int
	MaxTokens     int
	Temperature   *float64

	Logger *slog.Logger
}

// Orchestrator owns the lifecycle of agent requests: status transitions,
// checkpoints and the event log around each execution attempt.
type Orchestrator struct {
	db       storage.ExecQuerier
	bus      *eventbus.Bus
	tools    *toolexec.Handler
	messages *MessageOrchestrator
	loop     *ExecutionLoop
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *telemetry.Instruments
	maxIter  int
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.DB == nil {
		return nil, ErrDatabaseRequired
	}
	if cfg.Model == nil {
		return nil, ErrModelClientRequired
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Bus == nil {
		cfg.Bus = eventbus.New(eventbus.DefaultConfig())
	}

	messages := NewMessageOrchestrator(cfg.DB, cfg.Logger)
	loader := conversation.NewLoader(cfg.DB, conversation.NewBuilder(cfg.Logger), cfg.HistoryLimit)
	return &Orchestrator{
		db:       cfg.DB,
		bus:      cfg.Bus,
		tools:    cfg.Tools,
		messages: messages,
		loop: NewExecutionLoop(LoopConfig{
			Model:         cfg.Model,
			Tools:         cfg.Tools,
			Messages:      messages,
			Loader:        loader,
			SystemPrompt:  cfg.SystemPrompt,
			MaxIterations: cfg.MaxIterations,
			MaxTokens:     cfg.MaxTokens,
			Temperature:   cfg.Temperature,
			Logger:        cfg.Logger,
		}),
		logger:  cfg.Logger,
		tracer:  telemetry.Tracer(telemetry.ScopeName),
		metrics: telemetry.Engine(),
		maxIter: cfg.MaxIterations,
	}, nil
}

// Messages returns the response message orchestrator.
func (o *Orchestrator) Messages() *MessageOrchestrator {
	return o.messages
}

// Bus returns the live event bus.
func (o *Orchestrator) Bus() *eventbus.Bus {
	return o.bus
}

// Result is how one attempt ended.
type Result struct {
	Request *storage.AgentRequest
	State   LoopState

	// PendingToolCall is the call the request waits on in StateAwaitingApproval.
	PendingToolCall     *storage.AgentToolCall
	MaxRevisionsReached bool

	// Err is the failure recorded on the request in StateFailed.
	Err error
}

// Execute runs the first attempt of a pending request.
func (o *Orchestrator) Execute(ctx context.Context, requestID string) (*Result, error) {
	req, err := o.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != storage.RequestPending {
		return nil, fmt.Errorf("%w: cannot start request %s from %s", ErrInvalidTransition, req.ID, req.Status)
	}
	return o.attempt(ctx, req, false)
}

// Resume starts a new attempt of a request paused for approval, or of a
// failed request that still has a checkpoint.
//
// The tool-call-proposed event is published before the suspending attempt
// writes its checkpoint. A Resume that lands in between, or before the call
// is decided, returns ErrApprovalPending and can be retried.
func (o *Orchestrator) Resume(ctx context.Context, requestID string) (*Result, error) {
	req, err := o.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Checkpoint == nil && req.Status == storage.RequestInProgress {
		pending, err := o.pendingToolCall(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		if pending != nil {
			return nil, fmt.Errorf("%w: %s is not checkpointed yet", ErrApprovalPending, pending.ID)
		}
	}
	if !Resumable(req) {
		return nil, fmt.Errorf("%w: request %s is %s", ErrNotResumable, req.ID, req.Status)
	}
	if last := req.Checkpoint.LastToolCall; last != nil {
		record, err := storage.GetToolCallByID(ctx, o.db, last.ID)
		if err != nil {
			return nil, fmt.Errorf("load checkpoint tool call: %w", err)
		}
		if record == nil {
			return nil, fmt.Errorf("%w: checkpoint tool call %s is missing", ErrNotResumable, last.ID)
		}
		if record.ApprovalStatus == storage.ApprovalPending {
			return nil, fmt.Errorf("%w: %s", ErrApprovalPending, record.ID)
		}
	}
	return o.attempt(ctx, req, true)
}

// Resumable reports whether req can start a resumed attempt.
func Resumable(req *storage.AgentRequest) bool {
	if req.Checkpoint == nil {
		return false
	}
	return req.Status == storage.RequestInProgress || req.Status == storage.RequestFailed
}

// pendingToolCall returns the call of requestID still waiting for a decision, if any.
func (o *Orchestrator) pendingToolCall(ctx context.Context, requestID string) (*storage.AgentToolCall, error) {
	calls, err := storage.ListToolCallsByRequest(ctx, o.db, requestID)
	if err != nil {
		return nil, fmt.Errorf("load tool calls: %w", err)
	}
	for _, tc := range calls {
		if tc.ApprovalStatus == storage.ApprovalPending {
			return tc, nil
		}
	}
	return nil, nil
}

func (o *Orchestrator) load(ctx context.Context, requestID string) (*storage.AgentRequest, error) {
	req, err := storage.GetRequestByID(ctx, o.db, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}
	return req, nil
}

func (o *Orchestrator) attempt(ctx context.Context, req *storage.AgentRequest, resume bool) (res *Result, err error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "threadagent.attempt", trace.WithAttributes(
		attribute.String("request_id", req.ID),
		attribute.String("thread_id", req.ThreadID),
		attribute.Bool("resume", resume),
	))
	defer func() {
		outcome := "error"
		if res != nil {
			outcome = string(res.State)
			span.SetAttributes(attribute.String("outcome", outcome))
			if res.Err != nil {
				span.RecordError(res.Err)
				span.SetStatus(codes.Error, res.Err.Error())
			}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		o.metrics.Attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		o.metrics.AttemptDuration.Record(ctx, time.Since(start).Seconds())
		o.bus.Complete(req.ID)
	}()

	// forward to in_progress; the CAS also stops a concurrent attempt of the same request
	req.Status = storage.RequestInProgress
	req.CompletedAt = nil
	if !resume {
		req.Progress = 0.1
	}
	if err := o.update(ctx, req); err != nil {
		return nil, err
	}
	o.logger.InfoContext(ctx, "execution attempt started", "request_id", req.ID, "resume", resume)

	emitter, err := NewEmitter(ctx, o.db, o.bus, req.ID, o.logger)
	if err != nil {
		return o.finishFailed(ctx, req, nil, &LoopResult{State: StateFailed, Err: err, Stage: StagePersist})
	}
	emitter.Seed(req.Results)

	msg, _, err := o.messages.responseMessageFor(ctx, req)
	if err != nil {
		return o.finishFailed(ctx, req, emitter, o.loop.fail(ctx, &Attempt{Request: req}, emitter, &LoopResult{}, StagePersist, err))
	}

	if resume {
		if err := o.runApproved(ctx, req); err != nil {
			lr := o.loop.fail(ctx, &Attempt{Request: req, Message: msg}, emitter, &LoopResult{}, StageTool, err)
			return o.finishFailed(ctx, req, emitter, lr)
		}
	}

	lr := o.loop.Run(ctx, &Attempt{
		Request: req,
		Message: msg,
		Resume:  resume,
		Progress: func(ctx context.Context, iteration int) error {
			req.Progress = 0.1 + 0.8*float64(iteration-1)/float64(o.maxIter)
			return o.update(ctx, req)
		},
	}, emitter)

	switch lr.State {
	case StateAwaitingApproval:
		return o.finishSuspended(ctx, req, msg, emitter, lr)
	case StateCompleted:
		return o.finishCompleted(ctx, req, msg, emitter, lr)
	default:
		return o.finishFailed(ctx, req, emitter, lr)
	}
}

// runApproved executes the checkpointed call once it has been approved and
// has no output yet. Declined calls need nothing; the conversation builder
// reports them to the model.
func (o *Orchestrator) runApproved(ctx context.Context, req *storage.AgentRequest) error {
	last := req.Checkpoint.LastToolCall
	if last == nil || o.tools == nil {
		return nil
	}
	record, err := storage.GetToolCallByID(ctx, o.db, last.ID)
	if err != nil {
		return fmt.Errorf("load checkpoint tool call: %w", err)
	}
	if record == nil || record.ApprovalStatus != storage.ApprovalApproved {
		return nil
	}
	if _, err := o.tools.ExecuteApproved(ctx, record.ID); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) finishSuspended(ctx context.Context, req *storage.AgentRequest, msg *storage.Message, emitter *Emitter, lr *LoopResult) (*Result, error) {
	if err := o.messages.FinalizeMessage(ctx, msg, msg.TokensUsed+lr.InputTokens+lr.OutputTokens); err != nil {
		lr.State = StateFailed
		lr.Err = err
		lr.Stage = StagePersist
		return o.finishFailed(ctx, req, emitter, lr)
	}
	req.Checkpoint = lr.Checkpoint
	req.Progress = 0.5
	req.Results = o.summary(req, msg, emitter, lr)
	req.TokenCost += lr.InputTokens + lr.OutputTokens
	if err := o.update(ctx, req); err != nil {
		return nil, err
	}
	return &Result{
		Request:             req,
		State:               StateAwaitingApproval,
		PendingToolCall:     lr.PendingToolCall,
		MaxRevisionsReached: lr.MaxRevisionsReached,
	}, nil
}

func (o *Orchestrator) finishCompleted(ctx context.Context, req *storage.AgentRequest, msg *storage.Message, emitter *Emitter, lr *LoopResult) (*Result, error) {
	tokens := msg.TokensUsed + lr.InputTokens + lr.OutputTokens
	if err := o.messages.FinalizeMessage(ctx, msg, tokens); err != nil {
		// never leave a completed request with an unfinalized message
		lr.State = StateFailed
		lr.Err = err
		lr.Stage = StageFinalize
		if emitErr := emitter.Emit(ctx, events.TypeError, events.Error{Message: err.Error(), Stage: StageFinalize}); emitErr != nil {
			o.logger.WarnContext(ctx, "failed to emit error event", "request_id", req.ID, "error", emitErr)
		}
		return o.finishFailed(ctx, req, emitter, lr)
	}

	now := time.Now().UTC()
	req.Status = storage.RequestCompleted
	req.Progress = 1
	req.CompletedAt = &now
	req.Checkpoint = nil
	req.Results = o.summary(req, msg, emitter, lr)
	req.TokenCost += lr.InputTokens + lr.OutputTokens
	if err := o.update(ctx, req); err != nil {
		return nil, err
	}
	o.logger.InfoContext(ctx, "agent request completed",
		"request_id", req.ID, "iterations", req.Results.Iterations, "exhausted", lr.Exhausted)
	return &Result{Request: req, State: StateCompleted}, nil
}

// finishFailed marks req failed. The checkpoint is kept so the request can be resumed.
func (o *Orchestrator) finishFailed(ctx context.Context, req *storage.AgentRequest, emitter *Emitter, lr *LoopResult) (*Result, error) {
	now := time.Now().UTC()
	req.Status = storage.RequestFailed
	req.CompletedAt = &now
	req.Results = o.summary(req, nil, emitter, lr)
	req.TokenCost += lr.InputTokens + lr.OutputTokens
	if err := o.update(ctx, req); err != nil {
		return nil, errors.Join(lr.Err, err)
	}
	return &Result{Request: req, State: StateFailed, Err: lr.Err}, nil
}

// summary builds the results of req after an attempt, adding to what earlier attempts recorded.
func (o *Orchestrator) summary(req *storage.AgentRequest, msg *storage.Message, emitter *Emitter, lr *LoopResult) *storage.RequestResults {
	out := &storage.RequestResults{}
	if req.Results != nil {
		*out = *req.Results
	}
	out.Iterations += lr.Iterations
	out.InputTokens += lr.InputTokens
	out.OutputTokens += lr.OutputTokens
	if lr.StopReason != "" {
		out.StopReason = lr.StopReason
	}
	if msg != nil {
		out.ToolCalls = append([]string(nil), msg.ToolCalls...)
	}
	out.Error = ""
	if lr.Err != nil {
		out.Error = lr.Err.Error()
	}
	if emitter != nil {
		if data, err := json.Marshal(emitter.Recent()); err == nil {
			out.LastEvents = data
		}
	}
	return out
}

func (o *Orchestrator) update(ctx context.Context, req *storage.AgentRequest) error {
	err := storage.WithRetry(ctx, 3, 10*time.Millisecond, func() error {
		return storage.UpdateRequest(ctx, o.db, req)
	})
	if err != nil {
		if errors.Is(err, storage.ErrStaleVersion) {
			o.logger.WarnContext(ctx, "request changed underneath the attempt", "request_id", req.ID, "version", req.Version)
		}
		return fmt.Errorf("update request %s: %w", req.ID, err)
	}
	return nil
}
