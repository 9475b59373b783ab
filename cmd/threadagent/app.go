package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/elee1766/threadagent/src/config"
	"github.com/elee1766/threadagent/src/eventbus"
	"github.com/elee1766/threadagent/src/executor"
	"github.com/elee1766/threadagent/src/fs"
	"github.com/elee1766/threadagent/src/notify"
	"github.com/elee1766/threadagent/src/storage"
	"github.com/elee1766/threadagent/src/telemetry"
	"github.com/elee1766/threadagent/src/threadagent"
	"github.com/elee1766/threadagent/src/threadagent/toolsutil"
	"github.com/elee1766/threadagent/src/toolexec"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// engine holds everything a command needs besides the model client.
type engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *storage.DB
	notifier notify.Notifier
	// listen delivers notifications from other processes; nil for the memory driver.
	listen   func(ctx context.Context) error
	registry *toolexec.Registry
	tools    *toolexec.Handler
	bus      *eventbus.Bus
	closers  []func(ctx context.Context) error
}

type engineOptions struct {
	// readOnly wraps the tool filesystem so nothing can be written.
	readOnly bool
}

func newEngine(ctx context.Context, cli *CLI, opts engineOptions) (_ *engine, err error) {
	cfg, err := loadConfig(cli)
	if err != nil {
		return nil, err
	}

	logger, logFile, err := newLogger(cfg.Observability.Logging)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	toolsutil.SetLogger(logger)

	e := &engine{cfg: cfg, logger: logger}
	e.closers = append(e.closers, func(context.Context) error { return logFile.Close() })
	defer func() {
		if err != nil {
			e.Close(context.WithoutCancel(ctx))
		}
	}()

	tel := cfg.Observability.Telemetry
	shutdown, err := telemetry.Init(ctx, tel.Endpoint, tel.ServiceName, version, tel.Insecure)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, shutdown)

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	e.db, err = storage.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	e.closers = append(e.closers, func(context.Context) error { return e.db.Close() })

	switch cfg.Notify.Driver {
	case config.NotifyPostgres:
		pg, err := notify.NewPostgres(ctx, cfg.Notify.PostgresDSN, []string{notify.ChannelToolCalls}, logger)
		if err != nil {
			return nil, err
		}
		e.notifier = pg
		e.listen = pg.Run
		e.closers = append(e.closers, pg.Close)
	default:
		hub := notify.NewHub(16)
		e.notifier = hub
		e.closers = append(e.closers, func(context.Context) error { hub.Close(); return nil })
	}

	toolFs, err := fs.Workspace(afero.NewOsFs(), cfg.Agent.WorkspaceRoot)
	if err != nil {
		return nil, errConfig{err}
	}
	if opts.readOnly {
		toolFs = fs.ReadOnly(toolFs)
	}
	e.registry = toolexec.NewRegistry(config.NewApprovalPolicy(cfg.Approval), logger)
	if err := threadagent.RegisterTools(e.registry, threadagent.ToolsConfig{
		Fs:         toolFs,
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
	}); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	e.tools = toolexec.NewHandler(toolexec.Config{
		DB:              e.db.DB(),
		Registry:        e.registry,
		Notifier:        e.notifier,
		MaxRevisions:    cfg.Approval.MaxRevisions,
		ApprovalTimeout: cfg.Approval.Timeout.Std(),
		Logger:          logger,
	})

	e.bus = eventbus.New(eventbus.Config{
		BufferSize:       cfg.EventBus.BufferSize,
		SubscriberBuffer: cfg.EventBus.SubscriberBuffer,
		Retention:        cfg.EventBus.Retention.Std(),
		Logger:           logger,
	})
	return e, nil
}

// Close releases resources in reverse order of acquisition.
func (e *engine) Close(ctx context.Context) {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](ctx); err != nil {
			e.logger.Warn("shutdown step failed", "error", err)
		}
	}
	e.closers = nil
}

// orchestrator connects a model client to the engine.
func (e *engine) orchestrator() (*executor.Orchestrator, error) {
	model, err := newModelClient(e.cfg.Provider, e.logger)
	if err != nil {
		return nil, err
	}

	systemPrompt := e.cfg.Agent.SystemPromptOverride
	if systemPrompt == "" {
		systemPrompt = threadagent.GenerateSystemPrompt(e.registry)
	}

	return executor.New(executor.Config{
		DB:            e.db.DB(),
		Bus:           e.bus,
		Model:         model,
		Tools:         e.tools,
		SystemPrompt:  systemPrompt,
		MaxIterations: e.cfg.Agent.MaxIterations,
		HistoryLimit:  e.cfg.Agent.HistoryLimit,
		MaxTokens:     int(e.cfg.Provider.MaxTokens),
		Temperature:   e.cfg.Provider.Temperature,
		Logger:        e.logger,
	})
}

// ConsoleOptions are the rendering flags shared by commands that stream events.
type ConsoleOptions struct {
	Raw        bool `help:"Print streamed text only"`
	Timestamps bool `help:"Prefix events with their time"`
	Arguments  bool `help:"Show tool call arguments" default:"true" negatable:""`
}

func (o ConsoleOptions) processor() *executor.ConsoleEventProcessor {
	tty := term.IsTerminal(os.Stdout.Fd())
	width := 0
	if tty {
		if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil {
			width = w
		}
	}
	return executor.NewConsoleEventProcessor(executor.ConsoleProcessorConfig{
		Out:               os.Stdout,
		ShowTimestamps:    o.Timestamps,
		ShowToolArguments: o.Arguments,
		RawMode:           o.Raw,
		Highlight:         tty,
		MaxPreviewWidth:   width,
	})
}

// follow runs one attempt while streaming its events to proc. The topic is
// cleared and subscribed before the attempt starts so no event is missed.
func (e *engine) follow(ctx context.Context, requestID string, proc executor.EventProcessor,
	run func(ctx context.Context) (*executor.Result, error)) (*executor.Result, error) {
	afterSeq, err := storage.NextEventSeq(ctx, e.db.DB(), requestID)
	if err != nil {
		return nil, fmt.Errorf("read event sequence: %w", err)
	}
	afterSeq--

	e.bus.Clear(requestID)
	backlog, sub := e.bus.SubscribeWithBacklog(requestID)
	defer proc.Close()

	g, gctx := errgroup.WithContext(ctx)
	listenCtx, stopListening := context.WithCancel(gctx)
	defer stopListening()
	if e.listen != nil {
		g.Go(func() error { return e.listen(listenCtx) })
	}

	var res *executor.Result
	g.Go(func() error {
		return executor.Follow(gctx, backlog, sub, afterSeq, proc)
	})
	g.Go(func() error {
		defer stopListening()
		r, err := run(gctx)
		res = r
		return err
	})
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}
