package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

var version = "dev"

// CLI represents the main CLI structure
type CLI struct {
	Config    string `short:"c" help:"Config file (defaults to the XDG and project locations)" type:"path"`
	Provider  string `help:"Model provider (anthropic, openrouter)"`
	Model     string `short:"m" help:"Model to use"`
	APIKey    string `help:"Provider API key (defaults to the provider's env var)"`
	BaseURL   string `help:"Custom API base URL"`
	Database  string `help:"sqlite database path"`
	Workspace string `short:"w" help:"Directory file tools are confined to" type:"path"`
	User      string `help:"User id recorded on messages and decisions" env:"USER" default:"local"`
	LogLevel  string `help:"Log level (debug, info, warn, error)"`
	LogFile   string `help:"Write JSON logs to this file instead of stderr" type:"path"`

	Run     RunCmd     `cmd:"" help:"Send a message and run the agent on it"`
	Resume  ResumeCmd  `cmd:"" help:"Resume a request paused for approval or failed with a checkpoint"`
	Approve ApproveCmd `cmd:"" help:"Approve a pending tool call"`
	Reject  RejectCmd  `cmd:"" help:"Reject a pending tool call"`
	Wait    WaitCmd    `cmd:"" help:"Block until a tool call is decided or times out"`
	Events  EventsCmd  `cmd:"" help:"Replay the event log of a request"`
	Show    ShowCmd    `cmd:"" help:"Show a request, its tool calls and its response"`
	Tools   ToolsCmd   `cmd:"" help:"List the tools the agent can call"`
	Models  ModelsCmd  `cmd:"" help:"List the provider's models"`
	Migrate MigrateCmd `cmd:"" help:"Database migrations"`
	Version VersionCmd `cmd:"" help:"Print the version"`

	ConfigCmd ConfigCmd `cmd:"" name:"config" help:"Inspect the effective configuration"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("threadagent"),
		kong.Description("Agent execution engine with human approval of tool calls"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	kctx.BindTo(ctx, (*context.Context)(nil))

	err := kctx.Run(&cli)
	stop()
	if err != nil {
		if errors.Is(err, errAwaitingApproval) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(exitCode(err))
	}
}

// VersionCmd prints the build version
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(version)
	return nil
}
