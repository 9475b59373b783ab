package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Instruments are the engine's counters and histograms. They are created
// against the global meter provider, which forwards to the real provider
// once Init has run.
type Instruments struct {
	OrphanedToolInvocations  metric.Int64Counter
	DiscardedToolInvocations metric.Int64Counter
	Attempts                 metric.Int64Counter
	Iterations               metric.Int64Counter
	ToolCalls                metric.Int64Counter
	Tokens                   metric.Int64Counter
	AttemptDuration          metric.Float64Histogram
}

var (
	instrumentsOnce sync.Once
	instruments     *Instruments
)

// Engine returns the process-wide instruments.
func Engine() *Instruments {
	instrumentsOnce.Do(func() {
		instruments = newInstruments(Meter(ScopeName))
	})
	return instruments
}

func newInstruments(meter metric.Meter) *Instruments {
	fallback := noop.NewMeterProvider().Meter(ScopeName)
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}

	duration, err := meter.Float64Histogram("threadagent.attempt.duration",
		metric.WithDescription("Wall time of one execution attempt"),
		metric.WithUnit("s"))
	if err != nil {
		duration, _ = fallback.Float64Histogram("threadagent.attempt.duration")
	}

	return &Instruments{
		OrphanedToolInvocations: counter("threadagent.conversation.orphaned_tool_invocations",
			"Tool invocation blocks dropped because no tool call record matched"),
		DiscardedToolInvocations: counter("threadagent.loop.discarded_tool_invocations",
			"Extra tool invocations in a single model turn that were not processed"),
		Attempts: counter("threadagent.attempts",
			"Execution attempts by outcome"),
		Iterations: counter("threadagent.loop.iterations",
			"Model calls made by the execution loop"),
		ToolCalls: counter("threadagent.tool_calls",
			"Tool calls by tool and approval status"),
		Tokens: counter("threadagent.tokens",
			"Model tokens by direction"),
		AttemptDuration: duration,
	}
}
