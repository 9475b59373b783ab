package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/elee1766/threadagent/src/agent"
	"github.com/elee1766/threadagent/src/aisdk"
	"github.com/elee1766/threadagent/src/config"
	"github.com/elee1766/threadagent/src/notify"
	"github.com/elee1766/threadagent/src/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noteInput struct {
	Text string `json:"text" required:"true" description:"Note text"`
}

type noteOutput struct {
	Saved string `json:"saved"`
}

type fixture struct {
	db      *storage.DB
	handler *Handler
	hub     *notify.Hub
	req     *storage.AgentRequest
	runs    *int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	runs := 0
	registry := NewRegistry(config.NewApprovalPolicy(config.ApprovalConfig{Require: []string{"write_*"}}), nil)
	for _, name := range []string{"read_note", "write_note"} {
		tool, err := agent.NewGenericTool(name, "notes", func(ctx context.Context, in noteInput) (noteOutput, error) {
			runs++
			return noteOutput{Saved: in.Text}, nil
		})
		require.NoError(t, err)
		require.NoError(t, registry.Register(tool))
	}

	req := &storage.AgentRequest{UserID: "u", ThreadID: "th", TriggeringMessageID: "m", AgentType: "default"}
	require.NoError(t, storage.CreateRequest(ctx, db.DB(), req))

	hub := notify.NewHub(8)
	handler := NewHandler(Config{DB: db.DB(), Registry: registry, Notifier: hub, MaxRevisions: 2})
	return &fixture{db: db, handler: handler, hub: hub, req: req, runs: &runs}
}

func (f *fixture) propose(t *testing.T, id, tool string) *Outcome {
	t.Helper()
	outcome, err := f.handler.Handle(context.Background(), Proposal{
		RequestID:   f.req.ID,
		ThreadID:    f.req.ThreadID,
		OwnerUserID: f.req.UserID,
		Call:        aisdk.NewToolCall(id, tool, json.RawMessage(`{"text":"hi"}`)),
	})
	require.NoError(t, err)
	return outcome
}

func TestHandleAutoExecutes(t *testing.T) {
	f := newFixture(t)
	outcome := f.propose(t, "c1", "read_note")

	assert.False(t, outcome.NeedsApproval)
	require.NotNil(t, outcome.Response)
	assert.JSONEq(t, `{"saved":"hi"}`, string(outcome.Response.Content))
	assert.Equal(t, 1, *f.runs)

	stored, err := storage.GetToolCallByID(context.Background(), f.db.DB(), "c1")
	require.NoError(t, err)
	assert.Equal(t, storage.ApprovalApproved, stored.ApprovalStatus)
	assert.JSONEq(t, `{"saved":"hi"}`, string(stored.ToolOutput))
}

func TestHandleApprovalRequiredDoesNotRun(t *testing.T) {
	f := newFixture(t)
	outcome := f.propose(t, "c1", "write_note")

	assert.True(t, outcome.NeedsApproval)
	assert.Nil(t, outcome.Response)
	assert.NotEmpty(t, outcome.Preview)
	assert.Equal(t, 0, *f.runs)
	assert.Equal(t, storage.ApprovalPending, outcome.Record.ApprovalStatus)

	_, err := f.handler.ExecuteApproved(context.Background(), "c1")
	require.ErrorIs(t, err, ErrNotApproved)

	_, err = f.handler.Approve(context.Background(), "c1", "u")
	require.NoError(t, err)

	record, err := f.handler.ExecuteApproved(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, record.HasOutput())
	assert.Equal(t, 1, *f.runs)

	// a second resume does not run the tool again
	_, err = f.handler.ExecuteApproved(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, *f.runs)
}

func TestHandleUnknownTool(t *testing.T) {
	f := newFixture(t)
	_, err := f.handler.Handle(context.Background(), Proposal{RequestID: f.req.ID, Call: aisdk.NewToolCall("c1", "nope", nil)})
	require.ErrorIs(t, err, ErrUnknownTool)
}

func TestRejectionsAccumulateAcrossRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var last *Decision
	for i := 1; i <= 2; i++ {
		outcome := f.propose(t, fmt.Sprintf("c%d", i), "write_note")
		assert.Equal(t, i-1, outcome.Record.RevisionCount)
		assert.False(t, outcome.MaxRevisionsReached)

		decision, err := f.handler.Reject(ctx, outcome.Record.ID, "u", fmt.Sprintf("no %d", i))
		require.NoError(t, err)
		last = decision
	}
	assert.Equal(t, 2, last.Record.RevisionCount)
	require.Len(t, last.Record.RevisionHistory, 2)
	assert.Equal(t, "no 1", last.Record.RevisionHistory[0].Reason)
	assert.True(t, last.MaxRevisionsReached)

	third := f.propose(t, "c3", "write_note")
	assert.True(t, third.MaxRevisionsReached)

	_, err := f.handler.Approve(ctx, "c2", "u")
	require.ErrorIs(t, err, storage.ErrToolCallNotPending)
	_, err = f.handler.Approve(ctx, "missing", "u")
	require.ErrorIs(t, err, ErrToolCallNotFound)
}

func TestWaitForApprovalResolvesOnDecision(t *testing.T) {
	f := newFixture(t)
	f.propose(t, "c1", "write_note")

	done := make(chan *ApprovalResult, 1)
	go func() {
		res, err := f.handler.WaitForApproval(context.Background(), "c1", 5*time.Second)
		if err == nil {
			done <- res
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := f.handler.Reject(context.Background(), "c1", "u", "not now")
	require.NoError(t, err)

	select {
	case res := <-done:
		require.NotNil(t, res)
		assert.False(t, res.Approved)
		assert.Equal(t, "not now", res.Reason)
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not resolve")
	}
}

func TestWaitForApprovalTimesOut(t *testing.T) {
	f := newFixture(t)
	f.propose(t, "c1", "write_note")

	res, err := f.handler.WaitForApproval(context.Background(), "c1", 30*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, res.Approved)
	assert.Equal(t, "Timeout", res.Reason)

	stored, err := storage.GetToolCallByID(context.Background(), f.db.DB(), "c1")
	require.NoError(t, err)
	assert.Equal(t, storage.ApprovalTimeout, stored.ApprovalStatus)

	// already decided calls resolve immediately
	res, err = f.handler.WaitForApproval(context.Background(), "c1", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "Timeout", res.Reason)
}

func TestWaitForApprovalRereadsWhenNotificationIsLost(t *testing.T) {
	f := newFixture(t)
	f.propose(t, "c1", "write_note")

	// a hub of one slot that is already full drops every further notification
	hub := notify.NewHub(1)
	defer hub.Close()
	handler := NewHandler(Config{
		DB:              f.db.DB(),
		Registry:        f.handler.Registry(),
		Notifier:        hub,
		RecheckInterval: 10 * time.Millisecond,
	})

	done := make(chan *ApprovalResult, 1)
	go func() {
		res, err := handler.WaitForApproval(context.Background(), "c1", 5*time.Second)
		if err == nil {
			done <- res
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	ctx := context.Background()
	require.NoError(t, hub.Notify(ctx, notify.ChannelToolCalls, "other-1"))
	require.NoError(t, hub.Notify(ctx, notify.ChannelToolCalls, "other-2"))

	record, err := storage.GetToolCallByID(ctx, f.db.DB(), "c1")
	require.NoError(t, err)
	record.ApprovalStatus = storage.ApprovalApproved
	decidedBy := "u"
	record.DecidedBy = &decidedBy
	require.NoError(t, storage.DecideToolCall(ctx, f.db.DB(), record))

	select {
	case res := <-done:
		require.NotNil(t, res)
		assert.True(t, res.Approved)
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not notice the decision")
	}
}

func TestRegistryEntries(t *testing.T) {
	f := newFixture(t)
	entries := f.handler.Registry().Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "read_note", entries[0].Tool.GetName())
	assert.False(t, entries[0].RequiresApproval)
	assert.True(t, entries[1].RequiresApproval)
	assert.Len(t, f.handler.Registry().ChatTools(), 2)
}
