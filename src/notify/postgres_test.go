package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "threadagent",
			"POSTGRES_PASSWORD": "threadagent",
			"POSTGRES_DB":       "threadagent",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://threadagent:threadagent@%s:%s/threadagent?sslmode=disable", host, port.Port())
}

func TestPostgresRoundTrip(t *testing.T) {
	dsn := startPostgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	listener, err := NewPostgres(ctx, dsn, []string{ChannelToolCalls}, nil)
	require.NoError(t, err)
	defer listener.Close(context.Background())

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- listener.Run(runCtx) }()

	sub := listener.Subscribe(ChannelToolCalls)
	defer sub.Close()

	sender, err := NewPostgres(ctx, dsn, nil, nil)
	require.NoError(t, err)
	defer sender.Close(context.Background())

	require.NoError(t, sender.Notify(ctx, ChannelToolCalls, "tc-42"))

	select {
	case n := <-sub.C:
		assert.Equal(t, "tc-42", n.Payload)
	case <-ctx.Done():
		t.Fatal("notification not delivered across connections")
	}

	stop()
	assert.NoError(t, <-done)
}
