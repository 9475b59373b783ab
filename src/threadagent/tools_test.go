package threadagent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/elee1766/threadagent/src/aisdk"
	"github.com/elee1766/threadagent/src/config"
	"github.com/elee1766/threadagent/src/threadagent/tools/tool_webfetch"
	"github.com/elee1766/threadagent/src/threadagent/tools/tool_writefile"
	"github.com/elee1766/threadagent/src/toolexec"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterToolsClassification(t *testing.T) {
	registry := newRegistry(t)

	var registered []string
	for _, entry := range registry.Entries() {
		registered = append(registered, entry.Tool.GetName())
		assert.Equal(t, entry.Tool.GetName() == tool_writefile.Name, entry.RequiresApproval, entry.Tool.GetName())
		assert.False(t, entry.Native)
	}
	assert.ElementsMatch(t, ToolNames(), registered)
	assert.Len(t, registry.ChatTools(), len(ToolNames()))
}

func TestDefaultApprovalMatchesConfigDefaults(t *testing.T) {
	assert.Equal(t, config.DefaultConfig().Approval.Require, DefaultApprovalRequired)
}

func TestRegisterToolsDisabled(t *testing.T) {
	registry := toolexec.NewRegistry(nil, nil)
	require.NoError(t, RegisterTools(registry, ToolsConfig{
		Fs:       afero.NewMemMapFs(),
		Disabled: []string{tool_webfetch.Name},
	}))
	_, ok := registry.Lookup(tool_webfetch.Name)
	assert.False(t, ok)
	assert.Len(t, registry.Entries(), len(ToolNames())-1)
}

func TestRegisteredToolsShareFilesystem(t *testing.T) {
	fs := afero.NewMemMapFs()
	registry := toolexec.NewRegistry(nil, nil)
	require.NoError(t, RegisterTools(registry, ToolsConfig{Fs: fs}))

	ctx := context.Background()
	write := aisdk.NewToolCall("c1", "write_file", json.RawMessage(`{"path":"/notes/todo.txt","content":"buy milk\n","create_dirs":true}`))
	preview := registry.Preview(ctx, write)
	assert.Contains(t, preview, "+buy milk")

	resp, err := registry.Execute(ctx, write)
	require.NoError(t, err)
	require.False(t, resp.IsError, string(resp.Content))

	resp, err = registry.Execute(ctx, aisdk.NewToolCall("c2", "search_files", json.RawMessage(`{"pattern":"milk","path":"/notes"}`)))
	require.NoError(t, err)
	assert.Contains(t, string(resp.Content), `"count":1`)
}
