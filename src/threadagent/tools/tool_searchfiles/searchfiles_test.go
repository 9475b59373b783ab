package tool_searchfiles

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/elee1766/threadagent/src/aisdk"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func search(t *testing.T, fs afero.Fs, args map[string]interface{}) SearchFilesOutput {
	t.Helper()
	tool, err := Tool(fs)
	require.NoError(t, err)
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	resp, err := tool.Execute(context.Background(), aisdk.NewToolCall("call_1", Name, raw))
	require.NoError(t, err)
	require.False(t, resp.IsError, string(resp.Content))
	var out SearchFilesOutput
	require.NoError(t, json.Unmarshal(resp.Content, &out))
	return out
}

func setupFS(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/a.go", []byte("package a\n\nfunc Hello() {}\nfunc World() {}\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/src/b.txt", []byte("Hello there\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/src/blob.bin", []byte{'H', 0x00, 'e'}, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/src/.git/config", []byte("Hello git\n"), 0o644))
	return fs
}

func TestSearchFilesRegex(t *testing.T) {
	out := search(t, setupFS(t), map[string]interface{}{"pattern": `func \w+\(`, "path": "/src"})
	require.Equal(t, 2, out.Count)
	assert.Equal(t, "/src/a.go", out.Matches[0].File)
	assert.Equal(t, 3, out.Matches[0].Line)
	assert.Equal(t, "func Hello() {}", out.Matches[0].Content)
	assert.Contains(t, out.Matches[0].Context, "package a")
}

func TestSearchFilesFilePatternAndSkips(t *testing.T) {
	out := search(t, setupFS(t), map[string]interface{}{"pattern": "Hello", "path": "/src"})
	var files []string
	for _, m := range out.Matches {
		files = append(files, m.File)
	}
	assert.ElementsMatch(t, []string{"/src/a.go", "/src/b.txt"}, files)

	out = search(t, setupFS(t), map[string]interface{}{"pattern": "Hello", "path": "/src", "file_pattern": "*.txt"})
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "/src/b.txt", out.Matches[0].File)
}

func TestSearchFilesInvalidRegexFallsBackToLiteral(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/x/f.txt", []byte("call(a\nother\n"), 0o644))
	out := search(t, fs, map[string]interface{}{"pattern": "call(", "path": "/x"})
	require.Equal(t, 1, out.Count)
	assert.Equal(t, 1, out.Matches[0].Line)
}

func TestSearchFilesLimit(t *testing.T) {
	out := search(t, setupFS(t), map[string]interface{}{"pattern": "func", "path": "/src", "max_results": 1})
	assert.Equal(t, 1, out.Count)
	assert.True(t, out.Truncated)
}
