package tool_writefile

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/elee1766/threadagent/src/agent"
	"github.com/elee1766/threadagent/src/aisdk"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(t *testing.T, args map[string]interface{}) *aisdk.ToolCall {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return aisdk.NewToolCall("call_1", Name, raw)
}

func TestWriteFileTool(t *testing.T) {
	tests := []struct {
		name          string
		setupFS       func(afero.Fs) error
		args          map[string]interface{}
		expectedError bool
		checkFS       func(t *testing.T, fs afero.Fs)
	}{
		{
			name: "write new file",
			args: map[string]interface{}{"path": "/test.txt", "content": "Hello, World!"},
			checkFS: func(t *testing.T, fs afero.Fs) {
				content, err := afero.ReadFile(fs, "/test.txt")
				require.NoError(t, err)
				assert.Equal(t, "Hello, World!", string(content))
			},
		},
		{
			name: "overwrite existing file",
			setupFS: func(fs afero.Fs) error {
				return afero.WriteFile(fs, "/test.txt", []byte("Old content"), 0o644)
			},
			args: map[string]interface{}{"path": "/test.txt", "content": "New content"},
			checkFS: func(t *testing.T, fs afero.Fs) {
				content, err := afero.ReadFile(fs, "/test.txt")
				require.NoError(t, err)
				assert.Equal(t, "New content", string(content))
			},
		},
		{
			name: "create_dirs makes parents",
			args: map[string]interface{}{"path": "/deep/nested/file.txt", "content": "Nested", "create_dirs": true},
			checkFS: func(t *testing.T, fs afero.Fs) {
				exists, err := afero.DirExists(fs, "/deep/nested")
				require.NoError(t, err)
				assert.True(t, exists)
			},
		},
		{
			name:          "missing parent without create_dirs",
			args:          map[string]interface{}{"path": "/nonexistent/dir/file.txt", "content": "x"},
			expectedError: true,
		},
		{
			name:          "unsafe path",
			args:          map[string]interface{}{"path": "../../../etc/passwd", "content": "x"},
			expectedError: true,
		},
		{
			name:          "missing content",
			args:          map[string]interface{}{"path": "/test.txt"},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			if tt.setupFS != nil {
				require.NoError(t, tt.setupFS(fs))
			}

			tool, err := Tool(fs)
			require.NoError(t, err)

			response, err := tool.Execute(context.Background(), call(t, tt.args))
			require.NoError(t, err)

			if tt.expectedError {
				assert.True(t, response.IsError, string(response.Content))
				return
			}
			assert.False(t, response.IsError, string(response.Content))
			if tt.checkFS != nil {
				tt.checkFS(t, fs)
			}
		})
	}
}

func TestWriteFileReportsCreated(t *testing.T) {
	fs := afero.NewMemMapFs()
	tool, err := Tool(fs)
	require.NoError(t, err)

	resp, err := tool.Execute(context.Background(), call(t, map[string]interface{}{"path": "/a.txt", "content": "one"}))
	require.NoError(t, err)
	var out WriteFileOutput
	require.NoError(t, json.Unmarshal(resp.Content, &out))
	assert.True(t, out.Created)
	assert.Equal(t, 3, out.Size)

	resp, err = tool.Execute(context.Background(), call(t, map[string]interface{}{"path": "/a.txt", "content": "two"}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(resp.Content, &out))
	assert.False(t, out.Created)
}

func TestWriteFilePreviewIsUnifiedDiff(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/notes.txt", []byte("alpha\nbeta\n"), 0o644))

	tool, err := Tool(fs)
	require.NoError(t, err)
	previewer, ok := tool.(agent.Previewer)
	require.True(t, ok)

	preview, err := previewer.Preview(context.Background(), call(t, map[string]interface{}{
		"path":    "/notes.txt",
		"content": "alpha\ngamma\n",
	}))
	require.NoError(t, err)
	assert.Contains(t, preview, "--- /notes.txt")
	assert.Contains(t, preview, "+++ /notes.txt")
	assert.Contains(t, preview, "-beta")
	assert.Contains(t, preview, "+gamma")

	content, err := afero.ReadFile(fs, "/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "alpha\nbeta\n", string(content), "preview must not write")
}

func TestWriteFilePreviewNewFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	tool, err := Tool(fs)
	require.NoError(t, err)

	preview, err := tool.(agent.Previewer).Preview(context.Background(), call(t, map[string]interface{}{
		"path":    "/new.txt",
		"content": "hello\n",
	}))
	require.NoError(t, err)
	assert.Contains(t, preview, "--- /dev/null")
	assert.Contains(t, preview, "+hello")
}

func TestWriteFilePreviewUnchanged(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/same.txt", []byte("same\n"), 0o644))
	tool, err := Tool(fs)
	require.NoError(t, err)

	preview, err := tool.(agent.Previewer).Preview(context.Background(), call(t, map[string]interface{}{
		"path":    "/same.txt",
		"content": "same\n",
	}))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(preview, "is unchanged"))
}

func TestWriteFileToolLargeContent(t *testing.T) {
	fs := afero.NewMemMapFs()
	tool, err := Tool(fs)
	require.NoError(t, err)

	resp, err := tool.Execute(context.Background(), call(t, map[string]interface{}{
		"path":    "/large.txt",
		"content": strings.Repeat("A", 10*1024*1024+1),
	}))
	require.NoError(t, err)
	assert.True(t, resp.IsError)
	assert.Contains(t, string(resp.Content), "file too large")
}
