package tool_writefile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aymanbagabas/go-udiff"
	"github.com/elee1766/threadagent/src/agent"
	"github.com/elee1766/threadagent/src/threadagent/toolsutil"
	"github.com/spf13/afero"
)

// Tool name constant
const Name = "write_file"

const writeFilePrompt = `Writes a file to the local filesystem, replacing it if it exists.

Usage:
- Every call is shown to the user as a diff and waits for their approval before it runs.
- If the user declines, the reason is returned to you. Adjust the content and try again, or stop.
- Read an existing file before replacing it so the diff only shows the change you intend.
- Set create_dirs to create missing parent directories.`

// WriteFileInput represents the parameters for write_file
type WriteFileInput struct {
	Path       string `json:"path" required:"true" description:"The file path to write"`
	Content    string `json:"content" required:"true" description:"The full new content of the file"`
	CreateDirs bool   `json:"create_dirs,omitempty" description:"Create parent directories if they don't exist"`
}

// WriteFileOutput represents the response from write_file
type WriteFileOutput struct {
	Path    string `json:"path" description:"The file path that was written"`
	Size    int    `json:"size" description:"Size of content written in bytes"`
	Created bool   `json:"created" description:"Whether the file did not exist before"`
}

// Tool returns the write_file tool. Its preview is a unified diff of the
// current file against the proposed content.
func Tool(fs afero.Fs) (agent.Tool, error) {
	tool, err := agent.NewGenericTool(Name, writeFilePrompt, makeWriteFileHandler(fs))
	if err != nil {
		return nil, err
	}
	return tool.WithPreview(makeWriteFilePreview(fs)), nil
}

func validate(input WriteFileInput) error {
	if err := toolsutil.CheckPath(input.Path); err != nil {
		return err
	}
	return toolsutil.ValidateFileSize(int64(len(input.Content)))
}

// currentContent returns the file's content, or "" and false if it does not exist.
func currentContent(fs afero.Fs, path string) (string, bool, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

func makeWriteFilePreview(fs afero.Fs) func(context.Context, WriteFileInput) (string, error) {
	return func(ctx context.Context, input WriteFileInput) (string, error) {
		if err := validate(input); err != nil {
			return "", err
		}
		old, exists, err := currentContent(fs, input.Path)
		if err != nil {
			return "", fmt.Errorf("failed to read current file: %w", err)
		}
		oldLabel := input.Path
		if !exists {
			oldLabel = "/dev/null"
		}
		diff := udiff.Unified(oldLabel, input.Path, old, input.Content)
		if diff == "" {
			return fmt.Sprintf("%s is unchanged", input.Path), nil
		}
		return diff, nil
	}
}

func makeWriteFileHandler(fs afero.Fs) func(context.Context, WriteFileInput) (WriteFileOutput, error) {
	return func(ctx context.Context, input WriteFileInput) (WriteFileOutput, error) {
		logger := toolsutil.GetLogger()
		if err := toolsutil.Cancelled(ctx); err != nil {
			return WriteFileOutput{}, err
		}
		if err := validate(input); err != nil {
			return WriteFileOutput{}, err
		}

		_, exists, err := currentContent(fs, input.Path)
		if err != nil {
			return WriteFileOutput{}, fmt.Errorf("failed to read current file: %w", err)
		}

		dir := filepath.Dir(input.Path)
		if input.CreateDirs {
			if err := fs.MkdirAll(dir, 0o755); err != nil {
				logger.Error("failed to create directory", "dir", dir, "error", err)
				return WriteFileOutput{}, fmt.Errorf("failed to create directory: %w", err)
			}
		} else if _, err := fs.Stat(dir); err != nil {
			return WriteFileOutput{}, fmt.Errorf("directory does not exist: %s", dir)
		}

		if err := afero.WriteFile(fs, input.Path, []byte(input.Content), 0o644); err != nil {
			logger.Error("failed to write file", "path", input.Path, "error", err)
			return WriteFileOutput{}, fmt.Errorf("failed to write file: %w", err)
		}

		logger.Info("file written", "path", input.Path, "size", len(input.Content), "created", !exists)
		return WriteFileOutput{
			Path:    input.Path,
			Size:    len(input.Content),
			Created: !exists,
		}, nil
	}
}
