package tool_readfile

import (
	"context"
	"fmt"
	"strings"

	"github.com/elee1766/threadagent/src/agent"
	"github.com/elee1766/threadagent/src/threadagent/toolsutil"
	"github.com/spf13/afero"
)

// Tool name constant
const Name = "read_file"

const readFilePrompt = `Reads a text file from the local filesystem.

Usage:
- The path can be absolute or relative to the working directory.
- Use offset and limit to page through large files. By default up to 2000 lines are returned.
- Set line_numbers to prefix each line with its number ("12: content").
- Lines longer than 2000 characters are truncated.
- Binary files are rejected.`

const (
	defaultLineLimit = 2000
	maxLineLength    = 2000
)

// ReadFileInput represents the parameters for read_file
type ReadFileInput struct {
	Path        string `json:"path" required:"true" description:"The file path to read"`
	Offset      int    `json:"offset,omitempty" description:"1-based line to start reading from"`
	Limit       int    `json:"limit,omitempty" description:"Maximum number of lines to return (default 2000)"`
	LineNumbers bool   `json:"line_numbers,omitempty" description:"Include line numbers in output"`
}

// ReadFileOutput represents the response from read_file
type ReadFileOutput struct {
	Path       string `json:"path" description:"The file path that was read"`
	Content    string `json:"content" description:"The selected lines of the file"`
	Size       int64  `json:"size" description:"File size in bytes"`
	Language   string `json:"language,omitempty" description:"Detected programming language"`
	TotalLines int    `json:"total_lines" description:"Number of lines in the file"`
	Truncated  bool   `json:"truncated,omitempty" description:"Whether lines after the returned range exist"`
}

// Tool returns the read_file tool definition using GenericTool
func Tool(fs afero.Fs) (agent.Tool, error) {
	return agent.NewGenericTool(Name, readFilePrompt, makeReadFileHandler(fs))
}

func makeReadFileHandler(fs afero.Fs) func(context.Context, ReadFileInput) (ReadFileOutput, error) {
	return func(ctx context.Context, input ReadFileInput) (ReadFileOutput, error) {
		logger := toolsutil.GetLogger()
		if err := toolsutil.Cancelled(ctx); err != nil {
			return ReadFileOutput{}, err
		}
		if err := toolsutil.CheckPath(input.Path); err != nil {
			return ReadFileOutput{}, err
		}

		info, err := fs.Stat(input.Path)
		if err != nil {
			return ReadFileOutput{}, fmt.Errorf("file not found: %s", input.Path)
		}
		if info.IsDir() {
			return ReadFileOutput{}, fmt.Errorf("%s is a directory, use list_directory", input.Path)
		}
		if err := toolsutil.ValidateFileSize(info.Size()); err != nil {
			return ReadFileOutput{}, err
		}

		content, err := afero.ReadFile(fs, input.Path)
		if err != nil {
			logger.Error("failed to read file", "path", input.Path, "error", err)
			return ReadFileOutput{}, fmt.Errorf("failed to read file: %w", err)
		}
		if !toolsutil.IsTextFile(content) {
			return ReadFileOutput{}, fmt.Errorf("%w: %s", toolsutil.ErrNotTextFile, input.Path)
		}

		lines := strings.Split(string(content), "\n")
		start := max(input.Offset, 1) - 1
		if start > len(lines) {
			start = len(lines)
		}
		limit := input.Limit
		if limit <= 0 {
			limit = defaultLineLimit
		}
		end := min(start+limit, len(lines))

		selected := make([]string, 0, end-start)
		for i, line := range lines[start:end] {
			if len(line) > maxLineLength {
				line = line[:maxLineLength]
			}
			if input.LineNumbers {
				line = fmt.Sprintf("%d: %s", start+i+1, line)
			}
			selected = append(selected, line)
		}

		logger.Info("file read", "path", input.Path, "size", len(content), "lines", len(selected))
		return ReadFileOutput{
			Path:       input.Path,
			Content:    strings.Join(selected, "\n"),
			Size:       info.Size(),
			Language:   toolsutil.DetectLanguage(input.Path, content),
			TotalLines: len(lines),
			Truncated:  end < len(lines),
		}, nil
	}
}
