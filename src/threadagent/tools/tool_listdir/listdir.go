package tool_listdir

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/elee1766/threadagent/src/agent"
	"github.com/elee1766/threadagent/src/threadagent/toolsutil"
	"github.com/spf13/afero"
)

// Tool name constant
const Name = "list_directory"

const listDirectoryPrompt = `Lists files and directories in a given path. The path can be absolute or relative to the working directory.
Set recursive to walk subdirectories. Directories named in ignore (for example ".git" or "node_modules") are skipped.
Results are capped at max_entries (default 500); truncated is set when more exist.`

const defaultMaxEntries = 500

// ListDirectoryInput represents the input for listing a directory
type ListDirectoryInput struct {
	Path       string   `json:"path" required:"true" description:"The directory path to list"`
	Recursive  bool     `json:"recursive,omitempty" description:"Whether to list recursively"`
	Ignore     []string `json:"ignore,omitempty" description:"Glob patterns of names to skip"`
	MaxEntries int      `json:"max_entries,omitempty" description:"Maximum number of entries to return"`
}

// FileInfo represents information about a file or directory
type FileInfo struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	IsDir    bool   `json:"is_dir"`
	Size     int64  `json:"size"`
	ModTime  string `json:"mod_time"`
	Language string `json:"language,omitempty"`
}

// ListDirectoryOutput represents the output of listing a directory
type ListDirectoryOutput struct {
	Path      string     `json:"path"`
	Files     []FileInfo `json:"files"`
	Count     int        `json:"count"`
	Truncated bool       `json:"truncated,omitempty"`
}

// errLimit stops a walk once enough entries are collected.
var errLimit = errors.New("entry limit reached")

// Tool returns the list_directory tool definition using GenericTool
func Tool(fs afero.Fs) (agent.Tool, error) {
	return agent.NewGenericTool(Name, listDirectoryPrompt, makeListDirectoryHandler(fs))
}

func ignored(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := filepath.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

func describe(path string, info os.FileInfo) FileInfo {
	fi := FileInfo{
		Name:    info.Name(),
		Path:    path,
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime().UTC().Format(time.RFC3339),
	}
	if !info.IsDir() {
		fi.Language = toolsutil.DetectLanguage(path, nil)
	}
	return fi
}

func makeListDirectoryHandler(fs afero.Fs) func(context.Context, ListDirectoryInput) (ListDirectoryOutput, error) {
	return func(ctx context.Context, input ListDirectoryInput) (ListDirectoryOutput, error) {
		logger := toolsutil.GetLogger()
		if err := toolsutil.CheckPath(input.Path); err != nil {
			return ListDirectoryOutput{}, err
		}
		limit := input.MaxEntries
		if limit <= 0 {
			limit = defaultMaxEntries
		}

		out := ListDirectoryOutput{Path: input.Path, Files: []FileInfo{}}
		add := func(fi FileInfo) error {
			if len(out.Files) >= limit {
				out.Truncated = true
				return errLimit
			}
			out.Files = append(out.Files, fi)
			return nil
		}

		if input.Recursive {
			err := afero.Walk(fs, input.Path, func(path string, info os.FileInfo, err error) error {
				if err := toolsutil.Cancelled(ctx); err != nil {
					return err
				}
				if err != nil || path == input.Path {
					return nil
				}
				if ignored(info.Name(), input.Ignore) {
					if info.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
				return add(describe(path, info))
			})
			if err != nil && !errors.Is(err, errLimit) {
				logger.Error("failed to walk directory", "path", input.Path, "error", err)
				return ListDirectoryOutput{}, fmt.Errorf("failed to walk directory: %w", err)
			}
		} else {
			entries, err := afero.ReadDir(fs, input.Path)
			if err != nil {
				return ListDirectoryOutput{}, fmt.Errorf("failed to read directory: %w", err)
			}
			for _, info := range entries {
				if ignored(info.Name(), input.Ignore) {
					continue
				}
				if add(describe(filepath.Join(input.Path, info.Name()), info)) != nil {
					break
				}
			}
		}

		out.Count = len(out.Files)
		logger.Info("directory listed", "path", input.Path, "count", out.Count, "truncated", out.Truncated)
		return out, nil
	}
}
