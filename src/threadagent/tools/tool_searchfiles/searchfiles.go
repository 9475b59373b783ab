package tool_searchfiles

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/elee1766/threadagent/src/agent"
	"github.com/elee1766/threadagent/src/threadagent/toolsutil"
	"github.com/spf13/afero"
)

// Tool name constant
const Name = "search_files"

const searchFilesPrompt = `Searches file contents for a regular expression.
- pattern is a Go regular expression; if it does not compile it is matched as a literal string
- file_pattern filters file names with a glob such as "*.go"
- Each match includes the line and up to two lines of context on either side
- Binary files and directories named .git are skipped
- At most max_results matches are returned (default 200)`

const (
	defaultMaxResults = 200
	contextLines      = 2
)

var errLimit = errors.New("result limit reached")

// SearchFilesInput represents the parameters for search_files
type SearchFilesInput struct {
	Pattern     string `json:"pattern" required:"true" description:"The search pattern (regex or string)"`
	Path        string `json:"path,omitempty" description:"The directory to search in (defaults to current directory)"`
	FilePattern string `json:"file_pattern,omitempty" description:"File name pattern (glob) to filter files"`
	MaxResults  int    `json:"max_results,omitempty" description:"Maximum number of matches to return"`
}

// SearchMatch represents a single search match
type SearchMatch struct {
	File    string   `json:"file"`
	Line    int      `json:"line"`
	Content string   `json:"content"`
	Context []string `json:"context,omitempty"`
}

// SearchFilesOutput represents the response from search_files
type SearchFilesOutput struct {
	Pattern   string        `json:"pattern"`
	Path      string        `json:"path"`
	Matches   []SearchMatch `json:"matches"`
	Count     int           `json:"count"`
	Truncated bool          `json:"truncated,omitempty"`
}

// Tool returns the search_files tool definition using GenericTool
func Tool(fs afero.Fs) (agent.Tool, error) {
	return agent.NewGenericTool(Name, searchFilesPrompt, makeSearchFilesHandler(fs))
}

func matcher(pattern string) func(string) bool {
	if re, err := regexp.Compile(pattern); err == nil {
		return re.MatchString
	}
	return func(line string) bool { return strings.Contains(line, pattern) }
}

func makeSearchFilesHandler(fs afero.Fs) func(context.Context, SearchFilesInput) (SearchFilesOutput, error) {
	return func(ctx context.Context, input SearchFilesInput) (SearchFilesOutput, error) {
		logger := toolsutil.GetLogger()
		if input.Path == "" {
			input.Path = "."
		}
		if err := toolsutil.CheckPath(input.Path); err != nil {
			return SearchFilesOutput{}, err
		}
		limit := input.MaxResults
		if limit <= 0 {
			limit = defaultMaxResults
		}

		match := matcher(input.Pattern)
		out := SearchFilesOutput{Pattern: input.Pattern, Path: input.Path, Matches: []SearchMatch{}}

		err := afero.Walk(fs, input.Path, func(path string, info os.FileInfo, err error) error {
			if err := toolsutil.Cancelled(ctx); err != nil {
				return err
			}
			if err != nil {
				return nil
			}
			if info.IsDir() {
				if info.Name() == ".git" {
					return filepath.SkipDir
				}
				return nil
			}
			if input.FilePattern != "" {
				if ok, err := filepath.Match(input.FilePattern, info.Name()); err != nil || !ok {
					return nil
				}
			}
			if toolsutil.ValidateFileSize(info.Size()) != nil {
				return nil
			}
			content, err := afero.ReadFile(fs, path)
			if err != nil || !toolsutil.IsTextFile(content) {
				return nil
			}

			lines := strings.Split(string(content), "\n")
			for i, line := range lines {
				if !match(line) {
					continue
				}
				if len(out.Matches) >= limit {
					out.Truncated = true
					return errLimit
				}
				out.Matches = append(out.Matches, SearchMatch{
					File:    path,
					Line:    i + 1,
					Content: line,
					Context: surrounding(lines, i),
				})
			}
			return nil
		})
		if err != nil && !errors.Is(err, errLimit) {
			logger.Error("search failed", "error", err)
			return SearchFilesOutput{}, fmt.Errorf("search failed: %w", err)
		}

		out.Count = len(out.Matches)
		logger.Info("search completed", "pattern", input.Pattern, "matches", out.Count)
		return out, nil
	}
}

func surrounding(lines []string, index int) []string {
	start := max(index-contextLines, 0)
	end := min(index+contextLines+1, len(lines))
	return lines[start:end]
}
