package toolsutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Package-level logger for tools
var logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
	Level: slog.LevelError,
}))

// SetLogger allows setting a custom logger for the tools package
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// GetLogger returns the package logger
func GetLogger() *slog.Logger {
	return logger
}

var (
	ErrUnsafePath    = errors.New("unsafe path")
	ErrFileTooLarge  = errors.New("file too large")
	ErrNotTextFile   = errors.New("not a text file")
	ErrInvalidParams = errors.New("invalid parameters")
	ErrCancelled     = errors.New("operation cancelled")
)

// MaxFileSize bounds what tools read into memory or write in one call.
const MaxFileSize = 10 * 1024 * 1024

var protectedRoots = []string{
	"/etc", "/bin", "/sbin", "/usr/bin", "/usr/sbin", "/boot", "/sys", "/proc", "/dev",
	"/root", "/var/log", "/var/lib", "/var/run", "/lib", "/lib64", "/usr/lib", "/usr/lib64",
}

// IsPathSafe rejects system directories, traversal and NUL bytes.
func IsPathSafe(path string) bool {
	if path == "" || strings.Contains(path, "\x00") {
		return false
	}
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return false
		}
	}
	clean := filepath.Clean(path)
	for _, root := range protectedRoots {
		if clean == root || strings.HasPrefix(clean, root+"/") {
			return false
		}
	}
	return true
}

// CheckPath returns ErrUnsafePath wrapped with the offending path.
func CheckPath(path string) error {
	if !IsPathSafe(path) {
		logger.Error("unsafe path rejected", "path", path)
		return fmt.Errorf("%w: %s", ErrUnsafePath, path)
	}
	return nil
}

// Cancelled reports ctx cancellation as ErrCancelled.
func Cancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ErrCancelled
	default:
		return nil
	}
}

// ValidateFileSize checks if file size is within limits
func ValidateFileSize(size int64) error {
	if size > MaxFileSize {
		return fmt.Errorf("%w: %s exceeds maximum %s", ErrFileTooLarge, FormatBytes(size), FormatBytes(MaxFileSize))
	}
	return nil
}

// IsTextFile checks if content appears to be text
func IsTextFile(content []byte) bool {
	if len(content) == 0 {
		return true
	}
	sample := content
	if len(sample) > 8192 {
		sample = sample[:8192]
	}
	for _, b := range sample {
		if b == 0 {
			return false
		}
	}
	if !utf8.Valid(content) {
		return false
	}
	printable := 0
	for _, b := range sample {
		if b >= 32 && b <= 126 || b == '\t' || b == '\n' || b == '\r' || b >= 0x80 {
			printable++
		}
	}
	return float64(printable)/float64(len(sample)) > 0.70
}

var languageByExt = map[string]string{
	".go": "go", ".js": "javascript", ".ts": "typescript", ".py": "python", ".rb": "ruby",
	".java": "java", ".c": "c", ".h": "c", ".cpp": "cpp", ".cc": "cpp", ".hpp": "cpp",
	".rs": "rust", ".php": "php", ".sh": "bash", ".bash": "bash", ".sql": "sql",
	".yaml": "yaml", ".yml": "yaml", ".json": "json", ".xml": "xml", ".html": "html",
	".htm": "html", ".css": "css", ".md": "markdown", ".toml": "toml", ".txt": "text",
}

var languageByName = map[string]string{
	"dockerfile": "dockerfile", "makefile": "makefile", "go.mod": "go", "go.sum": "go",
	"gemfile": "ruby", "rakefile": "ruby", "cargo.lock": "toml",
}

// DetectLanguage guesses a file's language from its name and, failing that,
// a shebang line.
func DetectLanguage(path string, content []byte) string {
	if lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	if lang, ok := languageByName[strings.ToLower(filepath.Base(path))]; ok {
		return lang
	}
	if len(content) > 2 && content[0] == '#' && content[1] == '!' {
		line, _, _ := strings.Cut(string(content[:min(len(content), 128)]), "\n")
		switch {
		case strings.Contains(line, "python"):
			return "python"
		case strings.Contains(line, "node"):
			return "javascript"
		case strings.HasSuffix(line, "sh"):
			return "bash"
		}
	}
	return "text"
}

// FormatBytes formats byte count as human-readable string
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
