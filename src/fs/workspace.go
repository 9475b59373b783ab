// Package fs builds the filesystem the file tools operate on.
package fs

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// Workspace confines base to root. Absolute and relative tool paths both
// resolve inside root, and paths escaping it fail with os.ErrNotExist.
// An empty root returns base unchanged.
func Workspace(base afero.Fs, root string) (afero.Fs, error) {
	if root == "" {
		return base, nil
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolve %s: %w", root, err)
	}
	info, err := base.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace: %s is not a directory", abs)
	}
	return afero.NewBasePathFs(base, abs), nil
}

// ReadOnly wraps fs so every write fails. Used when listing tools or
// rendering previews outside an attempt.
func ReadOnly(fs afero.Fs) afero.Fs {
	return afero.NewReadOnlyFs(fs)
}
