package fs

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceConfinesPaths(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, base.MkdirAll("/srv/project", 0o755))
	require.NoError(t, afero.WriteFile(base, "/etc/passwd", []byte("root"), 0o644))

	ws, err := Workspace(base, "/srv/project")
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(ws, "/notes.txt", []byte("abs"), 0o644))
	require.NoError(t, afero.WriteFile(ws, "rel.txt", []byte("rel"), 0o644))

	data, err := afero.ReadFile(base, "/srv/project/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "abs", string(data))
	exists, err := afero.Exists(base, "/srv/project/rel.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = afero.ReadFile(ws, "../../etc/passwd")
	assert.Error(t, err)
}

func TestWorkspaceRoot(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, "/file", []byte("x"), 0o644))

	same, err := Workspace(base, "")
	require.NoError(t, err)
	assert.Same(t, base, same)

	_, err = Workspace(base, "/missing")
	assert.Error(t, err)
	_, err = Workspace(base, "/file")
	assert.Error(t, err)
}

func TestReadOnly(t *testing.T) {
	base := afero.NewMemMapFs()
	ro := ReadOnly(base)
	assert.Error(t, afero.WriteFile(ro, "/x", []byte("y"), 0o644))
}
