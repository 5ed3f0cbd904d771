package metadata

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/terminus-io/storage-agent/pkg/errdefs"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	return NewRegistry(filepath.Join(dir, "projects"), filepath.Join(dir, "projid")), dir
}

func readTable(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRegistry_LoadCreatesMissingTables(t *testing.T) {
	r, _ := newTestRegistry(t)

	records, err := r.Load()
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.FileExists(t, r.ProjectsPath())
	assert.FileExists(t, r.ProjidPath())
}

func TestRegistry_LoadExistingTables(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, os.WriteFile(r.ProjectsPath(), []byte("# managed\n1:/vfroot/v1\n3:/vfroot/v2\n"), 0o644))
	require.NoError(t, os.WriteFile(r.ProjidPath(), []byte("v1:1\n\nv2:3\n"), 0o644))

	records, err := r.Load()
	require.NoError(t, err)
	assert.Equal(t, []VolumeRecord{
		{VolumeID: "v1", ProjectID: 1, Path: "/vfroot/v1"},
		{VolumeID: "v2", ProjectID: 3, Path: "/vfroot/v2"},
	}, records)

	rec, ok := r.Get("v2")
	require.True(t, ok)
	assert.Equal(t, ProjectID(3), rec.ProjectID)
}

func TestRegistry_LoadToleratesUnreferencedProject(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, os.WriteFile(r.ProjectsPath(), []byte("1:/vfroot/v1\n2:/vfroot/stale\n"), 0o644))
	require.NoError(t, os.WriteFile(r.ProjidPath(), []byte("v1:1\n"), 0o644))

	records, err := r.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)

	// the stale entry disappears on the next rewrite
	require.NoError(t, r.Append(VolumeRecord{VolumeID: "v3", ProjectID: 2, Path: "/vfroot/v3"}))
	assert.Equal(t, "1:/vfroot/v1\n2:/vfroot/v3\n", readTable(t, r.ProjectsPath()))
}

func TestRegistry_LoadCorruption(t *testing.T) {
	tests := []struct {
		name     string
		projects string
		projid   string
	}{
		{name: "missing separator", projects: "1:/a\n", projid: "v1\n"},
		{name: "non numeric id", projects: "1:/a\n", projid: "v1:one\n"},
		{name: "zero id", projects: "0:/a\n", projid: "v1:0\n"},
		{name: "dangling project", projects: "1:/a\n", projid: "v1:1\nv2:2\n"},
		{name: "duplicate volume", projects: "1:/a\n2:/b\n", projid: "v1:1\nv1:2\n"},
		{name: "duplicate project in projid", projects: "1:/a\n", projid: "v1:1\nv2:1\n"},
		{name: "duplicate project in projects", projects: "1:/a\n1:/b\n", projid: "v1:1\n"},
		{name: "relative path", projects: "1:a\n", projid: "v1:1\n"},
		{name: "malformed projects line", projects: "garbage\n", projid: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRegistry(t)
			require.NoError(t, os.WriteFile(r.ProjectsPath(), []byte(tt.projects), 0o644))
			require.NoError(t, os.WriteFile(r.ProjidPath(), []byte(tt.projid), 0o644))

			_, err := r.Load()
			require.Error(t, err)
			assert.True(t, errdefs.IsStateCorruption(err), "got %v", err)
		})
	}
}

func TestRegistry_AppendAndRemove(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Load()
	require.NoError(t, err)

	require.NoError(t, r.Append(VolumeRecord{VolumeID: "kA", ProjectID: 1, Path: "/vfroot/kA"}))
	require.NoError(t, r.Append(VolumeRecord{VolumeID: "kB", ProjectID: 2, Path: "/vfroot/kB"}))

	assert.Equal(t, "1:/vfroot/kA\n2:/vfroot/kB\n", readTable(t, r.ProjectsPath()))
	assert.Equal(t, "kA:1\nkB:2\n", readTable(t, r.ProjidPath()))

	rec, err := r.RemoveByID("kA")
	require.NoError(t, err)
	assert.Equal(t, "/vfroot/kA", rec.Path)

	assert.Equal(t, "2:/vfroot/kB\n", readTable(t, r.ProjectsPath()))
	assert.Equal(t, "kB:2\n", readTable(t, r.ProjidPath()))

	_, ok := r.Get("kA")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())

	// a fresh registry sees the same state
	reloaded := NewRegistry(r.ProjectsPath(), r.ProjidPath())
	records, err := reloaded.Load()
	require.NoError(t, err)
	assert.Equal(t, []VolumeRecord{{VolumeID: "kB", ProjectID: 2, Path: "/vfroot/kB"}}, records)
}

func TestRegistry_AppendRejectsDuplicates(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Load()
	require.NoError(t, err)

	require.NoError(t, r.Append(VolumeRecord{VolumeID: "kA", ProjectID: 1, Path: "/vfroot/kA"}))
	assert.Error(t, r.Append(VolumeRecord{VolumeID: "kA", ProjectID: 2, Path: "/vfroot/kA"}))
	assert.Error(t, r.Append(VolumeRecord{VolumeID: "kB", ProjectID: 1, Path: "/vfroot/kB"}))

	assert.Equal(t, "kA:1\n", readTable(t, r.ProjidPath()))
}

func TestRegistry_RemoveUnknown(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Load()
	require.NoError(t, err)

	_, err = r.RemoveByID("missing")
	assert.True(t, errdefs.IsNotFound(err))
}

func TestRegistry_AppendWriteFailureKeepsState(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Load()
	require.NoError(t, err)
	require.NoError(t, r.Append(VolumeRecord{VolumeID: "kA", ProjectID: 1, Path: "/vfroot/kA"}))

	boom := errors.New("disk full")
	r.writeFile = func(path string, data []byte) error {
		if path == r.ProjidPath() {
			return boom
		}
		return atomicWrite(path, data)
	}

	err = r.Append(VolumeRecord{VolumeID: "kB", ProjectID: 2, Path: "/vfroot/kB"})
	require.ErrorIs(t, err, boom)

	_, ok := r.Get("kB")
	assert.False(t, ok)
	assert.Equal(t, "1:/vfroot/kA\n", readTable(t, r.ProjectsPath()))
	assert.Equal(t, "kA:1\n", readTable(t, r.ProjidPath()))
}

func TestRegistry_RemoveWriteFailureKeepsRecord(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Load()
	require.NoError(t, err)
	require.NoError(t, r.Append(VolumeRecord{VolumeID: "kA", ProjectID: 1, Path: "/vfroot/kA"}))

	boom := errors.New("read-only filesystem")
	r.writeFile = func(string, []byte) error { return boom }

	_, err = r.RemoveByID("kA")
	require.ErrorIs(t, err, boom)

	_, ok := r.Get("kA")
	assert.True(t, ok)
}
