package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/nova-pm-etl/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func TestDir_ListSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"b.csv":     "x",
		"a.csv":     "x",
		"notes.txt": "x",
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.csv"), 0o755))

	names, err := NewDir(dir, "*.csv").List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv", "b.csv"}, names)
}

func TestDir_ListMissingDir(t *testing.T) {
	_, err := NewDir(filepath.Join(t.TempDir(), "missing"), "*").List(context.Background())
	require.Error(t, err)
}

func TestDir_ListBadPattern(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.csv": "x"})

	_, err := NewDir(dir, "[").List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad input pattern")
}

func TestDir_ListCanceled(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.csv": "x"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDir(dir, "*.csv").List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDir_Open(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.csv": "Timestamp,Serial,PM2.5,PM10\n"})

	rc, err := NewDir(dir, "*.csv").Open(context.Background(), "a.csv")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "Timestamp,Serial,PM2.5,PM10\n", string(data))
}

func TestDir_OpenMissing(t *testing.T) {
	_, err := NewDir(t.TempDir(), "*.csv").Open(context.Background(), "nope.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open sensor log")
}

func TestNew_Dir(t *testing.T) {
	src, err := New(context.Background(), &config.Config{SourceKind: config.SourceDir, InputDir: "data", InputPattern: "*.csv"})
	require.NoError(t, err)
	assert.IsType(t, &Dir{}, src)
}

func TestNew_Unknown(t *testing.T) {
	_, err := New(context.Background(), &config.Config{SourceKind: "ftp"})
	require.Error(t, err)
}
