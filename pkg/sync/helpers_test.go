package sync

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// modTime is the timestamp given to files created by writeFile unless the
// test picks another one.
var modTime = time.Date(2019, 11, 10, 14, 30, 5, 0, time.UTC)

func writeFile(t *testing.T, path, contents string, mtime time.Time) {
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, afero.WriteFile(fs, path, []byte(contents), 0644))
	require.NoError(t, fs.Chtimes(path, mtime, mtime))
}

func readFile(t *testing.T, path string) string {
	contents, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(contents)
}

func entryPaths(entries []FileEntry) []string {
	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	return paths
}
