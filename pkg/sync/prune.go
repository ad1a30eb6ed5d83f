package sync

import (
	"os"
	"path/filepath"

	"github.com/Irvise/gprbuild/pkg/errors"
)

// Prune removes the files under `localRoot` that the master no longer lists.
// `known` holds the relative paths reported in ReceiveResult.RemoteFiles.
// Only files selected by `walker` without include patterns are candidates, so
// default-excluded files such as objects produced on the slave are kept.
func Prune(localRoot string, known map[string]struct{}, walker Walker) ([]string, error) {
	files, err := walker.Walk(localRoot, nil, nil)
	if err != nil {
		return nil, errors.WithContext(err, "list local files")
	}

	var removed []string
	for _, f := range files {
		if _, ok := known[f.Path]; ok {
			continue
		}

		path := filepath.Join(localRoot, filepath.FromSlash(f.Path))
		if err := fs.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, errors.WithContext(err, "remove")
		}
		removed = append(removed, f.Path)
	}
	return removed, nil
}
