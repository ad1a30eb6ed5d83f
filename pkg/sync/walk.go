package sync

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/Irvise/gprbuild/pkg/errors"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// Walker enumerates the files of a project tree that should be synchronized.
type Walker struct {
	defaults PatternSet
}

// NewWalker returns a Walker that always excludes `defaults` when no include
// patterns are given. Callers normally pass DefaultExcludes.
func NewWalker(defaults PatternSet) Walker {
	return Walker{defaults: defaults}
}

// selector decides which entries of the tree are part of the file set.
type selector struct {
	includes PatternSet
	excludes PatternSet
}

// descend returns whether the directory `name` should be walked. When
// include patterns are given every directory is walked, and matching is left
// to the files.
func (sel selector) descend(name string) bool {
	return !sel.includes.Empty() || !sel.excludes.Match(name)
}

// selectFile returns whether the regular file `name` is synchronized. Include
// patterns take precedence over exclude patterns.
func (sel selector) selectFile(name string) bool {
	if !sel.includes.Empty() {
		return sel.includes.Match(name)
	}
	return !sel.excludes.Match(name)
}

func (w Walker) selector(includes, excludes []string) (selector, error) {
	includeSet, err := CompilePatterns(includes)
	if err != nil {
		return selector{}, errors.WithContext(err, "include patterns")
	}

	excludeSet, err := CompilePatterns(excludes)
	if err != nil {
		return selector{}, errors.WithContext(err, "exclude patterns")
	}

	return selector{
		includes: includeSet,
		excludes: w.defaults.Union(excludeSet),
	}, nil
}

// Walk returns the files under `root` selected by the include and exclude
// patterns, in depth-first order. Paths are relative to `root`.
func (w Walker) Walk(root string, includes, excludes []string) ([]FileEntry, error) {
	sel, err := w.selector(includes, excludes)
	if err != nil {
		return nil, err
	}

	var files []FileEntry
	err = walkTree(root, sel, func(relPath string, info os.FileInfo) {
		files = append(files, FileEntry{
			Path:      relPath,
			Timestamp: TimestampOf(info.ModTime()),
		})
	}, nil)
	return files, err
}

// WalkDirs returns the directories that Walk descends into, including `root`.
func (w Walker) WalkDirs(root string, includes, excludes []string) ([]string, error) {
	sel, err := w.selector(includes, excludes)
	if err != nil {
		return nil, err
	}

	var dirs []string
	err = walkTree(root, sel, func(string, os.FileInfo) {}, func(path string) {
		dirs = append(dirs, path)
	})
	return dirs, err
}

// FileFilter returns a function that reports whether Walk, given the same
// patterns, selects a file named `name`.
func (w Walker) FileFilter(includes, excludes []string) (func(name string) bool, error) {
	sel, err := w.selector(includes, excludes)
	if err != nil {
		return nil, err
	}
	return sel.selectFile, nil
}

func walkTree(root string, sel selector, onFile func(string, os.FileInfo),
	onDir func(string)) error {

	rootInfo, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.FileNotFound{Path: root}
		}
		return errors.WithContext(err, "stat root")
	}

	if !rootInfo.IsDir() {
		return errors.New("%q is not a directory", root)
	}

	root = followRootLink(root)
	return afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return errors.WithContext(err, "read root")
			}
			log.WithError(err).WithField("path", path).Warn("Skipping unreadable path")
			return nil
		}

		if path == root {
			if onDir != nil {
				onDir(path)
			}
			return nil
		}

		// `.` and `..` are never returned by directory listings, so every
		// entry here is a real child.
		name := info.Name()
		mode := info.Mode()
		switch {
		case mode&os.ModeSymlink != 0:
			// Walk doesn't follow symlinks, so linked directories are never
			// descended. Linked regular files are synchronized like the file
			// they point to.
			target, err := fs.Stat(path)
			if err != nil {
				log.WithError(err).WithField("path", path).Debug("Skipping dangling symlink")
				return nil
			}
			if !target.Mode().IsRegular() {
				return nil
			}
			info = target

		case mode.IsDir():
			if !sel.descend(name) {
				return filepath.SkipDir
			}
			if onDir != nil {
				onDir(path)
			}
			return nil

		case !mode.IsRegular():
			// Devices, sockets and named pipes.
			return nil
		}

		if !sel.selectFile(name) {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return errors.WithContext(err, "relative path")
		}
		onFile(filepath.ToSlash(relPath), info)
		return nil
	})
}

// followRootLink returns a form of `root` that Walk descends into when `root`
// is a symlink to a directory. A trailing separator makes Lstat resolve the
// link, while links below the root are still reported as links.
func followRootLink(root string) string {
	lstater, ok := fs.(afero.Lstater)
	if !ok {
		return root
	}

	info, lstatCalled, err := lstater.LstatIfPossible(root)
	if err != nil || !lstatCalled || info.Mode()&os.ModeSymlink == 0 {
		return root
	}
	return filepath.Clean(root) + string(filepath.Separator)
}
