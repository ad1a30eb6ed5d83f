package fswatch

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/Irvise/gprbuild/pkg/errors"
	"github.com/Irvise/gprbuild/pkg/sync"
)

// QuietPeriod is how long the tree has to stay unchanged before a change is
// reported. Editors and version control tools touch many files at once.
const QuietPeriod = 500 * time.Millisecond

// Mocked out for unit testing.
var (
	fs    = afero.NewOsFs()
	clock = clockwork.NewRealClock()
)

// Watcher reports changes to a project tree.
type Watcher struct {
	// Changes receives a value after every burst of changes.
	Changes <-chan struct{}

	watcher *fsnotify.Watcher
}

// Watch watches the files under `root` that `walker` selects with the given
// patterns. fsnotify doesn't watch directories recursively, so each directory
// that the walker descends into is watched separately, including the ones
// created later.
func Watch(root string, walker sync.Walker, includes, excludes []string) (*Watcher, error) {
	selected, err := walker.FileFilter(includes, excludes)
	if err != nil {
		return nil, errors.WithContext(err, "compile patterns")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	addDirs := func() error {
		dirs, err := walker.WalkDirs(root, includes, excludes)
		if err != nil {
			return errors.WithContext(err, "list directories")
		}

		for _, dir := range dirs {
			if err := watcher.Add(dir); err != nil {
				return errors.WithContext(err, fmt.Sprintf("watch %q", dir))
			}
		}
		return nil
	}

	if err := addDirs(); err != nil {
		// Close the watcher so that we release the file handles for the
		// previously added paths.
		if err := watcher.Close(); err != nil {
			log.WithError(err).Warn("Failed to close file watcher")
		}
		return nil, err
	}

	isRelevant := func(event fsnotify.Event) bool {
		if event.Op == fsnotify.Chmod {
			return false
		}

		info, err := fs.Stat(event.Name)
		if err == nil && info.IsDir() {
			if event.Op.Has(fsnotify.Create) {
				if err := addDirs(); err != nil {
					log.WithError(err).Warn("Failed to watch new directory")
				}
			}
			return true
		}
		return selected(filepath.Base(event.Name))
	}

	changes := make(chan struct{}, 1)
	go logErrors(watcher.Errors)
	go debounce(watcher.Events, isRelevant, changes)
	return &Watcher{Changes: changes, watcher: watcher}, nil
}

// Close stops watching. Changes isn't closed.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// debounce sends on `changes` once no relevant event has arrived for
// QuietPeriod. Pending notifications are never queued more than once.
func debounce(events <-chan fsnotify.Event, isRelevant func(fsnotify.Event) bool,
	changes chan<- struct{}) {

	var quiet <-chan time.Time
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if isRelevant(event) {
				quiet = clock.After(QuietPeriod)
			}
		case <-quiet:
			quiet = nil
			select {
			case changes <- struct{}{}:
			default:
			}
		}
	}
}

func logErrors(errs <-chan error) {
	for err := range errs {
		log.WithError(err).Warn("File watcher error")
	}
}
