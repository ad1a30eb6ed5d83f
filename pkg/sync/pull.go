package sync

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/Irvise/gprbuild/pkg/errors"
	"github.com/Irvise/gprbuild/pkg/proto"
)

// progressInterval is the number of received files between two progress
// reports.
const progressInterval = 100

// ReceiveResult summarizes a receive session on the slave.
type ReceiveResult struct {
	FilesSeen        int
	FilesTransferred int

	// RemoteFiles contains the relative path of every file listed by the
	// master, whether or not it was stale.
	RemoteFiles map[string]struct{}

	// Terminal is the command that ended the session. It's SyncInterrupted
	// if the session was aborted by a local I/O failure.
	Terminal proto.Command

	// Cause is the local failure that interrupted the session.
	Cause error
}

// Interrupted returns whether the session was aborted by a local failure.
func (res ReceiveResult) Interrupted() bool {
	return res.Terminal.Kind == proto.SyncInterrupted
}

// Receive handles the master's file batches, and writes the stale files
// under `localRoot`. It returns when it reads a command other than a file
// batch, which is returned as the result's Terminal command. `debug` is
// called with progress messages, and may be nil.
//
// An error is returned if the channel fails, or the master doesn't follow the
// protocol.
func Receive(ch proto.Channel, localRoot string, debug func(string)) (ReceiveResult, error) {
	res := ReceiveResult{RemoteFiles: map[string]struct{}{}}
	for {
		cmd, err := ch.ReceiveCommand()
		if err != nil {
			return res, errors.WithContext(err, "receive command")
		}

		if cmd.Kind != proto.FileBatch {
			res.Terminal = cmd
			return res, nil
		}

		batch, err := parseFileBatch(cmd.Args)
		if err != nil {
			return res, errors.WithContext(err, "parse file batch")
		}

		var stale []FileEntry
		var staleNames []string
		for _, f := range batch {
			res.FilesSeen++
			res.RemoteFiles[f.Path] = struct{}{}

			path, err := localPath(localRoot, f.Path)
			if err != nil {
				return res, err
			}

			if isStale(path, f.Timestamp) {
				stale = append(stale, f)
				staleNames = append(staleNames, f.Path)
			}
		}

		if len(stale) == 0 {
			if err := ch.SendCommand(proto.Command{Kind: proto.AllCurrent}); err != nil {
				return res, errors.WithContext(err, "send reply")
			}
			continue
		}

		reply := proto.Command{Kind: proto.SendFiles, Args: staleNames}
		if err := ch.SendCommand(reply); err != nil {
			return res, errors.WithContext(err, "send reply")
		}

		// The contents arrive in the order the files were requested.
		for _, f := range stale {
			path, _ := localPath(localRoot, f.Path)
			if err := receiveFile(ch, path, f.Timestamp); err != nil {
				res.Terminal = proto.Command{Kind: proto.SyncInterrupted}
				res.Cause = errors.WithContext(err, "receive "+f.Path)
				return res, nil
			}

			res.FilesTransferred++
			if debug != nil && res.FilesTransferred%progressInterval == 0 {
				debug(fmt.Sprintf("Received %d files", res.FilesTransferred))
			}
		}
	}
}

func parseFileBatch(args []string) ([]FileEntry, error) {
	if len(args)%2 != 0 {
		return nil, errors.New("odd number of arguments (%d)", len(args))
	}

	batch := make([]FileEntry, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		f := FileEntry{Path: args[i], Timestamp: Timestamp(args[i+1])}
		if _, err := f.Timestamp.Time(); err != nil {
			return nil, errors.WithContext(err, f.Path)
		}
		batch = append(batch, f)
	}
	return batch, nil
}

// localPath returns the path of `relPath` under `root`. Paths that would
// escape `root` are rejected.
func localPath(root, relPath string) (string, error) {
	native := filepath.FromSlash(relPath)
	if relPath == "" || filepath.IsAbs(native) {
		return "", errors.New("invalid path %q", relPath)
	}

	path := filepath.Join(root, native)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." ||
		strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New("path %q is outside of the synchronized root", relPath)
	}
	return path, nil
}

// isStale returns whether the local file at `path` needs to be replaced by a
// file with timestamp `ts`. Files that are newer than `ts` are stale too.
func isStale(path string, ts Timestamp) bool {
	info, err := fs.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return true
	}
	return TimestampOf(info.ModTime()) != ts
}

// receiveFile writes the next file on `ch` to `path`. The contents are staged
// in a temporary file next to `path`, so an interrupted transfer never
// leaves a truncated file behind.
func receiveFile(ch proto.Channel, path string, ts Timestamp) error {
	modTime, err := ts.Time()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return errors.WithContext(err, "create directory")
	}

	tmp, err := afero.TempFile(fs, dir, ".gprsync-*")
	if err != nil {
		return errors.WithContext(err, "create temporary file")
	}

	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			fs.Remove(tmpPath)
		}
	}()

	if err := ch.ReceiveFile(tmp); err != nil {
		tmp.Close()
		return errors.WithContext(err, "read contents")
	}

	if err := tmp.Close(); err != nil {
		return errors.WithContext(err, "close")
	}

	if err := fs.Chmod(tmpPath, 0644); err != nil {
		return errors.WithContext(err, "set file mode")
	}

	// The modification time is set last so that it isn't reset by other
	// file operations.
	if err := fs.Chtimes(tmpPath, time.Now(), modTime); err != nil {
		return errors.WithContext(err, "set file modtime")
	}

	if err := fs.Rename(tmpPath, path); err != nil {
		return errors.WithContext(err, "rename")
	}
	tmpPath = ""
	return nil
}
