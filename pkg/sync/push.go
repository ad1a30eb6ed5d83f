package sync

import (
	"path/filepath"

	"github.com/Irvise/gprbuild/pkg/errors"
	"github.com/Irvise/gprbuild/pkg/proto"
)

// PushBatch sends one file batch to the slave, then sends the contents of the
// files the slave reports as stale. It returns the number of files sent.
func PushBatch(ch proto.Channel, localRoot string, batch []FileEntry) (int, error) {
	args := make([]string, 0, 2*len(batch))
	for _, f := range batch {
		args = append(args, f.Path, string(f.Timestamp))
	}

	if err := ch.SendCommand(proto.Command{Kind: proto.FileBatch, Args: args}); err != nil {
		return 0, errors.WithContext(err, "send file batch")
	}

	reply, err := ch.ReceiveCommand()
	if err != nil {
		return 0, errors.WithContext(err, "receive reply")
	}

	switch reply.Kind {
	case proto.AllCurrent:
		return 0, nil
	case proto.SendFiles:
	default:
		return 0, errors.New("unexpected reply to file batch: %s", reply)
	}

	inBatch := make(map[string]struct{}, len(batch))
	for _, f := range batch {
		inBatch[f.Path] = struct{}{}
	}

	for i, path := range reply.Args {
		if _, ok := inBatch[path]; !ok {
			return i, errors.New("slave requested %q, which isn't part of the batch", path)
		}

		if err := pushFile(ch, filepath.Join(localRoot, filepath.FromSlash(path))); err != nil {
			return i, errors.WithContext(err, "send "+path)
		}
	}
	return len(reply.Args), nil
}

func pushFile(ch proto.Channel, path string) error {
	f, err := fs.Open(path)
	if err != nil {
		return errors.WithContext(err, "open")
	}
	defer f.Close()

	return ch.SendFile(f)
}

// EndFileList tells the slave that the job's file list is complete.
func EndFileList(ch proto.Channel) error {
	return ch.SendCommand(proto.Command{Kind: proto.EndOfFileList})
}
