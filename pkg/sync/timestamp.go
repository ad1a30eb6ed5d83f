package sync

import (
	"time"

	"github.com/Irvise/gprbuild/pkg/errors"
)

const timestampLayout = "20060102150405"

// Timestamp is a file modification time expressed in UTC with one second
// resolution. Because it doesn't depend on the local time zone, timestamps
// taken on hosts in different zones can be compared for equality.
type Timestamp string

// TimestampOf returns the Timestamp of `t`.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp(t.UTC().Format(timestampLayout))
}

// Time parses the timestamp.
func (ts Timestamp) Time() (time.Time, error) {
	t, err := time.ParseInLocation(timestampLayout, string(ts), time.UTC)
	if err != nil {
		return time.Time{}, errors.WithContext(err, "parse timestamp")
	}
	return t, nil
}

// FileEntry is a file selected for synchronization.
type FileEntry struct {
	// Path is relative to the synchronized root, and uses forward slashes
	// so that it means the same thing on every host.
	Path string

	Timestamp Timestamp
}
