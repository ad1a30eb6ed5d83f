// Package proto defines the commands exchanged between a build master and its
// slaves, and the Channel abstraction they travel over.
package proto

import (
	"io"
)

// Kind identifies a command on the wire.
type Kind string

const (
	// FileBatch carries alternating (path, timestamp) arguments.
	FileBatch Kind = "FL"

	// AllCurrent acknowledges a FileBatch in which no file is stale.
	AllCurrent Kind = "OK"

	// SendFiles answers a FileBatch with the paths of the stale files. The
	// raw contents of each listed file follow, in the listed order.
	SendFiles Kind = "SF"

	// EndOfFileList marks the end of a job's file transfer.
	EndOfFileList Kind = "EF"

	// Done hands control over to the next phase of the build protocol.
	Done Kind = "DN"

	// SyncInterrupted is never sent. The pull handler returns it locally when
	// it had to abort because of a local I/O failure.
	SyncInterrupted Kind = "SI"
)

// Command is a typed command with a variable argument list.
type Command struct {
	Kind Kind     `json:"kind"`
	Args []string `json:"args,omitempty"`
}

func (cmd Command) String() string {
	return string(cmd.Kind)
}

// Channel is a bidirectional connection to a remote peer. Implementations
// report connection failures as errors.TransportError.
type Channel interface {
	SendCommand(Command) error
	ReceiveCommand() (Command, error)

	// SendFile streams the raw contents of `r` to the peer.
	SendFile(r io.Reader) error

	// ReceiveFile copies the next raw file sent by the peer into `w`.
	ReceiveFile(w io.Writer) error

	Close() error
}
