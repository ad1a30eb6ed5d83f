package proto

import (
	"io"

	"github.com/Irvise/gprbuild/pkg/errors"
)

// fileChunkSize is the maximum payload of a single data frame.
const fileChunkSize = 64 * 1024

// frame is the unit sent over a channel. It holds either a command, or a
// chunk of raw file data. The last chunk of a file has EOF set.
type frame struct {
	Command *Command `json:"command,omitempty"`
	Data    []byte   `json:"data,omitempty"`
	EOF     bool     `json:"eof,omitempty"`
}

var errUnexpectedCommand = errors.New("received a command while expecting file data")
var errUnexpectedData = errors.New("received file data while expecting a command")

// frameConn is the transport specific half of a Channel.
type frameConn interface {
	sendFrame(*frame) error
	recvFrame() (*frame, error)
}

func sendCommand(conn frameConn, cmd Command) error {
	return conn.sendFrame(&frame{Command: &cmd})
}

func receiveCommand(conn frameConn) (Command, error) {
	f, err := conn.recvFrame()
	if err != nil {
		return Command{}, err
	}

	if f.Command == nil {
		return Command{}, errUnexpectedData
	}
	return *f.Command, nil
}

func sendFile(conn frameConn, r io.Reader) error {
	buf := make([]byte, fileChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			// The frame may be buffered by the transport after sendFrame
			// returns, so it can't share `buf` with the next read.
			chunk := append([]byte(nil), buf[:n]...)
			if err := conn.sendFrame(&frame{Data: chunk}); err != nil {
				return err
			}
		}

		if err == io.EOF {
			return conn.sendFrame(&frame{EOF: true})
		}
		if err != nil {
			return errors.WithContext(err, "read file")
		}
	}
}

func receiveFile(conn frameConn, w io.Writer) error {
	for {
		f, err := conn.recvFrame()
		if err != nil {
			return err
		}

		if f.Command != nil {
			return errUnexpectedCommand
		}

		if len(f.Data) > 0 {
			if _, err := w.Write(f.Data); err != nil {
				return errors.WithContext(err, "write")
			}
		}

		if f.EOF {
			return nil
		}
	}
}

// frameChannel implements Channel on top of a frameConn.
type frameChannel struct {
	conn  frameConn
	close func() error
}

func (c frameChannel) SendCommand(cmd Command) error {
	return sendCommand(c.conn, cmd)
}

func (c frameChannel) ReceiveCommand() (Command, error) {
	return receiveCommand(c.conn)
}

func (c frameChannel) SendFile(r io.Reader) error {
	return sendFile(c.conn, r)
}

func (c frameChannel) ReceiveFile(w io.Writer) error {
	return receiveFile(c.conn, w)
}

func (c frameChannel) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}
