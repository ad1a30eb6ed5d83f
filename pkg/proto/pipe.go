package proto

import (
	goSync "sync"

	"github.com/Irvise/gprbuild/pkg/errors"
)

var errPipeClosed = errors.New("pipe closed")

// pipeBuffer is the number of frames that can be in flight in one direction.
const pipeBuffer = 16

type pipeEnd struct {
	in, out    chan *frame
	closed     chan struct{}
	peerClosed chan struct{}
	closeOnce  *goSync.Once
}

// Pipe returns two connected in-memory channels. Whatever is sent on one end
// is received on the other. Closing either end makes pending and future
// operations on both ends fail with a TransportError.
func Pipe() (Channel, Channel) {
	aToB := make(chan *frame, pipeBuffer)
	bToA := make(chan *frame, pipeBuffer)
	aClosed := make(chan struct{})
	bClosed := make(chan struct{})

	a := &pipeEnd{in: bToA, out: aToB, closed: aClosed, peerClosed: bClosed,
		closeOnce: &goSync.Once{}}
	b := &pipeEnd{in: aToB, out: bToA, closed: bClosed, peerClosed: aClosed,
		closeOnce: &goSync.Once{}}
	return a.channel(), b.channel()
}

func (p *pipeEnd) channel() Channel {
	return frameChannel{conn: p, close: p.close}
}

func (p *pipeEnd) sendFrame(f *frame) error {
	// Check for closure first so that a send never succeeds into a buffer
	// nobody will read.
	select {
	case <-p.closed:
		return errors.NewTransportError(errPipeClosed)
	case <-p.peerClosed:
		return errors.NewTransportError(errPipeClosed)
	default:
	}

	select {
	case p.out <- f:
		return nil
	case <-p.closed:
		return errors.NewTransportError(errPipeClosed)
	case <-p.peerClosed:
		return errors.NewTransportError(errPipeClosed)
	}
}

func (p *pipeEnd) recvFrame() (*frame, error) {
	select {
	case f := <-p.in:
		return f, nil
	case <-p.closed:
		return nil, errors.NewTransportError(errPipeClosed)
	case <-p.peerClosed:
		// Deliver whatever the peer sent before it closed.
		select {
		case f := <-p.in:
			return f, nil
		default:
			return nil, errors.NewTransportError(errPipeClosed)
		}
	}
}

func (p *pipeEnd) close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}
