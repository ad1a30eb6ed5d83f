package proto

import (
	"context"
	"io"
	goSync "sync"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"

	"github.com/Irvise/gprbuild/pkg/errors"
)

// VersionMetadataKey is the stream metadata key that carries the master's
// protocol version.
const VersionMetadataKey = "gprsync-protocol-version"

const (
	codecName  = "json"
	openMethod = "/gprsync.Channel/Open"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonCodec encodes frames on the gRPC stream. Frames are plain Go structs,
// so there's no generated protobuf code for the channel service.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Handler serves the channels opened by build masters.
type Handler interface {
	ServeChannel(ctx context.Context, ch Channel) error
}

// ServiceDesc describes the channel service. Each call to Open is a
// bidirectional stream that carries one synchronization session.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "gprsync.Channel",
	HandlerType: (*Handler)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Open",
			Handler:       openHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "gprsync/channel",
}

func openHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(Handler).ServeChannel(stream.Context(), NewStreamChannel(stream, nil))
}

// RegisterHandler registers `h` to serve channels on `s`.
func RegisterHandler(s *grpc.Server, h Handler) {
	s.RegisterService(&ServiceDesc, h)
}

// OpenStream opens a new channel stream on `conn`. The stream lives until
// `ctx` is cancelled.
func OpenStream(ctx context.Context, conn *grpc.ClientConn) (grpc.ClientStream, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, VersionMetadataKey, ProtocolVersion)
	return conn.NewStream(ctx, &ServiceDesc.Streams[0], openMethod,
		grpc.CallContentSubtype(codecName))
}

// MessageStream is the subset of grpc.ClientStream and grpc.ServerStream used
// by stream channels.
type MessageStream interface {
	SendMsg(m interface{}) error
	RecvMsg(m interface{}) error
}

type streamConn struct {
	stream MessageStream
}

func (c streamConn) sendFrame(f *frame) error {
	return errors.NewTransportError(c.stream.SendMsg(f))
}

func (c streamConn) recvFrame() (*frame, error) {
	f := &frame{}
	if err := c.stream.RecvMsg(f); err != nil {
		return nil, errors.NewTransportError(err)
	}
	return f, nil
}

// NewStreamChannel returns a Channel that sends frames over `stream`.
// `closeFn` is run by Close, and may be nil.
func NewStreamChannel(stream MessageStream, closeFn func() error) Channel {
	return frameChannel{conn: streamConn{stream}, close: closeFn}
}

// NewClientChannel returns a Channel on the client side of a stream opened by
// OpenStream. Close half-closes the stream and waits for the slave to end it,
// so that commands sent right before closing aren't dropped. `cleanup` runs
// once the stream is over.
func NewClientChannel(stream grpc.ClientStream, cleanup func()) Channel {
	var once goSync.Once
	var closeErr error
	closeFn := func() error {
		once.Do(func() {
			if cleanup != nil {
				defer cleanup()
			}
			closeErr = closeClientStream(stream)
		})
		return closeErr
	}
	return NewStreamChannel(stream, closeFn)
}

func closeClientStream(stream grpc.ClientStream) error {
	if err := stream.CloseSend(); err != nil {
		return errors.NewTransportError(err)
	}

	for {
		err := stream.RecvMsg(&frame{})
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.NewTransportError(err)
		}
	}
}
