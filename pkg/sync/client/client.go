package client

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Irvise/gprbuild/pkg/errors"
	"github.com/Irvise/gprbuild/pkg/proto"
)

// Dial connects to the slave listening at `address`, and opens a channel to
// it. `ctx` only bounds the connection attempt. The channel stays open until
// it's closed.
func Dial(ctx context.Context, address string, opts ...grpc.DialOption) (proto.Channel, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(ctx, address, opts...)
	if err != nil {
		return nil, errors.NewTransportError(errors.WithContext(err, "dial"))
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := proto.OpenStream(streamCtx, conn)
	if err != nil {
		cancel()
		conn.Close()
		return nil, errors.NewTransportError(errors.WithContext(err, "open stream"))
	}

	return proto.NewClientChannel(stream, func() {
		cancel()
		conn.Close()
	}), nil
}
