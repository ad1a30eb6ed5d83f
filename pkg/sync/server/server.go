package server

import (
	"context"
	"net"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/Irvise/gprbuild/pkg/errors"
	"github.com/Irvise/gprbuild/pkg/proto"
	"github.com/Irvise/gprbuild/pkg/sync"
)

// DefaultPort is the port the slave server listens on by default.
const DefaultPort = 9010

// Options configures the slave server.
type Options struct {
	// Prune removes the files that the master no longer lists at the end of
	// every complete session.
	Prune bool
}

type server struct {
	root   string
	opts   Options
	walker sync.Walker
}

func newServer(root string, opts Options) *server {
	return &server{
		root:   root,
		opts:   opts,
		walker: sync.NewWalker(sync.DefaultExcludes),
	}
}

// Run starts the slave server and listens for build masters on `address`.
// The sources are written under `root`.
func Run(address, root string, opts Options) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return errors.WithContext(err, "listen")
	}
	return Serve(lis, root, opts)
}

// Serve serves build masters on `lis` until the listener fails.
func Serve(lis net.Listener, root string, opts Options) error {
	grpcServer := grpc.NewServer()
	proto.RegisterHandler(grpcServer, newServer(root, opts))

	log.WithFields(log.Fields{
		"address": lis.Addr().String(),
		"root":    root,
	}).Info("Slave is ready")
	if err := grpcServer.Serve(lis); err != nil {
		return errors.WithContext(err, "serve")
	}
	return nil
}

// ServeChannel runs one synchronization session.
func (s *server) ServeChannel(ctx context.Context, ch proto.Channel) error {
	if err := checkVersion(ctx); err != nil {
		log.WithError(err).Warn("Rejected build master")
		return err
	}

	logger := log.WithField("master", peerAddress(ctx))
	logger.Debug("Started sync session")

	start := time.Now()
	res, err := sync.Receive(ch, s.root, func(msg string) {
		logger.Debug(msg)
	})
	if err != nil {
		logger.WithError(err).Warn("Sync session failed")
		return err
	}

	switch res.Terminal.Kind {
	case proto.EndOfFileList:
	case proto.Done:
		logger.Debug("Master ended the session before listing its files")
		return nil
	case proto.SyncInterrupted:
		if errors.IsTransportError(res.Cause) {
			logger.WithError(res.Cause).Warn("Lost connection to master")
		} else {
			logger.WithError(res.Cause).Error("Failed to write synchronized file. " +
				"Aborting sync session.")
		}
		return status.Error(codes.Aborted, res.Cause.Error())
	default:
		return status.Errorf(codes.InvalidArgument, "unexpected command %s", res.Terminal)
	}

	fields := log.Fields{
		"seen":        humanize.Comma(int64(res.FilesSeen)),
		"transferred": humanize.Comma(int64(res.FilesTransferred)),
		"duration":    time.Since(start).Round(time.Millisecond),
	}
	if s.opts.Prune {
		removed, err := sync.Prune(s.root, res.RemoteFiles, s.walker)
		if err != nil {
			logger.WithError(err).Error("Failed to remove orphaned files")
			return status.Error(codes.Internal, err.Error())
		}
		fields["removed"] = len(removed)
	}
	logger.WithFields(fields).Info("Sources synchronized")

	cmd, err := ch.ReceiveCommand()
	switch {
	case err != nil:
		logger.WithError(err).Debug("Master closed the session without ending it")
	case cmd.Kind != proto.Done:
		return status.Errorf(codes.InvalidArgument, "expected %s, got %s", proto.Done, cmd)
	}
	return nil
}

func checkVersion(ctx context.Context) error {
	md, _ := metadata.FromIncomingContext(ctx)

	var remote string
	if values := md.Get(proto.VersionMetadataKey); len(values) > 0 {
		remote = values[0]
	}

	if err := proto.CheckCompatible(remote); err != nil {
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return nil
}

func peerAddress(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}
