package server

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/Irvise/gprbuild/pkg/proto"
	"github.com/Irvise/gprbuild/pkg/sync"
	"github.com/Irvise/gprbuild/pkg/sync/client"
)

var modTime = time.Date(2019, 11, 10, 14, 30, 5, 0, time.UTC)

func masterContext(version string) context.Context {
	md := metadata.MD{}
	if version != "" {
		md = metadata.Pairs(proto.VersionMetadataKey, version)
	}
	return metadata.NewIncomingContext(context.Background(), md)
}

func writeFile(t *testing.T, path, contents string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
}

func readFile(t *testing.T, path string) string {
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(contents)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func makeMasterTree(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.adb"), "with Util; procedure Main is begin null; end;")
	writeFile(t, filepath.Join(root, "src", "util.ads"), "package Util is end;")
	writeFile(t, filepath.Join(root, "obj", "main.o"), "object")
	return root
}

func pushTree(t *testing.T, ch proto.Channel, masterRoot string) sync.JobResult {
	logger, _ := logrusTest.NewNullLogger()
	s := sync.NewSyncer(sync.Options{Workers: 1, Log: logger})
	require.NoError(t, s.SubmitSyncJob(ch, "hello", masterRoot, "slave", "slave", nil, nil))

	results := s.WaitForCompletion()
	require.Len(t, results, 1)
	return results[0]
}

func serveAsync(ctx context.Context, srv *server, ch proto.Channel) <-chan error {
	errs := make(chan error, 1)
	go func() {
		errs <- srv.ServeChannel(ctx, ch)
	}()
	return errs
}

func TestServeChannel(t *testing.T) {
	masterRoot := makeMasterTree(t)
	slaveRoot := t.TempDir()

	master, slave := proto.Pipe()
	errs := serveAsync(masterContext(proto.ProtocolVersion), newServer(slaveRoot, Options{}), slave)

	res := pushTree(t, master, masterRoot)
	assert.NoError(t, res.Err)
	assert.Equal(t, 2, res.FilesTransferred)

	require.NoError(t, master.SendCommand(proto.Command{Kind: proto.Done}))
	require.NoError(t, <-errs)

	assert.Equal(t, "package Util is end;", readFile(t, filepath.Join(slaveRoot, "src", "util.ads")))
	assert.True(t, exists(filepath.Join(slaveRoot, "main.adb")))
	assert.False(t, exists(filepath.Join(slaveRoot, "obj", "main.o")))

	info, err := os.Stat(filepath.Join(slaveRoot, "main.adb"))
	require.NoError(t, err)
	assert.True(t, modTime.Equal(info.ModTime()))
}

func TestServeChannelPrune(t *testing.T) {
	for _, prune := range []bool{true, false} {
		prune := prune
		name := "NoPrune"
		if prune {
			name = "Prune"
		}

		t.Run(name, func(t *testing.T) {
			masterRoot := makeMasterTree(t)
			slaveRoot := t.TempDir()
			writeFile(t, filepath.Join(slaveRoot, "orphan.adb"), "orphan")
			writeFile(t, filepath.Join(slaveRoot, "obj", "util.o"), "object")

			master, slave := proto.Pipe()
			srv := newServer(slaveRoot, Options{Prune: prune})
			errs := serveAsync(masterContext(proto.ProtocolVersion), srv, slave)

			assert.NoError(t, pushTree(t, master, masterRoot).Err)
			require.NoError(t, master.SendCommand(proto.Command{Kind: proto.Done}))
			require.NoError(t, <-errs)

			assert.Equal(t, !prune, exists(filepath.Join(slaveRoot, "orphan.adb")))
			assert.True(t, exists(filepath.Join(slaveRoot, "obj", "util.o")))
			assert.True(t, exists(filepath.Join(slaveRoot, "main.adb")))
		})
	}
}

func TestServeChannelVersion(t *testing.T) {
	tests := []struct {
		version string
		expCode codes.Code
	}{
		{version: proto.ProtocolVersion, expCode: codes.OK},
		{version: "1.4.2", expCode: codes.OK},
		{version: "", expCode: codes.FailedPrecondition},
		{version: "2.0.0", expCode: codes.FailedPrecondition},
		{version: "0.9.0", expCode: codes.FailedPrecondition},
		{version: "not-a-version", expCode: codes.FailedPrecondition},
	}

	for _, test := range tests {
		test := test
		t.Run(test.version, func(t *testing.T) {
			master, slave := proto.Pipe()
			errs := serveAsync(masterContext(test.version), newServer(t.TempDir(), Options{}), slave)

			if test.expCode == codes.OK {
				require.NoError(t, master.SendCommand(proto.Command{Kind: proto.Done}))
			}
			assert.Equal(t, test.expCode, status.Code(<-errs))
		})
	}
}

func TestServeChannelInterrupted(t *testing.T) {
	// The slave root is a regular file, so nothing can be written under it.
	slaveRoot := filepath.Join(t.TempDir(), "root")
	writeFile(t, slaveRoot, "not a directory")

	master, slave := proto.Pipe()
	errs := serveAsync(masterContext(proto.ProtocolVersion), newServer(slaveRoot, Options{}), slave)

	require.NoError(t, master.SendCommand(proto.Command{
		Kind: proto.FileBatch,
		Args: []string{"main.adb", string(sync.TimestampOf(modTime))},
	}))
	reply, err := master.ReceiveCommand()
	require.NoError(t, err)
	assert.Equal(t, proto.SendFiles, reply.Kind)
	require.NoError(t, master.SendFile(strings.NewReader("contents")))

	assert.Equal(t, codes.Aborted, status.Code(<-errs))
}

func TestServeChannelUnexpectedCommand(t *testing.T) {
	master, slave := proto.Pipe()
	errs := serveAsync(masterContext(proto.ProtocolVersion), newServer(t.TempDir(), Options{}), slave)

	require.NoError(t, master.SendCommand(proto.Command{Kind: proto.AllCurrent}))
	assert.Equal(t, codes.InvalidArgument, status.Code(<-errs))
}

func TestServeChannelMasterClosed(t *testing.T) {
	masterRoot := makeMasterTree(t)
	slaveRoot := t.TempDir()

	master, slave := proto.Pipe()
	errs := serveAsync(masterContext(proto.ProtocolVersion), newServer(slaveRoot, Options{}), slave)

	assert.NoError(t, pushTree(t, master, masterRoot).Err)
	require.NoError(t, master.Close())

	// The files were all received, so a missing Done isn't an error.
	assert.NoError(t, <-errs)
	assert.True(t, exists(filepath.Join(slaveRoot, "main.adb")))
}

func TestGRPC(t *testing.T) {
	masterRoot := makeMasterTree(t)
	slaveRoot := t.TempDir()

	lis := bufconn.Listen(1 << 20)
	defer lis.Close()
	go Serve(lis, slaveRoot, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ch, err := client.Dial(ctx, "bufnet", grpc.WithContextDialer(
		func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}))
	require.NoError(t, err)

	res := pushTree(t, ch, masterRoot)
	assert.NoError(t, res.Err)
	assert.Equal(t, 2, res.FilesTransferred)

	require.NoError(t, ch.SendCommand(proto.Command{Kind: proto.Done}))
	assert.NoError(t, ch.Close())

	assert.Equal(t, "package Util is end;", readFile(t, filepath.Join(slaveRoot, "src", "util.ads")))
}
