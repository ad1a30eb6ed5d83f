package sync

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/Irvise/gprbuild/pkg/config"
	"github.com/Irvise/gprbuild/pkg/errors"
	"github.com/Irvise/gprbuild/pkg/proto"
	"github.com/Irvise/gprbuild/pkg/sync/client"
	syncServer "github.com/Irvise/gprbuild/pkg/sync/server"
)

func startSlave(t *testing.T) (string, string) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { lis.Close() })

	root := t.TempDir()
	go syncServer.Serve(lis, root, syncServer.Options{})
	return lis.Addr().String(), root
}

func writeFile(t *testing.T, path, contents string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
}

func TestSyncOnce(t *testing.T) {
	masterRoot := t.TempDir()
	writeFile(t, filepath.Join(masterRoot, "hello.gpr"), "project Hello is end Hello;")
	writeFile(t, filepath.Join(masterRoot, "src", "main.adb"), "procedure Main is begin null; end;")
	writeFile(t, filepath.Join(masterRoot, "obj", "main.o"), "object")

	host1, root1 := startSlave(t)
	host2, root2 := startSlave(t)

	project := config.Project{
		Name:      "hello",
		Root:      masterRoot,
		Workers:   2,
		ChunkSize: 500,
		Slaves: []config.Slave{
			{Host: host1, Root: "/srv/hello"},
			{Host: host2, Root: "/srv/hello"},
		},
	}

	res, err := syncOnce(project)
	require.NoError(t, err)
	assert.Equal(t, 4, res.transferred)
	assert.Empty(t, res.failed)

	for _, root := range []string{root1, root2} {
		contents, err := os.ReadFile(filepath.Join(root, "src", "main.adb"))
		require.NoError(t, err)
		assert.Equal(t, "procedure Main is begin null; end;", string(contents))

		_, err = os.Stat(filepath.Join(root, "obj", "main.o"))
		assert.True(t, os.IsNotExist(err))
	}

	// Nothing changed, so nothing is transferred.
	res, err = syncOnce(project)
	require.NoError(t, err)
	assert.Equal(t, 0, res.transferred)
}

func TestSyncOnceUnreachableSlave(t *testing.T) {
	masterRoot := t.TempDir()
	writeFile(t, filepath.Join(masterRoot, "main.adb"), "main")
	host, root := startSlave(t)

	dial = func(ctx context.Context, address string, opts ...grpc.DialOption) (
		proto.Channel, error) {

		if address == "unreachable:9010" {
			return nil, errors.NewTransportError(errors.New("connection refused"))
		}
		return client.Dial(ctx, address, opts...)
	}
	defer func() { dial = client.Dial }()

	project := config.Project{
		Name:      "hello",
		Root:      masterRoot,
		Workers:   10,
		ChunkSize: 500,
		Slaves: []config.Slave{
			{Host: "unreachable:9010", Root: "/srv/hello"},
			{Host: host, Root: "/srv/hello"},
		},
	}

	var out bytes.Buffer
	stdout = &out
	defer func() { stdout = os.Stdout }()

	res, err := syncOnce(project)
	assert.Equal(t, errors.NewFriendlyError("Failed to synchronize %s.", "unreachable:9010"), err)
	assert.Equal(t, []string{"unreachable:9010"}, res.failed)
	assert.Equal(t, 1, res.transferred)

	_, err = os.Stat(filepath.Join(root, "main.adb"))
	assert.NoError(t, err)

	assert.Contains(t, out.String(), "Unreachable: transport: connection refused")
	assert.Contains(t, out.String(), "Synced: 1 of 1 file transferred")
}

func TestPlural(t *testing.T) {
	assert.Equal(t, "files", plural(0, "file"))
	assert.Equal(t, "file", plural(1, "file"))
	assert.Equal(t, "slaves", plural(2, "slave"))
}
