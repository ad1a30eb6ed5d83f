package util

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghodss/yaml"
	log "github.com/sirupsen/logrus"

	"github.com/Irvise/gprbuild/pkg/config"
	"github.com/Irvise/gprbuild/pkg/errors"
)

// TestHelper runs gprbuild binaries during integration tests.
type TestHelper struct {
	Binary string
}

// NewTestHelper creates a new TestHelper for the gprbuild binary at `binary`.
func NewTestHelper(binary string) (*TestHelper, error) {
	if _, err := os.Stat(binary); err != nil {
		return nil, errors.WithContext(err, "stat binary")
	}
	return &TestHelper{Binary: binary}, nil
}

// Slave is a running `gprbuild slave` process.
type Slave struct {
	Address string
	Root    string
	cmd     *exec.Cmd
	output  *bytes.Buffer
}

// StartSlave starts a slave server writing to a temporary directory. The
// server is stopped when the test ends.
func (th *TestHelper) StartSlave(t *testing.T, args ...string) *Slave {
	address, err := freeAddress()
	if err != nil {
		t.Fatalf("pick slave address: %s", err)
	}

	root := t.TempDir()
	var output bytes.Buffer
	cmd := exec.Command(th.Binary,
		append([]string{"slave", "--listen", address, "--root", root}, args...)...)
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Start(); err != nil {
		t.Fatalf("start slave: %s", err)
	}

	t.Cleanup(func() {
		if err := cmd.Process.Kill(); err != nil {
			log.WithError(err).Warn("Failed to stop slave")
		}
		cmd.Wait()
		if t.Failed() {
			t.Logf("Slave output:\n%s", output.String())
		}
	})

	if err := waitForPort(address, 10*time.Second); err != nil {
		t.Fatalf("slave didn't start: %s", err)
	}
	return &Slave{Address: address, Root: root, cmd: cmd, output: &output}
}

// WriteProject writes the project config for `project` into a temporary
// directory, and returns its path.
func (th *TestHelper) WriteProject(t *testing.T, project config.Project) string {
	project.Version = config.SupportedProjectConfigVersion
	projectBytes, err := yaml.Marshal(project)
	if err != nil {
		t.Fatalf("marshal project: %s", err)
	}

	path := filepath.Join(t.TempDir(), "gprbuild.yaml")
	if err := os.WriteFile(path, projectBytes, 0644); err != nil {
		t.Fatalf("write project: %s", err)
	}
	return path
}

// Sync runs `gprbuild sync` on the project config at `path`, and returns its
// combined output.
func (th *TestHelper) Sync(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, th.Binary, "sync", path)
	cmd.Env = append(os.Environ(), "GPRBUILD_LOG_VERBOSE=true")
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func freeAddress() (string, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer lis.Close()
	return lis.Addr().String(), nil
}

func waitForPort(address string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", address)
		if err == nil {
			return conn.Close()
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("%s didn't accept connections within %s", address, timeout)
}
