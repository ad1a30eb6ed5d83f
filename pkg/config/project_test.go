package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Irvise/gprbuild/pkg/errors"
)

const projectPath = "/home/user/hello/gprbuild.yaml"

func TestParseProject(t *testing.T) {
	tests := []struct {
		name      string
		config    string
		expConfig Project
		expError  error
	}{
		{
			name: "Defaults",
			config: `project: hello
root: .
slaves:
- host: build1:9010
  root: /srv/hello
`,
			expConfig: Project{
				Version:   InitialProjectConfigVersion,
				Name:      "hello",
				Root:      "/home/user/hello",
				Workers:   10,
				ChunkSize: 500,
				Slaves:    []Slave{{Host: "build1:9010", Root: "/srv/hello"}},
			},
		},
		{
			name: "AllFields",
			config: `version: v1alpha1
project: hello
root: /src/hello
workers: 4
chunkSize: 50
excludes: ["*.tmp", "tests"]
includes: ["*.ad[bs]"]
slaves:
- host: build1:9010
  root: /srv/hello
- host: build2:9010
  root: /srv/hello
`,
			expConfig: Project{
				Version:   SupportedProjectConfigVersion,
				Name:      "hello",
				Root:      "/src/hello",
				Workers:   4,
				ChunkSize: 50,
				Excludes:  []string{"*.tmp", "tests"},
				Includes:  []string{"*.ad[bs]"},
				Slaves: []Slave{
					{Host: "build1:9010", Root: "/srv/hello"},
					{Host: "build2:9010", Root: "/srv/hello"},
				},
			},
		},
		{
			name: "HomeDirectory",
			config: `project: hello
root: ~/src/hello
slaves:
- host: build1:9010
  root: /srv/hello
`,
			expConfig: Project{
				Version:   InitialProjectConfigVersion,
				Name:      "hello",
				Root:      "/home/user/src/hello",
				Workers:   10,
				ChunkSize: 500,
				Slaves:    []Slave{{Host: "build1:9010", Root: "/srv/hello"}},
			},
		},
		{
			name: "IncorrectVersion",
			config: `version: v2
project: hello
`,
			expError: errors.WithContext(incompatibleVersionError{
				path:      projectPath,
				supported: SupportedProjectConfigVersion,
				found:     "v2",
			}, "parse"),
		},
		{
			name: "MissingProject",
			config: `root: .
slaves:
- host: build1:9010
  root: /srv/hello
`,
			expError: errors.MissingFieldError{Field: "project"},
		},
		{
			name: "MissingRoot",
			config: `project: hello
slaves:
- host: build1:9010
  root: /srv/hello
`,
			expError: errors.MissingFieldError{Field: "root"},
		},
		{
			name: "MissingSlaveHost",
			config: `project: hello
root: .
slaves:
- host: build1:9010
- root: /srv/hello
`,
			expError: errors.MissingFieldError{Field: "slaves[1].host"},
		},
		{
			name: "DuplicateSlaveHost",
			config: `project: hello
root: .
slaves:
- host: build1:9010
- host: build2:9010
- host: build1:9010
  root: /srv/other
`,
			expError: errors.NewFriendlyError("The project \"hello\" lists the " +
				"slave \"build1:9010\" more than once."),
		},
		{
			name: "NoSlaves",
			config: `project: hello
root: .
`,
			expError: errors.NewFriendlyError("The project \"hello\" has no slaves. " +
				"Add at least one entry to `slaves`."),
		},
	}

	homedirExpand = func(path string) (string, error) {
		if len(path) > 0 && path[0] == '~' {
			return "/home/user" + path[1:], nil
		}
		return path, nil
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs = afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, projectPath, []byte(test.config), 0644))

			config, err := ParseProject(projectPath)
			assert.Equal(t, test.expError, err)
			assert.Equal(t, test.expConfig, config)
		})
	}
}

func TestParseProjectUnknownField(t *testing.T) {
	fs = afero.NewMemMapFs()
	config := `project: hello
root: .
slave: build1
`
	require.NoError(t, afero.WriteFile(fs, projectPath, []byte(config), 0644))

	_, err := ParseProject(projectPath)
	require.Error(t, err)
	_, ok := errors.RootCause(err).(errors.FriendlyError)
	assert.True(t, ok)
	assert.Contains(t, err.Error(), `unknown field "slave"`)
}

func TestParseProjectBadPattern(t *testing.T) {
	fs = afero.NewMemMapFs()
	config := `project: hello
root: .
excludes: ["["]
slaves:
- host: build1:9010
  root: /srv/hello
`
	require.NoError(t, afero.WriteFile(fs, projectPath, []byte(config), 0644))

	_, err := ParseProject(projectPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid exclude pattern")
}

func TestParseProjectMissingFile(t *testing.T) {
	fs = afero.NewMemMapFs()

	_, err := ParseProject(projectPath)
	assert.Equal(t, errors.NewFriendlyError(
		"The project config file doesn't exist at %q.", projectPath), err)
}
