package config

import (
	"fmt"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/Irvise/gprbuild/pkg/errors"
	"github.com/Irvise/gprbuild/pkg/sync"
)

const (
	// InitialProjectConfigVersion is the first version of the project
	// config. Config files that do not specify a version default to this
	// version.
	InitialProjectConfigVersion = "v1alpha1"

	// SupportedProjectConfigVersion is the project config version supported
	// by this binary.
	SupportedProjectConfigVersion = "v1alpha1"
)

// Project describes a project tree and the build slaves it's distributed to.
type Project struct {
	Version string `json:"version,omitempty"`

	// Name identifies the project in logs.
	Name string `json:"project"`

	// Root is the project's root directory on the master. Relative paths
	// are relative to the directory containing the config file.
	Root string `json:"root"`

	Workers   int `json:"workers,omitempty"`
	ChunkSize int `json:"chunkSize,omitempty"`

	// Excludes and Includes are glob patterns matched against file and
	// directory names. If Includes is set, only matching files are
	// synchronized.
	Excludes []string `json:"excludes,omitempty"`
	Includes []string `json:"includes,omitempty"`

	Slaves []Slave `json:"slaves"`
}

// Slave is a build slave that receives the project sources.
type Slave struct {
	// Host is the address of the slave's sync server, e.g. `build1:9010`.
	Host string `json:"host"`

	// Root is where the slave writes the sources. The slave picks its root
	// with `gprbuild slave --root`, and this value is only used in logs.
	Root string `json:"root,omitempty"`
}

func (p Project) getVersion() string {
	return p.Version
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// ParseProject parses and validates the project config at `path`.
func ParseProject(path string) (Project, error) {
	config := Project{Version: InitialProjectConfigVersion}
	if err := parseConfig(path, &config, SupportedProjectConfigVersion); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return Project{}, errors.NewFriendlyError(
				"The project config file doesn't exist at %q.", path)
		}
		return Project{}, errors.WithContext(err, "parse")
	}

	if err := config.validate(); err != nil {
		return Project{}, err
	}

	var err error
	config.Root, err = homedirExpand(config.Root)
	if err != nil {
		return Project{}, errors.WithContext(err, "expand root path")
	}

	// Evaluate relative paths relative to the config path.
	if !filepath.IsAbs(config.Root) {
		config.Root = filepath.Join(filepath.Dir(path), config.Root)
	}

	if config.Workers <= 0 {
		config.Workers = sync.DefaultWorkers
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = sync.DefaultChunkSize
	}
	return config, nil
}

func (p Project) validate() error {
	if p.Name == "" {
		return errors.MissingFieldError{Field: "project"}
	}
	if p.Root == "" {
		return errors.MissingFieldError{Field: "root"}
	}
	if len(p.Slaves) == 0 {
		return errors.NewFriendlyError("The project %q has no slaves. "+
			"Add at least one entry to `slaves`.", p.Name)
	}

	hosts := map[string]struct{}{}
	for i, slave := range p.Slaves {
		if slave.Host == "" {
			return errors.MissingFieldError{Field: fmt.Sprintf("slaves[%d].host", i)}
		}
		if _, ok := hosts[slave.Host]; ok {
			return errors.NewFriendlyError("The project %q lists the "+
				"slave %q more than once.", p.Name, slave.Host)
		}
		hosts[slave.Host] = struct{}{}
	}

	if _, err := sync.CompilePatterns(p.Excludes); err != nil {
		return errors.NewFriendlyError("The project %q has an invalid exclude "+
			"pattern: %s", p.Name, err)
	}
	if _, err := sync.CompilePatterns(p.Includes); err != nil {
		return errors.NewFriendlyError("The project %q has an invalid include "+
			"pattern: %s", p.Name, err)
	}
	return nil
}
