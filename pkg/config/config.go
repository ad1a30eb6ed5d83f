package config

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"

	"github.com/Irvise/gprbuild/pkg/errors"
)

// Replaced with an in-memory filesystem by the tests.
var fs = afero.NewOsFs()

// malformedConfigTemplate is shown when a config file isn't valid YAML, or
// doesn't fit the config schema. The parser error is passed through as is.
const malformedConfigTemplate = "Failed to read the configuration in %q.\n" +
	"Check that:\n" +
	" - Every key is spelled as documented, e.g. `chunkSize` and not `chunk_size`\n" +
	" - `workers` and `chunkSize` are numbers\n" +
	" - Patterns starting with `*` are quoted, e.g. \"*.o\"\n\n" +
	"Parser error:\n" +
	"%s"

// versioned is implemented by config files that carry a `version` field.
type versioned interface {
	getVersion() string
}

type incompatibleVersionError struct {
	path, supported, found string
}

func (err incompatibleVersionError) Error() string {
	return err.FriendlyMessage()
}

func (err incompatibleVersionError) FriendlyMessage() string {
	return fmt.Sprintf("%q uses config version %q, but this gprbuild only "+
		"reads version %q.", err.path, err.found, err.supported)
}

// parseConfig decodes the YAML file at `path` into `config`. The version is
// checked before unknown fields so that files written for another release
// fail with a version error.
func parseConfig(path string, config versioned, supported string) error {
	contents, err := afero.ReadFile(fs, path)
	switch {
	case os.IsNotExist(err):
		return errors.FileNotFound{Path: path}
	case err != nil:
		return errors.WithContext(err, "read file")
	}

	if err := yaml.Unmarshal(contents, config); err != nil {
		return errors.NewFriendlyError(malformedConfigTemplate, path, err)
	}

	if found := config.getVersion(); found != supported {
		return incompatibleVersionError{path: path, supported: supported, found: found}
	}

	if err := yaml.UnmarshalStrict(contents, config, yaml.DisallowUnknownFields); err != nil {
		return errors.NewFriendlyError(malformedConfigTemplate, path, err)
	}
	return nil
}
