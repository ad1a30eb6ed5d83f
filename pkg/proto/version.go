package proto

import (
	"fmt"

	goversion "github.com/hashicorp/go-version"

	"github.com/Irvise/gprbuild/pkg/errors"
)

// ProtocolVersion is the version of the master/slave protocol spoken by this
// binary. Peers are compatible when they share the major version.
const ProtocolVersion = "1.0.0"

var compatibleVersions = mustConstraint(ProtocolVersion)

func mustConstraint(v string) goversion.Constraints {
	local := goversion.Must(goversion.NewVersion(v))
	constraint, err := goversion.NewConstraint(
		fmt.Sprintf("~> %d.0", local.Segments()[0]))
	if err != nil {
		panic(err)
	}
	return constraint
}

// CheckCompatible returns an error if a peer speaking `remote` can't talk to
// this binary.
func CheckCompatible(remote string) error {
	if remote == "" {
		return errors.New("missing protocol version")
	}

	remoteVersion, err := goversion.NewVersion(remote)
	if err != nil {
		return errors.WithContext(err, "parse protocol version")
	}

	if !compatibleVersions.Check(remoteVersion) {
		return errors.New("incompatible protocol version %s (local version is %s)",
			remote, ProtocolVersion)
	}
	return nil
}
