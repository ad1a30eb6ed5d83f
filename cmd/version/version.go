package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Irvise/gprbuild/pkg/proto"
	"github.com/Irvise/gprbuild/pkg/version"
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of gprbuild.",
		Long: "Print the version of gprbuild, and the version of the protocol\n" +
			"spoken between build masters and slaves.",
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("gprbuild version: %s\n", version.Version)
			fmt.Printf("protocol version: %s\n", proto.ProtocolVersion)
		},
	}
}
