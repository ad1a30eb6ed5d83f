package slave

import (
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/Irvise/gprbuild/cmd/util"
	"github.com/Irvise/gprbuild/pkg/errors"
	syncServer "github.com/Irvise/gprbuild/pkg/sync/server"
)

// New creates a new `slave` command.
func New() *cobra.Command {
	var address, root string
	var prune bool

	cmd := &cobra.Command{
		Use:   "slave",
		Short: "Receive project sources from build masters.",
		Long: "Run the sync server of a build slave. Build masters connect to\n" +
			"it with `gprbuild sync`, and their sources are written under the\n" +
			"directory given by --root.",
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			root, err := prepareRoot(root)
			if err != nil {
				util.HandleFatalError(err)
			}

			err = syncServer.Run(address, root, syncServer.Options{Prune: prune})
			if err != nil {
				util.HandleFatalError(errors.WithContext(err, "run sync server"))
			}
		},
	}

	cmd.Flags().StringVar(&address, "listen", fmt.Sprintf(":%d", syncServer.DefaultPort),
		"The address to listen for build masters on.")
	cmd.Flags().StringVar(&root, "root", "",
		"The directory that synchronized sources are written to.")
	cmd.Flags().BoolVar(&prune, "prune", false,
		"Remove files that the build master no longer has.")
	return cmd
}

func prepareRoot(root string) (string, error) {
	if root == "" {
		return "", errors.NewFriendlyError("The --root flag is required.")
	}

	root, err := homedir.Expand(root)
	if err != nil {
		return "", errors.WithContext(err, "expand root path")
	}

	root, err = filepath.Abs(root)
	if err != nil {
		return "", errors.WithContext(err, "get absolute path")
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return "", errors.WithContext(err, "create root")
	}
	return root, nil
}
