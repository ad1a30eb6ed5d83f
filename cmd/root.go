package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Irvise/gprbuild/cmd/slave"
	syncCmd "github.com/Irvise/gprbuild/cmd/sync"
	"github.com/Irvise/gprbuild/cmd/util"
	"github.com/Irvise/gprbuild/cmd/version"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "GPRBUILD_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "gprbuild",
		Short:        "Distribute project sources to remote build slaves.",
		SilenceUsage: true,

		// Errors are printed by HandleFatalError.
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		slave.New(),
		syncCmd.New(),
		version.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
