package util

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"github.com/Irvise/gprbuild/pkg/errors"
)

// Mocked out for unit testing.
var (
	exit             = os.Exit
	stderr io.Writer = os.Stderr
)

// HandleFatalError handles errors that are severe enough to terminate the
// program. Friendly errors are shown to the user as is.
func HandleFatalError(err error) {
	if friendlyErr, ok := errors.RootCause(err).(errors.Friendly); ok {
		fmt.Fprintln(stderr, friendlyErr.FriendlyMessage())
	} else {
		log.WithError(err).Error("Fatal error")
	}
	exit(1)
}

// HandlePanic logs a recovered panic with its stack trace and exits. It must
// be deferred directly.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("stack", string(debug.Stack())).Errorf("Unexpected panic: %v", r)
		exit(1)
	}
}
