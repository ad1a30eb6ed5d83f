package sync

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	goSync "sync"
	"text/tabwriter"
	"time"

	"github.com/buger/goterm"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Irvise/gprbuild/cmd/util"
	"github.com/Irvise/gprbuild/pkg/config"
	"github.com/Irvise/gprbuild/pkg/errors"
	"github.com/Irvise/gprbuild/pkg/fswatch"
	"github.com/Irvise/gprbuild/pkg/proto"
	"github.com/Irvise/gprbuild/pkg/sync"
	"github.com/Irvise/gprbuild/pkg/sync/client"
)

// Mocked out for unit testing.
var (
	dialTimeout           = 30 * time.Second
	dial                  = client.Dial
	stdout      io.Writer = os.Stdout
)

// New creates a new `sync` command.
func New() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "sync <project config>",
		Short: "Synchronize a project's sources to its build slaves.",
		Long: "Push the project's sources to every build slave listed in the\n" +
			"project config. Only the files that changed since the last sync\n" +
			"are transferred.",
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			project, err := config.ParseProject(args[0])
			if err != nil {
				util.HandleFatalError(err)
			}

			if watch {
				err = syncOnChange(project)
			} else {
				_, err = syncOnce(project)
			}
			if err != nil {
				util.HandleFatalError(err)
			}
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false,
		"Keep running, and synchronize again whenever the project changes.")
	return cmd
}

// summary is the outcome of one synchronization session.
type summary struct {
	transferred int
	failed      []string
}

type slaveStatus struct {
	host  string
	phase string
	msg   string
	color int
}

func (ss slaveStatus) String() string {
	msg := ss.phase
	if ss.msg != "" {
		msg += ": " + ss.msg
	}
	return goterm.Color(msg, ss.color)
}

func syncOnce(project config.Project) (summary, error) {
	start := time.Now()

	channels, dialErrs := dialSlaves(project.Slaves, project.Workers)
	defer closeChannels(channels)

	statuses := make([]slaveStatus, len(project.Slaves))
	slaveIndex := map[string]int{}
	syncer := sync.NewSyncer(sync.Options{
		Workers:   project.Workers,
		ChunkSize: project.ChunkSize,
	})
	for i, slave := range project.Slaves {
		statuses[i] = slaveStatus{host: slave.Host}
		if dialErrs[i] != nil {
			log.WithError(dialErrs[i]).WithField("host", slave.Host).Debug("Failed to connect to slave")
			statuses[i].phase = "Unreachable"
			statuses[i].msg = errors.RootCause(dialErrs[i]).Error()
			statuses[i].color = goterm.RED
			continue
		}

		slaveIndex[slave.Host] = i
		err := syncer.SubmitSyncJob(channels[i], project.Name, project.Root, slave.Root,
			slave.Host, project.Excludes, project.Includes)
		if err != nil {
			return summary{}, errors.WithContext(err, "submit sync job")
		}
	}

	var res summary
	for _, jobRes := range syncer.WaitForCompletion() {
		status := &statuses[slaveIndex[jobRes.Host]]
		if jobRes.Err != nil {
			log.WithError(jobRes.Err).WithField("host", jobRes.Host).Debug("Failed to synchronize slave")
			status.phase = "Failed"
			status.msg = errors.RootCause(jobRes.Err).Error()
			status.color = goterm.RED
			continue
		}

		status.phase = "Synced"
		status.msg = fmt.Sprintf("%s of %s %s transferred",
			humanize.Comma(int64(jobRes.FilesTransferred)),
			humanize.Comma(int64(jobRes.FilesSeen)), plural(jobRes.FilesSeen, "file"))
		status.color = goterm.GREEN
		res.transferred += jobRes.FilesTransferred
	}

	// End the session on every slave that's still connected.
	for i, ch := range channels {
		if ch == nil {
			continue
		}
		if err := ch.SendCommand(proto.Command{Kind: proto.Done}); err != nil {
			log.WithError(err).WithField("host", project.Slaves[i].Host).Debug(
				"Failed to end sync session")
		}
	}

	for _, status := range statuses {
		if status.phase != "Synced" {
			res.failed = append(res.failed, status.host)
		}
	}
	printStatuses(stdout, statuses)

	synced := len(project.Slaves) - len(res.failed)
	log.WithField("duration", time.Since(start).Round(time.Millisecond)).Infof(
		"Transferred %s %s to %d of %d %s",
		humanize.Comma(int64(res.transferred)), plural(res.transferred, "file"),
		synced, len(project.Slaves), plural(len(project.Slaves), "slave"))

	if len(res.failed) != 0 {
		return res, errors.NewFriendlyError("Failed to synchronize %s.",
			strings.Join(res.failed, ", "))
	}
	return res, nil
}

func printStatuses(w io.Writer, statuses []slaveStatus) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "SLAVE\tSTATUS")
	for _, status := range statuses {
		fmt.Fprintf(tw, "%s\t%s\n", status.host, status)
	}
	tw.Flush()
}

// dialSlaves connects to every slave concurrently. The returned slices are
// indexed like `slaves`. A slave that can't be reached has a nil channel and
// an error.
func dialSlaves(slaves []config.Slave, limit int) ([]proto.Channel, []error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	channels := make([]proto.Channel, len(slaves))
	errs := make([]error, len(slaves))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, slave := range slaves {
		i, slave := i, slave
		g.Go(func() error {
			channels[i], errs[i] = dial(ctx, slave.Host)
			return nil
		})
	}
	g.Wait()
	return channels, errs
}

func closeChannels(channels []proto.Channel) {
	var wg goSync.WaitGroup
	for _, ch := range channels {
		if ch == nil {
			continue
		}

		wg.Add(1)
		go func(ch proto.Channel) {
			defer wg.Done()
			if err := ch.Close(); err != nil {
				log.WithError(err).Debug("Failed to close sync channel")
			}
		}(ch)
	}
	wg.Wait()
}

func syncOnChange(project config.Project) error {
	walker := sync.NewWalker(sync.DefaultExcludes)
	watcher, err := fswatch.Watch(project.Root, walker, project.Includes, project.Excludes)
	if err != nil {
		return errors.WithContext(err, "watch project")
	}
	defer watcher.Close()

	for {
		if _, err := syncOnce(project); err != nil {
			log.WithError(err).Warn("Sync failed. Will retry after the next change.")
		}

		log.Info("Waiting for changes")
		<-watcher.Changes
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return noun
	}
	return fmt.Sprintf("%ss", noun)
}
