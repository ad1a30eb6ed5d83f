package sync

import (
	"fmt"
	"os"
	"runtime/debug"
	goSync "sync"

	log "github.com/sirupsen/logrus"

	"github.com/Irvise/gprbuild/pkg/errors"
	"github.com/Irvise/gprbuild/pkg/proto"
)

const (
	// DefaultWorkers is the default number of concurrent sync workers. The
	// work is bound by the network rather than the CPU, so this doesn't
	// depend on the number of cores.
	DefaultWorkers = 10

	// DefaultChunkSize is the default number of files per file batch.
	DefaultChunkSize = 500
)

var errNoWorkers = errors.New("every sync worker stopped before the job was started")

// Mocked out for unit testing.
var exit = os.Exit

// Options configures a Syncer. Zero values select the defaults.
type Options struct {
	Workers   int
	ChunkSize int
	Walker    *Walker
	Log       log.FieldLogger
}

// JobResult is the outcome of a single job.
type JobResult struct {
	Host             string
	Project          string
	FilesSeen        int
	FilesTransferred int
	Err              error
}

// Syncer pushes a project tree to any number of slaves with a fixed pool of
// workers. The pool is started by the first submitted job.
type Syncer struct {
	queue     *JobQueue
	workers   int
	chunkSize int
	log       log.FieldLogger

	// fatal is called with errors that aren't caused by the transport. It
	// doesn't return in production.
	fatal func(error)

	startOnce goSync.Once
	wg        goSync.WaitGroup

	resultsLock goSync.Mutex
	results     []JobResult
}

// NewSyncer returns a Syncer for one synchronization session.
func NewSyncer(opts Options) *Syncer {
	walker := NewWalker(DefaultExcludes)
	if opts.Walker != nil {
		walker = *opts.Walker
	}

	s := &Syncer{
		queue:     NewJobQueue(walker),
		workers:   opts.Workers,
		chunkSize: opts.ChunkSize,
		log:       opts.Log,
		fatal:     exitOnFatal,
	}
	if s.workers <= 0 {
		s.workers = DefaultWorkers
	}
	if s.chunkSize <= 0 {
		s.chunkSize = DefaultChunkSize
	}
	if s.log == nil {
		s.log = log.StandardLogger()
	}
	return s
}

// SubmitSyncJob queues the synchronization of `localRoot` onto the slave at
// the other end of `ch`.
func (s *Syncer) SubmitSyncJob(ch proto.Channel, project, localRoot, slaveRoot,
	host string, excludes, includes []string) error {

	s.startOnce.Do(s.start)
	return s.queue.Submit(Job{
		Channel:   ch,
		Project:   project,
		LocalRoot: localRoot,
		SlaveRoot: slaveRoot,
		Host:      host,
		Excludes:  excludes,
		Includes:  includes,
	})
}

// WaitForCompletion closes the Syncer for submission, and blocks until every
// worker has stopped. It returns the result of every submitted job.
func (s *Syncer) WaitForCompletion() []JobResult {
	s.queue.CloseForSubmission()
	s.wg.Wait()

	// Jobs can only be left over if every worker was lost to a transport
	// error.
	for _, job := range s.queue.Drain() {
		s.record(JobResult{Host: job.Host, Project: job.Project, Err: errNoWorkers})
	}

	s.resultsLock.Lock()
	defer s.resultsLock.Unlock()
	return append([]JobResult(nil), s.results...)
}

func (s *Syncer) start() {
	s.wg.Add(s.workers)
	for i := 0; i < s.workers; i++ {
		go s.runWorker(i)
	}
}

func (s *Syncer) runWorker(id int) {
	defer s.wg.Done()

	logger := s.log.WithField("worker", id)
	for {
		job, files, done, err := s.queue.Take()
		if done {
			return
		}

		if err != nil {
			s.fatal(errors.WithContext(err, "list project files"))
			return
		}

		res, err := s.runJobSafe(logger, job, files)
		s.record(res)
		if err == nil {
			continue
		}

		if errors.IsTransportError(err) {
			logger.WithError(err).WithField("host", job.Host).Warn(
				"Lost connection to slave. Stopping sync worker.")
			return
		}

		s.fatal(errors.WithContext(err, fmt.Sprintf("sync %s", job.Host)))
		return
	}
}

func (s *Syncer) runJobSafe(logger log.FieldLogger, job Job, files []FileEntry) (
	res JobResult, err error) {

	defer func() {
		if r := recover(); r != nil {
			err = errors.New("panic: %v\n%s", r, debug.Stack())
			res = JobResult{Host: job.Host, Project: job.Project, Err: err}
		}
	}()
	return s.runJob(logger, job, files)
}

func (s *Syncer) runJob(logger log.FieldLogger, job Job, files []FileEntry) (JobResult, error) {
	res := JobResult{Host: job.Host, Project: job.Project, FilesSeen: len(files)}
	logger = logger.WithFields(log.Fields{
		"host":    job.Host,
		"project": job.Project,
	})
	logger.WithFields(log.Fields{
		"files":     len(files),
		"slaveRoot": job.SlaveRoot,
	}).Debug("Synchronizing sources")

	for _, batch := range Chunk(files, s.chunkSize) {
		transferred, err := PushBatch(job.Channel, job.LocalRoot, batch)
		res.FilesTransferred += transferred
		if err != nil {
			res.Err = errors.WithContext(err, "push files")
			return res, res.Err
		}
	}

	if err := EndFileList(job.Channel); err != nil {
		res.Err = errors.WithContext(err, "end file list")
		return res, res.Err
	}

	logger.WithField("transferred", res.FilesTransferred).Info("Sources synchronized")
	return res, nil
}

func (s *Syncer) record(res JobResult) {
	s.resultsLock.Lock()
	defer s.resultsLock.Unlock()
	s.results = append(s.results, res)
}

// exitOnFatal logs `err` with a stack trace and exits. A partially
// synchronized tree can't be built from, so the process stops.
func exitOnFatal(err error) {
	log.WithError(err).WithField("stack", string(debug.Stack())).Error(
		"Unexpected error while synchronizing sources")
	exit(1)
}

// Chunk splits `files` into batches of at most `size` files, preserving the
// order of the files.
func Chunk(files []FileEntry, size int) [][]FileEntry {
	if size <= 0 {
		size = DefaultChunkSize
	}

	var batches [][]FileEntry
	for len(files) > size {
		batches = append(batches, files[:size:size])
		files = files[size:]
	}
	if len(files) > 0 {
		batches = append(batches, files)
	}
	return batches
}
