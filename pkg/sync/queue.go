package sync

import (
	goSync "sync"

	"github.com/Irvise/gprbuild/pkg/errors"
	"github.com/Irvise/gprbuild/pkg/proto"
)

// ErrQueueClosed is returned when a job is submitted after the queue was
// closed for submission.
var ErrQueueClosed = errors.New("sync queue is closed")

// Job is a request to synchronize a project onto one slave. Jobs are not
// modified once submitted.
type Job struct {
	Channel   proto.Channel
	Project   string
	LocalRoot string
	SlaveRoot string
	Host      string
	Excludes  []string
	Includes  []string
}

// JobQueue is the FIFO queue shared by the sync workers.
//
// The file set is computed once per queue, by walking the root of the first
// job taken with that job's patterns. Every job then receives the same file
// set, regardless of its own root and patterns.
type JobQueue struct {
	walker Walker

	lock    goSync.Mutex
	cond    *goSync.Cond
	pending []Job
	closed  bool

	// source is the first job taken from the queue. It determines the file
	// set.
	source *Job

	filesOnce goSync.Once
	files     []FileEntry
	filesErr  error
}

// NewJobQueue returns an empty queue that computes its file set with
// `walker`.
func NewJobQueue(walker Walker) *JobQueue {
	q := &JobQueue{walker: walker}
	q.cond = goSync.NewCond(&q.lock)
	return q
}

// Submit appends `job` to the queue. It never waits for a worker.
func (q *JobQueue) Submit(job Job) error {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.pending = append(q.pending, job)
	q.cond.Signal()
	return nil
}

// Take blocks until a job is available, or until the queue is closed and
// empty, in which case `done` is true. The returned file set is shared by all
// jobs and must not be modified.
func (q *JobQueue) Take() (job Job, files []FileEntry, done bool, err error) {
	q.lock.Lock()
	for len(q.pending) == 0 && !q.closed {
		q.cond.Wait()
	}

	if len(q.pending) == 0 {
		q.lock.Unlock()
		return Job{}, nil, true, nil
	}

	job = q.pending[0]
	q.pending[0] = Job{}
	q.pending = q.pending[1:]

	if q.source == nil {
		source := job
		q.source = &source
	}
	source := *q.source
	q.lock.Unlock()

	// The walk happens outside of the lock so that submitters aren't held up
	// by it. Concurrent takers wait in the Once until the set is ready.
	files, err = q.fileSet(source)
	return job, files, false, err
}

func (q *JobQueue) fileSet(source Job) ([]FileEntry, error) {
	q.filesOnce.Do(func() {
		q.files, q.filesErr = q.walker.Walk(source.LocalRoot, source.Includes, source.Excludes)
		if q.filesErr != nil {
			q.filesErr = errors.WithContext(q.filesErr, "walk "+source.LocalRoot)
		}
	})
	return q.files, q.filesErr
}

// CloseForSubmission records that no more jobs will be submitted. Workers
// blocked in Take return once the remaining jobs are taken.
func (q *JobQueue) CloseForSubmission() {
	q.lock.Lock()
	defer q.lock.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Drain removes and returns the jobs that haven't been taken.
func (q *JobQueue) Drain() []Job {
	q.lock.Lock()
	defer q.lock.Unlock()

	jobs := q.pending
	q.pending = nil
	return jobs
}
