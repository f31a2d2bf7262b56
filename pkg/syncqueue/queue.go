// Package syncqueue implements the daemon's admission-controlled job
// table: at most one active job per (repo_root, tool, directory) key,
// with non-blocking completion notification for any number of waiters.
package syncqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Queue is the in-memory job table. All reads and writes of job state
// happen under a single lock, so no partial update is ever observable.
//
// Construct with New and inject where needed; there is one queue per
// daemon instance.
type Queue struct {
	executor Executor
	log      *zap.Logger

	mu    sync.Mutex
	byKey map[Key]*Job    // current job per key ever enqueued this lifetime
	byID  map[string]*Job // jobs reachable by sync id (superseded ids drop out)
}

// New creates a queue that hands admitted jobs to executor. A nil logger
// is replaced with a no-op logger.
func New(executor Executor, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		executor: executor,
		log:      log,
		byKey:    make(map[Key]*Job),
		byID:     make(map[string]*Job),
	}
}

// Enqueue admits (or dedups) a sync request for the given key.
//
// If an active job already exists for the key and force is false, the
// existing job's sync id is returned with isNew=false and no new work
// starts. Otherwise a fresh job is created, recorded as the key's
// current job (superseding any prior job under that key), and handed to
// the executor on its own goroutine. Enqueue never blocks on the work
// itself; it returns as soon as the admission decision is made.
func (q *Queue) Enqueue(repoRoot, tool, directory string, force bool) (syncID string, isNew bool) {
	key := Key{RepoRoot: repoRoot, Tool: tool, Directory: directory}

	q.mu.Lock()
	if current, ok := q.byKey[key]; ok {
		if !current.State.Terminal() && !force {
			id := current.SyncID
			q.mu.Unlock()
			q.log.Debug("sync request deduplicated",
				zap.String("sync_id", id),
				zap.String("tool", tool),
				zap.String("directory", directory))
			return id, false
		}
		// Superseded: the old job is no longer reachable by id. If it is
		// still in flight its waiters keep the pointer and are released
		// when it finishes.
		delete(q.byID, current.SyncID)
	}

	job := &Job{
		SyncID:   uuid.New().String(),
		Key:      key,
		State:    StateQueued,
		QueuedAt: time.Now(),
		done:     make(chan struct{}),
	}
	q.byKey[key] = job
	q.byID[job.SyncID] = job
	q.mu.Unlock()

	q.log.Info("sync job admitted",
		zap.String("sync_id", job.SyncID),
		zap.String("repo_root", repoRoot),
		zap.String("tool", tool),
		zap.String("directory", directory),
		zap.Bool("force", force))

	go q.run(job)

	return job.SyncID, true
}

// run drives one job through Running to a terminal state.
func (q *Queue) run(job *Job) {
	q.setState(job, StateRunning)

	stats, err := q.executor.Execute(context.Background(), job.Key.RepoRoot, job.Key.Tool, job.Key.Directory)
	if err != nil {
		q.log.Warn("sync job failed",
			zap.String("sync_id", job.SyncID),
			zap.Error(err))
		q.finish(job, StateFailed, stats)
		return
	}

	q.log.Info("sync job succeeded", zap.String("sync_id", job.SyncID))
	q.finish(job, StateSucceeded, stats)
}

func (q *Queue) setState(job *Job, state State) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job.State.Terminal() {
		return
	}
	job.State = state
}

// finish moves a job to a terminal state and releases all waiters via a
// single close of the job's done channel.
func (q *Queue) finish(job *Job, state State, stats *Stats) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job.State.Terminal() {
		return
	}
	job.State = state
	job.Stats = stats
	close(job.done)
}

// Get returns a point-in-time snapshot of the named job, or ok=false if
// the sync id is unknown or superseded.
func (q *Queue) Get(syncID string) (Snapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.byID[syncID]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotLocked(job), true
}

// Wait blocks until the named job reaches a terminal state, the timeout
// elapses, or ctx is cancelled, whichever happens first. The bool result
// is false on timeout or cancellation.
//
// An unknown or superseded sync id is indistinguishable from a timeout:
// the call parks for the full timeout and reports false. Wait suspends
// only the calling goroutine; it holds no lock while parked.
func (q *Queue) Wait(ctx context.Context, syncID string, timeout time.Duration) (Snapshot, bool) {
	q.mu.Lock()
	job, known := q.byID[syncID]
	var done chan struct{}
	if known {
		done = job.done
	}
	q.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done: // nil channel when unknown: blocks until the timer fires
	case <-timer.C:
		return Snapshot{}, false
	case <-ctx.Done():
		return Snapshot{}, false
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return snapshotLocked(job), true
}

// ListQueues returns one entry per distinct key ever enqueued during
// this process lifetime, each reflecting the key's current (or most
// recent) job. Newest queue time first.
func (q *Queue) ListQueues() []Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Snapshot, 0, len(q.byKey))
	for _, job := range q.byKey {
		out = append(out, snapshotLocked(job))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QueuedAt.After(out[j].QueuedAt)
	})
	return out
}

func snapshotLocked(job *Job) Snapshot {
	return Snapshot{
		SyncID:   job.SyncID,
		Key:      job.Key,
		State:    job.State,
		QueuedAt: job.QueuedAt,
		Stats:    job.Stats,
	}
}
