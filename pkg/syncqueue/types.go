package syncqueue

import (
	"time"

	"github.com/helix-kb/helixd/pkg/protocol"
)

// State is the lifecycle state of a sync job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transitions can occur from s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Key identifies one logical unit of syncable work: requests with an
// identical key collapse onto a single execution.
type Key struct {
	RepoRoot  string
	Tool      string
	Directory string
}

// Stats summarizes a completed sync. Aliased from the protocol package
// so executor results flow onto the wire without translation.
type Stats = protocol.SyncStats

// Job is one admitted unit of work. Jobs live in memory for the process
// lifetime; they are never persisted.
type Job struct {
	SyncID   string
	Key      Key
	State    State
	QueuedAt time.Time
	Stats    *Stats

	// done is closed exactly once, when the job reaches a terminal
	// state. All waiters are released by the close.
	done chan struct{}
}

// Snapshot is a point-in-time copy of a job's observable fields, safe to
// use without holding the queue lock.
type Snapshot struct {
	SyncID   string
	Key      Key
	State    State
	QueuedAt time.Time
	Stats    *Stats
}
