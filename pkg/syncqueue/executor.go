package syncqueue

import "context"

// Executor performs the actual sync work for one admitted job.
//
// The queue invokes Execute on its own goroutine, never on the caller of
// Enqueue. An executor owns no queue state; it reports exactly one
// terminal outcome per job through its return values: a nil error marks
// the job succeeded, a non-nil error marks it failed. Stats may be nil.
//
// Retry and partial-failure policy is the executor's own business; the
// queue only records the outcome.
type Executor interface {
	Execute(ctx context.Context, repoRoot, tool, directory string) (*Stats, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, repoRoot, tool, directory string) (*Stats, error)

func (f ExecutorFunc) Execute(ctx context.Context, repoRoot, tool, directory string) (*Stats, error) {
	return f(ctx, repoRoot, tool, directory)
}
