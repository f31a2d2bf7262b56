package syncqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingExecutor parks every Execute call until the test releases it,
// so tests control exactly when jobs reach a terminal state.
type blockingExecutor struct {
	started chan string // receives the directory of each started job
	release chan error  // one receive per Execute call
	stats   *Stats
}

func newBlockingExecutor() *blockingExecutor {
	return &blockingExecutor{
		started: make(chan string, 16),
		release: make(chan error, 16),
	}
}

func (e *blockingExecutor) Execute(_ context.Context, _, _, directory string) (*Stats, error) {
	e.started <- directory
	if err := <-e.release; err != nil {
		return nil, err
	}
	return e.stats, nil
}

func awaitStarted(t *testing.T, e *blockingExecutor) {
	t.Helper()
	select {
	case <-e.started:
	case <-time.After(2 * time.Second):
		t.Fatal("executor never started")
	}
}

func TestEnqueue_DeduplicatesActiveKey(t *testing.T) {
	exec := newBlockingExecutor()
	q := New(exec, nil)

	id1, isNew1 := q.Enqueue("/r", "decisions", ".decisions", false)
	assert.True(t, isNew1)
	awaitStarted(t, exec)

	id2, isNew2 := q.Enqueue("/r", "decisions", ".decisions", false)
	assert.False(t, isNew2)
	assert.Equal(t, id1, id2)

	exec.release <- nil
}

func TestEnqueue_ConcurrentCallersCollapse(t *testing.T) {
	exec := newBlockingExecutor()
	q := New(exec, nil)

	const callers = 16
	ids := make([]string, callers)
	news := make([]bool, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], news[i] = q.Enqueue("/r", "decisions", ".decisions", false)
		}(i)
	}
	wg.Wait()

	newCount := 0
	for i := 0; i < callers; i++ {
		assert.Equal(t, ids[0], ids[i], "all callers must see the same sync id")
		if news[i] {
			newCount++
		}
	}
	assert.Equal(t, 1, newCount, "exactly one caller wins admission")

	awaitStarted(t, exec)
	exec.release <- nil
}

func TestEnqueue_DistinctKeysRunIndependently(t *testing.T) {
	exec := newBlockingExecutor()
	q := New(exec, nil)

	idA, _ := q.Enqueue("/r", "decisions", "a", false)
	idB, _ := q.Enqueue("/r", "decisions", "b", false)
	idC, _ := q.Enqueue("/r", "docs", "a", false)

	assert.NotEqual(t, idA, idB)
	assert.NotEqual(t, idA, idC)
	assert.NotEqual(t, idB, idC)

	for i := 0; i < 3; i++ {
		awaitStarted(t, exec)
		exec.release <- nil
	}
}

func TestEnqueue_ForceSupersedesActiveJob(t *testing.T) {
	exec := newBlockingExecutor()
	q := New(exec, nil)

	oldID, _ := q.Enqueue("/r", "decisions", ".decisions", false)
	awaitStarted(t, exec)

	newID, isNew := q.Enqueue("/r", "decisions", ".decisions", true)
	require.True(t, isNew)
	assert.NotEqual(t, oldID, newID)

	// The superseded job is gone from id lookup even though it is still
	// in flight.
	_, ok := q.Get(oldID)
	assert.False(t, ok)

	_, ok = q.Get(newID)
	assert.True(t, ok)

	exec.release <- nil
	exec.release <- nil
	awaitStarted(t, exec)
}

func TestWait_UnknownIDBehavesAsTimeout(t *testing.T) {
	q := New(newBlockingExecutor(), nil)

	start := time.Now()
	_, ok := q.Wait(context.Background(), "no-such-id", 60*time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestWait_TimesOutOnStuckJob(t *testing.T) {
	exec := newBlockingExecutor()
	q := New(exec, nil)

	id, _ := q.Enqueue("/r", "decisions", ".decisions", false)
	awaitStarted(t, exec)

	_, ok := q.Wait(context.Background(), id, 50*time.Millisecond)
	assert.False(t, ok)

	exec.release <- nil
}

func TestWait_ResolvesBeforeTimeout(t *testing.T) {
	exec := newBlockingExecutor()
	exec.stats = &Stats{FilesScanned: 3, FilesIndexed: 2, DurationMS: 7}
	q := New(exec, nil)

	id, _ := q.Enqueue("/r", "decisions", ".decisions", false)
	awaitStarted(t, exec)
	exec.release <- nil

	start := time.Now()
	snap, ok := q.Wait(context.Background(), id, 5*time.Second)
	require.True(t, ok)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StateSucceeded, snap.State)
	require.NotNil(t, snap.Stats)
	assert.Equal(t, 2, snap.Stats.FilesIndexed)
}

func TestWait_FailedJobReportsFailedState(t *testing.T) {
	exec := newBlockingExecutor()
	q := New(exec, nil)

	id, _ := q.Enqueue("/r", "decisions", ".decisions", false)
	awaitStarted(t, exec)
	exec.release <- errors.New("scan failed")

	snap, ok := q.Wait(context.Background(), id, 5*time.Second)
	require.True(t, ok)
	assert.Equal(t, StateFailed, snap.State)
}

func TestWait_AllWaitersReleasedOnce(t *testing.T) {
	exec := newBlockingExecutor()
	q := New(exec, nil)

	id, _ := q.Enqueue("/r", "decisions", ".decisions", false)
	awaitStarted(t, exec)

	const waiters = 8
	results := make(chan bool, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			_, ok := q.Wait(context.Background(), id, 5*time.Second)
			results <- ok
		}()
	}

	exec.release <- nil

	for i := 0; i < waiters; i++ {
		select {
		case ok := <-results:
			assert.True(t, ok, "every waiter must observe the terminal state")
		case <-time.After(5 * time.Second):
			t.Fatal("waiter was never released")
		}
	}
}

func TestWait_AlreadyTerminalReturnsImmediately(t *testing.T) {
	exec := newBlockingExecutor()
	q := New(exec, nil)

	id, _ := q.Enqueue("/r", "decisions", ".decisions", false)
	awaitStarted(t, exec)
	exec.release <- nil

	// Let the job settle, then wait: must return without consuming the
	// timeout.
	require.Eventually(t, func() bool {
		snap, ok := q.Get(id)
		return ok && snap.State.Terminal()
	}, 2*time.Second, 5*time.Millisecond)

	start := time.Now()
	snap, ok := q.Wait(context.Background(), id, 5*time.Second)
	require.True(t, ok)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StateSucceeded, snap.State)
}

func TestWait_ContextCancellation(t *testing.T) {
	exec := newBlockingExecutor()
	q := New(exec, nil)

	id, _ := q.Enqueue("/r", "decisions", ".decisions", false)
	awaitStarted(t, exec)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, ok := q.Wait(ctx, id, 10*time.Second)
	assert.False(t, ok)

	exec.release <- nil
}

func TestGet_UnknownID(t *testing.T) {
	q := New(newBlockingExecutor(), nil)
	_, ok := q.Get("nope")
	assert.False(t, ok)
}

func TestEnqueue_FreshJobAfterTerminal(t *testing.T) {
	exec := newBlockingExecutor()
	q := New(exec, nil)

	id1, _ := q.Enqueue("/r", "decisions", ".decisions", false)
	awaitStarted(t, exec)
	exec.release <- nil

	_, ok := q.Wait(context.Background(), id1, 5*time.Second)
	require.True(t, ok)

	// A fresh enqueue for the same key supersedes the terminal job.
	id2, isNew := q.Enqueue("/r", "decisions", ".decisions", false)
	assert.True(t, isNew)
	assert.NotEqual(t, id1, id2)

	// The old id is no longer reachable.
	_, ok = q.Get(id1)
	assert.False(t, ok)

	awaitStarted(t, exec)
	exec.release <- nil
}

func TestListQueues_OneEntryPerKey(t *testing.T) {
	exec := newBlockingExecutor()
	q := New(exec, nil)

	q.Enqueue("/r", "decisions", "a", false)
	q.Enqueue("/r", "decisions", "b", false)
	awaitStarted(t, exec)
	awaitStarted(t, exec)
	exec.release <- nil
	exec.release <- nil

	// Re-enqueue key "a" after it settles: still one entry for it.
	require.Eventually(t, func() bool {
		for _, s := range q.ListQueues() {
			if s.Key.Directory == "a" && s.State.Terminal() {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	id3, _ := q.Enqueue("/r", "decisions", "a", false)
	awaitStarted(t, exec)

	entries := q.ListQueues()
	require.Len(t, entries, 2)

	byDir := map[string]Snapshot{}
	for _, s := range entries {
		byDir[s.Key.Directory] = s
	}
	assert.Equal(t, id3, byDir["a"].SyncID, "entry reflects the most recent job for the key")
	assert.False(t, byDir["a"].State.Terminal())

	exec.release <- nil
}
