package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/journalpost/internal/database"
	"github.com/journalpost/internal/models"
	"github.com/journalpost/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingExecutor struct {
	mu       sync.Mutex
	executed []string
	block    chan struct{}
}

func (r *recordingExecutor) Execute(_ context.Context, sched *models.Schedule, _ string) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executed = append(r.executed, sched.ID)
}

func (r *recordingExecutor) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.executed)
}

func newLoopTestStore(t *testing.T) store.ScheduleStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	return store.NewScheduleStore(db)
}

func dueSchedule(t *testing.T, st store.ScheduleStore, executionTime time.Time) *models.Schedule {
	t.Helper()
	id := uuid.NewString()
	sched := &models.Schedule{
		ID:            id,
		OwnerID:       "owner-1",
		Name:          "export",
		ExecutionTime: executionTime,
		SelectionType: models.SelectionAll,
		EntryCount:    1,
		Recipients: []models.Recipient{
			{ID: uuid.NewString(), ScheduleID: id, Channel: models.ChannelEmail, Address: "a@example.com"},
		},
	}
	require.NoError(t, st.Create(context.Background(), sched))
	return sched
}

func TestRunOnceClaimsDueSchedule(t *testing.T) {
	st := newLoopTestStore(t)
	exec := &recordingExecutor{}
	loop := New(st, exec, time.Second, 2, zap.NewNop())

	// Fake clock: the schedule is due one minute from the real now; the loop
	// believes it is two minutes later.
	base := time.Now()
	dueSchedule(t, st, base.Add(time.Minute))
	loop.now = func() time.Time { return base.Add(2 * time.Minute) }

	loop.runOnce(context.Background())
	loop.wg.Wait()

	assert.Equal(t, 1, exec.count())
}

func TestRunOnceSkipsFutureSchedule(t *testing.T) {
	st := newLoopTestStore(t)
	exec := &recordingExecutor{}
	loop := New(st, exec, time.Second, 2, zap.NewNop())

	base := time.Now()
	dueSchedule(t, st, base.Add(time.Minute))
	loop.now = func() time.Time { return base.Add(59 * time.Second) }

	loop.runOnce(context.Background())
	loop.wg.Wait()

	assert.Zero(t, exec.count())
}

func TestRunOnceDrainsAllDueSchedules(t *testing.T) {
	st := newLoopTestStore(t)
	exec := &recordingExecutor{}
	loop := New(st, exec, time.Second, 8, zap.NewNop())

	base := time.Now()
	for i := 0; i < 3; i++ {
		dueSchedule(t, st, base.Add(-time.Duration(i+1)*time.Minute))
	}

	loop.runOnce(context.Background())
	loop.wg.Wait()

	assert.Equal(t, 3, exec.count())
}

func TestRunOnceDoesNotDoubleClaim(t *testing.T) {
	st := newLoopTestStore(t)
	exec := &recordingExecutor{}
	loop := New(st, exec, time.Second, 2, zap.NewNop())

	dueSchedule(t, st, time.Now().Add(-time.Minute))

	loop.runOnce(context.Background())
	loop.runOnce(context.Background())
	loop.wg.Wait()

	assert.Equal(t, 1, exec.count(), "a claimed schedule is invisible to later ticks")
}

func TestWorkerPoolBoundsInFlight(t *testing.T) {
	st := newLoopTestStore(t)
	exec := &recordingExecutor{block: make(chan struct{})}
	loop := New(st, exec, time.Second, 2, zap.NewNop())

	base := time.Now()
	for i := 0; i < 4; i++ {
		dueSchedule(t, st, base.Add(-time.Minute))
	}

	// Pool of 2: the first pass claims at most 2 with both workers blocked.
	loop.runOnce(context.Background())
	assert.Zero(t, exec.count())

	close(exec.block)
	loop.wg.Wait()
	assert.Equal(t, 2, exec.count())

	loop.runOnce(context.Background())
	loop.wg.Wait()
	assert.Equal(t, 4, exec.count())
}

func TestStartStopIdempotent(t *testing.T) {
	st := newLoopTestStore(t)
	exec := &recordingExecutor{}
	loop := New(st, exec, 50*time.Millisecond, 2, zap.NewNop())

	ctx := context.Background()
	loop.Start(ctx)
	loop.Start(ctx)
	loop.Stop()
	loop.Stop()
}

func TestLoopExecutesThroughTicks(t *testing.T) {
	st := newLoopTestStore(t)
	exec := &recordingExecutor{}
	loop := New(st, exec, 20*time.Millisecond, 2, zap.NewNop())

	dueSchedule(t, st, time.Now().Add(-time.Second))

	loop.Start(context.Background())
	defer loop.Stop()

	require.Eventually(t, func() bool { return exec.count() == 1 },
		2*time.Second, 10*time.Millisecond)
}
