package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"match-admin/internal/apiserver/writebuffer"
	"match-admin/internal/shared/actionlog"
	"match-admin/internal/shared/archive"
	"match-admin/internal/shared/model"
	"match-admin/internal/shared/registry"
	"match-admin/internal/shared/storage/memstore"
	"match-admin/pkg/logging"
)

// testClock 可手动推进的时钟
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	sched    *Scheduler
	buffer   *writebuffer.Buffer
	store    *memstore.Store
	registry *registry.Static
	archive  *archive.Memory
	clock    *testClock
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(cfg)
	}

	store := memstore.NewStore()
	buffer := writebuffer.New(store, nil, logging.Discard(), nil)
	reg := registry.NewStatic()
	sink := archive.NewMemory()
	recorder := actionlog.NewStoreRecorder(store, logging.Discard())

	sched, err := NewScheduler(buffer, reg, recorder, sink, cfg)
	require.NoError(t, err)
	clock := newTestClock()
	sched.SetClock(clock.Now)
	sched.SetLogger(logging.Discard())

	return &harness{sched: sched, buffer: buffer, store: store, registry: reg, archive: sink, clock: clock}
}

func fixedArgs(target int) model.RunArgs {
	return model.RunArgs{TC: "10+0.1", NewTag: "patch", BaseTag: "master", TargetGames: target}
}

func sprtArgs(target int, elo0, elo1 float64) model.RunArgs {
	args := fixedArgs(target)
	args.SPRT = &model.SPRTParams{Elo0: elo0, Elo1: elo1, Alpha: 0.05, Beta: 0.05}
	return args
}

func (h *harness) newRun(t *testing.T, args model.RunArgs) *model.Run {
	t.Helper()
	run, err := h.sched.NewRun(context.Background(), "admin", args)
	require.NoError(t, err)
	return run
}

func (h *harness) request(t *testing.T, worker string, concurrency int) *Assignment {
	t.Helper()
	a, err := h.sched.RequestTask(context.Background(), worker, Capabilities{Concurrency: concurrency})
	require.NoError(t, err)
	return a
}

func (h *harness) update(t *testing.T, runID string, idx int, st model.Stats) bool {
	t.Helper()
	res, err := h.sched.UpdateTask(context.Background(), UpdateRequest{RunID: runID, TaskIndex: idx, Stats: st})
	require.NoError(t, err)
	return res.TaskAlive
}

func (h *harness) run(t *testing.T, id string) *model.Run {
	t.Helper()
	run, err := h.sched.GetRun(context.Background(), id)
	require.NoError(t, err)
	return run
}

func draws(n int) model.Stats { return model.Stats{Draws: n} }
