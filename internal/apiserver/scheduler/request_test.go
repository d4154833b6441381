package scheduler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"match-admin/internal/shared/model"
)

func TestRequestTask_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.sched.RequestTask(ctx, "", Capabilities{Concurrency: 1})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = h.sched.RequestTask(ctx, "w1", Capabilities{Concurrency: -1})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRequestTask_BlockedWorker(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	run := h.newRun(t, fixedArgs(1000))
	require.NoError(t, h.registry.Block(ctx, "mallory"))

	_, err := h.sched.RequestTask(ctx, "mallory", Capabilities{Concurrency: 4})
	assert.ErrorIs(t, err, ErrWorkerBlocked)
	assert.Empty(t, h.run(t, run.ID).Tasks, "a blocked worker never touches run state")

	require.NoError(t, h.registry.Unblock(ctx, "mallory"))
	a := h.request(t, "mallory", 4)
	assert.False(t, a.NoWork)
}

func TestRequestTask_NoRuns(t *testing.T) {
	h := newHarness(t)
	a := h.request(t, "w1", 4)
	assert.True(t, a.NoWork)
}

func TestRequestTask_CreatesTask(t *testing.T) {
	h := newHarness(t)
	run := h.newRun(t, sprtArgs(100000, 0, 2))

	a := h.request(t, "w1", 4)
	require.False(t, a.NoWork)
	assert.Equal(t, run.ID, a.RunID)
	assert.Equal(t, 0, a.TaskIndex)
	assert.Equal(t, 1000, a.NumGames)
	require.NotNil(t, a.Args)
	assert.Equal(t, "10+0.1", a.Args.TC)
	assert.NotNil(t, a.Args.SPRT)

	got := h.run(t, run.ID)
	require.Len(t, got.Tasks, 1)
	task := got.Tasks[0]
	assert.Equal(t, "w1", task.Worker)
	assert.True(t, task.Active)
	assert.True(t, task.Pending)
	assert.Equal(t, 4, task.Concurrency)
	assert.Equal(t, h.clock.Now(), task.LastUpdated)
	assert.True(t, got.Status.Has(model.RunStatusActive))
	assert.False(t, got.Status.Has(model.RunStatusPending))
}

func TestRequestTask_OneActiveTaskPerWorkerAndRun(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxTasksPerWorker = 3 })
	run := h.newRun(t, fixedArgs(100000))

	first := h.request(t, "w1", 1)
	require.False(t, first.NoWork)

	second := h.request(t, "w1", 1)
	assert.True(t, second.NoWork, "the only run already has an active task for w1")
	assert.Len(t, h.run(t, run.ID).Tasks, 1)

	other := h.newRun(t, fixedArgs(100000))
	third := h.request(t, "w1", 1)
	require.False(t, third.NoWork)
	assert.Equal(t, other.ID, third.RunID)
}

func TestRequestTask_MaxTasksPerWorker(t *testing.T) {
	h := newHarness(t)
	h.newRun(t, fixedArgs(100000))
	h.newRun(t, fixedArgs(100000))

	require.False(t, h.request(t, "w1", 1).NoWork)
	assert.True(t, h.request(t, "w1", 1).NoWork, "default limit is one active task")

	a, err := h.sched.RequestTask(context.Background(), "w1", Capabilities{Concurrency: 1, MaxTasks: 2})
	require.NoError(t, err)
	assert.False(t, a.NoWork)
}

func TestRequestTask_RequireApproval(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.RequireApproval = true })
	run := h.newRun(t, fixedArgs(1000))

	assert.True(t, h.request(t, "w1", 1).NoWork)

	_, err := h.sched.ApproveRun(context.Background(), "admin", run.ID)
	require.NoError(t, err)
	assert.False(t, h.request(t, "w1", 1).NoWork)
}

func TestRequestTask_PrefersHigherPriority(t *testing.T) {
	h := newHarness(t)
	h.newRun(t, fixedArgs(100000))
	urgent := fixedArgs(100000)
	urgent.Priority = 1
	want := h.newRun(t, urgent)

	a := h.request(t, "w1", 1)
	assert.Equal(t, want.ID, a.RunID)
}

func TestRequestTask_ReactivatesPausedTask(t *testing.T) {
	h := newHarness(t)
	run := h.newRun(t, fixedArgs(100000))

	a := h.request(t, "w1", 2)
	require.True(t, h.update(t, run.ID, a.TaskIndex, model.Stats{Wins: 10, Losses: 8, Draws: 30}))

	h.clock.Advance(time.Hour)
	n, err := h.sched.ScavengeStaleTasks(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	again := h.request(t, "w1", 2)
	require.False(t, again.NoWork)
	assert.True(t, again.Resumed)
	assert.Equal(t, a.TaskIndex, again.TaskIndex)
	assert.Equal(t, a.NumGames, again.NumGames)
	assert.Equal(t, 48, again.Played)

	got := h.run(t, run.ID)
	require.Len(t, got.Tasks, 1, "continuity: no new task while a paused one can resume")
	assert.True(t, got.Tasks[0].Active)
	assert.Equal(t, h.clock.Now(), got.Tasks[0].LastUpdated)
}

func TestRequestTask_ReleasesPausedRemainders(t *testing.T) {
	h := newHarness(t)
	run := h.newRun(t, fixedArgs(500))

	a := h.request(t, "alice", 1)
	b := h.request(t, "bob", 1)
	require.Equal(t, 250, a.NumGames)
	require.Equal(t, 250, b.NumGames)
	assert.True(t, h.request(t, "carol", 1).NoWork, "target fully allocated")

	h.update(t, run.ID, a.TaskIndex, draws(100))
	h.clock.Advance(time.Hour)
	h.update(t, run.ID, b.TaskIndex, draws(10))
	n, err := h.sched.ScavengeStaleTasks(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, n, "only alice went quiet")

	c := h.request(t, "carol", 1)
	require.False(t, c.NoWork)
	assert.Equal(t, 2, c.TaskIndex)
	assert.Equal(t, 150, c.NumGames)

	got := h.run(t, run.ID)
	assert.Equal(t, 100, got.Tasks[0].NumGames, "alice's unplayed games were released")
	assert.False(t, got.Tasks[0].Pending)
	assert.Equal(t, draws(100), got.Tasks[0].Stats)
	assert.Equal(t, 500, got.AllocatedGames())
}

func TestRequestTask_ConcurrentWorkersGetDistinctIndices(t *testing.T) {
	h := newHarness(t)
	run := h.newRun(t, fixedArgs(1_000_000))

	const workers = 32
	results := make([]*Assignment, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			a, err := h.sched.RequestTask(context.Background(), fmt.Sprintf("w%02d", i), Capabilities{Concurrency: 1})
			assert.NoError(t, err)
			results[i] = a
		}(i)
	}
	close(start)
	wg.Wait()

	seen := map[int]string{}
	for i, a := range results {
		require.NotNil(t, a)
		require.False(t, a.NoWork)
		prev, dup := seen[a.TaskIndex]
		assert.False(t, dup, "task %d assigned to both %s and w%02d", a.TaskIndex, prev, i)
		seen[a.TaskIndex] = fmt.Sprintf("w%02d", i)
	}

	got := h.run(t, run.ID)
	require.Len(t, got.Tasks, workers)
	for i, task := range got.Tasks {
		assert.Equal(t, i, task.Index)
		assert.Equal(t, seen[i], task.Worker)
	}
}

// 随机交错的请求、更新和回收，任何时刻已分配局数都不超过目标
func TestRequestTask_AllocationBoundRandomized(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			h := newHarness(t, func(c *Config) { c.MaxChunk = 300 })
			rng := rand.New(rand.NewPCG(seed, 99))
			target := 1000 + rng.IntN(3000)
			run := h.newRun(t, fixedArgs(target))
			ctx := context.Background()

			for step := 0; step < 400; step++ {
				worker := fmt.Sprintf("w%d", rng.IntN(12))
				switch rng.IntN(3) {
				case 0:
					_, err := h.sched.RequestTask(ctx, worker, Capabilities{Concurrency: 1 + rng.IntN(4)})
					require.NoError(t, err)
				case 1:
					snap := h.run(t, run.ID)
					if idx := snap.ActiveTaskFor(worker); idx >= 0 {
						delta := model.Stats{Wins: rng.IntN(20), Losses: rng.IntN(20), Draws: rng.IntN(40)}
						_, err := h.sched.UpdateTask(ctx, UpdateRequest{RunID: run.ID, TaskIndex: idx, Worker: worker, Stats: delta})
						require.NoError(t, err)
					}
				case 2:
					h.clock.Advance(time.Duration(rng.IntN(20)) * time.Minute)
					_, err := h.sched.ScavengeStaleTasks(ctx, 30*time.Minute)
					require.NoError(t, err)
				}

				snap := h.run(t, run.ID)
				require.LessOrEqual(t, snap.AllocatedGames(), snap.Args.TargetGames)
				require.NoError(t, model.ValidateRun(snap))
				active := map[string]int{}
				for _, task := range snap.Tasks {
					if task.Active {
						active[task.Worker]++
						require.Equal(t, 1, active[task.Worker], "worker %s holds two active tasks", task.Worker)
					}
				}
			}
		})
	}
}
