package scheduler

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"match-admin/internal/shared/model"
)

// 和棋占绝大多数的结果应在约 2000 局内接受 H0
func TestUpdateTask_DrawHeavyRunAcceptsNull(t *testing.T) {
	h := newHarness(t)
	args := sprtArgs(100000, 0, 1)
	args.TC = "10+0.01"
	run := h.newRun(t, args)

	a := h.request(t, "w1", 8)
	require.Equal(t, 0, a.TaskIndex)
	require.Greater(t, a.NumGames, 2000-1)

	res, err := h.sched.UpdateTask(context.Background(), UpdateRequest{
		RunID: run.ID, TaskIndex: 0, NPS: 1000000,
		Stats: model.Stats{Wins: 1, Losses: 1, Draws: 997},
	})
	require.NoError(t, err)
	assert.True(t, res.TaskAlive)

	got := h.run(t, run.ID)
	require.NotNil(t, got.SPRT)
	assert.InDelta(t, -2.067, got.SPRT.LLR, 0.01)
	assert.False(t, got.SPRT.Finished)
	assert.Equal(t, 1000000.0, got.Tasks[0].NPS)

	res, err = h.sched.UpdateTask(context.Background(), UpdateRequest{
		RunID: run.ID, TaskIndex: 0, NPS: 1000000,
		Stats: model.Stats{Wins: 1, Losses: 1, Draws: 998},
	})
	require.NoError(t, err)
	assert.False(t, res.TaskAlive)

	got = h.run(t, run.ID)
	assert.Equal(t, model.Stats{Wins: 2, Losses: 2, Draws: 1995}, got.Results)
	assert.True(t, got.SPRT.Finished)
	assert.Equal(t, model.HypothesisH0, got.SPRT.Accepted)
	assert.Less(t, got.SPRT.LLR, got.SPRT.Lower)
	assert.True(t, got.IsFinished())
	assert.False(t, got.Tasks[0].Active)
	assert.False(t, got.Tasks[0].Pending)
}

func TestUpdateTask_StrongPatchAcceptsH1(t *testing.T) {
	h := newHarness(t)
	run := h.newRun(t, sprtArgs(100000, 0, 5))
	a := h.request(t, "w1", 8)

	alive := true
	for i := 0; i < 50 && alive; i++ {
		alive = h.update(t, run.ID, a.TaskIndex, model.Stats{Wins: 14, Losses: 6, Draws: 20})
	}
	assert.False(t, alive)

	got := h.run(t, run.ID)
	assert.Equal(t, model.HypothesisH1, got.SPRT.Accepted)
	assert.True(t, got.IsFinished())
	require.NotNil(t, got.Elo)
	assert.Greater(t, got.Elo.Elo, 0.0)
}

func TestUpdateTask_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	run := h.newRun(t, fixedArgs(1000))
	h.request(t, "w1", 1)

	tests := []struct {
		name string
		req  UpdateRequest
		want error
	}{
		{"未知 Run", UpdateRequest{RunID: "missing", TaskIndex: 0}, ErrNotFound},
		{"下标越界", UpdateRequest{RunID: run.ID, TaskIndex: 1}, ErrNotFound},
		{"负下标", UpdateRequest{RunID: run.ID, TaskIndex: -1}, ErrNotFound},
		{"负数统计", UpdateRequest{RunID: run.ID, TaskIndex: 0, Stats: model.Stats{Wins: -1}}, ErrInvalidRequest},
		{"负数 NPS", UpdateRequest{RunID: run.ID, TaskIndex: 0, NPS: -5}, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.sched.UpdateTask(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, model.Stats{}, h.run(t, run.ID).Results)
}

func TestUpdateTask_WrongWorkerIsStale(t *testing.T) {
	h := newHarness(t)
	run := h.newRun(t, fixedArgs(1000))
	a := h.request(t, "w1", 1)

	res, err := h.sched.UpdateTask(context.Background(), UpdateRequest{
		RunID: run.ID, TaskIndex: a.TaskIndex, Worker: "w2", Stats: draws(5),
	})
	require.NoError(t, err)
	assert.False(t, res.TaskAlive)
	assert.Equal(t, model.Stats{}, h.run(t, run.ID).Results)
	assert.True(t, h.run(t, run.ID).Tasks[0].Active, "a foreign update does not cancel the owner")
}

func TestUpdateTask_ChunkCompleted(t *testing.T) {
	h := newHarness(t)
	run := h.newRun(t, fixedArgs(1000))
	a := h.request(t, "w1", 1)
	require.Equal(t, 250, a.NumGames)

	assert.True(t, h.update(t, run.ID, 0, model.Stats{Wins: 100, Losses: 90, Draws: 50}))
	assert.False(t, h.update(t, run.ID, 0, model.Stats{Wins: 4, Losses: 4, Draws: 2}))

	got := h.run(t, run.ID)
	assert.False(t, got.IsFinished())
	assert.False(t, got.Tasks[0].Active)
	assert.False(t, got.Tasks[0].Pending)
	assert.Equal(t, 250, got.Results.Games())

	next := h.request(t, "w1", 1)
	require.False(t, next.NoWork)
	assert.Equal(t, 1, next.TaskIndex, "a completed chunk is never resumed")
}

// 上报局数超过 Task 分配时整个增量被拒绝，Task 归档
func TestUpdateTask_RejectsOversizedDelta(t *testing.T) {
	tests := []struct {
		name  string
		delta model.Stats
	}{
		{"超过剩余局数", model.Stats{Wins: 100, Losses: 100, Draws: 51}},
		{"巨大胜局数", model.Stats{Wins: 5_000_000}},
		{"求和会溢出", model.Stats{Wins: math.MaxInt, Losses: math.MaxInt, Draws: 2}},
		{"附加计数超限", model.Stats{Draws: 1, Crashes: 251}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			run := h.newRun(t, sprtArgs(100000, 0, 5))
			a := h.request(t, "w1", 1)
			require.Equal(t, 250, a.NumGames)

			res, err := h.sched.UpdateTask(ctx, UpdateRequest{
				RunID: run.ID, TaskIndex: a.TaskIndex, Worker: "w1", Stats: tt.delta, PGN: "1. e4 1-0",
			})
			require.NoError(t, err)
			assert.False(t, res.TaskAlive)

			got := h.run(t, run.ID)
			assert.Equal(t, model.Stats{}, got.Results)
			assert.False(t, got.IsFinished(), "an oversized report never decides the run")
			assert.False(t, got.Tasks[0].Active)
			assert.False(t, got.Tasks[0].Pending)
			require.NoError(t, model.ValidateRun(got))
			assert.Zero(t, h.archive.Count())

			require.NoError(t, h.buffer.Close(ctx))
			_, err = h.store.GetRun(ctx, run.ID)
			assert.NoError(t, err, "the run still flushes")
		})
	}
}

func TestUpdateTask_DeltaUpToRemainingAccepted(t *testing.T) {
	h := newHarness(t)
	run := h.newRun(t, fixedArgs(1000))
	a := h.request(t, "w1", 1)
	require.Equal(t, 250, a.NumGames)

	assert.True(t, h.update(t, run.ID, 0, draws(200)))
	assert.False(t, h.update(t, run.ID, 0, draws(51)), "one game over the remaining 50")
	assert.Equal(t, draws(200), h.run(t, run.ID).Results)

	next := h.request(t, "w1", 1)
	require.False(t, next.NoWork)
	assert.Equal(t, 1, next.TaskIndex, "a rejected task is never resumed")
}

func TestUpdateTask_FixedGamesRunFinishes(t *testing.T) {
	h := newHarness(t)
	run := h.newRun(t, fixedArgs(10))
	a := h.request(t, "w1", 4)
	require.Equal(t, 10, a.NumGames)

	assert.False(t, h.update(t, run.ID, 0, model.Stats{Wins: 3, Losses: 3, Draws: 4}))
	got := h.run(t, run.ID)
	assert.True(t, got.IsFinished())
	assert.Nil(t, got.SPRT)
	assert.True(t, h.request(t, "w2", 4).NoWork)
}

func TestUpdateTask_StaleTaskNeverResurrected(t *testing.T) {
	h := newHarness(t)
	run := h.newRun(t, fixedArgs(100000))
	h.request(t, "w1", 1)
	h.update(t, run.ID, 0, draws(10))

	h.clock.Advance(DefaultConfig().StaleTimeout * 2)
	_, err := h.sched.ScavengeStaleTasks(context.Background(), DefaultConfig().StaleTimeout)
	require.NoError(t, err)

	assert.False(t, h.update(t, run.ID, 0, draws(10)))
	got := h.run(t, run.ID)
	assert.False(t, got.Tasks[0].Active)
	assert.True(t, got.Tasks[0].Pending)
	assert.Equal(t, draws(10), got.Results, "updates to a reclaimed task are not merged")
}

func TestUpdateTask_TerminationIsIdempotent(t *testing.T) {
	for _, action := range []string{"stop", "delete"} {
		t.Run(action, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			run := h.newRun(t, fixedArgs(100000))
			h.request(t, "w1", 1)
			h.request(t, "w2", 1)
			h.update(t, run.ID, 0, draws(4))

			for i := 0; i < 2; i++ {
				var err error
				if action == "stop" {
					_, err = h.sched.StopRun(ctx, "admin", run.ID)
				} else {
					_, err = h.sched.DeleteRun(ctx, "admin", run.ID)
				}
				require.NoError(t, err)
			}

			for i := 0; i < 3; i++ {
				for _, idx := range []int{1, 0} {
					assert.False(t, h.update(t, run.ID, idx, draws(2)))
				}
			}
			got := h.run(t, run.ID)
			assert.Equal(t, draws(4), got.Results)
			for _, task := range got.Tasks {
				assert.False(t, task.Active)
				assert.False(t, task.Pending)
			}
			assert.True(t, h.request(t, "w3", 1).NoWork)
		})
	}
}

func TestUpdateTask_ForwardsPGN(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	run := h.newRun(t, fixedArgs(100000))
	h.request(t, "w1", 1)

	_, err := h.sched.UpdateTask(ctx, UpdateRequest{RunID: run.ID, TaskIndex: 0, Stats: draws(2), PGN: "[Event \"?\"]\n1. e4 e5 1/2-1/2"})
	require.NoError(t, err)
	assert.Equal(t, 1, h.archive.Count())

	_, err = h.sched.UpdateTask(ctx, UpdateRequest{RunID: run.ID, TaskIndex: 0, Worker: "intruder", PGN: "junk"})
	require.NoError(t, err)
	assert.Equal(t, 1, h.archive.Count(), "stale updates are not archived")
}

// 任意交错的并发更新后，results 等于所有增量之和
func TestUpdateTask_NoLostUpdatesUnderConcurrency(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	run := h.newRun(t, fixedArgs(10_000_000))

	const workers, rounds = 16, 40
	assignments := make([]*Assignment, workers)
	for i := range assignments {
		assignments[i] = h.request(t, fmt.Sprintf("w%d", i), 64)
		require.False(t, assignments[i].NoWork)
	}

	totals := make([]model.Stats, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(i), 7))
			for r := 0; r < rounds; r++ {
				delta := model.Stats{
					Wins: rng.IntN(3), Losses: rng.IntN(3), Draws: rng.IntN(5),
					Crashes: rng.IntN(2), TimeLosses: rng.IntN(2),
				}
				res, err := h.sched.UpdateTask(ctx, UpdateRequest{
					RunID: run.ID, TaskIndex: assignments[i].TaskIndex, Worker: fmt.Sprintf("w%d", i), Stats: delta,
				})
				if !assert.NoError(t, err) || !assert.True(t, res.TaskAlive) {
					return
				}
				totals[i] = totals[i].Add(delta)
			}
		}(i)
	}
	wg.Wait()

	var want model.Stats
	for i, st := range totals {
		want = want.Add(st)
		assert.Equal(t, st, h.run(t, run.ID).Tasks[assignments[i].TaskIndex].Stats)
	}
	got := h.run(t, run.ID)
	assert.Equal(t, want, got.Results)

	require.NoError(t, h.buffer.Close(ctx))
	stored, err := h.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, want, stored.Results)
}
