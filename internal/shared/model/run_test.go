// Package model 定义核心数据模型的测试
package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRun() *Run {
	now := time.Now()
	return &Run{
		ID: "run-001",
		Args: RunArgs{
			TC:          "10+0.1",
			NewTag:      "patch",
			BaseTag:     "master",
			TargetGames: 1000,
			Owner:       "alice",
			SPRT:        &SPRTParams{Elo0: 0, Elo1: 2, Alpha: 0.05, Beta: 0.05},
		},
		Tasks: []Task{
			{Index: 0, Worker: "w1", NumGames: 400, Stats: Stats{Wins: 10, Losses: 5, Draws: 85}, Active: true, Pending: true},
			{Index: 1, Worker: "w2", NumGames: 400, Stats: Stats{Wins: 3, Losses: 4, Draws: 13, Crashes: 1}, Pending: true},
		},
		Results:     Stats{Wins: 13, Losses: 9, Draws: 98, Crashes: 1},
		Status:      StatusSet{RunStatusActive},
		CreatedAt:   now,
		LastUpdated: now,
	}
}

func TestStatusSet(t *testing.T) {
	s := StatusSet{RunStatusPending}

	s = s.With(RunStatusActive).With(RunStatusActive)
	assert.Equal(t, StatusSet{RunStatusPending, RunStatusActive}, s)
	assert.True(t, s.Has(RunStatusActive))

	s = s.Without(RunStatusPending)
	assert.Equal(t, StatusSet{RunStatusActive}, s)
	assert.False(t, s.Has(RunStatusPending))
}

func TestStatusSet_WithDoesNotAlias(t *testing.T) {
	base := make(StatusSet, 1, 4)
	base[0] = RunStatusPending

	a := base.With(RunStatusActive)
	b := base.With(RunStatusFinished)

	assert.Equal(t, StatusSet{RunStatusPending, RunStatusActive}, a)
	assert.Equal(t, StatusSet{RunStatusPending, RunStatusFinished}, b)
}

func TestRun_Capacity(t *testing.T) {
	run := validRun()

	assert.Equal(t, 800, run.AllocatedGames())
	assert.Equal(t, 200, run.RemainingCapacity())
	assert.Equal(t, 0, run.ActiveTaskFor("w1"))
	assert.Equal(t, -1, run.ActiveTaskFor("w2"))
	assert.False(t, run.IsFinished())

	run.Status = run.Status.With(RunStatusDeleted)
	assert.True(t, run.IsFinished())
}

func TestRun_Clone(t *testing.T) {
	run := validRun()
	run.SPRT = &SPRTState{LLR: 1.5}

	c := run.Clone()
	c.Tasks[0].Stats.Wins = 99
	c.Args.SPRT.Elo1 = 10
	c.SPRT.LLR = -3
	c.Status[0] = RunStatusFinished

	assert.Equal(t, 10, run.Tasks[0].Stats.Wins)
	assert.Equal(t, 2.0, run.Args.SPRT.Elo1)
	assert.Equal(t, 1.5, run.SPRT.LLR)
	assert.Equal(t, RunStatusActive, run.Status[0])
}

func TestValidateRun(t *testing.T) {
	require.NoError(t, ValidateRun(validRun()))

	tests := []struct {
		name   string
		mutate func(r *Run)
	}{
		{"缺少 ID", func(r *Run) { r.ID = "" }},
		{"目标局数非正", func(r *Run) { r.Args.TargetGames = 0 }},
		{"时间控制非法", func(r *Run) { r.Args.TC = "fast" }},
		{"SPRT alpha 越界", func(r *Run) { r.Args.SPRT.Alpha = 1 }},
		{"SPRT elo1 不大于 elo0", func(r *Run) { r.Args.SPRT.Elo1 = r.Args.SPRT.Elo0 }},
		{"未知状态", func(r *Run) { r.Status = StatusSet{"running"} }},
		{"Task 下标不连续", func(r *Run) { r.Tasks[1].Index = 5 }},
		{"Task 无 Worker", func(r *Run) { r.Tasks[0].Worker = "" }},
		{"负数统计", func(r *Run) { r.Tasks[0].Stats.Draws = -1; r.Results.Draws -= 86 }},
		{"超额分配", func(r *Run) { r.Tasks[1].NumGames = 700 }},
		{"结果与 Task 之和不一致", func(r *Run) { r.Results.Wins++ }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := validRun()
			tt.mutate(run)
			err := ValidateRun(run)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSchemaViolation), "error = %v", err)
		})
	}
}

func TestParseTimeControl(t *testing.T) {
	tests := []struct {
		tc      string
		want    TimeControl
		wantErr bool
	}{
		{tc: "10+0.1", want: TimeControl{Base: 10, Increment: 0.1}},
		{tc: "60", want: TimeControl{Base: 60}},
		{tc: "40/20+0.05", want: TimeControl{Moves: 40, Base: 20, Increment: 0.05}},
		{tc: "", wantErr: true},
		{tc: "x+1", wantErr: true},
		{tc: "10+y", wantErr: true},
		{tc: "0/10", wantErr: true},
		{tc: "0+0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.tc, func(t *testing.T) {
			got, err := ParseTimeControl(tt.tc)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeControl_EstimatedGameSeconds(t *testing.T) {
	tc, err := ParseTimeControl("10+0.1")
	require.NoError(t, err)
	assert.InDelta(t, 16.8, tc.EstimatedGameSeconds(), 1e-9)

	tc, err = ParseTimeControl("34/10")
	require.NoError(t, err)
	assert.InDelta(t, 20.0, tc.EstimatedGameSeconds(), 1e-9)
}
