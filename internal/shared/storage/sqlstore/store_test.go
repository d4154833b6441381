// Package sqlstore SQLite 集成测试
//
// 使用 SQLite 内存数据库验证 sqlstore 的存储接口。
// 无需外部数据库依赖，可在任何环境下运行。
package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"match-admin/internal/shared/model"
	"match-admin/internal/shared/storage"
	"match-admin/internal/shared/storage/dbutil"
	sqlitedriver "match-admin/internal/shared/storage/driver/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore 创建用于测试的 SQLite 内存数据库 Store
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(dbutil.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testRun(id, owner string, created time.Time) *model.Run {
	created = created.UTC().Truncate(time.Millisecond)
	return &model.Run{
		ID: id,
		Args: model.RunArgs{
			TC: "60+0.6", NewTag: "dev", BaseTag: "master", TargetGames: 400, Owner: owner,
			SPRT: &model.SPRTParams{Elo0: 0, Elo1: 2, Alpha: 0.05, Beta: 0.05},
		},
		Tasks:       []model.Task{},
		Status:      model.StatusSet{model.RunStatusPending},
		CreatedAt:   created,
		LastUpdated: created,
	}
}

func TestRebind(t *testing.T) {
	d := sqlitedriver.NewDialect()
	assert.Equal(t, dbutil.DriverSQLite, d.DriverType())
	assert.Equal(t, "SELECT doc FROM runs WHERE id = ? AND owner = ?",
		d.Rebind("SELECT doc FROM runs WHERE id = $1 AND owner = $2"))
	// 应去除 PG 类型转换
	assert.Equal(t, "UPDATE runs SET owner = ? WHERE id = ?",
		d.Rebind("UPDATE runs SET owner = $1::varchar WHERE id = $2"))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "")
	assert.Error(t, err)
}

func TestRunRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := testRun("run-1", "alice", time.Now())

	require.NoError(t, s.InsertRun(ctx, run))
	assert.ErrorIs(t, s.InsertRun(ctx, run), storage.ErrDuplicate)

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run, got)

	now := time.Now().UTC().Truncate(time.Millisecond)
	got.Tasks = append(got.Tasks, model.Task{
		Index: 0, Worker: "w1", NumGames: 100, Active: true, Pending: true,
		Stats:     model.Stats{Wins: 3, Losses: 1, Draws: 6},
		CreatedAt: now, LastUpdated: now,
	})
	got.Results = model.Stats{Wins: 3, Losses: 1, Draws: 6}
	got.Status = model.StatusSet{model.RunStatusActive}
	require.NoError(t, s.ReplaceRun(ctx, got))

	again, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, got, again)

	_, err = s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.ReplaceRun(ctx, testRun("missing", "bob", time.Now())), storage.ErrNotFound)
}

func TestSchemaViolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := testRun("bad", "alice", time.Now())
	run.Args.TargetGames = -1
	err := s.InsertRun(ctx, run)
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrSchemaViolation))

	// 直接写入损坏文档，读取时应快速失败
	_, err = s.db.Exec(`INSERT INTO runs (id, owner, finished, created_at, doc) VALUES ('corrupt', '', 0, 0, '{"id":"corrupt"}')`)
	require.NoError(t, err)
	_, err = s.GetRun(ctx, "corrupt")
	assert.True(t, errors.Is(err, storage.ErrSchemaViolation))
}

func TestFindRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now()

	done := testRun("c", "alice", base.Add(2*time.Second))
	done.Status = done.Status.With(model.RunStatusFinished)
	for _, r := range []*model.Run{testRun("b", "bob", base.Add(time.Second)), testRun("a", "alice", base), done} {
		require.NoError(t, s.InsertRun(ctx, r))
	}

	tests := []struct {
		name   string
		filter storage.RunFilter
		want   []string
	}{
		{"未结束", storage.RunFilter{}, []string{"a", "b"}},
		{"全部", storage.RunFilter{IncludeFinished: true}, []string{"a", "b", "c"}},
		{"owner", storage.RunFilter{IncludeFinished: true, Owner: "alice"}, []string{"a", "c"}},
		{"limit", storage.RunFilter{IncludeFinished: true, Limit: 2}, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := s.FindRuns(ctx, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, r := range runs {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	// 结束后 finished 列随 ReplaceRun 更新
	b, err := s.GetRun(ctx, "b")
	require.NoError(t, err)
	b.Status = b.Status.With(model.RunStatusFinished).With(model.RunStatusDeleted)
	require.NoError(t, s.ReplaceRun(ctx, b))
	open, err := s.FindRuns(ctx, storage.RunFilter{})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "a", open[0].ID)
}

func TestActions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i, kind := range []model.ActionKind{model.ActionNewRun, model.ActionApproveRun, model.ActionStopRun} {
		require.NoError(t, s.InsertAction(ctx, &model.Action{
			ID: string(kind), Kind: kind, Actor: "admin", RunID: "r1",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, s.InsertAction(ctx, &model.Action{ID: "other", Kind: model.ActionNewRun, RunID: "r2", CreatedAt: base}))
	assert.ErrorIs(t, s.InsertAction(ctx, &model.Action{ID: "other", RunID: "r2", CreatedAt: base}), storage.ErrDuplicate)

	r1, err := s.ListActions(ctx, "r1", 2)
	require.NoError(t, err)
	require.Len(t, r1, 2)
	assert.Equal(t, model.ActionStopRun, r1[0].Kind)
	assert.Equal(t, model.ActionApproveRun, r1[1].Kind)

	all, err := s.ListActions(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
