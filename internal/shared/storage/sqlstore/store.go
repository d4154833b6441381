// Package sqlstore 数据库无关的 Run 文档存储
//
// 通过 dbutil.Dialect 接口屏蔽不同数据库的 SQL 差异，
// 所有 SQL 以 PostgreSQL 风格编写，运行时由 Dialect.Rebind() 转换。
//
// Run 以 JSON 文档整体写入 doc 列，owner/finished/created_at 冗余存储用于过滤和排序，
// 单行 UPDATE 即满足单文档原子性。
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"match-admin/internal/shared/model"
	"match-admin/internal/shared/storage"
	"match-admin/internal/shared/storage/dbutil"
	pgdriver "match-admin/internal/shared/storage/driver/postgres"
	sqlitedriver "match-admin/internal/shared/storage/driver/sqlite"
)

// Store 通用存储实现
type Store struct {
	db      *sql.DB
	dialect dbutil.Dialect
}

// NewStore 创建通用存储
func NewStore(db *sql.DB, dialect dbutil.Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Open 按驱动类型打开数据库并完成建表
func Open(driver dbutil.DriverType, dsn string) (*Store, error) {
	var (
		db      *sql.DB
		dialect dbutil.Dialect
		err     error
	)
	switch driver {
	case dbutil.DriverPostgres:
		db, err = pgdriver.Open(dsn)
		dialect = pgdriver.NewDialect()
	case dbutil.DriverSQLite:
		db, err = sqlitedriver.Open(dsn)
		dialect = sqlitedriver.NewDialect()
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := dialect.AutoMigrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: migrate failed: %w", err)
	}
	return NewStore(db, dialect), nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind 快捷方法：将 PG 风格 SQL 转换为当前方言
func (s *Store) rebind(query string) string {
	return s.dialect.Rebind(query)
}

func (s *Store) GetRun(ctx context.Context, id string) (*model.Run, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT doc FROM runs WHERE id = $1`), id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRun(doc)
}

func (s *Store) FindRuns(ctx context.Context, filter storage.RunFilter) ([]*model.Run, error) {
	query := `SELECT doc FROM runs WHERE 1 = 1`
	var args []any
	if !filter.IncludeFinished {
		args = append(args, false)
		query += fmt.Sprintf(" AND finished = $%d", len(args))
	}
	if filter.Owner != "" {
		args = append(args, filter.Owner)
		query += fmt.Sprintf(" AND owner = $%d", len(args))
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*model.Run{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		run, err := decodeRun(doc)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *Store) ReplaceRun(ctx context.Context, run *model.Run) error {
	doc, err := encodeRun(run)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE runs SET owner = $2, finished = $3, doc = $4 WHERE id = $1`),
		run.ID, run.Args.Owner, run.IsFinished(), doc)
	if err != nil {
		return err
	}
	return requireAffected(res, storage.ErrNotFound)
}

func (s *Store) InsertRun(ctx context.Context, run *model.Run) error {
	doc, err := encodeRun(run)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO runs (id, owner, finished, created_at, doc) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING`),
		run.ID, run.Args.Owner, run.IsFinished(), run.CreatedAt.UnixMilli(), doc)
	if err != nil {
		return err
	}
	return requireAffected(res, storage.ErrDuplicate)
}

func (s *Store) InsertAction(ctx context.Context, action *model.Action) error {
	doc, err := json.Marshal(action)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO actions (id, run_id, created_at, doc) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING`),
		action.ID, action.RunID, action.CreatedAt.UnixMilli(), string(doc))
	if err != nil {
		return err
	}
	return requireAffected(res, storage.ErrDuplicate)
}

// ListActions 按时间倒序返回，runID 为空表示全部
func (s *Store) ListActions(ctx context.Context, runID string, limit int) ([]*model.Action, error) {
	query := `SELECT doc FROM actions`
	var args []any
	if runID != "" {
		args = append(args, runID)
		query += " WHERE run_id = $1"
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	actions := []*model.Action{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var a model.Action
		if err := json.Unmarshal(doc, &a); err != nil {
			return nil, fmt.Errorf("decode action: %w", err)
		}
		actions = append(actions, &a)
	}
	return actions, rows.Err()
}

func encodeRun(run *model.Run) (string, error) {
	if err := storage.CheckRun(run); err != nil {
		return "", err
	}
	c := run.Clone()
	storage.NormalizeTimes(c)
	doc, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode run %s: %w", run.ID, err)
	}
	return string(doc), nil
}

func decodeRun(doc []byte) (*model.Run, error) {
	var run model.Run
	if err := json.Unmarshal(doc, &run); err != nil {
		return nil, fmt.Errorf("%w: decode run: %v", storage.ErrSchemaViolation, err)
	}
	if err := storage.CheckRun(&run); err != nil {
		return nil, err
	}
	return &run, nil
}

func requireAffected(res sql.Result, otherwise error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return otherwise
	}
	return nil
}

var _ storage.PersistentStore = (*Store)(nil)
