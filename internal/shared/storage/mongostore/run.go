package mongostore

import (
	"context"
	"fmt"

	"match-admin/internal/shared/model"
	"match-admin/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// RunStore
// ============================================================================

func (s *Store) InsertRun(ctx context.Context, run *model.Run) error {
	doc, err := prepare(run)
	if err != nil {
		return err
	}
	return insertOne(ctx, s.col(ColRuns), doc)
}

func (s *Store) GetRun(ctx context.Context, id string) (*model.Run, error) {
	run, err := findOne[model.Run](ctx, s.col(ColRuns), bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return nil, err
	}
	if err := storage.CheckRun(run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Store) FindRuns(ctx context.Context, filter storage.RunFilter) ([]*model.Run, error) {
	q := bson.D{}
	if !filter.IncludeFinished {
		q = append(q, bson.E{Key: "status", Value: bson.D{{Key: "$nin", Value: bson.A{
			model.RunStatusFinished, model.RunStatusDeleted,
		}}}})
	}
	if filter.Owner != "" {
		q = append(q, bson.E{Key: "args.owner", Value: filter.Owner})
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	runs, err := findMany[model.Run](ctx, s.col(ColRuns), q, opts)
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		if err := storage.CheckRun(run); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *Store) ReplaceRun(ctx context.Context, run *model.Run) error {
	doc, err := prepare(run)
	if err != nil {
		return err
	}
	return replaceByID(ctx, s.col(ColRuns), run.ID, doc)
}

// prepare 校验并生成待写入的副本
func prepare(run *model.Run) (*model.Run, error) {
	if err := storage.CheckRun(run); err != nil {
		return nil, err
	}
	doc := run.Clone()
	if doc.Tasks == nil {
		doc.Tasks = []model.Task{}
	}
	storage.NormalizeTimes(doc)
	return doc, nil
}

// ============================================================================
// ActionStore
// ============================================================================

func (s *Store) InsertAction(ctx context.Context, action *model.Action) error {
	if err := insertOne(ctx, s.col(ColActions), action); err != nil {
		return fmt.Errorf("insert action %s: %w", action.ID, err)
	}
	return nil
}

// ListActions 按时间倒序返回，runID 为空表示全部
func (s *Store) ListActions(ctx context.Context, runID string, limit int) ([]*model.Action, error) {
	filter := bson.D{}
	if runID != "" {
		filter = append(filter, bson.E{Key: "run_id", Value: runID})
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return findMany[model.Action](ctx, s.col(ColActions), filter, opts)
}
