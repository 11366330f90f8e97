package repository

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/tweetfeed/internal/failure"
	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/pagination"
)

type gormCollection[T model.Document] struct {
	db    *gorm.DB
	table string
}

// NewGormCollection 基于 gorm 的集合实现（postgres / sqlite）
func NewGormCollection[T model.Document](db *gorm.DB) Collection[T] {
	return &gormCollection[T]{db: db, table: tableName[T]()}
}

func (r *gormCollection[T]) span(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Gorm"+op, trace.WithAttributes(attribute.String("table", r.table)))
}

func (r *gormCollection[T]) Get(ctx context.Context, id string) (*T, error) {
	ctx, span := r.span(ctx, "Get")
	defer span.End()

	var doc T
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s %s: %w", r.table, id, failure.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *gormCollection[T]) MultiGet(ctx context.Context, ids []string) ([]*T, error) {
	ctx, span := r.span(ctx, "MultiGet")
	defer span.End()
	span.SetAttributes(attribute.Int("ids", len(ids)))

	if len(ids) == 0 {
		return []*T{}, nil
	}
	var rows []T
	if err := r.db.WithContext(ctx).Where("id IN ?", dedupe(ids)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return align(ids, rows), nil
}

func (r *gormCollection[T]) Exists(ctx context.Context, id string) (bool, error) {
	ctx, span := r.span(ctx, "Exists")
	defer span.End()

	var cnt int64
	if err := r.db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

// Query 使用 (timestamp, id) 键集分页，多取一条判断是否还有下一页
func (r *gormCollection[T]) Query(ctx context.Context, q Query) (pagination.Page[T], error) {
	ctx, span := r.span(ctx, "Query")
	defer span.End()

	limit := pagination.Clamp(q.Limit)
	tx := r.db.WithContext(ctx).Model(new(T))
	if q.Field != "" {
		tx = tx.Where(clause.Eq{Column: clause.Column{Name: q.Field}, Value: q.Value})
	}
	if !q.Cursor.IsZero() {
		key, err := pagination.Decode(q.Cursor)
		if err != nil {
			return pagination.Page[T]{}, fmt.Errorf("%w: %v", failure.ErrMalformedParameters, err)
		}
		tx = tx.Where("(timestamp < ? OR (timestamp = ? AND id < ?))", key.Score, key.Score, key.ID)
	}

	var rows []T
	if err := tx.Order("timestamp DESC").Order("id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return pagination.Page[T]{}, err
	}
	return pagination.Trim(rows, limit, keyOf[T]), nil
}

func (r *gormCollection[T]) Create(ctx context.Context, doc *T) error {
	ctx, span := r.span(ctx, "Create")
	defer span.End()

	err := r.db.WithContext(ctx).Create(doc).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s %s: %w", r.table, (*doc).DocumentID(), failure.ErrAlreadyExists)
	}
	return err
}

func (r *gormCollection[T]) Delete(ctx context.Context, id string) error {
	ctx, span := r.span(ctx, "Delete")
	defer span.End()

	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(new(T))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", r.table, id, failure.ErrNotFound)
	}
	return nil
}

func (r *gormCollection[T]) Increment(ctx context.Context, id, field string, delta int64) error {
	ctx, span := r.span(ctx, "Increment")
	defer span.End()

	res := r.db.WithContext(ctx).Model(new(T)).Where("id = ?", id).
		UpdateColumn(field, gorm.Expr("? + ?", clause.Column{Name: field}, delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", r.table, id, failure.ErrNotFound)
	}
	return nil
}
