package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/tweetfeed/internal/model"
)

// OutboxQueue outbox 的领取/确认接口，供 OutboxRelay 使用
type OutboxQueue interface {
	// Claim 领取最多 limit 条 pending 事件并置为 processing，按写入顺序返回
	Claim(ctx context.Context, limit int) ([]model.Outbox, error)
	// Complete 投递成功
	Complete(ctx context.Context, id string) error
	// Fail 投递失败：尝试次数未超过 maxAttempts 时回到 pending，否则置为 failed
	Fail(ctx context.Context, id string, maxAttempts int) error
}

type gormOutboxQueue struct{ db *gorm.DB }

func NewGormOutboxQueue(db *gorm.DB) OutboxQueue { return &gormOutboxQueue{db: db} }

// Claim 使用 SELECT ... FOR UPDATE SKIP LOCKED 领取，多个 worker 互不阻塞（sqlite 忽略行锁）
func (q *gormOutboxQueue) Claim(ctx context.Context, limit int) ([]model.Outbox, error) {
	ctx, span := tracer.Start(ctx, "OutboxClaim")
	defer span.End()

	var batch []model.Outbox
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", model.OutboxPending).
			Order("timestamp").
			Limit(limit).
			Find(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		ids := make([]string, len(batch))
		for i, b := range batch {
			ids[i] = b.ID
		}
		return tx.Model(&model.Outbox{}).Where("id IN ?", ids).Updates(map[string]any{
			"status":   model.OutboxProcessing,
			"attempts": gorm.Expr("attempts + 1"),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	for i := range batch {
		batch[i].Status = model.OutboxProcessing
		batch[i].Attempts++
	}
	return batch, nil
}

func (q *gormOutboxQueue) Complete(ctx context.Context, id string) error {
	now := time.Now()
	return q.db.WithContext(ctx).Model(&model.Outbox{}).Where("id = ?", id).
		Updates(map[string]any{"status": model.OutboxDone, "processed_at": now}).Error
}

func (q *gormOutboxQueue) Fail(ctx context.Context, id string, maxAttempts int) error {
	status := gorm.Expr("CASE WHEN attempts >= ? THEN ? ELSE ? END", maxAttempts, model.OutboxFailed, model.OutboxPending)
	return q.db.WithContext(ctx).Model(&model.Outbox{}).Where("id = ?", id).
		Update("status", status).Error
}

type mongoOutboxQueue struct{ coll *mongo.Collection }

func NewMongoOutboxQueue(db *mongo.Database) OutboxQueue {
	return &mongoOutboxQueue{coll: db.Collection(model.Outbox{}.TableName())}
}

// Claim 逐条 findOneAndUpdate，单文档原子，天然不会被两个 worker 同时领取
func (q *mongoOutboxQueue) Claim(ctx context.Context, limit int) ([]model.Outbox, error) {
	ctx, span := tracer.Start(ctx, "OutboxClaim")
	defer span.End()

	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "timestamp", Value: 1}}).
		SetReturnDocument(options.After)
	batch := make([]model.Outbox, 0, limit)
	for len(batch) < limit {
		var row model.Outbox
		err := q.coll.FindOneAndUpdate(ctx,
			bson.D{{Key: "status", Value: model.OutboxPending}},
			bson.D{
				{Key: "$set", Value: bson.D{{Key: "status", Value: model.OutboxProcessing}}},
				{Key: "$inc", Value: bson.D{{Key: "attempts", Value: 1}}},
			},
			opts,
		).Decode(&row)
		if errors.Is(err, mongo.ErrNoDocuments) {
			break
		}
		if err != nil {
			return nil, err
		}
		batch = append(batch, row)
	}
	return batch, nil
}

func (q *mongoOutboxQueue) Complete(ctx context.Context, id string) error {
	_, err := q.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "$set", Value: bson.D{
		{Key: "status", Value: model.OutboxDone},
		{Key: "processed_at", Value: time.Now()},
	}}})
	return err
}

func (q *mongoOutboxQueue) Fail(ctx context.Context, id string, maxAttempts int) error {
	var row model.Outbox
	if err := q.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&row); err != nil {
		return err
	}
	status := model.OutboxPending
	if row.Attempts >= maxAttempts {
		status = model.OutboxFailed
	}
	_, err := q.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: status}}}})
	return err
}
