package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/d60-Lab/tweetfeed/internal/failure"
	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/pagination"
)

type mongoCollection[T model.Document] struct {
	coll *mongo.Collection
	sess mongo.Session // 非 nil 时所有操作都在该会话的事务内
}

func (r *mongoCollection[T]) begin(ctx context.Context, op string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "Mongo"+op, trace.WithAttributes(attribute.String("collection", r.coll.Name())))
	if r.sess != nil {
		ctx = mongo.NewSessionContext(ctx, r.sess)
	}
	return ctx, span
}

func (r *mongoCollection[T]) Get(ctx context.Context, id string) (*T, error) {
	ctx, span := r.begin(ctx, "Get")
	defer span.End()

	var doc T
	err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s %s: %w", r.coll.Name(), id, failure.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *mongoCollection[T]) MultiGet(ctx context.Context, ids []string) ([]*T, error) {
	ctx, span := r.begin(ctx, "MultiGet")
	defer span.End()

	if len(ids) == 0 {
		return []*T{}, nil
	}
	cur, err := r.coll.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: dedupe(ids)}}}})
	if err != nil {
		return nil, err
	}
	var rows []T
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	return align(ids, rows), nil
}

func (r *mongoCollection[T]) Exists(ctx context.Context, id string) (bool, error) {
	ctx, span := r.begin(ctx, "Exists")
	defer span.End()

	n, err := r.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: id}}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *mongoCollection[T]) Query(ctx context.Context, q Query) (pagination.Page[T], error) {
	ctx, span := r.begin(ctx, "Query")
	defer span.End()

	limit := pagination.Clamp(q.Limit)
	filter := bson.D{}
	if q.Field != "" {
		filter = append(filter, bson.E{Key: q.Field, Value: q.Value})
	}
	if !q.Cursor.IsZero() {
		key, err := pagination.Decode(q.Cursor)
		if err != nil {
			return pagination.Page[T]{}, fmt.Errorf("%w: %v", failure.ErrMalformedParameters, err)
		}
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: "timestamp", Value: bson.D{{Key: "$lt", Value: key.Score}}}},
			bson.D{{Key: "timestamp", Value: key.Score}, {Key: "_id", Value: bson.D{{Key: "$lt", Value: key.ID}}}},
		}})
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit + 1))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return pagination.Page[T]{}, err
	}
	var rows []T
	if err := cur.All(ctx, &rows); err != nil {
		return pagination.Page[T]{}, err
	}
	return pagination.Trim(rows, limit, keyOf[T]), nil
}

func (r *mongoCollection[T]) Create(ctx context.Context, doc *T) error {
	ctx, span := r.begin(ctx, "Create")
	defer span.End()

	_, err := r.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s %s: %w", r.coll.Name(), (*doc).DocumentID(), failure.ErrAlreadyExists)
	}
	return err
}

func (r *mongoCollection[T]) Delete(ctx context.Context, id string) error {
	ctx, span := r.begin(ctx, "Delete")
	defer span.End()

	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s %s: %w", r.coll.Name(), id, failure.ErrNotFound)
	}
	return nil
}

func (r *mongoCollection[T]) Increment(ctx context.Context, id, field string, delta int64) error {
	ctx, span := r.begin(ctx, "Increment")
	defer span.End()

	res, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: field, Value: delta}}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s %s: %w", r.coll.Name(), id, failure.ErrNotFound)
	}
	return nil
}
