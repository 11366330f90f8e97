package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"

	"github.com/d60-Lab/tweetfeed/internal/model"
)

// Store 全部集合 + 原子执行入口
//
// 读路径只用其中的集合；写路径（各管理器）通过 RunAtomic 拿到事务内的 Store。
type Store struct {
	Users     Collection[model.User]
	Tweets    Collection[model.Tweet]
	Comments  Collection[model.Comment]
	Likes     Collection[model.Like]
	Bookmarks Collection[model.Bookmark]
	Follows   Collection[model.Follow]
	Fans      Collection[model.Fan]
	Outbox    Collection[model.Outbox]
	Queue     OutboxQueue

	atomic func(ctx context.Context, fn func(*Store) error) error
}

// RunAtomic 在一个事务内执行 fn：fn 返回错误则全部回滚。嵌套调用复用外层事务。
func (s *Store) RunAtomic(ctx context.Context, fn func(*Store) error) error {
	ctx, span := tracer.Start(ctx, "RunAtomic")
	defer span.End()

	if s.atomic == nil {
		return fn(s)
	}
	err := s.atomic(ctx, fn)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// NewGormStore postgres / sqlite 存储
func NewGormStore(db *gorm.DB) *Store {
	s := gormStore(db)
	s.atomic = func(ctx context.Context, fn func(*Store) error) error {
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(gormStore(tx))
		})
	}
	return s
}

func gormStore(db *gorm.DB) *Store {
	return &Store{
		Users:     NewGormCollection[model.User](db),
		Tweets:    NewGormCollection[model.Tweet](db),
		Comments:  NewGormCollection[model.Comment](db),
		Likes:     NewGormCollection[model.Like](db),
		Bookmarks: NewGormCollection[model.Bookmark](db),
		Follows:   NewGormCollection[model.Follow](db),
		Fans:      NewGormCollection[model.Fan](db),
		Outbox:    NewGormCollection[model.Outbox](db),
		Queue:     NewGormOutboxQueue(db),
	}
}

// NewMongoStore MongoDB 存储；RunAtomic 使用会话事务，需要副本集部署
func NewMongoStore(client *mongo.Client, db *mongo.Database) *Store {
	s := mongoStore(db, nil)
	s.atomic = func(ctx context.Context, fn func(*Store) error) error {
		sess, err := client.StartSession()
		if err != nil {
			return err
		}
		defer sess.EndSession(ctx)

		_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
			return nil, fn(mongoStore(db, sess))
		})
		return err
	}
	return s
}

func mongoStore(db *mongo.Database, sess mongo.Session) *Store {
	return &Store{
		Users:     mongoColl[model.User](db, sess),
		Tweets:    mongoColl[model.Tweet](db, sess),
		Comments:  mongoColl[model.Comment](db, sess),
		Likes:     mongoColl[model.Like](db, sess),
		Bookmarks: mongoColl[model.Bookmark](db, sess),
		Follows:   mongoColl[model.Follow](db, sess),
		Fans:      mongoColl[model.Fan](db, sess),
		Outbox:    mongoColl[model.Outbox](db, sess),
		Queue:     NewMongoOutboxQueue(db),
	}
}

func mongoColl[T model.Document](db *mongo.Database, sess mongo.Session) Collection[T] {
	return &mongoCollection[T]{coll: db.Collection(tableName[T]()), sess: sess}
}
