package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/d60-Lab/tweetfeed/config"
)

// InitMongo 连接 MongoDB 并确认可达
func InitMongo(ctx context.Context, cfg *config.Config) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb cannot be reached after connecting: %w", err)
	}
	return client, nil
}

// EnsureMongoIndexes 建立唯一约束与分页查询索引，与 gorm 模型标签一致
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	desc := func(field string) bson.D { return bson.D{{Key: field, Value: 1}, {Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}} }
	indexes := map[string][]mongo.IndexModel{
		"users": {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		"tweets":    {{Keys: desc("author_id")}},
		"comments":  {{Keys: desc("tweet_id")}},
		"likes":     {{Keys: desc("tweet_id")}},
		"bookmarks": {{Keys: desc("author_id")}},
		"follows":   {{Keys: desc("follower_id")}, {Keys: desc("followee_id")}},
		"fans":      {{Keys: desc("user_id")}},
		"outbox":    {{Keys: bson.D{{Key: "status", Value: 1}, {Key: "timestamp", Value: 1}}}},
	}
	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}
