package repository

import (
	"context"

	"github.com/d60-Lab/tweetfeed/internal/model"
)

// EdgeSet 复合主键关系边（点赞、收藏、关注）的存在性检查
type EdgeSet[T model.Document] struct {
	coll Collection[T]
}

func NewEdgeSet[T model.Document](coll Collection[T]) EdgeSet[T] {
	return EdgeSet[T]{coll: coll}
}

// ExistsByComposite 主键点查，无需扫描
func (e EdgeSet[T]) ExistsByComposite(ctx context.Context, subjectID, objectID string) (bool, error) {
	return e.coll.Exists(ctx, model.CompositeID(subjectID, objectID))
}

// Edges 视图组合需要的三类关系检查
type Edges struct {
	Likes     EdgeSet[model.Like]
	Bookmarks EdgeSet[model.Bookmark]
	Follows   EdgeSet[model.Follow]
}

func NewEdges(s *Store) Edges {
	return Edges{
		Likes:     NewEdgeSet(s.Likes),
		Bookmarks: NewEdgeSet(s.Bookmarks),
		Follows:   NewEdgeSet(s.Follows),
	}
}

func (e Edges) Liked(ctx context.Context, userID, tweetID string) (bool, error) {
	return e.Likes.ExistsByComposite(ctx, userID, tweetID)
}

func (e Edges) Bookmarked(ctx context.Context, userID, tweetID string) (bool, error) {
	return e.Bookmarks.ExistsByComposite(ctx, userID, tweetID)
}

func (e Edges) Following(ctx context.Context, followerID, followeeID string) (bool, error) {
	return e.Follows.ExistsByComposite(ctx, followerID, followeeID)
}
