package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/tweetfeed/internal/api/middleware"
	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/pagination"
	"github.com/d60-Lab/tweetfeed/internal/service"
	"github.com/d60-Lab/tweetfeed/internal/viewable"
)

// FeedReader 分页 viewable 读取
type FeedReader interface {
	Timeline(ctx context.Context, viewerID string, cursor pagination.Cursor, limit int) (pagination.Page[viewable.Tweet], error)
	UserTweets(ctx context.Context, userID, viewerID string, cursor pagination.Cursor, limit int) (pagination.Page[viewable.Tweet], error)
	Comments(ctx context.Context, tweetID, viewerID string, cursor pagination.Cursor, limit int) (pagination.Page[viewable.Comment], error)
	Likes(ctx context.Context, tweetID, viewerID string, cursor pagination.Cursor, limit int) (pagination.Page[viewable.Like], error)
	Bookmarks(ctx context.Context, viewerID string, cursor pagination.Cursor, limit int) (pagination.Page[viewable.Bookmark], error)
	Followers(ctx context.Context, userID, viewerID string, cursor pagination.Cursor, limit int) (pagination.Page[viewable.Follower], error)
	Followings(ctx context.Context, userID, viewerID string, cursor pagination.Cursor, limit int) (pagination.Page[viewable.Followee], error)
	Tweet(ctx context.Context, tweetID, viewerID string) (viewable.Tweet, error)
	Comment(ctx context.Context, commentID, viewerID string) (viewable.Comment, error)
}

type TweetWriter interface {
	Create(ctx context.Context, authorID, text string) (viewable.Tweet, error)
	Delete(ctx context.Context, authorID, tweetID string) error
	AddComment(ctx context.Context, authorID, tweetID, text string) (viewable.Comment, error)
	RemoveComment(ctx context.Context, authorID, tweetID, commentID string) error
	Like(ctx context.Context, userID, tweetID string) (viewable.Like, error)
	Unlike(ctx context.Context, userID, tweetID string) error
}

type BookmarkWriter interface {
	Create(ctx context.Context, userID, tweetID string) (viewable.Bookmark, error)
	Delete(ctx context.Context, userID, tweetID string) error
}

type UserManager interface {
	Create(ctx context.Context, in service.CreateUserInput) (model.User, error)
	Get(ctx context.Context, userID, viewerID string) (viewable.User, error)
}

// Handler 聚合全部 HTTP 处理函数
type Handler struct {
	feed       FeedReader
	tweets     TweetWriter
	bookmarks  BookmarkWriter
	users      UserManager
	relService service.RelationshipService
}

func NewHandler(feed FeedReader, tweets TweetWriter, bookmarks BookmarkWriter, users UserManager, relService service.RelationshipService) *Handler {
	return &Handler{feed: feed, tweets: tweets, bookmarks: bookmarks, users: users, relService: relService}
}

// pageQuery 分页参数：limit 缺失或非法时取最大值，nextToken 必须可解码
type pageQuery struct {
	Limit     string `form:"limit"`
	NextToken string `form:"nextToken" binding:"omitempty,cursor"`
}

func (q pageQuery) cursor() pagination.Cursor { return pagination.Cursor(q.NextToken) }

func (q pageQuery) limit() int {
	n, err := strconv.Atoi(q.Limit)
	if err != nil {
		return pagination.MaxPageLength
	}
	return pagination.Clamp(n)
}

func viewer(c *gin.Context) string { return middleware.UserID(c) }
