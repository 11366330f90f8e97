// Package activity 封装外部有序活动日志服务。
//
// 日志服务为每个主体维护一条按位置排序、只追加的 feed，以及 feed 之间的关注图。
// 本包把它以轻量 Reference 分页的形式交给引擎，由 resolve 层再关联到实体。
package activity

import (
	"context"
	"fmt"

	"github.com/d60-Lab/tweetfeed/internal/pagination"
)

// feed 分组
const (
	GroupUser     = "user"     // 用户自己发布的活动
	GroupTimeline = "timeline" // 关注若干用户 feed
	GroupComments = "comments" // 一条推文下的评论
	GroupLikes    = "likes"    // 一条推文收到的点赞
)

// 动词
const (
	VerbTweet   = "tweet"
	VerbComment = "comment"
	VerbLike    = "like"
)

// FeedID 日志服务中的一条 feed
type FeedID struct {
	Group string
	Owner string
}

func (f FeedID) String() string { return f.Group + ":" + f.Owner }

func UserFeed(userID string) FeedID      { return FeedID{Group: GroupUser, Owner: userID} }
func TimelineFeed(userID string) FeedID  { return FeedID{Group: GroupTimeline, Owner: userID} }
func CommentsFeed(tweetID string) FeedID { return FeedID{Group: GroupComments, Owner: tweetID} }
func LikesFeed(tweetID string) FeedID    { return FeedID{Group: GroupLikes, Owner: tweetID} }

// ForeignID 活动的幂等键
func ForeignID(verb, objectID string) string { return verb + ":" + objectID }

// Activity 追加到 feed 的内容
type Activity struct {
	Verb      string `json:"verb"`
	ActorID   string `json:"actor"`
	ObjectID  string `json:"object"`
	ForeignID string `json:"foreign_id"`
}

// Reference 指向日志中的一条活动，不含实体本身
type Reference struct {
	ID        string `json:"id"`
	Verb      string `json:"verb"`
	SubjectID string `json:"actor"`
	ObjectID  string `json:"object"`
	ForeignID string `json:"foreign_id"`
	Position  int64  `json:"position"`
}

// Key 活动在 feed 内的排序键
func (r Reference) Key() pagination.Key { return pagination.Key{Score: r.Position, ID: r.ID} }

// LogPage 一次读取的结果
//
// LastID/LastPosition 是本次扫描到的最后一条活动，即使它的内容已被并发撤回。
type LogPage struct {
	Activities   []Reference
	HasMore      bool
	LastID       string
	LastPosition int64
}

// LogService 外部有序日志服务的契约
type LogService interface {
	// AddActivity 追加到 feed 及所有关注它的 feed；ForeignID 已存在时返回已有引用
	AddActivity(ctx context.Context, feed FeedID, a Activity) (Reference, error)
	// RemoveActivity 从 feed 及其关注者中移除该 foreign id 的活动
	RemoveActivity(ctx context.Context, feed FeedID, foreignID string) error
	Follow(ctx context.Context, follower, followee FeedID) error
	Unfollow(ctx context.Context, follower, followee FeedID) error
	// Read 返回位置严格小于 before 的最多 limit 条活动，新的在前（before=0 从最新开始）
	Read(ctx context.Context, feed FeedID, before int64, limit int) (LogPage, error)
}

// ServiceError 日志服务返回的错误；StatusCode 按 HTTP 语义，400 表示调用方参数有误
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("activity service: %d %s", e.StatusCode, e.Message)
}
