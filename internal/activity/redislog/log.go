// Package redislog 基于 Redis 有序集合实现 activity.LogService。
//
// 键布局：
//
//	feed:<group>:<owner>            ZSET  activity id -> position
//	feed:<group>:<owner>:foreign    HASH  foreign id -> activity id（仅源 feed）
//	feed:<group>:<owner>:followers  SET   关注者 feed
//	feed:<group>:<owner>:following  SET   被关注的 feed
//	activity:<id>                   STRING activity.Reference 的 JSON
//	activity:seq                    STRING 位置计数器
package redislog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/tweetfeed/internal/activity"
)

const (
	// MaxReadLimit 单次读取上限
	MaxReadLimit = 100
	// DefaultCopyLimit follow 时回填的最近活动条数
	DefaultCopyLimit = 300

	seqKey   = "activity:seq"
	batchDel = 500
)

// Log 基于 Redis 的有序活动日志
type Log struct {
	rdb       redis.UniversalClient
	copyLimit int
}

func New(rdb redis.UniversalClient, copyLimit int) *Log {
	if copyLimit <= 0 {
		copyLimit = DefaultCopyLimit
	}
	return &Log{rdb: rdb, copyLimit: copyLimit}
}

func feedKey(f activity.FeedID) string      { return "feed:" + f.String() }
func foreignKey(f activity.FeedID) string   { return feedKey(f) + ":foreign" }
func followersKey(f activity.FeedID) string { return feedKey(f) + ":followers" }
func followingKey(f activity.FeedID) string { return feedKey(f) + ":following" }
func activityKey(id string) string          { return "activity:" + id }

func badRequest(format string, args ...any) error {
	return &activity.ServiceError{StatusCode: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func validFeed(f activity.FeedID) error {
	if f.Group == "" || f.Owner == "" {
		return badRequest("invalid feed %q", f.String())
	}
	if strings.Contains(f.Group, ":") || strings.Contains(f.Owner, ":") {
		return badRequest("invalid feed %q", f.String())
	}
	return nil
}

func parseFeed(s string) (activity.FeedID, bool) {
	group, owner, ok := strings.Cut(s, ":")
	return activity.FeedID{Group: group, Owner: owner}, ok
}

// AddActivity 写入活动并扇出到所有关注者 feed；同一 foreign id 只写一次
func (l *Log) AddActivity(ctx context.Context, feed activity.FeedID, a activity.Activity) (activity.Reference, error) {
	if err := validFeed(feed); err != nil {
		return activity.Reference{}, err
	}
	if a.Verb == "" || a.ObjectID == "" {
		return activity.Reference{}, badRequest("activity needs verb and object")
	}
	if a.ForeignID == "" {
		a.ForeignID = activity.ForeignID(a.Verb, a.ObjectID)
	}

	if id, err := l.rdb.HGet(ctx, foreignKey(feed), a.ForeignID).Result(); err == nil {
		return l.load(ctx, id)
	} else if !errors.Is(err, redis.Nil) {
		return activity.Reference{}, err
	}

	pos, err := l.rdb.Incr(ctx, seqKey).Result()
	if err != nil {
		return activity.Reference{}, err
	}
	ref := activity.Reference{
		ID:        uuid.NewString(),
		Verb:      a.Verb,
		SubjectID: a.ActorID,
		ObjectID:  a.ObjectID,
		ForeignID: a.ForeignID,
		Position:  pos,
	}
	payload, err := json.Marshal(ref)
	if err != nil {
		return activity.Reference{}, err
	}
	if err := l.rdb.Set(ctx, activityKey(ref.ID), payload, 0).Err(); err != nil {
		return activity.Reference{}, err
	}

	// 并发写同一 foreign id 时只有一个能占位
	won, err := l.rdb.HSetNX(ctx, foreignKey(feed), a.ForeignID, ref.ID).Result()
	if err != nil {
		return activity.Reference{}, err
	}
	if !won {
		_ = l.rdb.Del(ctx, activityKey(ref.ID)).Err()
		id, err := l.rdb.HGet(ctx, foreignKey(feed), a.ForeignID).Result()
		if err != nil {
			return activity.Reference{}, err
		}
		return l.load(ctx, id)
	}

	followers, err := l.rdb.SMembers(ctx, followersKey(feed)).Result()
	if err != nil {
		return activity.Reference{}, err
	}
	member := redis.Z{Score: float64(pos), Member: ref.ID}
	_, err = l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, feedKey(feed), member)
		for _, f := range followers {
			pipe.ZAdd(ctx, "feed:"+f, member)
		}
		return nil
	})
	if err != nil {
		return activity.Reference{}, err
	}
	return ref, nil
}

// RemoveActivity 删除活动；不存在视为成功
func (l *Log) RemoveActivity(ctx context.Context, feed activity.FeedID, foreignID string) error {
	if err := validFeed(feed); err != nil {
		return err
	}
	if foreignID == "" {
		return badRequest("empty foreign id")
	}

	id, err := l.rdb.HGet(ctx, foreignKey(feed), foreignID).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	followers, err := l.rdb.SMembers(ctx, followersKey(feed)).Result()
	if err != nil {
		return err
	}
	_, err = l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, feedKey(feed), id)
		for _, f := range followers {
			pipe.ZRem(ctx, "feed:"+f, id)
		}
		pipe.HDel(ctx, foreignKey(feed), foreignID)
		pipe.Del(ctx, activityKey(id))
		return nil
	})
	return err
}

// Follow 建立 feed 间关注，并回填被关注者最近 copyLimit 条活动
func (l *Log) Follow(ctx context.Context, follower, followee activity.FeedID) error {
	if err := validFeed(follower); err != nil {
		return err
	}
	if err := validFeed(followee); err != nil {
		return err
	}
	if follower == followee {
		return badRequest("feed %q cannot follow itself", follower.String())
	}

	latest, err := l.rdb.ZRevRangeWithScores(ctx, feedKey(followee), 0, int64(l.copyLimit-1)).Result()
	if err != nil {
		return err
	}
	_, err = l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, followersKey(followee), follower.String())
		pipe.SAdd(ctx, followingKey(follower), followee.String())
		if len(latest) > 0 {
			pipe.ZAdd(ctx, feedKey(follower), latest...)
		}
		return nil
	})
	return err
}

// Unfollow 取消关注并移除来自被关注者的活动；未关注时为空操作
func (l *Log) Unfollow(ctx context.Context, follower, followee activity.FeedID) error {
	if err := validFeed(follower); err != nil {
		return err
	}
	if err := validFeed(followee); err != nil {
		return err
	}

	removed, err := l.rdb.SRem(ctx, followersKey(followee), follower.String()).Result()
	if err != nil {
		return err
	}
	if err := l.rdb.SRem(ctx, followingKey(follower), followee.String()).Err(); err != nil {
		return err
	}
	if removed == 0 {
		return nil
	}

	ids, err := l.rdb.ZRange(ctx, feedKey(followee), 0, -1).Result()
	if err != nil {
		return err
	}
	for start := 0; start < len(ids); start += batchDel {
		end := min(start+batchDel, len(ids))
		members := make([]any, 0, end-start)
		for _, id := range ids[start:end] {
			members = append(members, id)
		}
		if err := l.rdb.ZRem(ctx, feedKey(follower), members...).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Read 返回位置严格小于 before 的最多 limit 条活动（before=0 表示从最新开始）
func (l *Log) Read(ctx context.Context, feed activity.FeedID, before int64, limit int) (activity.LogPage, error) {
	if err := validFeed(feed); err != nil {
		return activity.LogPage{}, err
	}
	if limit <= 0 || limit > MaxReadLimit {
		return activity.LogPage{}, badRequest("invalid limit %d", limit)
	}
	if before < 0 {
		return activity.LogPage{}, badRequest("invalid position %d", before)
	}

	upper := "+inf"
	if before > 0 {
		upper = "(" + strconv.FormatInt(before, 10)
	}
	zs, err := l.rdb.ZRevRangeByScoreWithScores(ctx, feedKey(feed), &redis.ZRangeBy{
		Max:   upper,
		Min:   "-inf",
		Count: int64(limit + 1),
	}).Result()
	if err != nil {
		return activity.LogPage{}, err
	}

	page := activity.LogPage{HasMore: len(zs) > limit}
	if page.HasMore {
		zs = zs[:limit]
	}
	ids := make([]string, len(zs))
	for i, z := range zs {
		ids[i], _ = z.Member.(string)
	}
	if len(zs) > 0 {
		// 扫描位置与 payload 是否还在无关，调用方据此续页
		last := zs[len(zs)-1]
		page.LastID, page.LastPosition = ids[len(ids)-1], int64(last.Score)
	}
	page.Activities, err = l.loadMany(ctx, ids)
	if err != nil {
		return activity.LogPage{}, err
	}
	return page, nil
}

// Following 返回 feed 关注的所有 feed
func (l *Log) Following(ctx context.Context, feed activity.FeedID) ([]activity.FeedID, error) {
	if err := validFeed(feed); err != nil {
		return nil, err
	}
	raw, err := l.rdb.SMembers(ctx, followingKey(feed)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]activity.FeedID, 0, len(raw))
	for _, s := range raw {
		if f, ok := parseFeed(s); ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func (l *Log) load(ctx context.Context, id string) (activity.Reference, error) {
	data, err := l.rdb.Get(ctx, activityKey(id)).Bytes()
	if err != nil {
		return activity.Reference{}, err
	}
	var ref activity.Reference
	if err := json.Unmarshal(data, &ref); err != nil {
		return activity.Reference{}, err
	}
	return ref, nil
}

func (l *Log) loadMany(ctx context.Context, ids []string) ([]activity.Reference, error) {
	out := make([]activity.Reference, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = activityKey(id)
	}
	vals, err := l.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range vals {
		// 并发删除时 payload 可能已消失
		str, ok := v.(string)
		if !ok {
			continue
		}
		var ref activity.Reference
		if err := json.Unmarshal([]byte(str), &ref); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, nil
}
