package service

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/d60-Lab/tweetfeed/internal/model"
)

// FollowState 关注边的权威状态（follows 表）
type FollowState interface {
	Exists(ctx context.Context, followerID, followeeID string) (bool, error)
}

// pairLocks 按关注对分段加锁：同一对的"读边 + 写下游"串行执行
type pairLocks [64]sync.Mutex

func (l *pairLocks) lock(followerID, followeeID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(model.CompositeID(followerID, followeeID)))
	m := &l[h.Sum32()%uint32(len(l))]
	m.Lock()
	return m.Unlock
}
