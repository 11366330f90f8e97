package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/repository"
	"github.com/d60-Lab/tweetfeed/pkg/logger"
)

type replicateAction int

const (
	actionAdd replicateAction = iota + 1
	actionRemove
)

// repairInterval 积压任务的补偿周期
const repairInterval = time.Second

type replicateJob struct {
	action replicateAction
	userID string
	fanID  string
	enqAt  time.Time
}

// FanReplicator 关注提交后异步维护粉丝表
//
// 每个任务落地时按 follows 表中的边决定建还是删粉丝行，action 只在 follows 为 nil 时生效。
// 队列满或读边失败的任务按关注对记入积压，由 worker 定期和 Flush 补偿。
type FanReplicator struct {
	fanRepo   repository.FanRepository
	follows   FollowState
	ch        chan replicateJob
	pending   atomic.Int64
	metricsCh chan time.Duration
	locks     pairLocks

	mu       sync.Mutex
	backlog  map[string]replicateJob
	deferred atomic.Int64
}

func NewFanReplicator(fanRepo repository.FanRepository, follows FollowState, queueSize int) *FanReplicator {
	if queueSize <= 0 {
		queueSize = 10000
	}
	return &FanReplicator{
		fanRepo:   fanRepo,
		follows:   follows,
		ch:        make(chan replicateJob, queueSize),
		metricsCh: make(chan time.Duration, 65536),
		backlog:   make(map[string]replicateJob),
	}
}

// Start 启动 workers；停止函数会先排空队列和积压
func (r *FanReplicator) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	stopCh := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(repairInterval)
			defer ticker.Stop()
			for {
				select {
				case job := <-r.ch:
					r.process(job)
				case <-ticker.C:
					r.Repair(context.Background())
				case <-stopCh:
					for {
						select {
						case job := <-r.ch:
							r.process(job)
						default:
							return
						}
					}
				}
			}
		}()
	}
	return func(ctx context.Context) error {
		close(stopCh)
		done := make(chan struct{})
		go func() {
			wg.Wait()
			r.Repair(ctx)
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *FanReplicator) process(job replicateJob) {
	defer r.pending.Add(-1)
	if !r.apply(job) {
		r.postpone(job)
	}
	if !job.enqAt.IsZero() {
		select {
		case r.metricsCh <- time.Since(job.enqAt):
		default:
		}
	}
}

// apply 对齐一个关注对的粉丝行；返回 false 表示需要稍后重试
func (r *FanReplicator) apply(job replicateJob) bool {
	unlock := r.locks.lock(job.fanID, job.userID)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	action := job.action
	if r.follows != nil {
		following, err := r.follows.Exists(ctx, job.fanID, job.userID)
		if err != nil {
			logger.Warn("replicate fan: read follow edge", zap.String("user", job.userID), zap.String("fan", job.fanID), zap.Error(err))
			return false
		}
		action = actionRemove
		if following {
			action = actionAdd
		}
	}

	var err error
	switch action {
	case actionAdd:
		err = r.fanRepo.Create(ctx, job.userID, job.fanID)
	case actionRemove:
		err = r.fanRepo.Delete(ctx, job.userID, job.fanID)
	}
	if err != nil {
		logger.Error("replicate fan failed", zap.String("user", job.userID), zap.String("fan", job.fanID), zap.Error(err))
		return false
	}
	return true
}

// postpone 记入积压；同一关注对只保留最后一次
func (r *FanReplicator) postpone(job replicateJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := model.CompositeID(job.userID, job.fanID)
	if _, ok := r.backlog[key]; !ok {
		r.deferred.Add(1)
	}
	r.backlog[key] = job
}

// Repair 重放积压的关注对，返回成功条数
func (r *FanReplicator) Repair(ctx context.Context) int {
	r.mu.Lock()
	jobs := make([]replicateJob, 0, len(r.backlog))
	for _, job := range r.backlog {
		jobs = append(jobs, job)
	}
	clear(r.backlog)
	r.deferred.Store(0)
	r.mu.Unlock()

	repaired := 0
	for i, job := range jobs {
		if ctx.Err() != nil {
			for _, rest := range jobs[i:] {
				r.postpone(rest)
			}
			break
		}
		if r.apply(job) {
			repaired++
			continue
		}
		r.postpone(job)
	}
	if repaired > 0 {
		logger.Info("fan replicator repaired backlog", zap.Int("pairs", repaired))
	}
	return repaired
}

func (r *FanReplicator) enqueue(job replicateJob) bool {
	r.pending.Add(1)
	select {
	case r.ch <- job:
		return true
	default:
		r.pending.Add(-1)
		r.postpone(job)
		return false
	}
}

func (r *FanReplicator) EnqueueAdd(userID, fanID string) {
	if !r.enqueue(replicateJob{action: actionAdd, userID: userID, fanID: fanID, enqAt: time.Now()}) {
		logger.Warn("replicator queue full, add deferred", zap.String("user", userID), zap.String("fan", fanID))
	}
}

func (r *FanReplicator) EnqueueRemove(userID, fanID string) {
	if !r.enqueue(replicateJob{action: actionRemove, userID: userID, fanID: fanID, enqAt: time.Now()}) {
		logger.Warn("replicator queue full, remove deferred", zap.String("user", userID), zap.String("fan", fanID))
	}
}

// Flush 等待已入队的任务全部落地，再补偿积压
func (r *FanReplicator) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for r.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	r.Repair(ctx)
	return ctx.Err()
}

// Metrics 返回复制落地耗时的只读通道（每处理一条发送一次 duration）。
func (r *FanReplicator) Metrics() <-chan time.Duration { return r.metricsCh }

// QueueLen 返回当前队列长度（采样值）。
func (r *FanReplicator) QueueLen() int { return len(r.ch) }

// Deferred 返回积压中的关注对数量
func (r *FanReplicator) Deferred() int { return int(r.deferred.Load()) }
