// Command feedbench 压测发布到时间线可见的落地延迟，以及时间线分页读取（含用户缓存）的延迟。
//
// 参数通过环境变量：N（粉丝数）、POSTS、WORKERS、CLAIM、READS。
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/d60-Lab/tweetfeed/config"
	"github.com/d60-Lab/tweetfeed/internal/activity"
	"github.com/d60-Lab/tweetfeed/internal/activity/redislog"
	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/pagination"
	"github.com/d60-Lab/tweetfeed/internal/repository"
	"github.com/d60-Lab/tweetfeed/internal/service"
	"github.com/d60-Lab/tweetfeed/internal/viewable"
	"github.com/d60-Lab/tweetfeed/pkg/cache"
	"github.com/d60-Lab/tweetfeed/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	k = max(0, min(k, len(xs)-1))
	return xs[k]
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range vs {
		sum += d
	}
	return sum / time.Duration(len(vs))
}

func main() {
	ctx := context.Background()
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	rdb := must(cache.InitRedis(ctx, cfg))
	defer rdb.Close()

	n := envInt("N", 2000)
	posts := envInt("POSTS", 100)
	workers := envInt("WORKERS", 4)
	claim := envInt("CLAIM", 64)
	reads := envInt("READS", 500)

	// 可重复运行：清空实体表与活动日志
	_ = db.Exec("DELETE FROM outbox").Error
	_ = db.Exec("DELETE FROM fans").Error
	_ = db.Exec("DELETE FROM follows").Error
	_ = db.Exec("DELETE FROM tweets").Error
	_ = db.Exec("DELETE FROM users").Error
	_ = rdb.FlushDB(ctx).Err()

	store := repository.NewGormStore(db)
	source := activity.NewSource(redislog.New(rdb, cfg.Feed.CopyLimit))
	users := repository.NewCachedCollection[model.User](store.Users, rdb, "user", 10*time.Minute)
	composer := viewable.NewComposer(users, store.Tweets, repository.NewEdges(store))
	opts := viewable.Options{EnableViewerCheck: true}

	publisher := service.NewPublisher()
	follows := repository.NewFollowRepository(store.Follows)
	replicator := service.NewFanReplicator(repository.NewFanRepository(store.Fans), follows, n+16)
	relations := service.NewRelationshipService(store, publisher, replicator, users)
	tweets := service.NewTweetService(store, publisher, composer, users, opts)
	feed := service.NewFeedService(source, store, composer, opts)
	userSvc := service.NewUserService(store, users, composer, opts)

	stopRepl := replicator.Start(workers)
	defer func() { _ = stopRepl(ctx) }()

	author := must(userSvc.Create(ctx, service.CreateUserInput{Username: "author0", Email: "author0@example.com"}))
	fans := make([]model.User, n)
	for i := range fans {
		fans[i] = must(userSvc.Create(ctx, service.CreateUserInput{
			Username: fmt.Sprintf("fan_%d", i),
			Email:    fmt.Sprintf("fan_%d@example.com", i),
		}))
		if err := relations.Follow(ctx, fans[i].ID, author.ID); err != nil {
			panic(err)
		}
	}

	queued := replicator.QueueLen()
	if err := replicator.Flush(ctx); err != nil {
		panic(err)
	}
	fanLand := make([]time.Duration, 0, n)
	for len(replicator.Metrics()) > 0 {
		fanLand = append(fanLand, <-replicator.Metrics())
	}
	fmt.Printf("Fan replication: queued after follows=%d deferred=%d samples=%d avg=%v p95=%v\n", queued, replicator.Deferred(), len(fanLand), avg(fanLand), pct(fanLand, 0.95))

	relay := service.NewOutboxRelay(store.Queue, follows, source, service.RelayConfig{
		Workers:      workers,
		ClaimLimit:   claim,
		PollInterval: 10 * time.Millisecond,
	})
	// 关注事件先全部投递，只统计发布落地
	for {
		done, err := relay.ProcessOnce(ctx)
		if err != nil {
			panic(err)
		}
		if done == 0 {
			break
		}
	}
	for len(relay.Metrics()) > 0 {
		<-relay.Metrics()
	}
	stopRelay := relay.Start()
	defer func() { _ = stopRelay(ctx) }()

	pubDurations := make([]time.Duration, 0, posts)
	for i := 0; i < posts; i++ {
		st := time.Now()
		if _, err := tweets.Create(ctx, author.ID, fmt.Sprintf("hello %d", i)); err != nil {
			panic(err)
		}
		pubDurations = append(pubDurations, time.Since(st))
	}

	land := make([]time.Duration, 0, posts)
	timeout := time.After(2 * time.Minute)
collect:
	for len(land) < posts {
		select {
		case d := <-relay.Metrics():
			land = append(land, d)
		case <-timeout:
			fmt.Printf("timeout while waiting for relay metrics: got=%d want=%d\n", len(land), posts)
			break collect
		}
	}

	fmt.Printf("N=%d POSTS=%d WORKERS=%d CLAIM=%d\n", n, posts, workers, claim)
	fmt.Printf("Publish tx latency: avg=%v p95=%v p99=%v\n", avg(pubDurations), pct(pubDurations, 0.95), pct(pubDurations, 0.99))
	fmt.Printf("Relay landing (outbox->activity log): samples=%d avg=%v p95=%v p99=%v\n", len(land), avg(land), pct(land, 0.95), pct(land, 0.99))

	readDurations := make([]time.Duration, 0, reads)
	var items int
	for i := 0; i < reads; i++ {
		viewer := fans[i%len(fans)].ID
		st := time.Now()
		page, err := feed.Timeline(ctx, viewer, "", pagination.MaxPageLength)
		if err != nil {
			panic(err)
		}
		readDurations = append(readDurations, time.Since(st))
		items += len(page.Items)
	}
	fmt.Printf("Timeline read (limit=%d): reads=%d avg=%v p95=%v p99=%v items/read=%.1f user store loads=%d\n",
		pagination.MaxPageLength, reads, avg(readDurations), pct(readDurations, 0.95), pct(readDurations, 0.99),
		float64(items)/float64(max(reads, 1)), users.InnerLoads())
}
