package repository

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/pagination"
	"github.com/d60-Lab/tweetfeed/internal/storetest"
)

func seedBenchUsers(b *testing.B, s *Store, n int) []model.User {
	ctx := context.Background()
	users := make([]model.User, n)
	for i := range users {
		now, ts := model.Stamp()
		id := fmt.Sprintf("u%04d", i)
		users[i] = model.User{ID: id, Username: id, Email: id + "@example.com", Timestamp: ts, CreatedAt: now}
		if err := s.Users.Create(ctx, &users[i]); err != nil {
			b.Fatalf("seed users: %v", err)
		}
	}
	return users
}

func BenchmarkFollowWrite_And_FanRedundancy(b *testing.B) {
	s := NewGormStore(storetest.NewDB(b))
	followRepo := NewFollowRepository(s.Follows)
	fanRepo := NewFanRepository(s.Fans)
	ctx := context.Background()

	users := seedBenchUsers(b, s, 1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		from := users[rand.Intn(len(users))].ID
		to := users[rand.Intn(len(users))].ID
		if from == to {
			continue
		}
		_, _ = followRepo.Create(ctx, from, to)
		_ = fanRepo.Create(ctx, to, from)
	}
}

func BenchmarkQueryFansAndFollowing(b *testing.B) {
	s := NewGormStore(storetest.NewDB(b))
	followRepo := NewFollowRepository(s.Follows)
	fanRepo := NewFanRepository(s.Fans)
	ctx := context.Background()

	// u0000 有 N 个粉丝，同时关注这 N 个用户
	const N = 2000
	users := seedBenchUsers(b, s, N+1)
	u0 := users[0].ID
	for _, u := range users[1:] {
		_, _ = followRepo.Create(ctx, u.ID, u0)
		_ = fanRepo.Create(ctx, u0, u.ID)
		_, _ = followRepo.Create(ctx, u0, u.ID)
		_ = fanRepo.Create(ctx, u.ID, u0)
	}

	b.ResetTimer()
	b.Run("ListFans", func(b *testing.B) {
		var cursor pagination.Cursor
		for i := 0; i < b.N; i++ {
			page, _ := fanRepo.ListFans(ctx, u0, cursor, pagination.MaxPageLength)
			cursor = page.NextCursor
		}
	})

	b.Run("ListFollowing", func(b *testing.B) {
		var cursor pagination.Cursor
		for i := 0; i < b.N; i++ {
			page, _ := followRepo.ListFollowings(ctx, u0, cursor, pagination.MaxPageLength)
			cursor = page.NextCursor
		}
	})
}
