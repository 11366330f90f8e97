package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/d60-Lab/tweetfeed/internal/failure"
	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/repository"
	"github.com/d60-Lab/tweetfeed/internal/resolve"
	"github.com/d60-Lab/tweetfeed/internal/viewable"
)

// CreateUserInput 注册参数
type CreateUserInput struct {
	Name        string
	Email       string
	Username    string
	Description string
	Image       string
}

// UserService 用户资料
type UserService struct {
	store    *repository.Store
	users    resolve.Getter[model.User]
	composer *viewable.Composer
	opts     viewable.Options
}

// NewUserService users 为读路径使用的用户集合（通常带缓存）
func NewUserService(store *repository.Store, users resolve.Getter[model.User], composer *viewable.Composer, opts viewable.Options) *UserService {
	if users == nil {
		users = store.Users
	}
	return &UserService{store: store, users: users, composer: composer, opts: opts}
}

// Create 邮箱或用户名重复返回 failure.ErrAlreadyExists
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (_ model.User, err error) {
	ctx, span := tracer.Start(ctx, "CreateUser", trace.WithAttributes(attribute.String("username", in.Username)))
	defer func() {
		err = narrow(span, "CreateUser", err, failure.ErrMalformedParameters, failure.ErrAlreadyExists)
		span.End()
	}()

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	if in.Email == "" || in.Username == "" {
		return model.User{}, fmt.Errorf("%w: email and username are required", failure.ErrMalformedParameters)
	}

	now, ts := model.Stamp()
	u := model.User{
		ID:          uuid.New().String(),
		Name:        in.Name,
		Email:       in.Email,
		Username:    in.Username,
		Description: in.Description,
		Image:       in.Image,
		Timestamp:   ts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Users.Create(ctx, &u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// Get 按 id 严格查找，附带 viewer 是否已关注
func (s *UserService) Get(ctx context.Context, userID, viewerID string) (_ viewable.User, err error) {
	ctx, span := tracer.Start(ctx, "GetUser", trace.WithAttributes(attribute.String("user", userID)))
	defer func() {
		err = narrow(span, "GetUser", err, failure.ErrNotFound, failure.ErrViewerDoesNotExist)
		span.End()
	}()

	u, err := resolve.One[model.User](ctx, s.users, userID)
	if err != nil {
		return viewable.User{}, err
	}
	return s.composer.User(ctx, u, viewerID, s.opts)
}
