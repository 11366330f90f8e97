package router

import (
	"net/http"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/tweetfeed/config"
	_ "github.com/d60-Lab/tweetfeed/docs"
	"github.com/d60-Lab/tweetfeed/internal/api/handler"
	"github.com/d60-Lab/tweetfeed/internal/api/middleware"
)

// Setup 注册全部中间件与路由
func Setup(cfg *config.Config, h *handler.Handler) (*gin.Engine, error) {
	gin.SetMode(cfg.Server.Mode)
	if err := handler.RegisterValidators(); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Sentry.DSN != "" {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(middleware.Logger())
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	issue := func(userID string) (string, error) { return middleware.IssueToken(cfg.JWT.Secret, userID) }

	v1 := r.Group("/api/v1")
	v1.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	v1.POST("/users", limiter.Middleware(), h.CreateUser(issue))

	authed := v1.Group("")
	authed.Use(middleware.Auth(cfg.JWT.Secret), limiter.Middleware())
	{
		authed.GET("/users/:user_id", h.GetUser)
		authed.GET("/users/:user_id/tweets", h.UserTweets)
		authed.GET("/timeline", h.Timeline)

		authed.POST("/tweets", h.CreateTweet)
		authed.GET("/tweets/:tweet_id", h.GetTweet)
		authed.DELETE("/tweets/:tweet_id", h.DeleteTweet)
		authed.GET("/tweets/:tweet_id/comments", h.ListComments)
		authed.POST("/tweets/:tweet_id/comments", h.CreateComment)
		authed.DELETE("/tweets/:tweet_id/comments/:comment_id", h.DeleteComment)
		authed.GET("/comments/:comment_id", h.GetComment)
		authed.GET("/tweets/:tweet_id/likes", h.ListLikes)
		authed.POST("/tweets/:tweet_id/likes", h.Like)
		authed.DELETE("/tweets/:tweet_id/likes", h.Unlike)

		authed.GET("/bookmarks", h.ListBookmarks)
		authed.POST("/bookmarks", h.CreateBookmark)
		authed.DELETE("/bookmarks/:tweet_id", h.DeleteBookmark)

		authed.POST("/relations/follow", h.Follow)
		authed.POST("/relations/unfollow", h.Unfollow)
		authed.GET("/relations/:user_id/followers", h.ListFollowers)
		authed.GET("/relations/:user_id/followings", h.ListFollowings)
	}
	return r, nil
}
