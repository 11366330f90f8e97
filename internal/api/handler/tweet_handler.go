package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/tweetfeed/pkg/response"
)

type textRequest struct {
	Text string `json:"text" binding:"required,max=1120"`
}

// CreateTweet 发布推文
// @Summary 发布推文
// @Tags 推文
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body textRequest true "正文，1-280 字符"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/tweets [post]
func (h *Handler) CreateTweet(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	t, err := h.tweets.Create(c.Request.Context(), viewer(c), req.Text)
	if err != nil {
		response.Failure(c, err)
		return
	}
	response.Created(c, t)
}

// GetTweet 按 id 查询推文
// @Summary 查询推文
// @Tags 推文
// @Security BearerAuth
// @Produce json
// @Param tweet_id path string true "推文ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/tweets/{tweet_id} [get]
func (h *Handler) GetTweet(c *gin.Context) {
	t, err := h.feed.Tweet(c.Request.Context(), c.Param("tweet_id"), viewer(c))
	if err != nil {
		response.Failure(c, err)
		return
	}
	response.Success(c, t)
}

// DeleteTweet 删除自己的推文
// @Summary 删除推文
// @Tags 推文
// @Security BearerAuth
// @Param tweet_id path string true "推文ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/tweets/{tweet_id} [delete]
func (h *Handler) DeleteTweet(c *gin.Context) {
	if err := h.tweets.Delete(c.Request.Context(), viewer(c), c.Param("tweet_id")); err != nil {
		response.Failure(c, err)
		return
	}
	response.Success(c, nil)
}

// ListComments 推文的评论
// @Summary 评论列表
// @Tags 推文
// @Security BearerAuth
// @Produce json
// @Param tweet_id path string true "推文ID"
// @Param limit query int false "每页数量，最大 25"
// @Param nextToken query string false "翻页游标"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/tweets/{tweet_id}/comments [get]
func (h *Handler) ListComments(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	page, err := h.feed.Comments(c.Request.Context(), c.Param("tweet_id"), viewer(c), q.cursor(), q.limit())
	if err != nil {
		response.Failure(c, err)
		return
	}
	response.Success(c, page)
}

// CreateComment 发表评论
// @Summary 发表评论
// @Tags 推文
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param tweet_id path string true "推文ID"
// @Param request body textRequest true "正文，1-280 字符"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/tweets/{tweet_id}/comments [post]
func (h *Handler) CreateComment(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cm, err := h.tweets.AddComment(c.Request.Context(), viewer(c), c.Param("tweet_id"), req.Text)
	if err != nil {
		response.Failure(c, err)
		return
	}
	response.Created(c, cm)
}

// GetComment 按 id 查询评论
// @Summary 查询评论
// @Tags 推文
// @Security BearerAuth
// @Produce json
// @Param comment_id path string true "评论ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/comments/{comment_id} [get]
func (h *Handler) GetComment(c *gin.Context) {
	cm, err := h.feed.Comment(c.Request.Context(), c.Param("comment_id"), viewer(c))
	if err != nil {
		response.Failure(c, err)
		return
	}
	response.Success(c, cm)
}

// DeleteComment 删除自己的评论
// @Summary 删除评论
// @Tags 推文
// @Security BearerAuth
// @Param tweet_id path string true "推文ID"
// @Param comment_id path string true "评论ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/tweets/{tweet_id}/comments/{comment_id} [delete]
func (h *Handler) DeleteComment(c *gin.Context) {
	if err := h.tweets.RemoveComment(c.Request.Context(), viewer(c), c.Param("tweet_id"), c.Param("comment_id")); err != nil {
		response.Failure(c, err)
		return
	}
	response.Success(c, nil)
}

// ListLikes 推文的点赞
// @Summary 点赞列表
// @Tags 推文
// @Security BearerAuth
// @Produce json
// @Param tweet_id path string true "推文ID"
// @Param limit query int false "每页数量，最大 25"
// @Param nextToken query string false "翻页游标"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/tweets/{tweet_id}/likes [get]
func (h *Handler) ListLikes(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	page, err := h.feed.Likes(c.Request.Context(), c.Param("tweet_id"), viewer(c), q.cursor(), q.limit())
	if err != nil {
		response.Failure(c, err)
		return
	}
	response.Success(c, page)
}

// Like 点赞
// @Summary 点赞
// @Tags 推文
// @Security BearerAuth
// @Produce json
// @Param tweet_id path string true "推文ID"
// @Success 201 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/tweets/{tweet_id}/likes [post]
func (h *Handler) Like(c *gin.Context) {
	l, err := h.tweets.Like(c.Request.Context(), viewer(c), c.Param("tweet_id"))
	if err != nil {
		response.Failure(c, err)
		return
	}
	response.Created(c, l)
}

// Unlike 取消点赞
// @Summary 取消点赞
// @Tags 推文
// @Security BearerAuth
// @Param tweet_id path string true "推文ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/tweets/{tweet_id}/likes [delete]
func (h *Handler) Unlike(c *gin.Context) {
	if err := h.tweets.Unlike(c.Request.Context(), viewer(c), c.Param("tweet_id")); err != nil {
		response.Failure(c, err)
		return
	}
	response.Success(c, nil)
}
