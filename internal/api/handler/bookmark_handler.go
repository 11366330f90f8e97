package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/tweetfeed/pkg/response"
)

type bookmarkRequest struct {
	TweetID string `json:"tweet_id" binding:"required"`
}

// ListBookmarks 当前用户的收藏
// @Summary 收藏列表
// @Tags 收藏
// @Security BearerAuth
// @Produce json
// @Param limit query int false "每页数量，最大 25"
// @Param nextToken query string false "翻页游标"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/bookmarks [get]
func (h *Handler) ListBookmarks(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	page, err := h.feed.Bookmarks(c.Request.Context(), viewer(c), q.cursor(), q.limit())
	if err != nil {
		response.Failure(c, err)
		return
	}
	response.Success(c, page)
}

// CreateBookmark 收藏推文
// @Summary 收藏
// @Tags 收藏
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body bookmarkRequest true "推文"
// @Success 201 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/bookmarks [post]
func (h *Handler) CreateBookmark(c *gin.Context) {
	var req bookmarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	b, err := h.bookmarks.Create(c.Request.Context(), viewer(c), req.TweetID)
	if err != nil {
		response.Failure(c, err)
		return
	}
	response.Created(c, b)
}

// DeleteBookmark 取消收藏
// @Summary 取消收藏
// @Tags 收藏
// @Security BearerAuth
// @Param tweet_id path string true "推文ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/bookmarks/{tweet_id} [delete]
func (h *Handler) DeleteBookmark(c *gin.Context) {
	if err := h.bookmarks.Delete(c.Request.Context(), viewer(c), c.Param("tweet_id")); err != nil {
		response.Failure(c, err)
		return
	}
	response.Success(c, nil)
}
