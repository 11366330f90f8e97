package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/tweetfeed/pkg/response"
)

// Timeline 当前用户的时间线
// @Summary 时间线
// @Tags 信息流
// @Security BearerAuth
// @Produce json
// @Param limit query int false "每页数量，最大 25"
// @Param nextToken query string false "翻页游标"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/timeline [get]
func (h *Handler) Timeline(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	page, err := h.feed.Timeline(c.Request.Context(), viewer(c), q.cursor(), q.limit())
	if err != nil {
		response.Failure(c, err)
		return
	}
	response.Success(c, page)
}

// UserTweets 某用户发布的推文
// @Summary 用户推文
// @Tags 信息流
// @Security BearerAuth
// @Produce json
// @Param user_id path string true "用户ID"
// @Param limit query int false "每页数量，最大 25"
// @Param nextToken query string false "翻页游标"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/users/{user_id}/tweets [get]
func (h *Handler) UserTweets(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	page, err := h.feed.UserTweets(c.Request.Context(), c.Param("user_id"), viewer(c), q.cursor(), q.limit())
	if err != nil {
		response.Failure(c, err)
		return
	}
	response.Success(c, page)
}
