package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/tweetfeed/pkg/response"
)

type followRequest struct {
	ToUserID string `json:"to_user_id" binding:"required"`
}

// Follow 当前用户关注 to_user_id（粉丝表异步冗余）
// @Summary 关注用户
// @Tags 关系链
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body followRequest true "关注对象"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/relations/follow [post]
func (h *Handler) Follow(c *gin.Context) {
	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.relService.Follow(c.Request.Context(), viewer(c), req.ToUserID); err != nil {
		response.Failure(c, err)
		return
	}
	response.Success(c, nil)
}

// Unfollow 取消关注
// @Summary 取消关注
// @Tags 关系链
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body followRequest true "取消关注对象"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/relations/unfollow [post]
func (h *Handler) Unfollow(c *gin.Context) {
	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.relService.Unfollow(c.Request.Context(), viewer(c), req.ToUserID); err != nil {
		response.Failure(c, err)
		return
	}
	response.Success(c, nil)
}

// ListFollowings 查询某用户关注的人
// @Summary 查询关注列表
// @Tags 关系链
// @Security BearerAuth
// @Produce json
// @Param user_id path string true "用户ID"
// @Param limit query int false "每页数量，最大 25"
// @Param nextToken query string false "翻页游标"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/relations/{user_id}/followings [get]
func (h *Handler) ListFollowings(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	page, err := h.feed.Followings(c.Request.Context(), c.Param("user_id"), viewer(c), q.cursor(), q.limit())
	if err != nil {
		response.Failure(c, err)
		return
	}
	response.Success(c, page)
}

// ListFollowers 查询某用户的粉丝
// @Summary 查询粉丝列表（来自冗余表）
// @Tags 关系链
// @Security BearerAuth
// @Produce json
// @Param user_id path string true "用户ID"
// @Param limit query int false "每页数量，最大 25"
// @Param nextToken query string false "翻页游标"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/relations/{user_id}/followers [get]
func (h *Handler) ListFollowers(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	page, err := h.feed.Followers(c.Request.Context(), c.Param("user_id"), viewer(c), q.cursor(), q.limit())
	if err != nil {
		response.Failure(c, err)
		return
	}
	response.Success(c, page)
}
