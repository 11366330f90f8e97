package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/service"
	"github.com/d60-Lab/tweetfeed/pkg/response"
)

type createUserRequest struct {
	Name        string `json:"name" binding:"max=128"`
	Email       string `json:"email" binding:"required,email"`
	Username    string `json:"username" binding:"required,min=2,max=64"`
	Description string `json:"description" binding:"max=1024"`
	Image       string `json:"image" binding:"omitempty,url"`
}

// TokenIssuer 为新用户签发访问令牌
type TokenIssuer func(userID string) (string, error)

type createUserResponse struct {
	User  model.User `json:"user"`
	Token string     `json:"token,omitempty"`
}

// CreateUser 注册
// @Summary 注册用户
// @Tags 用户
// @Accept json
// @Produce json
// @Param request body createUserRequest true "用户信息"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/users [post]
func (h *Handler) CreateUser(issue TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		u, err := h.users.Create(c.Request.Context(), service.CreateUserInput{
			Name:        req.Name,
			Email:       req.Email,
			Username:    req.Username,
			Description: req.Description,
			Image:       req.Image,
		})
		if err != nil {
			response.Failure(c, err)
			return
		}
		out := createUserResponse{User: u}
		if issue != nil {
			if out.Token, err = issue(u.ID); err != nil {
				response.InternalError(c, err)
				return
			}
		}
		response.Created(c, out)
	}
}

// GetUser 用户资料
// @Summary 查询用户
// @Tags 用户
// @Security BearerAuth
// @Produce json
// @Param user_id path string true "用户ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/users/{user_id} [get]
func (h *Handler) GetUser(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), c.Param("user_id"), viewer(c))
	if err != nil {
		response.Failure(c, err)
		return
	}
	response.Success(c, u)
}
