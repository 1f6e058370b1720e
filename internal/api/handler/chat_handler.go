package handler

import (
	"Huddle/internal/api/dto"
	"Huddle/internal/pkg/response"
	"Huddle/internal/service"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct{}

func NewChatHandler() *ChatHandler {
	return &ChatHandler{}
}

func (s *ChatHandler) Ping(c *gin.Context) {
	response.Success(c, "pong")
}

// DMKey returns the conversation id shared by two users.
func (s *ChatHandler) DMKey(c *gin.Context) {
	var req dto.DMKeyReq
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if req.A == req.B {
		response.Error(c, service.ErrInvalidTarget)
		return
	}
	response.Success(c, dto.DMKeyDTO{Key: service.DMKey(req.A, req.B)})
}
