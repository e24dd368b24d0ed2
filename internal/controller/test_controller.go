package controller

import (
	"proctora_backend/internal/service"
	"proctora_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type TestController struct {
	Tests *service.TestService
}

func NewTestController(tests *service.TestService) *TestController {
	return &TestController{Tests: tests}
}

// @Summary 考生可见的试卷列表
// @Tags 试卷
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/tests [get]
func (c *TestController) ListAvailable(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	tests, err := c.Tests.ListAvailableTests(user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, tests)
}
