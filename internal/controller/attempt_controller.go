package controller

import (
	"encoding/json"
	"errors"

	"proctora_backend/internal/model"
	"proctora_backend/internal/service"
	"proctora_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	Attempts *service.AttemptService
	Tests    *service.TestService
}

func NewAttemptController(attempts *service.AttemptService, tests *service.TestService) *AttemptController {
	return &AttemptController{Attempts: attempts, Tests: tests}
}

// respondAttemptError 把服务层错误映射为稳定的 HTTP 响应。
// 归属不符按 401 处理，不泄露他人考试是否存在。
func respondAttemptError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrAttemptNotFound),
		errors.Is(err, util.ErrTestNotFound),
		errors.Is(err, util.ErrQuestionNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrAttemptExpired),
		errors.Is(err, util.ErrAlreadySubmitted),
		errors.Is(err, util.ErrTestNotPublished),
		errors.Is(err, util.ErrInvalidViolationType):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, util.ErrNotOwner):
		util.Unauthorized(ctx)
	default:
		util.LogInternalError(ctx, err)
	}
}

// @Summary 开始考试
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "试卷ID"
// @Success 200 {object} util.Response
// @Router /api/tests/{id}/start [post]
func (c *AttemptController) Start(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	testID := ctx.Param("id")

	if user.Role != model.Admin {
		ok, err := c.Tests.CanTakeTest(user.UserID, testID)
		if err != nil {
			util.LogInternalError(ctx, err)
			return
		}
		if !ok {
			util.Forbidden(ctx)
			return
		}
	}

	attempt, alreadyActive, err := c.Attempts.Start(ctx.Request.Context(), testID, user.UserID)
	if err != nil {
		respondAttemptError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"attempt": attempt, "alreadyActive": alreadyActive})
}

// @Summary 考试进行中的渲染数据（题目已脱敏）
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "考试ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/play [get]
func (c *AttemptController) Play(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	view, err := c.Attempts.GetPlayableView(ctx.Request.Context(), ctx.Param("id"), user.UserID, user.Role == model.Admin)
	if err != nil {
		respondAttemptError(ctx, err)
		return
	}

	util.Success(ctx, view)
}

type SaveAnswerReq struct {
	QuestionID  string          `json:"questionId" binding:"required"`
	GivenAnswer json.RawMessage `json:"givenAnswer"`
}

// @Summary 自动保存作答
// @Tags 考试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "考试ID"
// @Param body body SaveAnswerReq true "作答"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/answer [put]
func (c *AttemptController) SaveAnswer(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req SaveAnswerReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	err := c.Attempts.SaveAnswer(ctx.Request.Context(), ctx.Param("id"), user.UserID, req.QuestionID, req.GivenAnswer)
	if err != nil {
		respondAttemptError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"saved": true})
}

type ViolationReq struct {
	Type model.ViolationType `json:"type" binding:"required"`
}

// @Summary 上报违规
// @Tags 考试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "考试ID"
// @Param body body ViolationReq true "违规类型"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/violation [post]
func (c *AttemptController) RecordViolation(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req ViolationReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	status, err := c.Attempts.RecordViolation(ctx.Request.Context(), ctx.Param("id"), user.UserID, req.Type)
	if err != nil {
		respondAttemptError(ctx, err)
		return
	}

	util.Success(ctx, status)
}

// @Summary 查询违规记录
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "考试ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/violations [get]
func (c *AttemptController) GetViolations(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	status, err := c.Attempts.GetViolations(ctx.Request.Context(), ctx.Param("id"), user.UserID, user.Role == model.Admin)
	if err != nil {
		respondAttemptError(ctx, err)
		return
	}

	util.Success(ctx, status)
}

// @Summary 交卷（幂等）
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "考试ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/submit [post]
func (c *AttemptController) Submit(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	err := c.Attempts.Submit(ctx.Request.Context(), ctx.Param("id"), user.UserID, user.Role == model.Admin)
	if err != nil {
		respondAttemptError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"submitted": true})
}

// @Summary 查询成绩（受披露策略约束）
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "考试ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/result [get]
func (c *AttemptController) GetResult(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	result, err := c.Attempts.GetResult(ctx.Request.Context(), ctx.Param("id"), user.UserID, user.Role == model.Admin)
	if err != nil {
		respondAttemptError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

// @Summary 我的考试记录
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/attempts [get]
func (c *AttemptController) ListMyAttempts(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	attempts, err := c.Attempts.ListMyAttempts(user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, attempts)
}
