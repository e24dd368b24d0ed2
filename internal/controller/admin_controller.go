package controller

import (
	"errors"
	"path/filepath"
	"strconv"
	"strings"

	"proctora_backend/internal/model"
	"proctora_backend/internal/service"
	"proctora_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// AdminController 试卷/题库/分组的管理端维护与成绩总览
type AdminController struct {
	Tests    *service.TestService
	Batches  *service.BatchService
	Attempts *service.AttemptService
	Storage  *service.StorageService
}

func NewAdminController(tests *service.TestService, batches *service.BatchService, attempts *service.AttemptService, storage *service.StorageService) *AdminController {
	return &AdminController{Tests: tests, Batches: batches, Attempts: attempts, Storage: storage}
}

// @Summary 创建试卷
// @Tags 管理端
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body service.TestReq true "试卷信息"
// @Success 201 {object} util.Response
// @Router /api/admin/tests [post]
func (c *AdminController) CreateTest(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.TestReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	test, err := c.Tests.CreateTest(user.UserID, req)
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	util.Created(ctx, test)
}

// @Summary 更新试卷
// @Tags 管理端
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "试卷ID"
// @Param body body service.TestReq true "试卷信息"
// @Success 200 {object} util.Response
// @Router /api/admin/tests/{id} [put]
func (c *AdminController) UpdateTest(ctx *gin.Context) {
	var req service.TestReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	test, err := c.Tests.UpdateTest(ctx.Param("id"), req)
	if err != nil {
		if errors.Is(err, util.ErrTestNotFound) {
			util.NotFound(ctx)
			return
		}
		util.BadRequest(ctx, err.Error())
		return
	}

	util.Success(ctx, test)
}

// @Summary 试卷列表
// @Tags 管理端
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response
// @Router /api/admin/tests [get]
func (c *AdminController) ListTests(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	tests, total, err := c.Tests.ListTests(page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"items": tests, "total": total})
}

// @Summary 试卷详情（含题目与标准答案）
// @Tags 管理端
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "试卷ID"
// @Success 200 {object} util.Response
// @Router /api/admin/tests/{id} [get]
func (c *AdminController) GetTest(ctx *gin.Context) {
	test, qs, err := c.Tests.GetTest(ctx.Param("id"))
	if err != nil {
		if errors.Is(err, util.ErrTestNotFound) {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"test": test, "questions": qs})
}

// @Summary 删除试卷
// @Tags 管理端
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "试卷ID"
// @Success 200 {object} util.Response
// @Router /api/admin/tests/{id} [delete]
func (c *AdminController) DeleteTest(ctx *gin.Context) {
	if err := c.Tests.DeleteTest(ctx.Param("id")); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"deleted": true})
}

// @Summary 添加题目
// @Tags 管理端
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "试卷ID"
// @Param body body service.QuestionReq true "题目"
// @Success 201 {object} util.Response
// @Router /api/admin/tests/{id}/questions [post]
func (c *AdminController) AddQuestion(ctx *gin.Context) {
	var req service.QuestionReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	q, err := c.Tests.AddQuestion(ctx.Param("id"), req)
	if err != nil {
		if errors.Is(err, util.ErrTestNotFound) {
			util.NotFound(ctx)
			return
		}
		util.BadRequest(ctx, err.Error())
		return
	}

	util.Created(ctx, q)
}

// @Summary 更新题目
// @Tags 管理端
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param questionId path string true "题目ID"
// @Param body body service.QuestionReq true "题目"
// @Success 200 {object} util.Response
// @Router /api/admin/questions/{questionId} [put]
func (c *AdminController) UpdateQuestion(ctx *gin.Context) {
	var req service.QuestionReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	q, err := c.Tests.UpdateQuestion(ctx.Param("questionId"), req)
	if err != nil {
		if errors.Is(err, util.ErrQuestionNotFound) {
			util.NotFound(ctx)
			return
		}
		util.BadRequest(ctx, err.Error())
		return
	}

	util.Success(ctx, q)
}

// @Summary 删除题目
// @Tags 管理端
// @Produce json
// @Security ApiKeyAuth
// @Param questionId path string true "题目ID"
// @Success 200 {object} util.Response
// @Router /api/admin/questions/{questionId} [delete]
func (c *AdminController) DeleteQuestion(ctx *gin.Context) {
	if err := c.Tests.DeleteQuestion(ctx.Param("questionId")); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"deleted": true})
}

// @Summary 上传题目图片
// @Tags 管理端
// @Accept multipart/form-data
// @Produce json
// @Security ApiKeyAuth
// @Param file formData file true "图片文件"
// @Success 200 {object} util.Response
// @Router /api/admin/questions/images [post]
func (c *AdminController) UploadQuestionImage(ctx *gin.Context) {
	file, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	allowed := false
	for _, e := range util.AllowedImageExtensions {
		if ext == e {
			allowed = true
			break
		}
	}
	if !allowed {
		util.BadRequest(ctx, "unsupported image type")
		return
	}

	src, err := file.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer src.Close()

	filename := "questions/" + model.GenerateUUID() + ext
	url, err := c.Storage.Provider.Upload(ctx.Request.Context(), filename, src, file.Size, file.Header.Get("Content-Type"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"url": url})
}

type BatchReq struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// @Summary 创建分组
// @Tags 管理端
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body BatchReq true "分组"
// @Success 201 {object} util.Response
// @Router /api/admin/batches [post]
func (c *AdminController) CreateBatch(ctx *gin.Context) {
	var req BatchReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	batch, err := c.Batches.Create(req.Name, req.Description)
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	util.Created(ctx, batch)
}

// @Summary 分组列表
// @Tags 管理端
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/admin/batches [get]
func (c *AdminController) ListBatches(ctx *gin.Context) {
	batches, err := c.Batches.List()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, batches)
}

// @Summary 删除分组
// @Tags 管理端
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "分组ID"
// @Success 200 {object} util.Response
// @Router /api/admin/batches/{id} [delete]
func (c *AdminController) DeleteBatch(ctx *gin.Context) {
	if err := c.Batches.Delete(ctx.Param("id")); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"deleted": true})
}

// @Summary 分组添加成员
// @Tags 管理端
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "分组ID"
// @Param userId path int true "用户ID"
// @Success 200 {object} util.Response
// @Router /api/admin/batches/{id}/users/{userId} [post]
func (c *AdminController) AddBatchUser(ctx *gin.Context) {
	userID := util.MustParseUint(ctx.Param("userId"))
	if err := c.Batches.AddUser(ctx.Param("id"), userID); err != nil {
		if errors.Is(err, util.ErrBatchNotFound) {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"added": true})
}

// @Summary 分组移除成员
// @Tags 管理端
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "分组ID"
// @Param userId path int true "用户ID"
// @Success 200 {object} util.Response
// @Router /api/admin/batches/{id}/users/{userId} [delete]
func (c *AdminController) RemoveBatchUser(ctx *gin.Context) {
	userID := util.MustParseUint(ctx.Param("userId"))
	if err := c.Batches.RemoveUser(ctx.Param("id"), userID); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"removed": true})
}

// @Summary 某试卷的全部考试记录
// @Tags 管理端
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "试卷ID"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response
// @Router /api/admin/tests/{id}/results [get]
func (c *AdminController) ListTestResults(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	attempts, total, err := c.Attempts.ListTestResults(ctx.Param("id"), page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"items": attempts, "total": total})
}

// @Summary 清空某考试的违规记录（人工豁免）
// @Tags 管理端
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "考试ID"
// @Success 200 {object} util.Response
// @Router /api/admin/attempts/{id}/violations [delete]
func (c *AdminController) ResetViolations(ctx *gin.Context) {
	if err := c.Attempts.ResetViolations(ctx.Request.Context(), ctx.Param("id")); err != nil {
		if errors.Is(err, util.ErrAttemptNotFound) {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"reset": true})
}
