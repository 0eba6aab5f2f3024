package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/lease_go_server/internal/api/middleware"
	"github.com/qs3c/lease_go_server/internal/model/dto"
	"github.com/qs3c/lease_go_server/internal/pkg/response"
	"github.com/qs3c/lease_go_server/internal/service"
)

type JobHandler struct {
	jobService     *service.JobService
	maxUploadBytes int64
}

func NewJobHandler(jobService *service.JobService, maxUploadBytes int64) *JobHandler {
	return &JobHandler{
		jobService:     jobService,
		maxUploadBytes: maxUploadBytes,
	}
}

// Submit 上传文档创建后台任务
// POST /api/v1/jobs
func (h *JobHandler) Submit(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	form, err := readUploadForm(c, h.maxUploadBytes)
	if err != nil {
		if errors.Is(err, errMissingFile) {
			response.ParamError(c, err.Error())
			return
		}
		writeError(c, err)
		return
	}

	job, err := h.jobService.Submit(c.Request.Context(), userID, &service.SubmitJobInput{
		Filename:   form.Filename,
		FileType:   form.FileType,
		Data:       form.Data,
		Question:   form.Question,
		BuildingID: form.BuildingID,
		Priority:   form.Priority,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	response.SuccessWithMessage(c, "任务已创建", dto.SubmitJobResponse{
		JobID:    job.ID,
		Status:   job.Status,
		Priority: job.Priority,
	})
}

// List 获取任务列表
// GET /api/v1/jobs
func (h *JobHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	items, total, err := h.jobService.List(c.Request.Context(), userID, c.Query("status"), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// Stats 最近 hours 小时的任务统计
// GET /api/v1/jobs/stats
func (h *JobHandler) Stats(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	hours, err := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if err != nil {
		response.ParamError(c, "无效的 hours")
		return
	}

	stats, err := h.jobService.Stats(c.Request.Context(), userID, hours)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, stats)
}

// Get 获取任务详情
// GET /api/v1/jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	detail, err := h.jobService.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, detail)
}

// Result 获取任务结果
// GET /api/v1/jobs/:id/result
func (h *JobHandler) Result(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	results, err := h.jobService.Result(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, results)
}

// Download 下载提取文本或分析报告
// GET /api/v1/jobs/:id/download?format=text|analysis|full|json
func (h *JobHandler) Download(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	file, err := h.jobService.Download(c.Request.Context(), userID, c.Param("id"), c.Query("format"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

// Retry 重试失败任务
// POST /api/v1/jobs/:id/retry
func (h *JobHandler) Retry(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	resp, err := h.jobService.Retry(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	response.SuccessWithMessage(c, "任务已重新排队", resp)
}

// Cancel 取消任务
// POST /api/v1/jobs/:id/cancel
func (h *JobHandler) Cancel(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	resp, err := h.jobService.Cancel(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, resp)
}
