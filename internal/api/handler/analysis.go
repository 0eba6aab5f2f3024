package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/lease_go_server/internal/api/middleware"
	"github.com/qs3c/lease_go_server/internal/model/dto"
	"github.com/qs3c/lease_go_server/internal/pkg/response"
	"github.com/qs3c/lease_go_server/internal/service"
)

type AnalysisHandler struct {
	analysisService *service.AnalysisService
	maxUploadBytes  int64
}

func NewAnalysisHandler(analysisService *service.AnalysisService, maxUploadBytes int64) *AnalysisHandler {
	return &AnalysisHandler{
		analysisService: analysisService,
		maxUploadBytes:  maxUploadBytes,
	}
}

// Analyze 对已提取的文本即时回答问题
// POST /api/v1/analyze
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	var req dto.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	result, err := h.analysisService.QuickAnalyze(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// SubmitDocument 上传文档并提问，按路由结果即时分析或转入后台
// POST /api/v1/documents
func (h *AnalysisHandler) SubmitDocument(c *gin.Context) {
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

	resp, err := h.analysisService.SubmitDocument(c.Request.Context(), userID, &service.SubmitDocumentInput{
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

	if resp.JobID != "" {
		response.SuccessWithMessage(c, resp.Message, resp)
		return
	}
	response.Success(c, resp)
}
