package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/lease_go_server/internal/analysis"
	"github.com/qs3c/lease_go_server/internal/pkg/response"
	"github.com/qs3c/lease_go_server/internal/service"
)

// writeError 把 service 层错误映射为响应码
func writeError(c *gin.Context, err error) {
	var ve *analysis.ValidationError
	switch {
	case errors.As(err, &ve):
		response.ParamError(c, ve.Error())
	case errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidFormat),
		errors.Is(err, service.ErrInvalidPriority),
		errors.Is(err, service.ErrEmptyFile):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrFileTooLarge):
		response.FileTooLargeError(c, err.Error())
	case errors.Is(err, service.ErrJobNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrJobPermission):
		response.PermissionError(c, err.Error())
	case errors.Is(err, service.ErrJobNotRetryable),
		errors.Is(err, service.ErrJobNotCancellable),
		errors.Is(err, service.ErrJobNotCompleted):
		response.ConflictError(c, err.Error())
	case errors.Is(err, service.ErrRetryLimit):
		response.RetryLimitError(c, err.Error())
	default:
		_ = c.Error(err)
		response.ServerError(c, "")
	}
}
