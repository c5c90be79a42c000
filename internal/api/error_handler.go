package api

import (
	"errors"
	"net/http"

	"github.com/Kaz-z/impact-engine-report-builder/internal/auth"
	"github.com/Kaz-z/impact-engine-report-builder/internal/blobstore"
	"github.com/Kaz-z/impact-engine-report-builder/internal/service"
	"github.com/Kaz-z/impact-engine-report-builder/internal/utils"
	"github.com/Kaz-z/impact-engine-report-builder/internal/workflow"
	"github.com/gin-gonic/gin"
)

// APIError API 错误
type APIError struct {
	Code    int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	return e.Message
}

// ErrorHandlerMiddleware 错误处理中间件
// 处理器通过 c.Error 记录错误且未写响应时统一输出
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			Error(c, apiErr.Code, apiErr.Message, apiErr.Detail)
			return
		}
		Error(c, http.StatusInternalServerError, "internal server error", "")
	}
}

// WrapError 包装错误
func WrapError(err error, code int, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Detail:  err.Error(),
	}
}

// HandleServiceError 把服务层错误转换为 HTTP 响应
func HandleServiceError(c *gin.Context, err error) {
	var (
		validationErr *workflow.ValidationError
		paramErr      *utils.ValidationError
		apiErr        *APIError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, ValidationErrorResponse{
			Code:       http.StatusUnprocessableEntity,
			Message:    err.Error(),
			Violations: validationErr.ByStep(),
		})
	case errors.As(err, &apiErr):
		Error(c, apiErr.Code, apiErr.Message, apiErr.Detail)
	case errors.As(err, &paramErr):
		Error(c, http.StatusBadRequest, paramErr.Message, paramErr.Code)
	case errors.Is(err, workflow.ErrInvalidKey):
		Error(c, http.StatusBadRequest, "invalid report key", err.Error())
	case errors.Is(err, workflow.ErrNotFound):
		Error(c, http.StatusNotFound, "report not found", "")
	case errors.Is(err, workflow.ErrInvalidState):
		Error(c, http.StatusConflict, "operation not allowed in current state", err.Error())
	case errors.Is(err, workflow.ErrConflict):
		Error(c, http.StatusConflict, "report was modified concurrently", err.Error())
	case errors.Is(err, auth.ErrUnauthenticated):
		Error(c, http.StatusUnauthorized, "unauthorized", "")
	case errors.Is(err, auth.ErrForbidden):
		Error(c, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, blobstore.ErrUnsupportedType):
		Error(c, http.StatusUnsupportedMediaType, "unsupported file type", err.Error())
	case errors.Is(err, service.ErrFileTooLarge):
		Error(c, http.StatusRequestEntityTooLarge, "file too large", "")
	case errors.Is(err, workflow.ErrStoreFailure):
		GetLogger().WithError(err).WithField("request_id", c.GetString("request_id")).Error("store failure")
		Error(c, http.StatusServiceUnavailable, "storage unavailable", "")
	default:
		GetLogger().WithError(err).WithField("request_id", c.GetString("request_id")).Error("unhandled service error")
		Error(c, http.StatusInternalServerError, "internal server error", "")
	}
}
