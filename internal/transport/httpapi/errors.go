package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Freeeeeet/class_scheduler/internal/apperrors"
)

// StatusOf сопоставляет вид ошибки HTTP-статусу
func StatusOf(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindPastCutover, apperrors.KindInvalidRule, apperrors.KindMalformedRule:
		return http.StatusUnprocessableEntity
	case apperrors.KindValidation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// handleError отвечает ошибкой приложения; внутренние ошибки логируются и не раскрываются клиенту
func (h *Handler) handleError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	status := StatusOf(kind)

	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		message = "internal server error"
	}

	c.AbortWithStatusJSON(status, APIResponse{
		Error: &ErrorDetail{Kind: kind, Message: message},
	})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, APIResponse{
		Error: &ErrorDetail{Kind: apperrors.KindValidation, Message: message},
	})
}
