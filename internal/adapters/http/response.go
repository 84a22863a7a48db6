package httpadapter

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
}

func respondOK(c *gin.Context, message string, data any) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

func respondFailure(c *gin.Context, status int, message string, detail any) {
	if detail == nil {
		detail = gin.H{}
	}
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: message, Error: detail})
}

func (rt *Router) respondError(c *gin.Context, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request_failed",
			zap.String("request_id", requestIDFromContext(c.Request.Context())),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	respondFailure(c, status, errorMessage(err, status), nil)
}
