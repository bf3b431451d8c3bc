package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meravakil/meravakil-backend/internal/http/response"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
)

// Recovery turns a handler panic into a 500 envelope.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		if log != nil {
			log.Error("Panic recovered", "panic", recovered, "path", c.Request.URL.Path)
		}
		response.RespondError(c, http.StatusInternalServerError, "internal_error", errors.New("internal server error"))
		c.Abort()
	})
}
