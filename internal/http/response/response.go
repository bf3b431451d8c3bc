package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meravakil/meravakil-backend/internal/platform/apierr"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondServiceError maps a service error onto the envelope. Internal
// failures are logged and reported with the fixed message so the cause
// never reaches the client.
func RespondServiceError(c *gin.Context, log *logger.Logger, err error, code, message string) {
	status, errCode := apierr.Classify(err, code)
	switch status {
	case http.StatusInternalServerError:
		if log != nil {
			log.Error(message, "error", err, "path", c.FullPath())
		}
		RespondError(c, status, errCode, errors.New(message))
	case http.StatusNotFound:
		RespondError(c, status, errCode, errors.New("chat not found"))
	default:
		RespondError(c, status, errCode, err)
	}
}
