package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/meravakil/meravakil-backend/internal/http/response"
	"github.com/meravakil/meravakil-backend/internal/platform/ctxutil"
	"github.com/meravakil/meravakil-backend/internal/platform/identity"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
)

var errUnauthorized = errors.New("missing or invalid token")

type AuthMiddleware struct {
	log      *logger.Logger
	verifier identity.Verifier
}

func NewAuthMiddleware(log *logger.Logger, verifier identity.Verifier) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("Middleware", "AuthMiddleware"), verifier: verifier}
}

// RequireAuth verifies the session token and attaches the caller to the
// request context.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", errUnauthorized)
			c.Abort()
			return
		}
		claims, err := am.verifier.Verify(c.Request.Context(), token)
		if err != nil || claims == nil || claims.Subject == "" {
			am.log.Debug("Session rejected", "error", err)
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", errUnauthorized)
			c.Abort()
			return
		}
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{
			UserID:    claims.Subject,
			SessionID: claims.SessionID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
