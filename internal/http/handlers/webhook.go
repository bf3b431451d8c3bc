package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meravakil/meravakil-backend/internal/http/response"
	"github.com/meravakil/meravakil-backend/internal/observability"
	"github.com/meravakil/meravakil-backend/internal/platform/dbctx"
	"github.com/meravakil/meravakil-backend/internal/platform/identity"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
	"github.com/meravakil/meravakil-backend/internal/services"
)

// maxWebhookBody caps the payload read before signature verification.
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	log      *logger.Logger
	verifier identity.WebhookVerifier
	users    services.UserService
	metrics  *observability.Metrics
}

func NewWebhookHandler(log *logger.Logger, verifier identity.WebhookVerifier, users services.UserService, metrics *observability.Metrics) *WebhookHandler {
	return &WebhookHandler{
		log:      log.With("handler", "WebhookHandler"),
		verifier: verifier,
		users:    users,
		metrics:  metrics,
	}
}

// POST /api/webhook
func (h *WebhookHandler) Receive(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("could not read body"))
		return
	}
	evt, err := h.verifier.Verify(payload, c.Request.Header)
	if err != nil {
		h.log.Warn("Webhook rejected", "error", err)
		h.metrics.IncWebhookEvent("unknown", "rejected")
		response.RespondServiceError(c, h.log, err, "webhook_failed", "could not process webhook")
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	outcome, err := h.users.HandleEvent(dbc, evt)
	if err != nil {
		h.metrics.IncWebhookEvent(evt.Type, "error")
		response.RespondServiceError(c, h.log, err, "webhook_failed", "could not process webhook")
		return
	}
	h.metrics.IncWebhookEvent(evt.Type, outcome)
	response.RespondOK(c, gin.H{"status": outcome})
}
