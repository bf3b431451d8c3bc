package identity

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/meravakil/meravakil-backend/internal/platform/apierr"
)

// WebhookEvent is the envelope Clerk posts for user lifecycle events.
type WebhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type EmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// UserData is the subset of Clerk's user object the backend stores.
type UserData struct {
	ID                    string         `json:"id"`
	FirstName             string         `json:"first_name"`
	LastName              string         `json:"last_name"`
	ImageURL              string         `json:"image_url"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	EmailAddresses        []EmailAddress `json:"email_addresses"`
	Deleted               bool           `json:"deleted"`
}

// PrimaryEmail resolves primary_email_address_id, falling back to the first address.
func (u UserData) PrimaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

type WebhookVerifier interface {
	Verify(payload []byte, headers http.Header) (*WebhookEvent, error)
}

type svixVerifier struct {
	wh *svix.Webhook
}

// NewWebhookVerifier takes the endpoint's signing secret ("whsec_...").
func NewWebhookVerifier(secret string) (WebhookVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("CLERK_WEBHOOK_SECRET is required")
	}
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("init webhook verifier: %w", err)
	}
	return &svixVerifier{wh: wh}, nil
}

func (v *svixVerifier) Verify(payload []byte, headers http.Header) (*WebhookEvent, error) {
	if err := v.wh.Verify(payload, headers); err != nil {
		return nil, fmt.Errorf("%w: webhook signature: %v", apierr.ErrUnauthorized, err)
	}
	var evt WebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, apierr.Invalid("payload", err.Error())
	}
	if strings.TrimSpace(evt.Type) == "" {
		return nil, apierr.Invalid("type", "is required")
	}
	return &evt, nil
}
