package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/clerk/clerk-sdk-go/v2"
	svix "github.com/svix/svix-webhooks/go"

	"ourofino-storefront/internal/domain"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// WebhookVerifier checks svix-signed deliveries, including the timestamp
// tolerance.
type WebhookVerifier struct {
	wh *svix.Webhook
}

// NewWebhookVerifier accepts the secret with or without the "whsec_" prefix.
func NewWebhookVerifier(secret string) (*WebhookVerifier, error) {
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("decode webhook secret: %w", err)
	}
	return &WebhookVerifier{wh: wh}, nil
}

// Verify checks the svix-id, svix-timestamp and svix-signature headers
// against body.
func (v *WebhookVerifier) Verify(h http.Header, body []byte) error {
	if err := v.wh.Verify(body, h); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// ParseEvent decodes a verified webhook body.
func ParseEvent(body []byte) (domain.IdentityEvent, error) {
	var env struct {
		Type string     `json:"type"`
		Data clerk.User `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.IdentityEvent{}, fmt.Errorf("decode webhook event: %w", err)
	}
	return domain.IdentityEvent{Type: env.Type, User: toIdentity(&env.Data)}, nil
}
