package httpserver

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ourofino-storefront/internal/gateway/identity"
)

const maxWebhookBody = 1 << 20

// identityWebhook mirrors identity provider user events into the customer
// directory. Once the signature checks out the provider always gets 200;
// mirroring failures are only logged.
func (h *handlers) identityWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, "unreadable body")
		return
	}
	if h.deps.Webhooks == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "webhooks not configured"})
		return
	}
	if err := h.deps.Webhooks.Verify(c.Request.Header, body); err != nil {
		h.logger.Warn("webhook signature rejected", zap.Error(err))
		badRequest(c, "invalid signature")
		return
	}
	ev, err := identity.ParseEvent(body)
	if err != nil {
		badRequest(c, "invalid event")
		return
	}
	if err := h.deps.Customers.MirrorIdentityEvent(c.Request.Context(), ev); err != nil {
		h.logger.Error("mirror identity event",
			zap.String("type", ev.Type),
			zap.String("user", ev.User.UserID),
			zap.Error(err),
		)
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
