package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/remediarr/remediarr/internal/config"
	"github.com/remediarr/remediarr/internal/domain"
	"github.com/remediarr/remediarr/internal/logger"
)

// maxWebhookBody caps the accepted webhook payload size.
const maxWebhookBody = 1 << 20 // 1 MiB

// handleJellyseerrWebhook authenticates a Jellyseerr issue webhook and hands
// it to the orchestrator via the event bus. After authentication the answer
// is always 200: Jellyseerr retries non-2xx responses, and a delivery we
// chose to skip must not be redelivered.
func (s *RESTServer) handleJellyseerrWebhook(c *gin.Context) {
	rawBody, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		respondBadRequest(c, err, false)
		return
	}

	cfg := config.Get()
	if !verifyStaticHeader(c, cfg) || !verifySignature(c, cfg, rawBody) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	deliveryID := uuid.NewString()
	if err := s.eventBus.Publish(domain.Event{
		AggregateType: "delivery",
		AggregateID:   deliveryID,
		EventType:     domain.WebhookReceived,
		EventData: map[string]interface{}{
			"delivery_id": deliveryID,
			"raw_body":    string(rawBody),
		},
	}); err != nil {
		logger.Errorf("Webhook: failed to publish delivery %s: %v", deliveryID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": ErrMsgInternalError})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "delivery_id": deliveryID})
}

// verifyStaticHeader checks the configured shared header. Disabled when no
// header value is configured.
func verifyStaticHeader(c *gin.Context, cfg *config.Config) bool {
	if cfg.WebhookHeaderValue == "" {
		return true
	}
	got := c.GetHeader(cfg.WebhookHeaderName)
	if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.WebhookHeaderValue)) != 1 {
		logger.Debugf("Webhook rejected: header %s mismatch", cfg.WebhookHeaderName)
		return false
	}
	return true
}

// verifySignature checks the HMAC-SHA256 signature over the raw body.
// Disabled when no shared secret is configured.
func verifySignature(c *gin.Context, cfg *config.Config, rawBody []byte) bool {
	if cfg.WebhookSharedSecret == "" {
		return true
	}

	header := c.GetHeader("X-Jellyseerr-Signature")
	encoded, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		logger.Debugf("Webhook rejected: missing or malformed signature header")
		return false
	}
	got, err := hex.DecodeString(encoded)
	if err != nil {
		logger.Debugf("Webhook rejected: signature is not hex")
		return false
	}

	mac := hmac.New(sha256.New, []byte(cfg.WebhookSharedSecret))
	mac.Write(rawBody)
	if !hmac.Equal(got, mac.Sum(nil)) {
		logger.Debugf("Webhook rejected: signature mismatch")
		return false
	}
	return true
}
