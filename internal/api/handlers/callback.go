package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gamevault/backend/internal/config"
	"github.com/gamevault/backend/internal/models"
	"github.com/gamevault/backend/internal/payment"
	"github.com/gamevault/backend/internal/store"
)

// CallbackPayload is the gateway's server-to-server notification body.
type CallbackPayload struct {
	Order *struct {
		InvoiceNumber string `json:"invoice_number"`
	} `json:"order"`
	Transaction *struct {
		Status string `json:"status"`
	} `json:"transaction"`
}

// mapCallbackStatus translates the gateway's status vocabulary into internal
// states. Anything that is neither success nor a failure string is a
// non-terminal no-op: acknowledged but ignored.
func mapCallbackStatus(gatewayStatus string) (string, bool) {
	switch strings.ToLower(gatewayStatus) {
	case "success":
		return models.StatusSuccess, true
	case "failed", "failure":
		return models.StatusFailed, true
	default:
		return "", false
	}
}

// PaymentCallback processes the gateway's payment notification. The payload
// must reference a previously created order; callbacks never create state.
// Structurally valid payloads are always acknowledged with 200 so the gateway
// does not retry-storm us over no-op statuses.
func PaymentCallback(txns *store.TransactionStore, notifier Notifier, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawBody, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid callback data"})
			return
		}

		if cfg.PaymentVerifyCallback {
			if !verifyCallbackSignature(c, rawBody, cfg) {
				log.Printf("[WEBHOOK] Signature verification failed: client=%s", c.GetHeader("Client-Id"))
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
				return
			}
		}

		var payload CallbackPayload
		if err := json.Unmarshal(rawBody, &payload); err != nil {
			log.Printf("[WEBHOOK] Invalid payload: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid callback data"})
			return
		}

		if payload.Order == nil || payload.Transaction == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid callback data"})
			return
		}

		invoiceNumber := payload.Order.InvoiceNumber
		gatewayStatus := payload.Transaction.Status
		log.Printf("[WEBHOOK] Payment callback: invoice=%s status=%s", invoiceNumber, gatewayStatus)

		ctx := c.Request.Context()

		txn, err := txns.FindByInvoiceNumber(ctx, invoiceNumber)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				log.Printf("[WEBHOOK] Transaction not found: invoice=%s", invoiceNumber)
				c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
				return
			}
			log.Printf("[WEBHOOK] Lookup failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Callback processing failed"})
			return
		}

		newStatus, terminal := mapCallbackStatus(gatewayStatus)
		if !terminal {
			log.Printf("[WEBHOOK] Non-terminal status %q for order %s, acknowledged", gatewayStatus, txn.OrderID)
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}

		var paidAt *time.Time
		if newStatus == models.StatusSuccess {
			now := time.Now()
			paidAt = &now
		}

		applied, err := txns.UpdateStatus(ctx, txn.OrderID, newStatus, paidAt)
		if err != nil {
			log.Printf("[WEBHOOK] Status update failed: order=%s err=%v", txn.OrderID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Callback processing failed"})
			return
		}

		if !applied {
			// Duplicate or conflicting report for an already-terminal record.
			// The original terminal write stands; no re-notification.
			log.Printf("[WEBHOOK] Already processed: order=%s status=%s", txn.OrderID, txn.Status)
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}

		log.Printf("[WEBHOOK] Transaction %s -> %s", txn.OrderID, newStatus)

		if newStatus == models.StatusSuccess && notifier != nil {
			receipt, err := txns.Receipt(ctx, txn.OrderID)
			if err != nil {
				log.Printf("[WEBHOOK] Failed to load receipt for notification: order=%s err=%v", txn.OrderID, err)
			} else {
				// Best-effort; a send failure never rolls back the purchase
				go func() {
					if err := notifier.SendPurchaseConfirmation(receipt); err != nil {
						log.Printf("[WEBHOOK] Failed to send confirmation: order=%s err=%v", receipt.OrderID, err)
					}
				}()
			}
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// verifyCallbackSignature recomputes the HMAC signature over the raw body
// using the same scheme as outbound requests.
func verifyCallbackSignature(c *gin.Context, rawBody []byte, cfg *config.Config) bool {
	clientID := c.GetHeader("Client-Id")
	requestID := c.GetHeader("Request-Id")
	timestamp := c.GetHeader("Request-Timestamp")
	presented := c.GetHeader("Signature")

	if clientID != cfg.DokuClientID || presented == "" {
		return false
	}

	digest := payment.Digest(rawBody)
	return payment.VerifySignature(presented, clientID, requestID, timestamp, c.Request.URL.Path, digest, cfg.DokuSecretKey)
}
