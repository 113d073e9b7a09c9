package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/yeqown/go-qrcode"

	"github.com/gamevault/backend/internal/api/middleware"
	"github.com/gamevault/backend/internal/config"
	"github.com/gamevault/backend/internal/entitlement"
	"github.com/gamevault/backend/internal/models"
	"github.com/gamevault/backend/internal/payment"
	"github.com/gamevault/backend/internal/store"
)

// Gateway is the slice of the payment client the handlers need.
type Gateway interface {
	CreatePayment(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutResult, error)
	CheckStatus(ctx context.Context, invoiceNumber string) (string, error)
}

// Notifier sends the purchase confirmation after a success transition.
type Notifier interface {
	SendPurchaseConfirmation(receipt *models.PurchaseReceipt) error
}

const statusCacheTTL = 20 * time.Second

// Checkout guards the checkout page: unknown and free games are rejected and
// already-entitled users are short-circuited before any gateway involvement.
func Checkout(games *store.GameStore, resolver *entitlement.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		game, err := games.FindBySlug(c.Request.Context(), c.Param("slug"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Game not found"})
				return
			}
			log.Printf("[PAYMENT] Checkout lookup failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load checkout"})
			return
		}

		if game.IsFree() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "This game is free to play"})
			return
		}

		user := middleware.CurrentUser(c)
		entitled, err := resolver.CanAccess(c.Request.Context(), user, game)
		if err != nil {
			log.Printf("[PAYMENT] Entitlement check failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load checkout"})
			return
		}
		if entitled {
			c.JSON(http.StatusOK, gin.H{"already_owned": true, "game": game})
			return
		}

		c.JSON(http.StatusOK, gin.H{"already_owned": false, "game": game})
	}
}

// ProcessPaymentRequest is the purchase-initiation payload.
type ProcessPaymentRequest struct {
	GameSlug      string `json:"game_slug" binding:"required"`
	PaymentMethod string `json:"payment_method"`
}

// ProcessPayment creates the order at the gateway and persists the waiting
// transaction. Nothing is persisted when the gateway call fails.
func ProcessPayment(games *store.GameStore, txns *store.TransactionStore, gateway Gateway, resolver *entitlement.Resolver, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)

		var req ProcessPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "game_slug required"})
			return
		}

		ctx := c.Request.Context()

		game, err := games.FindBySlug(ctx, req.GameSlug)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Game not found"})
				return
			}
			log.Printf("[PAYMENT] Game lookup failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process payment"})
			return
		}

		if game.IsFree() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "This game is free to play"})
			return
		}

		entitled, err := resolver.CanAccess(ctx, user, game)
		if err != nil {
			log.Printf("[PAYMENT] Entitlement check failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process payment"})
			return
		}
		if entitled {
			c.JSON(http.StatusBadRequest, gin.H{"error": "You already own this game"})
			return
		}

		if cfg.PaymentSinglePending {
			active, err := txns.HasActiveOrder(ctx, user.ID, game.ID)
			if err != nil {
				log.Printf("[PAYMENT] Active order check failed: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process payment"})
				return
			}
			if active {
				c.JSON(http.StatusConflict, gin.H{"error": "A payment for this game is already in progress"})
				return
			}
		}

		orderID := payment.OrderID(user.ID)
		expiredAt := time.Now().Add(time.Duration(cfg.PaymentExpiryHours) * time.Hour)

		result, err := gateway.CreatePayment(ctx, payment.CheckoutRequest{
			InvoiceNumber:      orderID,
			Amount:             game.Price,
			Currency:           "IDR",
			PaymentDueMinutes:  cfg.PaymentExpiryHours * 60,
			PaymentMethodTypes: payment.MethodTypes(req.PaymentMethod),
			CustomerID:         strconv.Itoa(user.ID),
			CustomerName:       user.Name,
			CustomerEmail:      user.Email,
			CustomerPhone:      "628000000000",
			CustomerCountry:    "ID",
		})
		if err != nil {
			log.Printf("[PAYMENT] Gateway create failed: order=%s err=%v", orderID, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to process payment"})
			return
		}

		// The gateway may reassign the invoice number; fall back to ours
		invoiceNumber := result.InvoiceNumber
		if invoiceNumber == "" {
			invoiceNumber = orderID
		}

		txn := &models.Transaction{
			UserID:         user.ID,
			GameID:         game.ID,
			OrderID:        orderID,
			InvoiceNumber:  invoiceNumber,
			Amount:         game.Price,
			PaymentMethod:  req.PaymentMethod,
			PaymentChannel: req.PaymentMethod,
			Status:         models.StatusWaiting,
			PaymentURL:     nullString(result.PaymentURL),
			PaymentCode:    nullString(result.PaymentCode),
			QRCodeURL:      nullString(result.QRPayload),
			ExpiredAt:      expiredAt,
		}

		if err := txns.Create(ctx, txn); err != nil {
			// The order exists at the gateway but we lost the row; this is a
			// consistency fault, not something the buyer can fix.
			log.Printf("[PAYMENT] Failed to persist transaction: order=%s err=%v", orderID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process payment"})
			return
		}

		log.Printf("[PAYMENT] Order persisted: order=%s user=%d game=%d amount=%d", orderID, user.ID, game.ID, game.Price)

		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"order_id":     orderID,
			"redirect_url": "/payment/" + orderID + "/invoice",
		})
	}
}

// Invoice returns the transaction detail for the buyer's receipt page.
func Invoice(txns *store.TransactionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		txn, ok := loadOwnedTransaction(c, txns)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"transaction": txn})
	}
}

// StatusPage returns the locally stored status for the waiting screen.
func StatusPage(txns *store.TransactionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		txn, ok := loadOwnedTransaction(c, txns)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"order_id":   txn.OrderID,
			"status":     txn.Status,
			"expired_at": txn.ExpiredAt,
		})
	}
}

// CheckStatus is the client polling path. The local record wins once
// terminal; while non-terminal the gateway's live status is returned for
// display only. State writes stay with the callback handler.
func CheckStatus(txns *store.TransactionStore, gateway Gateway, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		txn, err := txns.FindByOrderID(ctx, c.Param("order_id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
				return
			}
			log.Printf("[PAYMENT] Status lookup failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check payment status"})
			return
		}

		if txn.IsTerminal() {
			c.JSON(http.StatusOK, gin.H{"status": txn.Status})
			return
		}

		// Throttle repeated polls against the gateway
		cacheKey := "doku_status:" + txn.InvoiceNumber
		if rdb != nil {
			if cached, err := rdb.Get(ctx, cacheKey).Result(); err == nil {
				c.JSON(http.StatusOK, gin.H{"status": cached})
				return
			}
		}

		live, err := gateway.CheckStatus(ctx, txn.InvoiceNumber)
		if err != nil {
			// Unknown, retry later: fall back to the last known local status
			log.Printf("[PAYMENT] Gateway status query failed: order=%s err=%v", txn.OrderID, err)
			c.JSON(http.StatusOK, gin.H{"status": txn.Status})
			return
		}

		live = strings.ToLower(live)
		if rdb != nil {
			rdb.Set(ctx, cacheKey, live, statusCacheTTL)
		}

		c.JSON(http.StatusOK, gin.H{"status": live})
	}
}

// History lists the session user's purchase attempts, newest first.
func History(txns *store.TransactionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)

		list, err := txns.ListForUser(c.Request.Context(), user.ID)
		if err != nil {
			log.Printf("[PAYMENT] History lookup failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load order history"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"transactions": list})
	}
}

// InvoiceQR renders the stored QR checkout payload as an image for QRIS orders.
func InvoiceQR(txns *store.TransactionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		txn, ok := loadOwnedTransaction(c, txns)
		if !ok {
			return
		}

		if !txn.QRCodeURL.Valid || txn.QRCodeURL.String == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "No QR payload for this order"})
			return
		}

		qrc, err := qrcode.New(txn.QRCodeURL.String)
		if err != nil {
			log.Printf("[PAYMENT] QR encode failed: order=%s err=%v", txn.OrderID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render QR"})
			return
		}

		var buf bytes.Buffer
		if err := qrc.SaveTo(&buf); err != nil {
			log.Printf("[PAYMENT] QR render failed: order=%s err=%v", txn.OrderID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render QR"})
			return
		}

		c.Data(http.StatusOK, "image/jpeg", buf.Bytes())
	}
}

func loadOwnedTransaction(c *gin.Context, txns *store.TransactionStore) (*models.Transaction, bool) {
	user := middleware.CurrentUser(c)

	txn, err := txns.FindByOrderID(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
			return nil, false
		}
		log.Printf("[PAYMENT] Transaction lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load transaction"})
		return nil, false
	}

	if user == nil || txn.UserID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Unauthorized access"})
		return nil, false
	}

	return txn, true
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
