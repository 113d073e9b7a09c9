package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamevault/backend/internal/config"
	"github.com/gamevault/backend/internal/models"
	"github.com/gamevault/backend/internal/payment"
	"github.com/gamevault/backend/internal/store"
)

type fakeNotifier struct {
	sent chan *models.PurchaseReceipt
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(chan *models.PurchaseReceipt, 4)}
}

func (f *fakeNotifier) SendPurchaseConfirmation(receipt *models.PurchaseReceipt) error {
	f.sent <- receipt
	return nil
}

func (f *fakeNotifier) waitForSend(t *testing.T) *models.PurchaseReceipt {
	t.Helper()
	select {
	case r := <-f.sent:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("notifier was not invoked")
		return nil
	}
}

func (f *fakeNotifier) assertNoSend(t *testing.T) {
	t.Helper()
	select {
	case <-f.sent:
		t.Fatalf("notifier invoked unexpectedly")
	case <-time.After(100 * time.Millisecond):
	}
}

func newMockTxnStore(t *testing.T) (*store.TransactionStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return store.NewTransactionStore(sqlx.NewDb(mockDB, "sqlmock")), mock
}

func callbackRouter(txns *store.TransactionStore, notifier Notifier, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/payment/callback", PaymentCallback(txns, notifier, cfg))
	return r
}

func txnColumns() []string {
	return []string{
		"id", "user_id", "game_id", "order_id", "invoice_number", "amount",
		"payment_method", "payment_channel", "status", "payment_url",
		"payment_code", "qr_code_url", "expired_at", "paid_at", "created_at", "updated_at",
	}
}

func waitingTxnRows(orderID string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(txnColumns()).AddRow(
		1, 42, 7, orderID, orderID, 50000,
		"QRIS", "QRIS", models.StatusWaiting, nil, nil, "00020101", now.Add(24*time.Hour), nil, now, now,
	)
}

func postCallback(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/payment/callback", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestCallbackRejectsMalformedPayload(t *testing.T) {
	txns, _ := newMockTxnStore(t)
	r := callbackRouter(txns, newFakeNotifier(), &config.Config{})

	for _, body := range []string{
		`{}`,
		`{"order":{"invoice_number":"X"}}`,
		`{"transaction":{"status":"SUCCESS"}}`,
		`not json`,
	} {
		w := postCallback(r, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body: %s", body)
	}
}

func TestCallbackUnknownInvoice(t *testing.T) {
	txns, mock := newMockTxnStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM transactions WHERE invoice_number=$1")).
		WithArgs("ORDER-missing").
		WillReturnRows(sqlmock.NewRows(txnColumns()))

	r := callbackRouter(txns, newFakeNotifier(), &config.Config{})
	w := postCallback(r, `{"order":{"invoice_number":"ORDER-missing"},"transaction":{"status":"SUCCESS"}}`)

	// A callback must reference a previously created order; never create one
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCallbackSuccessAppliesAndNotifiesOnce(t *testing.T) {
	txns, mock := newMockTxnStore(t)
	orderID := "ORDER-1700000000000-42"

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM transactions WHERE invoice_number=$1")).
		WithArgs(orderID).
		WillReturnRows(waitingTxnRows(orderID))
	mock.ExpectExec("UPDATE transactions").
		WithArgs(orderID, models.StatusSuccess, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now()
	receiptRows := sqlmock.NewRows(append(txnColumns(), "user_name", "user_email", "game_title", "game_slug")).AddRow(
		1, 42, 7, orderID, orderID, 50000,
		"QRIS", "QRIS", models.StatusSuccess, nil, nil, "00020101", now.Add(24*time.Hour), now, now, now,
		"Budi", "budi@example.com", "Space Runner", "space-runner",
	)
	mock.ExpectQuery("SELECT t.\\*").WithArgs(orderID).WillReturnRows(receiptRows)

	notifier := newFakeNotifier()
	r := callbackRouter(txns, notifier, &config.Config{})

	w := postCallback(r, `{"order":{"invoice_number":"`+orderID+`"},"transaction":{"status":"SUCCESS"}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)

	receipt := notifier.waitForSend(t)
	assert.Equal(t, "budi@example.com", receipt.UserEmail)
	assert.Equal(t, "Space Runner", receipt.GameTitle)
}

func TestCallbackDuplicateTerminalIsNoOp(t *testing.T) {
	txns, mock := newMockTxnStore(t)
	orderID := "ORDER-1700000000000-42"

	// Row already reached success; the conditional update misses
	now := time.Now()
	successRow := sqlmock.NewRows(txnColumns()).AddRow(
		1, 42, 7, orderID, orderID, 50000,
		"QRIS", "QRIS", models.StatusSuccess, nil, nil, "00020101", now.Add(24*time.Hour), now, now, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM transactions WHERE invoice_number=$1")).
		WithArgs(orderID).
		WillReturnRows(successRow)
	mock.ExpectExec("UPDATE transactions").
		WithArgs(orderID, models.StatusSuccess, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	notifier := newFakeNotifier()
	r := callbackRouter(txns, notifier, &config.Config{})

	w := postCallback(r, `{"order":{"invoice_number":"`+orderID+`"},"transaction":{"status":"SUCCESS"}}`)

	// Acknowledged so the gateway stops retrying, but no second notification
	assert.Equal(t, http.StatusOK, w.Code)
	notifier.assertNoSend(t)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCallbackConflictingTerminalRejected(t *testing.T) {
	txns, mock := newMockTxnStore(t)
	orderID := "ORDER-1700000000000-42"

	now := time.Now()
	successRow := sqlmock.NewRows(txnColumns()).AddRow(
		1, 42, 7, orderID, orderID, 50000,
		"QRIS", "QRIS", models.StatusSuccess, nil, nil, "00020101", now.Add(24*time.Hour), now, now, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM transactions WHERE invoice_number=$1")).
		WithArgs(orderID).
		WillReturnRows(successRow)
	mock.ExpectExec("UPDATE transactions").
		WithArgs(orderID, models.StatusFailed, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	notifier := newFakeNotifier()
	r := callbackRouter(txns, notifier, &config.Config{})

	// FAILED after success: the original terminal write stands
	w := postCallback(r, `{"order":{"invoice_number":"`+orderID+`"},"transaction":{"status":"FAILED"}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	notifier.assertNoSend(t)
}

func TestCallbackNonTerminalStatusAcknowledged(t *testing.T) {
	txns, mock := newMockTxnStore(t)
	orderID := "ORDER-1700000000000-42"

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM transactions WHERE invoice_number=$1")).
		WithArgs(orderID).
		WillReturnRows(waitingTxnRows(orderID))

	notifier := newFakeNotifier()
	r := callbackRouter(txns, notifier, &config.Config{})

	// "PENDING" maps to nothing terminal; ack without touching state
	w := postCallback(r, `{"order":{"invoice_number":"`+orderID+`"},"transaction":{"status":"PENDING"}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	notifier.assertNoSend(t)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCallbackSignatureVerification(t *testing.T) {
	cfg := &config.Config{
		PaymentVerifyCallback: true,
		DokuClientID:          "BRN-0201-1700000000",
		DokuSecretKey:         "SK-test-secret",
	}

	orderID := "ORDER-1700000000000-42"
	body := `{"order":{"invoice_number":"` + orderID + `"},"transaction":{"status":"PENDING"}}`

	t.Run("missing signature rejected", func(t *testing.T) {
		txns, _ := newMockTxnStore(t)
		r := callbackRouter(txns, newFakeNotifier(), cfg)
		w := postCallback(r, body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid signature accepted", func(t *testing.T) {
		txns, mock := newMockTxnStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM transactions WHERE invoice_number=$1")).
			WithArgs(orderID).
			WillReturnRows(waitingTxnRows(orderID))

		r := callbackRouter(txns, newFakeNotifier(), cfg)

		ts := payment.Timestamp(time.Now())
		digest := payment.Digest([]byte(body))
		sig := payment.Sign(cfg.DokuClientID, "REQ-cb-1", ts, "/payment/callback", digest, cfg.DokuSecretKey)

		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/payment/callback", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Client-Id", cfg.DokuClientID)
		req.Header.Set("Request-Id", "REQ-cb-1")
		req.Header.Set("Request-Timestamp", ts)
		req.Header.Set("Signature", sig)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
