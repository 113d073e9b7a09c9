package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/gamevault/backend/internal/config"
)

const (
	checkoutPath   = "/checkout/v1/payment"
	statusPathBase = "/orders/v1/status/"
)

// GatewayError is returned when the gateway call failed or answered non-2xx.
// A GatewayError from a status query means "unknown, retry later", never "failed".
type GatewayError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway request failed: %v", e.Err)
	}
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Body)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Client handles DOKU Checkout V2 API integration
type Client struct {
	baseURL    string
	clientID   string
	secretKey  string
	httpClient *http.Client
}

// NewClient creates a new DOKU client
func NewClient(cfg *config.Config) *Client {
	if cfg == nil || cfg.DokuClientID == "" || cfg.DokuSecretKey == "" {
		log.Printf("[PAYMENT] DOKU not fully configured - skipping initialization")
		return nil
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.DokuBaseURL, "/"),
		clientID:   cfg.DokuClientID,
		secretKey:  cfg.DokuSecretKey,
		httpClient: &http.Client{Timeout: time.Duration(cfg.DokuTimeoutSeconds) * time.Second},
	}
}

// ClientID exposes the configured gateway client id for callback verification.
func (c *Client) ClientID() string { return c.clientID }

// SecretKey exposes the configured secret for callback verification.
func (c *Client) SecretKey() string { return c.secretKey }

// CheckoutRequest is the order specification sent to the gateway.
type CheckoutRequest struct {
	InvoiceNumber      string
	Amount             int
	Currency           string
	PaymentDueMinutes  int
	PaymentMethodTypes []string
	CustomerID         string
	CustomerName       string
	CustomerEmail      string
	CustomerPhone      string
	CustomerCountry    string
}

// CheckoutResult is the normalized create-order response. Which artifact
// fields are set depends on the chosen payment method.
type CheckoutResult struct {
	PaymentURL    string
	PaymentCode   string
	QRPayload     string
	InvoiceNumber string
}

// MethodTypes expands a generic payment-method group into the gateway's
// specific method codes. An unrecognized group maps to the empty set, which
// the gateway interprets as "offer everything".
func MethodTypes(group string) []string {
	switch group {
	case "QRIS":
		return []string{"QRIS"}
	case "VIRTUAL_ACCOUNT":
		return []string{
			"VIRTUAL_ACCOUNT_BCA",
			"VIRTUAL_ACCOUNT_BANK_MANDIRI",
			"VIRTUAL_ACCOUNT_BANK_SYARIAH_MANDIRI",
			"VIRTUAL_ACCOUNT_BRI",
			"VIRTUAL_ACCOUNT_BNI",
			"VIRTUAL_ACCOUNT_BANK_DANAMON",
			"VIRTUAL_ACCOUNT_BANK_PERMATA",
			"VIRTUAL_ACCOUNT_BANK_CIMB",
			"VIRTUAL_ACCOUNT_DOKU",
		}
	case "EWALLET":
		return []string{
			"EMONEY_OVO",
			"EMONEY_DANA",
			"EMONEY_LINKAJA",
			"EMONEY_SHOPEE_PAY",
		}
	case "RETAIL":
		return []string{
			"ONLINE_TO_OFFLINE_ALFA",
			"ONLINE_TO_OFFLINE_INDOMARET",
		}
	default:
		return []string{}
	}
}

// CreatePayment creates an order at the gateway and returns the normalized
// retrieval artifacts. No transaction is persisted by the caller on error.
func (c *Client) CreatePayment(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if c == nil {
		return nil, &GatewayError{Err: fmt.Errorf("doku client not initialized")}
	}

	methodTypes := req.PaymentMethodTypes
	if methodTypes == nil {
		methodTypes = []string{}
	}

	payload := map[string]interface{}{
		"order": map[string]interface{}{
			"invoice_number": req.InvoiceNumber,
			"amount":         req.Amount,
			"currency":       req.Currency,
		},
		"payment": map[string]interface{}{
			"payment_due_date":     req.PaymentDueMinutes,
			"payment_method_types": methodTypes,
		},
		"customer": map[string]interface{}{
			"id":      req.CustomerID,
			"name":    req.CustomerName,
			"email":   req.CustomerEmail,
			"phone":   req.CustomerPhone,
			"country": req.CustomerCountry,
		},
	}

	// Marshal once; the same bytes are hashed and sent.
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	requestID := RequestID()
	timestamp := Timestamp(time.Now())
	digest := Digest(jsonBody)
	signature := Sign(c.clientID, requestID, timestamp, checkoutPath, digest, c.secretKey)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+checkoutPath, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Client-Id", c.clientID)
	httpReq.Header.Set("Request-Id", requestID)
	httpReq.Header.Set("Request-Timestamp", timestamp)
	httpReq.Header.Set("Signature", signature)
	httpReq.Header.Set("Digest", digest)
	httpReq.Header.Set("Content-Type", "application/json")

	log.Printf("[PAYMENT] Creating order: invoice=%s amount=%d methods=%d", req.InvoiceNumber, req.Amount, len(methodTypes))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &GatewayError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[PAYMENT] Create order failed: status=%d body=%s", resp.StatusCode, string(body))
		return nil, &GatewayError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	result := extractCheckoutResult(body)
	if result.InvoiceNumber == "" {
		result.InvoiceNumber = req.InvoiceNumber
	}

	log.Printf("[PAYMENT] Order created: invoice=%s url=%t code=%t qr=%t",
		result.InvoiceNumber, result.PaymentURL != "", result.PaymentCode != "", result.QRPayload != "")

	return result, nil
}

// extractCheckoutResult probes the gateway response for payment artifacts.
// The real payload sits either at the top level or inside a "response"
// wrapper, and the retrieval code location varies by method: the dedicated
// virtual-account field wins over the generic payment code.
func extractCheckoutResult(body []byte) *CheckoutResult {
	raw := string(body)

	root := gjson.Get(raw, "response")
	if !root.Exists() {
		root = gjson.Parse(raw)
	}

	result := &CheckoutResult{}

	if url := root.Get("payment.url"); url.Exists() {
		result.PaymentURL = url.String()
	} else if url := gjson.Get(raw, "url"); url.Exists() {
		result.PaymentURL = url.String()
	}

	result.QRPayload = root.Get("payment.qr_checkout_string").String()

	if va := root.Get("payment.virtual_account_info.virtual_account_number"); va.Exists() {
		result.PaymentCode = va.String()
	} else if code := root.Get("payment.payment_code"); code.Exists() {
		result.PaymentCode = code.String()
	}

	if inv := root.Get("order.invoice_number"); inv.Exists() {
		result.InvoiceNumber = inv.String()
	} else if inv := gjson.Get(raw, "order.invoice_number"); inv.Exists() {
		result.InvoiceNumber = inv.String()
	}

	return result
}

// CheckStatus queries the gateway for the live status of an order. The
// returned string is the gateway's own vocabulary (e.g. "SUCCESS", "PENDING",
// "EXPIRED"); callers decide what to do with it.
func (c *Client) CheckStatus(ctx context.Context, invoiceNumber string) (string, error) {
	if c == nil {
		return "", &GatewayError{Err: fmt.Errorf("doku client not initialized")}
	}

	requestTarget := statusPathBase + invoiceNumber
	requestID := RequestID()
	timestamp := Timestamp(time.Now())

	// Bodiless request: no digest, no Digest line in the signature.
	signature := Sign(c.clientID, requestID, timestamp, requestTarget, "", c.secretKey)

	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+requestTarget, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Client-Id", c.clientID)
	httpReq.Header.Set("Request-Id", requestID)
	httpReq.Header.Set("Request-Timestamp", timestamp)
	httpReq.Header.Set("Signature", signature)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &GatewayError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &GatewayError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("[PAYMENT] Status query failed: invoice=%s status=%d body=%s", invoiceNumber, resp.StatusCode, string(body))
		return "", &GatewayError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	status := gjson.GetBytes(body, "transaction.status").String()
	if status == "" {
		return "", &GatewayError{StatusCode: resp.StatusCode, Body: string(body), Err: fmt.Errorf("no transaction.status in response")}
	}

	return status, nil
}
