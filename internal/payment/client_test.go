package payment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gamevault/backend/internal/config"
)

func testClient(baseURL string) *Client {
	return NewClient(&config.Config{
		DokuClientID:       testClientID,
		DokuSecretKey:      testSecret,
		DokuBaseURL:        baseURL,
		DokuTimeoutSeconds: 5,
	})
}

func TestCreatePaymentSignsExactWireBytes(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"response":{"order":{"invoice_number":"ORDER-1-42"},"payment":{"url":"https://pay.example/x"}}}`))
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	result, err := client.CreatePayment(context.Background(), CheckoutRequest{
		InvoiceNumber: "ORDER-1-42",
		Amount:        50000,
		Currency:      "IDR",
	})
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}

	for _, h := range []string{"Client-Id", "Request-Id", "Request-Timestamp", "Signature", "Digest"} {
		if gotHeaders.Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}

	// The digest header must cover the exact bytes that arrived on the wire
	if got, want := gotHeaders.Get("Digest"), Digest(gotBody); got != want {
		t.Errorf("Digest header %q does not match digest of transmitted body %q", got, want)
	}

	// And the signature must be recomputable from the transmitted components
	want := Sign(testClientID, gotHeaders.Get("Request-Id"), gotHeaders.Get("Request-Timestamp"),
		"/checkout/v1/payment", gotHeaders.Get("Digest"), testSecret)
	if got := gotHeaders.Get("Signature"); got != want {
		t.Errorf("Signature header %q, want %q", got, want)
	}

	if result.PaymentURL != "https://pay.example/x" {
		t.Errorf("PaymentURL = %q", result.PaymentURL)
	}
	if result.InvoiceNumber != "ORDER-1-42" {
		t.Errorf("InvoiceNumber = %q", result.InvoiceNumber)
	}
}

func TestCreatePaymentExtractsQRPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":{"order":{"invoice_number":"ORDER-2-42"},"payment":{"qr_checkout_string":"00020101021226..."}}}`))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).CreatePayment(context.Background(), CheckoutRequest{InvoiceNumber: "ORDER-2-42", Amount: 50000, Currency: "IDR"})
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	if result.QRPayload != "00020101021226..." {
		t.Errorf("QRPayload = %q", result.QRPayload)
	}
}

func TestCreatePaymentPrefersVirtualAccountNumber(t *testing.T) {
	// Dedicated VA field wins over the generic payment code
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":{"payment":{"virtual_account_info":{"virtual_account_number":"8808123456"},"payment_code":"GENERIC"}}}`))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).CreatePayment(context.Background(), CheckoutRequest{InvoiceNumber: "ORDER-3-42", Amount: 50000, Currency: "IDR"})
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	if result.PaymentCode != "8808123456" {
		t.Errorf("PaymentCode = %q, want virtual account number", result.PaymentCode)
	}
	// Gateway echoed no invoice; fall back to ours
	if result.InvoiceNumber != "ORDER-3-42" {
		t.Errorf("InvoiceNumber = %q", result.InvoiceNumber)
	}
}

func TestCreatePaymentTopLevelPayload(t *testing.T) {
	// Some responses are not nested under a "response" wrapper
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"order":{"invoice_number":"ORDER-4-42"},"payment":{"payment_code":"EW-123"}}`))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).CreatePayment(context.Background(), CheckoutRequest{InvoiceNumber: "ORDER-4-42", Amount: 50000, Currency: "IDR"})
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	if result.PaymentCode != "EW-123" {
		t.Errorf("PaymentCode = %q", result.PaymentCode)
	}
	if result.InvoiceNumber != "ORDER-4-42" {
		t.Errorf("InvoiceNumber = %q", result.InvoiceNumber)
	}
}

func TestCreatePaymentNon2xxReturnsGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"invalid signature"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CreatePayment(context.Background(), CheckoutRequest{InvoiceNumber: "ORDER-5-42", Amount: 50000, Currency: "IDR"})
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if gwErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d", gwErr.StatusCode)
	}
	if gwErr.Body == "" {
		t.Errorf("upstream body not carried")
	}
}

func TestCheckStatusOmitsDigest(t *testing.T) {
	var gotHeaders http.Header
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotPath = r.URL.Path
		w.Write([]byte(`{"transaction":{"status":"SUCCESS"}}`))
	}))
	defer srv.Close()

	status, err := testClient(srv.URL).CheckStatus(context.Background(), "ORDER-6-42")
	if err != nil {
		t.Fatalf("CheckStatus failed: %v", err)
	}
	if status != "SUCCESS" {
		t.Errorf("status = %q", status)
	}
	if gotPath != "/orders/v1/status/ORDER-6-42" {
		t.Errorf("path = %q", gotPath)
	}
	if gotHeaders.Get("Digest") != "" {
		t.Errorf("bodiless request must not carry a Digest header")
	}

	// Signature over the four-line string-to-sign, no Digest line
	want := Sign(testClientID, gotHeaders.Get("Request-Id"), gotHeaders.Get("Request-Timestamp"),
		"/orders/v1/status/ORDER-6-42", "", testSecret)
	if got := gotHeaders.Get("Signature"); got != want {
		t.Errorf("Signature = %q, want %q", got, want)
	}
}

func TestCheckStatusGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CheckStatus(context.Background(), "ORDER-7-42")
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
}

func TestMethodTypes(t *testing.T) {
	if got := MethodTypes("QRIS"); len(got) != 1 || got[0] != "QRIS" {
		t.Errorf("QRIS = %v", got)
	}
	if got := MethodTypes("VIRTUAL_ACCOUNT"); len(got) != 9 {
		t.Errorf("VIRTUAL_ACCOUNT expanded to %d codes, want 9", len(got))
	}
	if got := MethodTypes("EWALLET"); len(got) != 4 {
		t.Errorf("EWALLET expanded to %d codes, want 4", len(got))
	}
	if got := MethodTypes("RETAIL"); len(got) != 2 {
		t.Errorf("RETAIL expanded to %d codes, want 2", len(got))
	}
	// Unrecognized group means "let the gateway offer everything"
	if got := MethodTypes("CRYPTO"); len(got) != 0 {
		t.Errorf("unknown group = %v, want empty", got)
	}
}
