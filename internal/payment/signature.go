package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

// Digest returns the base64 encoding of the raw SHA-256 hash of body.
// body must be the exact byte sequence that goes on the wire; hashing a
// re-serialized copy of the payload produces a digest the gateway rejects.
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Sign produces the Signature header value for a DOKU request:
// "HMACSHA256=" + base64(HMAC-SHA256(secretKey, stringToSign)).
//
// The string to sign is the newline-joined sequence
//
//	Client-Id:<id>
//	Request-Id:<id>
//	Request-Timestamp:<ts>
//	Request-Target:<path>
//	Digest:<digest>
//
// with the Digest line omitted entirely for bodiless requests (digest == "").
// No trailing newline in either form.
func Sign(clientID, requestID, timestamp, requestTarget, digest, secretKey string) string {
	stringToSign := "Client-Id:" + clientID + "\n" +
		"Request-Id:" + requestID + "\n" +
		"Request-Timestamp:" + timestamp + "\n" +
		"Request-Target:" + requestTarget
	if digest != "" {
		stringToSign += "\nDigest:" + digest
	}

	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(stringToSign))
	return "HMACSHA256=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Timestamp formats t the way the gateway expects: UTC, second precision,
// Z-suffixed ISO 8601.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// VerifySignature recomputes the signature over the given components and
// compares it against the presented header value in constant time.
func VerifySignature(presented, clientID, requestID, timestamp, requestTarget, digest, secretKey string) bool {
	expected := Sign(clientID, requestID, timestamp, requestTarget, digest, secretKey)
	return hmac.Equal([]byte(presented), []byte(expected))
}

// RequestID returns a fresh gateway request id, unique per process.
func RequestID() string {
	return fmt.Sprintf("REQ-%d", NextID())
}
