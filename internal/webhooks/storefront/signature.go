package storefrontwebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
)

const (
	HeaderSignature       = "X-Linkedstore-Hmac-Sha256"
	HeaderSignatureLegacy = "X-Shop-Api-Hmac-Sha256"
)

// SignatureFromHeader returns the first signature header present.
func SignatureFromHeader(h http.Header) string {
	if v := strings.TrimSpace(h.Get(HeaderSignature)); v != "" {
		return v
	}
	return strings.TrimSpace(h.Get(HeaderSignatureLegacy))
}

// Sign returns the hex HMAC-SHA256 of payload.
func Sign(secret string, payload []byte) string {
	return hex.EncodeToString(computeMAC(secret, payload))
}

// VerifySignature checks signature against the HMAC-SHA256 of the exact raw
// payload. The storefront sends hex; base64 is accepted for older apps.
func VerifySignature(secret string, payload []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return false
	}
	expected := computeMAC(secret, payload)

	if decoded, err := hex.DecodeString(signature); err == nil && hmac.Equal(decoded, expected) {
		return true
	}
	if decoded, err := base64.StdEncoding.DecodeString(signature); err == nil && hmac.Equal(decoded, expected) {
		return true
	}
	return false
}

func computeMAC(secret string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}
