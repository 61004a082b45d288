package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// SignPayload returns hex(HMAC-SHA256(secret, timestamp + "." + payload)).
// timestamp is a unix time in milliseconds.
func SignPayload(payload []byte, timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignedPayload checks signatureHex against payload and rejects
// timestamps that are not numeric or are further than maxAge from now.
func VerifySignedPayload(payload []byte, timestamp, signatureHex, secret string, maxAge time.Duration, now time.Time) bool {
	ms, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := now.Sub(time.UnixMilli(ms))
	if age < 0 {
		age = -age
	}
	if age > maxAge {
		return false
	}

	provided, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	expected, _ := hex.DecodeString(SignPayload(payload, timestamp, secret))
	return hmac.Equal(provided, expected)
}
