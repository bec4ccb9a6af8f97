// Package crypto provides request-signing helpers for the exchange REST APIs.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"time"
)

// HMACAuth holds the API credentials for an HMAC-authenticated venue.
type HMACAuth struct {
	Key    string // API key, sent in a header
	Secret string // API secret used as the HMAC key
}

// SignHex computes HMAC-SHA256 of message and returns it hex-encoded. This is
// the signature scheme used by Binance-style APIs (query-string signing) and
// by WazirX/CoinDCX (body signing).
func (h *HMACAuth) SignHex(message string) string {
	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignKraken computes the Kraken API-Sign value: HMAC-SHA512 over
// path + SHA256(nonce + postData), keyed with the base64-decoded secret,
// returned base64-encoded.
func (h *HMACAuth) SignKraken(path, nonce, postData string) string {
	secret, err := base64.StdEncoding.DecodeString(h.Secret)
	if err != nil {
		// Fall back to raw bytes so the caller gets an obviously-wrong
		// signature rather than a panic.
		secret = []byte(h.Secret)
	}

	inner := sha256.Sum256([]byte(nonce + postData))
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(inner[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Nonce returns a millisecond-resolution nonce string.
func Nonce() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}
