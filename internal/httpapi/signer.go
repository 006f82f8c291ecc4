// Package httpapi serves the HTTP surface alongside the WebSocket server
// on a single gin Engine: short-lived signed audio URLs for the Audio
// Cache and the operator-facing health endpoint of §6.
package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signer mints and verifies the short-lived query token attached to
// `/audio/{fingerprint}.{ext}` URLs, per §6: listeners must not be able to
// mint their own audio URLs or replay one indefinitely.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl}
}

// SignedAudioURL implements tts.URLSigner.
func (s *Signer) SignedAudioURL(fingerprint, ext string) string {
	expiry := time.Now().Add(s.ttl).Unix()
	token := s.sign(fingerprint, expiry)
	return fmt.Sprintf("/audio/%s.%s?expires=%d&token=%s", fingerprint, ext, expiry, token)
}

func (s *Signer) sign(fingerprint string, expiry int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s.%d", fingerprint, expiry)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks that token is a valid, unexpired signature for
// fingerprint, given the expires query parameter it was minted with.
func (s *Signer) Verify(fingerprint, expiresParam, token string) bool {
	expiry, err := strconv.ParseInt(expiresParam, 10, 64)
	if err != nil {
		return false
	}
	if time.Now().Unix() > expiry {
		return false
	}
	expected := s.sign(fingerprint, expiry)
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(token)))
}
