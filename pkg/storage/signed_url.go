package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignedURLSigner issues HMAC tokens that grant time-limited access to one stored report.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate returns a token of the form <path>.<expiry>.<signature>.
func (s *SignedURLSigner) Generate(name string) (string, time.Time, error) {
	if name == "" {
		return "", time.Time{}, fmt.Errorf("report name required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	encoded := base64.RawURLEncoding.EncodeToString([]byte(name))
	expiry := strconv.FormatInt(expiresAt.Unix(), 10)
	return strings.Join([]string{encoded, expiry, s.sign(encoded, expiry)}, "."), expiresAt, nil
}

// Parse validates token and returns the report name. With allowExpired the expiry is not checked.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (string, time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", time.Time{}, fmt.Errorf("invalid token format")
	}
	encoded, expiry, signature := parts[0], parts[1], parts[2]

	if !hmac.Equal([]byte(s.sign(encoded, expiry)), []byte(signature)) {
		return "", time.Time{}, fmt.Errorf("invalid token signature")
	}
	unix, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid timestamp")
	}
	expiresAt := time.Unix(unix, 0)
	if !allowExpired && s.now().After(expiresAt) {
		return "", time.Time{}, fmt.Errorf("token expired")
	}
	name, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("decode path: %w", err)
	}
	return string(name), expiresAt, nil
}

func (s *SignedURLSigner) sign(encoded, expiry string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(encoded + "|" + expiry))
	return hex.EncodeToString(mac.Sum(nil))
}
