package utils

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// NewClaimToken mints a single-use claim-form secret: 32 random bytes (256 bits)
// base64url-encoded, safe to embed in a link, carrying no identifier in cleartext.
func NewClaimToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("claim token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewReferralCode mints an 8-hex-character share code (4 random bytes). Short
// enough to type, so callers must retry on per-giveaway collision.
func NewReferralCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("referral code: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
