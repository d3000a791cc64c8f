package service

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"kksr-counter/internal/domain"
)

// ComputeIdentity derives the visitor identity from the client IP and user
// agent. Collisions between visitors behind one proxy with the same browser
// are accepted.
func ComputeIdentity(ipAddress, userAgent string) (domain.Identity, error) {
	if strings.TrimSpace(ipAddress) == "" || strings.TrimSpace(userAgent) == "" {
		return "", domain.ErrNoIdentity
	}

	hash := sha256.Sum256([]byte(ipAddress + userAgent))
	return domain.Identity(hex.EncodeToString(hash[:])), nil
}
