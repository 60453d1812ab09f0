package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashAPIKey returns the bcrypt hash of key for the admin.api_key_hashes
// setting. A cost of zero uses bcrypt.DefaultCost.
func HashAPIKey(key string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash api key: %w", err)
	}
	return string(h), nil
}

// APIKeys checks admin API keys against configured bcrypt hashes.
type APIKeys struct {
	hashes [][]byte
}

// NewAPIKeys creates a checker from hashes. Empty entries are ignored.
func NewAPIKeys(hashes []string) *APIKeys {
	k := &APIKeys{}
	for _, h := range hashes {
		if h != "" {
			k.hashes = append(k.hashes, []byte(h))
		}
	}
	return k
}

// Enabled reports whether any key is configured.
func (k *APIKeys) Enabled() bool {
	return len(k.hashes) > 0
}

// Check reports whether key matches one of the hashes.
func (k *APIKeys) Check(key string) bool {
	if key == "" {
		return false
	}
	for _, h := range k.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			return true
		}
	}
	return false
}
