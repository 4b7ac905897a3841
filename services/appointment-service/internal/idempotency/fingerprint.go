package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Fingerprint hashes the normalized request payload. Callers pass a struct
// with a fixed field order (not a map), so equal logical requests always
// produce equal fingerprints. A retry with the same key but a different
// fingerprint is a caller error, never a replay.
func Fingerprint(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("fingerprint payload: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
