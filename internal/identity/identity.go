// Package identity computes deterministic deduplication tokens for
// candidate records.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// TokenLength is the hex length of an identity token.
const TokenLength = 16

// Compute derives a stable token from the source id, organization name, and
// the best available date string. The name is lowercased with whitespace
// collapsed so cosmetic listing changes do not produce a new event.
func Compute(sourceID, organizationName, bestDate string) string {
	name := strings.Join(strings.Fields(strings.ToLower(organizationName)), " ")
	date := strings.TrimSpace(bestDate)
	sum := sha256.Sum256([]byte(sourceID + "|" + name + "|" + date))
	return hex.EncodeToString(sum[:])[:TokenLength]
}

// SyntheticKey builds the storage key for a record that has no companion
// document URL.
func SyntheticKey(sourceID, token string) string {
	return fmt.Sprintf("synthetic://%s/%s", sourceID, token)
}
