package transport

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// CurrentCanonicalVersion defines the canonicalization format version.
// Increment when canonicalization changes to invalidate stale cache entries.
const CurrentCanonicalVersion = "v1"

// CanonicalPayload is the stable form of a request that feeds IdemKey
// hashing. Prompt text is kept byte for byte since any change may change the
// answer.
type CanonicalPayload struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	System      string  `json:"system,omitempty"`
	User        string  `json:"user"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature"`
	Version     string  `json:"version"`
}

// IdemKey is the hex SHA-256 of a canonical payload.
type IdemKey string

// String returns the string representation of the key.
func (k IdemKey) String() string { return string(k) }

// BuildCanonicalPayload normalizes the routing fields of req.
func BuildCanonicalPayload(req *Request) CanonicalPayload {
	return CanonicalPayload{
		Provider:    strings.ToLower(strings.TrimSpace(req.Provider)),
		Model:       strings.TrimSpace(req.Model),
		System:      req.System,
		User:        req.User,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Version:     CurrentCanonicalVersion,
	}
}

// GenerateIdemKey derives the deterministic key of req.
func GenerateIdemKey(req *Request) (IdemKey, error) {
	payload := BuildCanonicalPayload(req)
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal canonical payload: %w", err)
	}
	sum := sha256.Sum256(data)
	return IdemKey(hex.EncodeToString(sum[:])), nil
}
