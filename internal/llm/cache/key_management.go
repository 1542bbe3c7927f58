package cache

import (
	"fmt"

	"github.com/ahrav/strategybench/internal/llm/transport"
)

// keyPrefix namespaces cache entries in a shared Redis.
const keyPrefix = "strategybench:llm:"

// buildKey constructs the cache key of req. The format is
// "strategybench:llm:{provider}:{idemkey}".
func buildKey(req *transport.Request) (string, error) {
	if req.Provider == "" || req.Model == "" {
		return "", fmt.Errorf("invalid request for cache key: provider and model are required")
	}
	idem, err := transport.GenerateIdemKey(req)
	if err != nil {
		return "", err
	}
	payload := transport.BuildCanonicalPayload(req)
	return keyPrefix + payload.Provider + ":" + idem.String(), nil
}
