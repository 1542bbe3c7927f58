package cache

import (
	"time"

	"github.com/ahrav/strategybench/internal/llm/transport"
)

// Entry is the stored form of a response.
type Entry struct {
	Content           string          `json:"content"`
	FinishReason      string          `json:"finish_reason,omitempty"`
	Model             string          `json:"model,omitempty"`
	ProviderRequestID string          `json:"provider_request_id,omitempty"`
	Usage             transport.Usage `json:"usage"`
	StoredAtMs        int64           `json:"stored_at_ms"`
}

func newEntry(resp *transport.Response, now time.Time) *Entry {
	return &Entry{
		Content:           resp.Content,
		FinishReason:      resp.FinishReason,
		Model:             resp.Model,
		ProviderRequestID: resp.ProviderRequestID,
		Usage:             resp.Usage,
		StoredAtMs:        now.UnixMilli(),
	}
}

// toResponse rebuilds a response marked as cached. Latency is zeroed since
// no provider call took place.
func (e *Entry) toResponse() *transport.Response {
	usage := e.Usage
	usage.LatencyMs = 0
	return &transport.Response{
		Content:           e.Content,
		FinishReason:      e.FinishReason,
		Model:             e.Model,
		ProviderRequestID: e.ProviderRequestID,
		Usage:             usage,
		Cached:            true,
	}
}
