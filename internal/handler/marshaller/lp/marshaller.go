package lpmarshaller

import (
	"encoding/json"

	"github.com/pinboard/event-delivery-service/internal/domain/model"
)

// LPEvent represents a single push structured for long-polling consumers.
type LPEvent struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Destination string `json:"destination"`
	CreatedAt   int64  `json:"created_at"`
	Body        any    `json:"body"`
}

// Response defines the top-level JSON array to support batching.
type Response struct {
	Events []LPEvent `json:"events"`
}

// MarshallPushes converts a batch of pushes into a single JSON document.
func MarshallPushes(pushes []*model.Push) ([]byte, error) {
	res := Response{
		Events: make([]LPEvent, 0, len(pushes)),
	}
	for _, p := range pushes {
		res.Events = append(res.Events, LPEvent{
			ID:          p.ID,
			Kind:        string(p.Kind),
			Destination: p.Destination,
			CreatedAt:   p.CreatedAt,
			Body:        p.Payload,
		})
	}
	return json.Marshal(res)
}
