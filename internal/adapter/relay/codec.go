package relay

import (
	"encoding/json"
	"fmt"

	"github.com/pinboard/event-delivery-service/internal/domain/model"
)

// envelope is the bus representation of a push. Exactly one of UserID and Topic is set.
type envelope struct {
	Origin      string          `json:"origin"`
	UserID      string          `json:"user_id,omitempty"`
	Topic       string          `json:"topic,omitempty"`
	ID          string          `json:"id"`
	Kind        model.Kind      `json:"kind"`
	Destination string          `json:"destination"`
	CreatedAt   int64           `json:"created_at"`
	Payload     json.RawMessage `json:"payload"`
}

func encode(origin, userID, topic string, p *model.Push) ([]byte, error) {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return nil, fmt.Errorf("relay: encode payload: %w", err)
	}
	return json.Marshal(envelope{
		Origin:      origin,
		UserID:      userID,
		Topic:       topic,
		ID:          p.ID,
		Kind:        p.Kind,
		Destination: p.Destination,
		CreatedAt:   p.CreatedAt,
		Payload:     payload,
	})
}

func decode(data []byte) (*envelope, *model.Push, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("relay: decode: %w", err)
	}
	if env.UserID == "" && env.Topic == "" {
		return nil, nil, fmt.Errorf("relay: envelope %s has no target", env.ID)
	}
	return &env, &model.Push{
		ID:          env.ID,
		Kind:        env.Kind,
		Destination: env.Destination,
		Payload:     env.Payload,
		CreatedAt:   env.CreatedAt,
	}, nil
}
