package model

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind names the payload family of a push so the wire layer can tag frames.
type Kind string

const (
	KindNotification Kind = "notification"
	KindUnread       Kind = "unread"
	KindChatMessage  Kind = "chat-message"
)

// Push is a unit of real-time delivery addressed to a destination.
//
// [MARSHAL_ONCE]
// A single push may fan out to many sessions; the encoded frame is computed once
// and shared by every writer.
type Push struct {
	ID          string
	Kind        Kind
	Destination string
	Payload     any
	CreatedAt   int64

	once  sync.Once
	frame []byte
	err   error
}

func NewPush(kind Kind, destination string, payload any) *Push {
	return &Push{
		ID:          uuid.NewString(),
		Kind:        kind,
		Destination: destination,
		Payload:     payload,
		CreatedAt:   time.Now().UnixMilli(),
	}
}

// Frame returns the encoded representation, invoking encode at most once per push.
func (p *Push) Frame(encode func(*Push) ([]byte, error)) ([]byte, error) {
	p.once.Do(func() {
		p.frame, p.err = encode(p)
	})
	return p.frame, p.err
}
