package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MaxSubjects    = 2
	MaxPreviewText = 280
)

var (
	ErrUnknownType       = errors.New("event: unknown type")
	ErrActorRequired     = errors.New("event: actor_id is required")
	ErrRecipientRequired = errors.New("event: recipient_id is required for counted events")
	ErrTooManySubjects   = errors.New("event: too many subject ids")
	ErrPreviewTooLong    = errors.New("event: preview text too long")
	ErrMalformed         = errors.New("event: malformed envelope")
)

// Preview carries enough to render a notification without a follow-up fetch.
type Preview struct {
	Text       string `json:"text,omitempty"`
	ContentRef string `json:"content_ref,omitempty"` // secondary content, e.g. an image id
}

// Envelope is the shared wire schema for a domain event.
// It is immutable once constructed.
type Envelope struct {
	ID          string   `json:"id"`
	Type        Type     `json:"type"`
	ActorID     string   `json:"actor_id"`
	RecipientID string   `json:"recipient_id,omitempty"`
	SubjectIDs  []string `json:"subject_ids,omitempty"`
	Preview     *Preview `json:"preview,omitempty"`
	Timestamp   int64    `json:"timestamp"` // unix millis, assigned by the producer
	TraceID     string   `json:"trace_id,omitempty"`
}

// Option customizes an envelope at construction time.
type Option func(*Envelope)

func WithPreview(text, contentRef string) Option {
	return func(e *Envelope) {
		if text == "" && contentRef == "" {
			return
		}
		e.Preview = &Preview{Text: text, ContentRef: contentRef}
	}
}

func WithTraceID(traceID string) Option {
	return func(e *Envelope) { e.TraceID = traceID }
}

// New builds an envelope at the point of the triggering business action.
func New(t Type, actorID, recipientID string, subjectIDs []string, opts ...Option) *Envelope {
	e := &Envelope{
		ID:          uuid.NewString(),
		Type:        t,
		ActorID:     actorID,
		RecipientID: recipientID,
		SubjectIDs:  append([]string(nil), subjectIDs...),
		Timestamp:   clock.now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate checks the envelope invariants before it leaves the producer.
func (e *Envelope) Validate() error {
	if !e.Type.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
	if e.ActorID == "" {
		return ErrActorRequired
	}
	if e.RecipientID == "" && e.Type.IncrementsUnread() {
		return ErrRecipientRequired
	}
	if len(e.SubjectIDs) > MaxSubjects {
		return fmt.Errorf("%w: %d > %d", ErrTooManySubjects, len(e.SubjectIDs), MaxSubjects)
	}
	if e.Preview != nil && utf8.RuneCountInString(e.Preview.Text) > MaxPreviewText {
		return ErrPreviewTooLong
	}
	return nil
}

// RoutingKey is the partition key: the recipient, or the producer's fallback when there is none.
func (e *Envelope) RoutingKey(fallback string) string {
	if e.RecipientID != "" {
		return e.RecipientID
	}
	if fallback != "" {
		return fallback
	}
	return e.ActorID
}

func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a wire envelope. Unknown fields are ignored; structural errors are ErrMalformed.
func Decode(data []byte) (*Envelope, error) {
	e := new(Envelope)
	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if e.ID == "" || e.Type == "" {
		return nil, fmt.Errorf("%w: id and type are required", ErrMalformed)
	}
	return e, nil
}

// monotonicClock never hands out a timestamp lower than the previous one within this process.
type monotonicClock struct {
	mu   sync.Mutex
	last int64
}

var clock = &monotonicClock{}

func (c *monotonicClock) now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := time.Now().UnixMilli()
	if ts < c.last {
		ts = c.last
	}
	c.last = ts
	return ts
}
