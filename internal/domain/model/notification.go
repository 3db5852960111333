package model

// Notification is the render-ready payload pushed to a user's private notification destination.
type Notification struct {
	EventID    string   `json:"event_id"`
	Type       string   `json:"type"`
	ActorID    string   `json:"actor_id"`
	SubjectIDs []string `json:"subject_ids,omitempty"`
	Text       string   `json:"text,omitempty"`
	ContentRef string   `json:"content_ref,omitempty"`
	Unread     int64    `json:"unread"`
	CreatedAt  int64    `json:"created_at"`
}

// UnreadCount is pushed after the counter changes through a read flow.
type UnreadCount struct {
	Count int64 `json:"count"`
}

// ChatMessage travels over the direct chat path.
type ChatMessage struct {
	ID          string `json:"id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id,omitempty"`
	Room        string `json:"room,omitempty"`
	Text        string `json:"text"`
	ImageRef    string `json:"image_ref,omitempty"`
	SentAt      int64  `json:"sent_at"`
}
