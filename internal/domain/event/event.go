package event

// Type tags a domain event crossing service boundaries.
type Type string

const (
	MessageSent    Type = "message-sent"
	MessageRead    Type = "message-read"
	PinLiked       Type = "pin-liked"
	PinSaved       Type = "pin-saved"
	PinDeleted     Type = "pin-deleted"
	CommentPosted  Type = "comment-posted"
	CommentReplied Type = "comment-replied"
	CommentLiked   Type = "comment-liked"
	CommentDeleted Type = "comment-deleted"
	UserFollowed   Type = "user-followed"
)

// Stream groups event types by the producing service, which decides the broker topic.
type Stream int8

const (
	StreamUnknown Stream = iota
	StreamChat
	StreamContent
	StreamUser
)

type typeInfo struct {
	stream    Stream
	increment bool // [UNREAD] counts towards the recipient's unread counter
}

// [CLASSIFICATION_TABLE]
// Built once; read-only afterwards.
var types = map[Type]typeInfo{
	MessageSent:    {StreamChat, true},
	MessageRead:    {StreamChat, false},
	PinLiked:       {StreamContent, true},
	PinSaved:       {StreamContent, true},
	PinDeleted:     {StreamContent, false},
	CommentPosted:  {StreamContent, true},
	CommentReplied: {StreamContent, true},
	CommentLiked:   {StreamContent, true},
	CommentDeleted: {StreamContent, false},
	UserFollowed:   {StreamUser, true},
}

// Known reports whether t is part of the shared event vocabulary.
func (t Type) Known() bool {
	_, ok := types[t]
	return ok
}

// IncrementsUnread returns true for events that bump the recipient's unread counter.
// Everything else is informational only.
func (t Type) IncrementsUnread() bool {
	return types[t].increment
}

// Stream returns the producing stream of the type, StreamUnknown for foreign tags.
func (t Type) Stream() Stream {
	return types[t].stream
}

// TriggersCleanup is true for deletions whose content reference must be purged from blob storage.
func (t Type) TriggersCleanup() bool {
	return t == PinDeleted || t == CommentDeleted
}

func (t Type) String() string { return string(t) }
