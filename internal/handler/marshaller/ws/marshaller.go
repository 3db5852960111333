package wsmarshaller

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pinboard/event-delivery-service/internal/domain/model"
)

// Frame commands.
const (
	CmdConnected   = "CONNECTED"
	CmdMessage     = "MESSAGE"
	CmdReceipt     = "RECEIPT"
	CmdError       = "ERROR"
	CmdPong        = "PONG"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdSend        = "SEND"
	CmdPing        = "PING"
)

// Error codes carried by ERROR frames.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeBadFrame        = "bad_frame"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeInvalid         = "invalid"
	CodeInternal        = "internal"
)

var ErrBadFrame = errors.New("ws: bad frame")

// ServerFrame is what the server writes. Unused fields are omitted per command.
type ServerFrame struct {
	Command     string `json:"command"`
	Destination string `json:"destination,omitempty"`
	ID          string `json:"id,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Body        any    `json:"body,omitempty"`
	CreatedAt   int64  `json:"created_at,omitempty"`
	ReceiptID   string `json:"receipt_id,omitempty"`
	Code        string `json:"code,omitempty"`
	Message     string `json:"message,omitempty"`
}

// ClientFrame is what a client sends; Body is decoded by the route that claims the destination.
type ClientFrame struct {
	Command     string          `json:"command"`
	Destination string          `json:"destination,omitempty"`
	ID          string          `json:"id,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

// MarshallPush renders a MESSAGE frame. The frame is cached on the push so a fan-out to many
// sessions encodes it once.
func MarshallPush(p *model.Push) ([]byte, error) {
	return p.Frame(encodeMessage)
}

func encodeMessage(p *model.Push) ([]byte, error) {
	return json.Marshal(&ServerFrame{
		Command:     CmdMessage,
		Destination: p.Destination,
		ID:          p.ID,
		Kind:        string(p.Kind),
		Body:        p.Payload,
		CreatedAt:   p.CreatedAt,
	})
}

func MarshallConnected(p *model.ConnectedPayload) ([]byte, error) {
	return json.Marshal(&ServerFrame{Command: CmdConnected, ID: p.ConnectionID, Body: p})
}

func MarshallReceipt(receiptID string) ([]byte, error) {
	return json.Marshal(&ServerFrame{Command: CmdReceipt, ReceiptID: receiptID})
}

func MarshallError(code, message string) ([]byte, error) {
	return json.Marshal(&ServerFrame{Command: CmdError, Code: code, Message: message})
}

func MarshallPong() ([]byte, error) {
	return json.Marshal(&ServerFrame{Command: CmdPong})
}

// UnmarshallClientFrame parses and checks an inbound frame.
func UnmarshallClientFrame(data []byte) (*ClientFrame, error) {
	f := new(ClientFrame)
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	switch f.Command {
	case CmdPing:
	case CmdSubscribe, CmdUnsubscribe, CmdSend:
		if f.Destination == "" {
			return nil, fmt.Errorf("%w: %s requires a destination", ErrBadFrame, f.Command)
		}
	default:
		return nil, fmt.Errorf("%w: unknown command %q", ErrBadFrame, f.Command)
	}
	return f, nil
}
