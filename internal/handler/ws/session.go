package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pinboard/event-delivery-service/internal/domain/model"
	"github.com/pinboard/event-delivery-service/internal/domain/registry"
	wsmarshaller "github.com/pinboard/event-delivery-service/internal/handler/marshaller/ws"
)

var (
	errSessionClosed  = errors.New("ws: session closed")
	errSessionExpired = errors.New("ws: session identity expired")
)

// session is one websocket bound to its hub connector.
//
// [SINGLE_WRITER]
// gorilla allows one concurrent writer; both pumps write through writeMu.
type session struct {
	ws        *websocket.Conn
	conn      registry.Connector
	identity  model.Identity
	writeWait time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (s *session) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.ws.SetWriteDeadline(time.Now().Add(s.writeWait))
	return s.ws.WriteMessage(websocket.TextMessage, data)
}

func (s *session) ping() error {
	return s.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeWait))
}

func (s *session) receipt(id string) error {
	if id == "" {
		return nil
	}
	data, err := wsmarshaller.MarshallReceipt(id)
	if err != nil {
		return err
	}
	return s.write(data)
}

// fail reports a frame failure to the client; write errors surface in the write pump.
func (s *session) fail(code, message string) {
	data, err := wsmarshaller.MarshallError(code, message)
	if err != nil {
		return
	}
	_ = s.write(data)
}

// close sends a close frame and shuts the socket, unblocking the read pump.
func (s *session) close() {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeWait))
		_ = s.ws.Close()
	})
}
