/*
Package registry keeps the live real-time sessions of this node and routes pushes to them.

  - Virtual Cells: every connected user is an isolated Cell (actor) owning all of the
    user's sessions; private pushes are serialized through the cell mailbox.
  - Broadcast Topics: a topic maps to the set of sessions currently subscribed to it;
    there is no persistence and no replay for late subscribers.
  - Atomic teardown: unregistering a session removes it from its cell and from every
    topic under a single hub lock.
*/
package registry

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pinboard/event-delivery-service/internal/domain/model"
)

var (
	ErrHubClosed          = errors.New("registry: hub is shut down")
	ErrNotRegistered      = errors.New("registry: connection is not registered")
	ErrUnauthenticated    = errors.New("registry: connection has no identity")
	ErrInvalidDestination = errors.New("registry: invalid destination")
)

// Hubber defines the gateway for session management and push routing.
type Hubber interface {
	Register(conn Connector) error
	Unregister(conn Connector)
	Subscribe(conn Connector, topic string) error
	Unsubscribe(conn Connector, topic string)
	PublishToUser(userID string, p *model.Push) bool
	PublishToTopic(topic string, p *model.Push) int
	IsConnected(userID string) bool
	IsPrivate(destination string) bool
	Stats() model.HubStats
	Shutdown()
}

var _ Hubber = (*Hub)(nil)

type Hub struct {
	config hubConfig

	mu     sync.RWMutex
	closed bool
	stopCh chan struct{}
	cells  map[string]*Cell
	conns  map[uuid.UUID]Connector
	topics map[string]map[uuid.UUID]Connector
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		config: defaultHubConfig(),
		stopCh: make(chan struct{}),
		cells:  make(map[string]*Cell),
		conns:  make(map[uuid.UUID]Connector),
		topics: make(map[string]map[uuid.UUID]Connector),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.config.evictionInterval > 0 {
		go h.janitor()
	}
	return h
}

// Register attaches an authenticated session to its user cell. Idempotent per connection.
func (h *Hub) Register(conn Connector) error {
	if conn.GetUserID() == "" {
		return ErrUnauthenticated
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	if _, ok := h.conns[conn.GetID()]; ok {
		return nil
	}

	uID := conn.GetUserID()
	cell, ok := h.cells[uID]
	if !ok {
		// [LAZY_INIT] Create the cell only when the first session arrives.
		cell = NewCell(uID, h.config.mailboxSize, h.config.sendTimeout)
		h.cells[uID] = cell
	}
	cell.Attach(conn)
	h.conns[conn.GetID()] = conn
	return nil
}

// Unregister destroys the session together with all of its subscriptions and closes it.
func (h *Hub) Unregister(conn Connector) {
	h.mu.Lock()
	if _, ok := h.conns[conn.GetID()]; ok {
		delete(h.conns, conn.GetID())

		for _, topic := range conn.Topics() {
			h.dropSubscriber(topic, conn)
		}

		cell, ok := h.cells[conn.GetUserID()]
		if ok && cell.Detach(conn.GetID()) && h.config.evictionInterval <= 0 {
			// [RECLAMATION] no janitor, so the actor goes with its last session
			cell.Stop()
			delete(h.cells, conn.GetUserID())
		}
	}
	h.mu.Unlock()

	conn.Close()
}

// Subscribe adds conn to a broadcast topic. Private destinations are implicit and accepted as a no-op.
func (h *Hub) Subscribe(conn Connector, topic string) error {
	if h.IsPrivate(topic) {
		return nil
	}
	if !h.isBroadcast(topic) {
		return ErrInvalidDestination
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	if _, ok := h.conns[conn.GetID()]; !ok {
		return ErrNotRegistered
	}

	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[uuid.UUID]Connector)
		h.topics[topic] = subs
	}
	subs[conn.GetID()] = conn
	if c, ok := conn.(*connect); ok {
		c.addTopic(topic)
	}
	return nil
}

func (h *Hub) Unsubscribe(conn Connector, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropSubscriber(topic, conn)
}

// dropSubscriber must be called with h.mu held.
func (h *Hub) dropSubscriber(topic string, conn Connector) {
	if subs, ok := h.topics[topic]; ok {
		delete(subs, conn.GetID())
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	if c, ok := conn.(*connect); ok {
		c.removeTopic(topic)
	}
}

// PublishToUser routes p to the private destination of every session of userID.
// Returns false when the user has no session on this node or the mailbox overflowed.
func (h *Hub) PublishToUser(userID string, p *model.Push) bool {
	h.mu.RLock()
	cell, ok := h.cells[userID]
	h.mu.RUnlock()

	if !ok || cell.Len() == 0 {
		return false
	}
	return cell.Push(p)
}

// PublishToTopic delivers p to the current subscribers of topic and returns how many accepted it.
func (h *Hub) PublishToTopic(topic string, p *model.Push) int {
	h.mu.RLock()
	subs := make([]Connector, 0, len(h.topics[topic]))
	for _, conn := range h.topics[topic] {
		subs = append(subs, conn)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, conn := range subs {
		if conn.Send(p, h.config.sendTimeout) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) IsConnected(userID string) bool {
	h.mu.RLock()
	cell, ok := h.cells[userID]
	h.mu.RUnlock()
	return ok && cell.Len() > 0
}

// IsPrivate reports whether destination lives in the per-user namespace.
func (h *Hub) IsPrivate(destination string) bool {
	return hasPrefixSegment(destination, h.config.userPrefix)
}

func (h *Hub) isBroadcast(destination string) bool {
	return hasPrefixSegment(destination, h.config.topicPrefix) &&
		len(destination) > len(h.config.topicPrefix)+1
}

func (h *Hub) Stats() model.HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := 0
	for _, cell := range h.cells {
		if cell.Len() > 0 {
			users++
		}
	}
	return model.HubStats{
		TotalUsers:       users,
		TotalConnections: len(h.conns),
		TotalTopics:      len(h.topics),
	}
}

// Shutdown stops every cell and closes every session. Further registrations fail.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.stopCh)
	conns := h.conns
	for _, cell := range h.cells {
		cell.Stop()
	}
	h.cells = make(map[string]*Cell)
	h.conns = make(map[uuid.UUID]Connector)
	h.topics = make(map[string]map[uuid.UUID]Connector)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

// janitor periodically reclaims cells that stayed empty past the idle timeout.
func (h *Hub) janitor() {
	ticker := time.NewTicker(h.config.evictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.evictIdle()
		}
	}
}

func (h *Hub) evictIdle() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	evicted := 0
	for userID, cell := range h.cells {
		if cell.IsIdle(h.config.idleTimeout) {
			cell.Stop()
			delete(h.cells, userID)
			evicted++
		}
	}
	return evicted
}

func hasPrefixSegment(destination, prefix string) bool {
	return destination == prefix || strings.HasPrefix(destination, prefix+"/")
}
