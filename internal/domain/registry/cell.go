package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pinboard/event-delivery-service/internal/domain/model"
)

// Cell is the per-user delivery actor.
//
// Pushes addressed to the user's private destination enter a FIFO mailbox and are
// forwarded by a single goroutine to every session, which keeps per-user publish order.
type Cell struct {
	userID string

	// [MAILBOX]
	// Decouples publishers (consumers, relay) from session I/O.
	mailbox chan *model.Push

	// [SESSIONS] all live connections of the user (mobile, web, desktop)
	mu       sync.RWMutex
	sessions map[uuid.UUID]Connector

	sendTimeout    time.Duration
	lastActivityAt time.Time
	stopOnce       sync.Once
	doneCh         chan struct{}
}

func NewCell(userID string, mailboxSize int, sendTimeout time.Duration) *Cell {
	c := &Cell{
		userID:         userID,
		mailbox:        make(chan *model.Push, mailboxSize),
		sessions:       make(map[uuid.UUID]Connector),
		sendTimeout:    sendTimeout,
		lastActivityAt: time.Now(),
		doneCh:         make(chan struct{}),
	}
	go c.loop()
	return c
}

// Push enqueues without blocking. False means the mailbox is full or the cell is stopped.
func (c *Cell) Push(p *model.Push) bool {
	select {
	case <-c.doneCh:
		return false
	default:
	}

	select {
	case c.mailbox <- p:
		return true
	default:
		return false
	}
}

func (c *Cell) Attach(conn Connector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[conn.GetID()] = conn
}

// Detach removes the session and reports whether the cell became empty.
func (c *Cell) Detach(connID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, connID)
	c.lastActivityAt = time.Now()
	return len(c.sessions) == 0
}

// IsIdle reports whether the cell has no sessions and the quiet period has elapsed.
func (c *Cell) IsIdle(timeout time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions) == 0 && time.Since(c.lastActivityAt) > timeout
}

func (c *Cell) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

func (c *Cell) loop() {
	for {
		select {
		case <-c.doneCh:
			return
		case p := <-c.mailbox:
			c.deliver(p)
		}
	}
}

func (c *Cell) deliver(p *model.Push) {
	c.mu.RLock()
	targets := make([]Connector, 0, len(c.sessions))
	for _, conn := range c.sessions {
		targets = append(targets, conn)
	}
	c.mu.RUnlock()

	for _, conn := range targets {
		conn.Send(p, c.sendTimeout)
	}
}

// Stop terminates the actor goroutine. Pending mailbox entries are abandoned.
func (c *Cell) Stop() {
	c.stopOnce.Do(func() { close(c.doneCh) })
}
