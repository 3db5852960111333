package registry

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pinboard/event-delivery-service/internal/domain/model"
)

// Interface guard
var _ Connector = (*connect)(nil)

// [CONNECTOR] THE INTERFACE FOR EXTERNAL LAYERS (HUB/TRANSPORT)
type Connector interface {
	GetID() uuid.UUID
	GetUserID() string
	Identity() model.Identity
	Send(p *model.Push, timeout time.Duration) bool // Thread-safe, order preserving for a single caller
	Recv() <-chan *model.Push
	Done() <-chan struct{}
	Topics() []string
	Dropped() uint64
	Close() // Terminate connection and release resources
}

type connect struct {
	id        uuid.UUID
	identity  model.Identity
	createdAt time.Time

	ctx      context.Context
	cancelFn context.CancelFunc
	sendCh   chan *model.Push

	// [SUBSCRIPTIONS] mutated by the hub under its own lock, read by transports
	mu     sync.RWMutex
	topics map[string]struct{}

	closeOnce sync.Once
	dropped   atomic.Uint64
}

// NewConnector binds a new session to an already verified identity.
func NewConnector(ctx context.Context, identity model.Identity, bufferSize int) Connector {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	childCtx, cancel := context.WithCancel(ctx)

	return &connect{
		id:        uuid.New(),
		identity:  identity,
		createdAt: time.Now(),
		ctx:       childCtx,
		cancelFn:  cancel,
		sendCh:    make(chan *model.Push, bufferSize),
		topics:    make(map[string]struct{}),
	}
}

func (c *connect) GetID() uuid.UUID         { return c.id }
func (c *connect) GetUserID() string        { return c.identity.UserID }
func (c *connect) Identity() model.Identity { return c.identity }
func (c *connect) Recv() <-chan *model.Push { return c.sendCh }
func (c *connect) Done() <-chan struct{}    { return c.ctx.Done() }
func (c *connect) Dropped() uint64          { return c.dropped.Load() }

// Send enqueues p, waiting up to timeout for buffer space.
// A saturated session sheds the push instead of stalling the caller; the unread counter
// remains the record of what was missed.
func (c *connect) Send(p *model.Push, timeout time.Duration) bool {
	select {
	case <-c.ctx.Done():
		return false
	case c.sendCh <- p:
		return true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.ctx.Done():
		return false
	case c.sendCh <- p:
		return true
	case <-timer.C:
		c.dropped.Add(1)
		return false
	}
}

func (c *connect) Topics() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

func (c *connect) addTopic(topic string) {
	c.mu.Lock()
	c.topics[topic] = struct{}{}
	c.mu.Unlock()
}

func (c *connect) removeTopic(topic string) {
	c.mu.Lock()
	delete(c.topics, topic)
	c.mu.Unlock()
}

// Close cancels the session. The send channel is never closed, so late
// senders observe Done instead of panicking.
func (c *connect) Close() {
	c.closeOnce.Do(c.cancelFn)
}
