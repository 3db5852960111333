package registry

import "time"

type hubConfig struct {
	mailboxSize      int
	sendTimeout      time.Duration
	topicPrefix      string
	userPrefix       string
	idleTimeout      time.Duration
	evictionInterval time.Duration
}

func defaultHubConfig() hubConfig {
	return hubConfig{
		mailboxSize: 1024,
		sendTimeout: 500 * time.Millisecond,
		topicPrefix: "/topic",
		userPrefix:  "/user",
	}
}

// Option defines a functional configuration type for the Hub.
type Option func(*Hub)

// WithEvictionInterval configures how often the [JANITOR] reclaims empty cells.
// Zero disables the janitor; empty cells are then stopped as soon as the last session leaves.
func WithEvictionInterval(d time.Duration) Option {
	return func(h *Hub) {
		h.config.evictionInterval = d
	}
}

// WithIdleTimeout defines the [QUIET_PERIOD] a cell without sessions survives,
// so a quick reconnect reuses the same actor.
func WithIdleTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.config.idleTimeout = d
	}
}

// WithMailboxSize sets the [BACKPRESSURE] threshold of each user cell.
func WithMailboxSize(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.config.mailboxSize = size
		}
	}
}

// WithSendTimeout bounds how long a cell waits on one saturated session.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.config.sendTimeout = d
		}
	}
}

// WithPrefixes sets the broadcast and private destination namespaces.
func WithPrefixes(topicPrefix, userPrefix string) Option {
	return func(h *Hub) {
		if topicPrefix != "" {
			h.config.topicPrefix = topicPrefix
		}
		if userPrefix != "" {
			h.config.userPrefix = userPrefix
		}
	}
}
