package service

import (
	"strings"

	"github.com/pinboard/event-delivery-service/config"
)

// Destinations are the real-time addresses the services push to.
type Destinations struct {
	Notifications string // private, e.g. /user/queue/notifications
	Messages      string // private, e.g. /user/queue/messages
	TopicPrefix   string
}

func DestinationsFrom(cfg config.RealtimeConfig) Destinations {
	user := strings.TrimSuffix(cfg.UserPrefix, "/")
	return Destinations{
		Notifications: user + "/queue/notifications",
		Messages:      user + "/queue/messages",
		TopicPrefix:   strings.TrimSuffix(cfg.TopicPrefix, "/"),
	}
}

// Room returns the broadcast destination of a chat room.
func (d Destinations) Room(room string) string {
	return d.TopicPrefix + "/chat." + room
}
