package service

import (
	"context"
	"strings"
	"testing"

	"github.com/pinboard/event-delivery-service/internal/domain/event"
	"github.com/pinboard/event-delivery-service/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatService_DirectMessage(t *testing.T) {
	pusher := &recordingPusher{}
	publisher := &recordingPublisher{}
	s := NewChatService(pusher, publisher, testConfig(), discard())

	long := strings.Repeat("é", event.MaxPreviewText+20)
	msg, err := s.Send(context.Background(), alice(), ChatInput{RecipientID: "bob", Text: long, ImageRef: "img/1"})
	require.NoError(t, err)
	assert.Equal(t, "alice", msg.SenderID)

	got := pusher.toUser()
	require.Len(t, got, 2)
	assert.Equal(t, "bob", got[0].target)
	assert.Equal(t, "alice", got[1].target)
	assert.Equal(t, "/user/queue/messages", got[0].push.Destination)
	assert.Equal(t, msg, got[0].push.Payload.(model.ChatMessage))

	require.Len(t, publisher.envs, 1)
	env := publisher.envs[0]
	assert.Equal(t, event.MessageSent, env.Type)
	assert.Equal(t, "bob", env.RecipientID)
	assert.Equal(t, []string{msg.ID}, env.SubjectIDs)
	assert.Equal(t, event.MaxPreviewText, len([]rune(env.Preview.Text)))
	assert.Equal(t, "img/1", env.Preview.ContentRef)
}

func TestChatService_RoomMessage(t *testing.T) {
	pusher := &recordingPusher{}
	publisher := &recordingPublisher{}
	s := NewChatService(pusher, publisher, testConfig(), discard())

	_, err := s.Send(context.Background(), alice(), ChatInput{Room: "general", Text: "hi all"})
	require.NoError(t, err)

	require.Len(t, pusher.topic, 1)
	assert.Equal(t, "/topic/chat.general", pusher.topic[0].target)
	assert.Empty(t, pusher.toUser())
	assert.Empty(t, publisher.envs)
}

func TestChatService_Validation(t *testing.T) {
	s := NewChatService(&recordingPusher{}, &recordingPublisher{}, testConfig(), discard())
	ctx := context.Background()

	cases := map[string]ChatInput{
		"empty":      {RecipientID: "bob"},
		"no target":  {Text: "hi"},
		"two target": {RecipientID: "bob", Room: "general", Text: "hi"},
		"self":       {RecipientID: "alice", Text: "hi"},
		"bad room":   {Room: "../etc", Text: "hi"},
	}
	for name, in := range cases {
		_, err := s.Send(ctx, alice(), in)
		assert.ErrorIs(t, err, ErrInvalidMessage, name)
	}

	_, err := s.Send(ctx, model.Identity{}, ChatInput{RecipientID: "bob", Text: "hi"})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
