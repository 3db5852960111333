package kafka

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinboard/event-delivery-service/infra/broker"
	"github.com/pinboard/event-delivery-service/infra/metrics"
	"github.com/pinboard/event-delivery-service/internal/domain/event"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var testTopics = broker.Topics{Chat: "pin.chat-events", Content: "pin.content-events", User: "pin.user-events"}

type fakeSession struct {
	sarama.ConsumerGroupSession

	mu     sync.Mutex
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) MemberID() string           { return "member-1" }
func (s *fakeSession) Claims() map[string][]int32 { return map[string][]int32{testTopics.Chat: {0}} }

func (s *fakeSession) Context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *fakeSession) bind(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
}

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

func (s *fakeSession) offsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.marked...)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	ch chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.ch }

// fakeGroup runs one session over a single claim per Consume call.
type fakeGroup struct {
	sarama.ConsumerGroup
	session *fakeSession
	claim   *fakeClaim
	errs    chan error
	closed  chan struct{}
	once    sync.Once
}

func newFakeGroup() *fakeGroup {
	return &fakeGroup{
		session: &fakeSession{},
		claim:   &fakeClaim{ch: make(chan *sarama.ConsumerMessage, 16)},
		errs:    make(chan error),
		closed:  make(chan struct{}),
	}
}

func (g *fakeGroup) Consume(ctx context.Context, _ []string, h sarama.ConsumerGroupHandler) error {
	select {
	case <-g.closed:
		return sarama.ErrClosedConsumerGroup
	default:
	}
	g.session.bind(ctx)
	if err := h.Setup(g.session); err != nil {
		return err
	}
	err := h.ConsumeClaim(g.session, g.claim)
	_ = h.Cleanup(g.session)
	return err
}

func (g *fakeGroup) Errors() <-chan error { return g.errs }

func (g *fakeGroup) Close() error {
	g.once.Do(func() {
		close(g.closed)
		close(g.errs)
	})
	return nil
}

// recordingProcessor captures applied envelope ids in order.
type recordingProcessor struct {
	mu   sync.Mutex
	ids  []string
	fail map[string]error
	boom string

	// hold parks the envelope until the context ends; held is closed once it is parked.
	hold string
	held chan struct{}
}

func (p *recordingProcessor) Process(ctx context.Context, env *event.Envelope) error {
	if env.ID == p.boom {
		panic("processor exploded")
	}
	if env.ID == p.hold {
		close(p.held)
		<-ctx.Done()
		return ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, env.ID)
	return p.fail[env.ID]
}

func (p *recordingProcessor) applied() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}

func message(t *testing.T, topic string, offset int64, env *event.Envelope) *sarama.ConsumerMessage {
	t.Helper()
	data, err := env.Encode()
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: topic, Partition: 0, Offset: offset, Key: []byte(env.RecipientID), Value: data}
}

func TestNewRoutes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	routes := NewRoutes(testTopics, &recordingProcessor{}, logger)
	assert.ElementsMatch(t, testTopics.All(), routes.Topics())
	assert.Equal(t, 3, strings.Count(buf.String(), "ROUTE_REGISTERED"))
	assert.Contains(t, buf.String(), "route=ON_CHAT_EVENT")

	buf.Reset()
	partial := NewRoutes(broker.Topics{Chat: "chat"}, &recordingProcessor{}, logger)
	assert.Equal(t, []string{"chat"}, partial.Topics())
	assert.Equal(t, 1, strings.Count(buf.String(), "ROUTE_REGISTERED"))
	assert.Equal(t, 2, strings.Count(buf.String(), "ROUTE_DISABLED"))
}

func TestConsumerAppliesInOffsetOrderAndSkipsBadEnvelopes(t *testing.T) {
	proc := &recordingProcessor{fail: map[string]error{}}
	m := metrics.New()
	group := newFakeGroup()
	c := NewConsumer(group, NewRoutes(testTopics, proc, discard()), m, discard())
	assert.Equal(t, StateStarting, c.State())

	like := event.New(event.PinLiked, "bob", "alice", []string{"pin-1"})
	failing := event.New(event.CommentPosted, "carol", "alice", []string{"pin-1"})
	exploding := event.New(event.PinSaved, "dave", "alice", []string{"pin-1"})
	follow := event.New(event.UserFollowed, "erin", "alice", nil)
	proc.fail[failing.ID] = errors.New("store down")
	proc.boom = exploding.ID

	group.claim.ch <- message(t, testTopics.Content, 0, like)
	group.claim.ch <- &sarama.ConsumerMessage{Topic: testTopics.Content, Offset: 1, Value: []byte("{not json")}
	group.claim.ch <- message(t, testTopics.Content, 2, failing)
	group.claim.ch <- message(t, testTopics.Content, 3, exploding)
	group.claim.ch <- message(t, "pin.unknown", 4, like)
	group.claim.ch <- message(t, testTopics.User, 5, follow)

	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool {
		return len(group.session.offsets()) == 6
	}, time.Second, 5*time.Millisecond)

	// Every offset is marked even when the envelope is skipped.
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5}, group.session.offsets())
	assert.Equal(t, []string{like.ID, failing.ID, follow.ID}, proc.applied())
	assert.Equal(t, StatePolling, c.State())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Consumed.WithLabelValues(testTopics.Content, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Consumed.WithLabelValues(testTopics.Content, "malformed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Consumed.WithLabelValues(testTopics.Content, "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Consumed.WithLabelValues("pin.unknown", "unrouted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Consumed.WithLabelValues(testTopics.User, "ok")))

	require.NoError(t, c.Stop())
	assert.Equal(t, StateStopped, c.State())
	require.NoError(t, c.Stop())
}

func TestConsumerLeavesInterruptedEnvelopeUnmarked(t *testing.T) {
	proc := &recordingProcessor{held: make(chan struct{})}
	m := metrics.New()
	group := newFakeGroup()
	c := NewConsumer(group, NewRoutes(testTopics, proc, discard()), m, discard())

	applied := event.New(event.PinLiked, "bob", "alice", []string{"pin-1"})
	retried := event.New(event.PinLiked, "carol", "alice", []string{"pin-1"})
	after := event.New(event.PinLiked, "dave", "alice", []string{"pin-1"})
	proc.hold = retried.ID

	group.claim.ch <- message(t, testTopics.Content, 7, applied)
	group.claim.ch <- message(t, testTopics.Content, 8, retried)
	group.claim.ch <- message(t, testTopics.Content, 9, after)

	require.NoError(t, c.Start(context.Background()))

	select {
	case <-proc.held:
	case <-time.After(time.Second):
		t.Fatal("envelope never reached the processor")
	}
	require.NoError(t, c.Stop())

	// Offset 8 must be redelivered to the next member, so neither it nor 9 is committed.
	assert.Equal(t, []int64{7}, group.session.offsets())
	assert.Equal(t, []string{applied.ID}, proc.applied())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Consumed.WithLabelValues(testTopics.Content, "interrupted")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Consumed.WithLabelValues(testTopics.Content, "failed")))
}

func TestConsumerRequiresRoutes(t *testing.T) {
	c := NewConsumer(newFakeGroup(), Routes{}, metrics.New(), discard())
	require.Error(t, c.Start(context.Background()))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "STARTING", StateStarting.String())
	assert.Equal(t, "POLLING", StatePolling.String())
	assert.Equal(t, "PROCESSING", StateProcessing.String())
	assert.Equal(t, "STOPPED", StateStopped.String())
}
