package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PlatformNetwork/term-executor/internal/batch"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer sub.Close()

	b.Publish(batch.WsEvent{Kind: batch.EventTaskStarted, BatchID: "b1"})

	select {
	case evt := <-sub.Events:
		assert.Equal(t, batch.EventTaskStarted, evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered")
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := New()
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	defer sub1.Close()
	defer sub2.Close()

	b.Publish(batch.WsEvent{Kind: batch.EventTaskStarted, BatchID: "b1"})

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case <-sub.Events:
		case <-time.After(time.Second):
			t.Fatal("expected event was not delivered to all subscribers")
		}
	}
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer sub.Close()

	b.Close()
	b.Publish(batch.WsEvent{Kind: batch.EventTaskStarted, BatchID: "b1"})

	select {
	case <-sub.Events:
		t.Fatal("no event should be delivered after Close")
	case <-time.After(50 * time.Millisecond):
	}
}

// TestPublishToFullBufferReportsLagInsteadOfBlocking exercises the
// non-blocking degrade path: once a subscriber's buffer is full, further
// publishes must not block and must instead surface on Lag.
func TestPublishToFullBufferReportsLagInsteadOfBlocking(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer sub.Close()

	for i := 0; i < subscriberBufferSize+5; i++ {
		done := make(chan struct{})
		go func() {
			b.Publish(batch.WsEvent{Kind: batch.EventTaskProgress, BatchID: "b1"})
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("Publish blocked on iteration %d", i)
		}
	}

	select {
	case lag := <-sub.Lag:
		assert.Equal(t, 1, lag.Dropped)
	case <-time.After(time.Second):
		t.Fatal("expected a lag notification after overflowing the buffer")
	}
}

func TestSubscriptionCloseRemovesSubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe()

	require.Len(t, b.subscribers, 1)
	sub.Close()
	assert.Len(t, b.subscribers, 0)
}
