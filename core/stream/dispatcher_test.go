package stream

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logsvc "github.com/bellbook/bellbook/services/logger"
)

func newTestDispatcher(size int) *Dispatcher {
	return NewDispatcher(size, logsvc.NewConsoleLogger())
}

func receive(t *testing.T, q *Queue) Event {
	t.Helper()
	select {
	case payload := <-q.C():
		var ev Event
		require.NoError(t, json.Unmarshal(payload, &ev))
		return ev
	default:
		t.Fatal("expected a pending event")
		return nil
	}
}

func assertEmpty(t *testing.T, q *Queue) {
	t.Helper()
	select {
	case payload := <-q.C():
		t.Fatalf("expected empty queue, got %s", payload)
	default:
	}
}

func TestDispatcher_fanOutToAllHandles(t *testing.T) {
	d := newTestDispatcher(8)

	// two devices for the same guardian
	q1 := d.Register("guardian-1")
	q2 := d.Register("guardian-1")

	first := NewMessageEvent("conv-1", "msg-1")
	second := NewMessageEvent("conv-1", "msg-2")
	d.Publish([]string{"guardian-1"}, first)
	d.Publish([]string{"guardian-1"}, second)

	for _, q := range []*Queue{q1, q2} {
		ev := receive(t, q)
		assert.Equal(t, "msg-1", ev["message_id"], "events must arrive in publish order")
		ev = receive(t, q)
		assert.Equal(t, "msg-2", ev["message_id"])
		assertEmpty(t, q)
	}
}

func TestDispatcher_publishToUnknownSubscriberIsNoop(t *testing.T) {
	d := newTestDispatcher(8)
	d.Publish([]string{"nobody-home"}, NewMessageEvent("conv-1", "msg-1"))
	assert.Equal(t, 0, d.NumSubscribers())
}

func TestDispatcher_fullQueueDropsOnlyThatQueue(t *testing.T) {
	d := newTestDispatcher(2)

	stalled := d.Register("guardian-1")
	healthy := d.Register("guardian-2")

	for i := 0; i < 3; i++ {
		d.Publish(
			[]string{"guardian-1", "guardian-2"},
			NewMessageEvent("conv-1", fmt.Sprintf("msg-%d", i)),
		)
		receive(t, healthy) // healthy consumer keeps draining
	}

	// stalled consumer got the first two, the third was dropped
	assert.Equal(t, "msg-0", receive(t, stalled)["message_id"])
	assert.Equal(t, "msg-1", receive(t, stalled)["message_id"])
	assertEmpty(t, stalled)
}

func TestDispatcher_unregisterIsIdempotent(t *testing.T) {
	d := newTestDispatcher(8)

	q1 := d.Register("guardian-1")
	q2 := d.Register("guardian-1")
	assert.Equal(t, 1, d.NumSubscribers())

	d.Unregister("guardian-1", q1)
	d.Unregister("guardian-1", q1) // no-op
	assert.Equal(t, 1, d.NumSubscribers())

	d.Unregister("guardian-1", q2) // last handle removes the subscriber entry
	assert.Equal(t, 0, d.NumSubscribers())
	d.Unregister("guardian-1", q2) // still a no-op
}

func TestDispatcher_broadcastReachesOnlyConnectedRecipients(t *testing.T) {
	d := newTestDispatcher(8)

	// 50 guardian recipients, 10 of them with a connected device
	recipients := make([]string, 50)
	queues := make(map[string]*Queue, 10)
	for i := range recipients {
		id := fmt.Sprintf("guardian-%d", i)
		recipients[i] = id
		if i < 10 {
			queues[id] = d.Register(id)
		}
	}

	d.Publish(recipients, NewAnnouncementEvent("ann-1", "chan-1", "Sports day", "normal"))

	for id, q := range queues {
		ev := receive(t, q)
		assert.Equal(t, EventAnnouncementNew, ev["type"], "recipient %s", id)
		assert.Equal(t, "ann-1", ev["announcement_id"])
		assertEmpty(t, q)
	}
}
