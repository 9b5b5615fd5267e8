package stream

import (
	"encoding/json"
	"sync"

	"github.com/bellbook/bellbook/core"
)

// Event kinds pushed to connected clients.
const (
	EventConnected       = "connected"
	EventAnnouncementNew = "announcement.new"
	EventMessageNew      = "message.new"
)

// Event is a fact that has already been durably committed, broadcast for
// live-update purposes only. The dispatcher never persists it.
type Event map[string]interface{}

func NewConnectedEvent(userID string) Event {
	return Event{"type": EventConnected, "user_id": userID}
}

func NewAnnouncementEvent(announcementID, channelID, title, priority string) Event {
	return Event{
		"type":            EventAnnouncementNew,
		"announcement_id": announcementID,
		"channel_id":      channelID,
		"title":           title,
		"priority":        priority,
	}
}

func NewMessageEvent(conversationID, messageID string) Event {
	return Event{
		"type":            EventMessageNew,
		"conversation_id": conversationID,
		"message_id":      messageID,
	}
}

// Queue buffers pending event payloads for one streaming connection.
// A subscriber may own several queues at once (multiple devices/tabs).
type Queue struct {
	ch chan []byte
}

// C is drained by the owning connection. Payloads arrive in publish order.
func (q *Queue) C() <-chan []byte {
	return q.ch
}

// Dispatcher fans committed domain events out to the queues of each target
// subscriber. It is process-local: delivery is best-effort and clients must
// re-fetch state on reconnect. Multi-process deployments need a shared
// broker behind the same contract.
type Dispatcher struct {
	queueSize int
	logger    core.Logger

	mu   sync.Mutex
	subs map[string]map[*Queue]struct{}
}

func NewDispatcher(queueSize int, logger core.Logger) *Dispatcher {
	return &Dispatcher{
		queueSize: queueSize,
		logger:    logger,
		subs:      make(map[string]map[*Queue]struct{}),
	}
}

// Register creates a new bounded queue for subscriberID and returns its handle.
func (d *Dispatcher) Register(subscriberID string) *Queue {
	q := &Queue{ch: make(chan []byte, d.queueSize)}
	d.mu.Lock()
	handles, ok := d.subs[subscriberID]
	if !ok {
		handles = make(map[*Queue]struct{})
		d.subs[subscriberID] = handles
	}
	handles[q] = struct{}{}
	d.mu.Unlock()
	return q
}

// Unregister removes exactly that handle; the last handle removes the
// subscriber entry entirely. Unregistering an already-removed handle is a no-op.
func (d *Dispatcher) Unregister(subscriberID string, q *Queue) {
	d.mu.Lock()
	if handles, ok := d.subs[subscriberID]; ok {
		delete(handles, q)
		if len(handles) == 0 {
			delete(d.subs, subscriberID)
		}
	}
	d.mu.Unlock()
}

// Publish enqueues the event on every registered handle of every listed
// subscriber without blocking. A full queue (stalled consumer) drops the
// event for that queue only; the triggering operation has already committed
// and must never fail here.
func (d *Dispatcher) Publish(subscriberIDs []string, event Event) {
	if len(subscriberIDs) == 0 {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("stream: marshaling event", err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range subscriberIDs {
		for q := range d.subs[id] {
			select {
			case q.ch <- payload:
			default:
				d.logger.Warn("stream: queue full, dropping event", map[string]interface{}{
					"subscriber": id,
					"event":      event["type"],
				})
			}
		}
	}
}

// NumSubscribers reports how many subscribers currently hold open queues.
func (d *Dispatcher) NumSubscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}
