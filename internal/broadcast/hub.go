// ABOUTME: In-memory fan-out hub delivering serialized events to all observers.
// ABOUTME: Best-effort per observer; suppresses duplicate output lines per agent.

package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/roost/internal/dedupe"
	"github.com/2389/roost/internal/store"
)

const (
	// observerBufferSize is the channel buffer for each observer.
	observerBufferSize = 64
)

// Hub fans events out to every connected observer. Delivery is best-effort:
// a full observer channel drops that observer's copy (counted, not retried)
// without affecting the others. Output lines are deduplicated per agent
// before delivery.
type Hub struct {
	mu        sync.RWMutex
	observers map[string]chan []byte
	dropped   uint64

	tracker *dedupe.Tracker
	ledger  store.Store // nil disables persistence
	logger  *slog.Logger
}

// NewHub creates a hub. ledger may be nil to disable event persistence.
func NewHub(tracker *dedupe.Tracker, ledger store.Store, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		observers: make(map[string]chan []byte),
		tracker:   tracker,
		ledger:    ledger,
		logger:    logger.With("component", "broadcast"),
	}
}

// Subscribe registers an observer and returns its serialized-event channel
// plus a subscription id. The subscription is cleaned up when ctx is
// cancelled.
func (h *Hub) Subscribe(ctx context.Context) (<-chan []byte, string) {
	subID := uuid.New().String()
	ch := make(chan []byte, observerBufferSize)

	h.mu.Lock()
	h.observers[subID] = ch
	h.mu.Unlock()

	h.logger.Debug("observer added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		h.Unsubscribe(subID)
	}()

	return ch, subID
}

// Unsubscribe removes an observer and closes its channel.
func (h *Hub) Unsubscribe(subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.observers[subID]
	if !ok {
		return
	}
	delete(h.observers, subID)
	close(ch)

	h.logger.Debug("observer removed", "sub_id", subID)
}

// Publish serializes the event once and delivers it to every observer. A
// payload that cannot produce valid JSON even after degradation is dropped
// with a logged error rather than corrupting the stream.
func (h *Hub) Publish(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	data, err := safeMarshal(ev)
	if err != nil {
		h.logger.Error("dropping unserializable event",
			"type", ev.Type,
			"agent_id", ev.AgentID,
			"error", err,
		)
		return
	}

	h.persist(ev, data)
	h.deliver(data)
}

// PublishOutput runs an output line through the per-agent dedup cache
// before broadcasting. Returns false when the line was suppressed as a
// duplicate.
func (h *Hub) PublishOutput(agentID, line string, streaming bool) bool {
	if h.tracker.CheckAndMark(agentID, line) {
		return false
	}
	h.Publish(Event{
		Type:    EventOutput,
		AgentID: agentID,
		Payload: OutputPayload{Line: line, Streaming: streaming},
	})
	return true
}

// DropAgent discards the dedup state for a deleted agent.
func (h *Hub) DropAgent(agentID string) {
	h.tracker.DropAgent(agentID)
}

// Dropped returns the count of per-observer deliveries lost to full buffers.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// ObserverCount returns the number of connected observers.
func (h *Hub) ObserverCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// persist appends the event to the ledger. Snapshot events are transient
// and skipped.
func (h *Hub) persist(ev Event, data []byte) {
	if h.ledger == nil || ev.Type == EventAgentsSnapshot {
		return
	}
	err := h.ledger.SaveEvent(context.Background(), &store.LedgerEvent{
		ID:        ev.ID,
		AgentID:   ev.AgentID,
		Type:      string(ev.Type),
		Payload:   string(data),
		Timestamp: ev.Timestamp,
	})
	if err != nil {
		h.logger.Warn("ledger write failed", "event_id", ev.ID, "error", err)
	}
}

// deliver copies observer channels under the read lock, then sends without
// holding it.
func (h *Hub) deliver(data []byte) {
	h.mu.RLock()
	targets := make([]chan []byte, 0, len(h.observers))
	for _, ch := range h.observers {
		targets = append(targets, ch)
	}
	h.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- data:
		default:
			h.mu.Lock()
			h.dropped++
			h.mu.Unlock()
			h.logger.Debug("dropped event for slow observer")
		}
	}
}

// Close shuts down the hub and closes all observer channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for subID, ch := range h.observers {
		close(ch)
		delete(h.observers, subID)
	}
	h.logger.Debug("hub closed")
}
