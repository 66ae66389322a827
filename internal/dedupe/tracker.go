// ABOUTME: Thread-safe per-agent cache of recent output-line hashes.
// ABOUTME: Suppresses duplicate lines; bounded per agent with oldest-first eviction.

package dedupe

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// agentCache holds the recent-hash set for one agent. Uses a doubly-linked
// list to maintain insertion order for O(1) eviction.
type agentCache struct {
	seen  map[string]*list.Element
	order *list.List // hashes in insertion order (oldest at front)
}

// Tracker tracks recently seen output lines per agent. A line whose content
// hash is already present for that agent is reported as a duplicate. Each
// agent's set is capped at maxPerAgent entries; the oldest hash is evicted
// once the cap is exceeded.
type Tracker struct {
	mu          sync.Mutex
	agents      map[string]*agentCache
	maxPerAgent int
}

// NewTracker creates a tracker with the given per-agent capacity.
func NewTracker(maxPerAgent int) *Tracker {
	if maxPerAgent <= 0 {
		maxPerAgent = 256
	}
	return &Tracker{
		agents:      make(map[string]*agentCache),
		maxPerAgent: maxPerAgent,
	}
}

// CheckAndMark atomically checks whether the line was already seen for the
// agent and marks it if not. Returns true if the line is a duplicate.
// The single critical section prevents TOCTOU races between concurrent
// deliveries of the same line.
func (t *Tracker) CheckAndMark(agentID, line string) bool {
	key := hashLine(line)

	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.agents[agentID]
	if !ok {
		c = &agentCache{
			seen:  make(map[string]*list.Element),
			order: list.New(),
		}
		t.agents[agentID] = c
	}

	if elem, exists := c.seen[key]; exists {
		c.order.MoveToBack(elem)
		return true
	}

	if len(c.seen) >= t.maxPerAgent {
		front := c.order.Front()
		if front != nil {
			oldest, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, oldest)
		}
	}

	c.seen[key] = c.order.PushBack(key)
	return false
}

// Len returns the number of hashes currently tracked for an agent.
func (t *Tracker) Len(agentID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.agents[agentID]
	if !ok {
		return 0
	}
	return len(c.seen)
}

// DropAgent discards all dedup state for an agent. Called on agent
// deletion; a stop alone keeps the state.
func (t *Tracker) DropAgent(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.agents, agentID)
}

// hashLine returns the hex SHA-256 of the full line text.
func hashLine(line string) string {
	sum := sha256.Sum256([]byte(line))
	return hex.EncodeToString(sum[:])
}
