// ABOUTME: Observer WebSocket: reconciliation sweep, snapshot, backfill, then live events.
// ABOUTME: Slow observers are dropped by the hub, not retried here.

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/2389/roost/internal/broadcast"
)

const wsWriteTimeout = 15 * time.Second

// handleWebSocket upgrades an observer connection. The agent roster is
// reconciled against OS state first so the snapshot the observer receives
// is trustworthy, then ledger events since an optional ?since= timestamp
// are replayed before the live stream begins.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		since = t
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer ws.CloseNow()

	ctx := r.Context()

	s.orch.StartupSweep()

	// Subscribe before the snapshot so no live event falls into the gap.
	events, subID := s.hub.Subscribe(ctx)
	defer s.hub.Unsubscribe(subID)

	snapshot, err := json.Marshal(broadcast.Event{
		Type:      broadcast.EventAgentsSnapshot,
		Timestamp: time.Now(),
		Payload:   s.orch.Agents(),
	})
	if err == nil {
		if err := s.writeFrame(ctx, ws, snapshot); err != nil {
			return
		}
	}

	if !since.IsZero() {
		if err := s.backfill(ctx, ws, since); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			ws.Close(websocket.StatusNormalClosure, "")
			return
		case data, ok := <-events:
			if !ok {
				ws.Close(websocket.StatusNormalClosure, "stream ended")
				return
			}
			if err := s.writeFrame(ctx, ws, data); err != nil {
				return
			}
		}
	}
}

// backfill replays persisted events at or after since, oldest first.
func (s *Server) backfill(ctx context.Context, ws *websocket.Conn, since time.Time) error {
	const backfillCap = 500
	entries, err := s.ledger.ListEventsSince(ctx, since, backfillCap)
	if err != nil {
		s.logger.Warn("ledger backfill failed", "error", err)
		return nil
	}
	for _, e := range entries {
		if err := s.writeFrame(ctx, ws, []byte(e.Payload)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) writeFrame(ctx context.Context, ws *websocket.Conn, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}
