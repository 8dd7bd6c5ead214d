package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"lienledger/core/types"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsBufferSize   = 64
)

type eventMessage struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	SentAt     time.Time         `json:"sentAt"`
}

// EventsHandler streams committed ledger events over a websocket. The optional
// topic query parameter filters by event type pattern, for example
// "lien.payment" or "lien.*".
func (s *Server) EventsHandler() http.Handler {
	return http.HandlerFunc(s.handleEventsWS)
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.bus == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	topic := strings.TrimSpace(r.URL.Query().Get("topic"))
	if topic == "" {
		topic = "*"
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	// Clients only listen; CloseRead drains control frames and cancels ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, topic); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, topic string) error {
	updates := make(chan *types.Event, wsBufferSize)
	overflow := make(chan struct{})
	var once sync.Once
	cancel := s.bus.Subscribe(topic, func(evt *types.Event) {
		select {
		case updates <- evt:
		default:
			once.Do(func() { close(overflow) })
		}
	})
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-overflow:
			s.logger.Warn("event stream consumer too slow", slog.String("topic", topic))
			return conn.Close(websocket.StatusPolicyViolation, "consumer too slow")
		case evt := <-updates:
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event) error {
	data, err := json.Marshal(eventMessage{Type: evt.Type, Attributes: evt.Attributes, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
