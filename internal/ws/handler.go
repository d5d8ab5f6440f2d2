package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hackathon-judging/internal/confirm"
	"github.com/DoyleJ11/hackathon-judging/internal/hub"
	"github.com/DoyleJ11/hackathon-judging/internal/types"
)

const (
	writeTimeout = 3 * time.Second
	idleTimeout  = 5 * time.Minute
)

var ErrOtherOperator = errors.New("a socket can only answer for the operator it was opened as")

// Signaler receives confirm/cancel answers read off the socket.
type Signaler interface {
	Signal(id, user string, s confirm.Signal) error
}

// Handler subscribes the socket to ?topic= and relays everything published
// there. Clients answer confirmation rounds over the same socket.
func Handler(h *hub.Hub, sig Signaler, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topic := r.URL.Query().Get("topic")
		if topic == "" {
			http.Error(w, "missing topic", http.StatusBadRequest)
			return
		}
		operator := r.URL.Query().Get("operator")
		if operator == "" {
			operator = r.Header.Get("X-Operator")
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan hub.Message, 16)
		clientID := uuid.NewString()
		log := log.With(zap.String("client", clientID), zap.String("topic", topic))

		if err := h.Send(r.Context(), hub.Join{ClientID: clientID, Topic: topic, Outbox: out}); err != nil {
			conn.Close(websocket.StatusGoingAway, "shutting down")
			return
		}
		defer func() { _ = h.Send(context.Background(), hub.Leave{ClientID: clientID}) }()
		log.Debug("subscribed")

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case m, ok := <-out:
					if !ok {
						// dropped by the hub as too slow, or shutting down
						conn.Close(websocket.StatusTryAgainLater, "fell behind")
						return
					}
					write(writeCtx, conn, types.ServerMessage{Type: "Message", Message: &m})
				case <-writeCtx.Done():
					return
				}
			}
		}()

		for {
			ctx, cancel := context.WithTimeout(r.Context(), idleTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("read ended", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				write(r.Context(), conn, types.ServerMessage{Type: "Error", Error: "bad json"})
				continue
			}
			s, ok := toSignal(cm)
			if !ok {
				write(r.Context(), conn, types.ServerMessage{Type: "Error", Error: "unknown type"})
				continue
			}
			if cm.User != "" && cm.User != operator {
				write(r.Context(), conn, types.ServerMessage{Type: "Error", Round: cm.Round, Error: ErrOtherOperator.Error()})
				continue
			}
			if err := sig.Signal(cm.Round, operator, s); err != nil {
				write(r.Context(), conn, types.ServerMessage{Type: "Error", Round: cm.Round, Error: err.Error()})
				continue
			}
			write(r.Context(), conn, types.ServerMessage{Type: "Ack", Round: cm.Round})
		}
	}
}

func toSignal(m types.ClientMessage) (confirm.Signal, bool) {
	switch m.Type {
	case "Confirm":
		return confirm.SignalConfirm, true
	case "Cancel":
		return confirm.SignalCancel, true
	default:
		return 0, false
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) {
	payload, _ := json.Marshal(msg)
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
