package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hackathon-judging/internal/confirm"
	"github.com/DoyleJ11/hackathon-judging/internal/hub"
	"github.com/DoyleJ11/hackathon-judging/internal/types"
)

type signal struct {
	round, user string
	s           confirm.Signal
}

type fakeSignaler struct {
	mu  sync.Mutex
	got []signal
}

func (f *fakeSignaler) Signal(id, user string, s confirm.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == "stale" {
		return confirm.ErrUnknownRound
	}
	f.got = append(f.got, signal{id, user, s})
	return nil
}

func setup(t *testing.T) (*hub.Hub, *fakeSignaler, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := hub.NewHub(ctx)
	sig := &fakeSignaler{}

	r := chi.NewRouter()
	r.Get("/ws", Handler(h, sig, zap.NewNop()))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return h, sig, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var m types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestHandler_RelaysTopic(t *testing.T) {
	h, _, url := setup(t)
	// published before the socket joins, so it arrives as the replay
	require.NoError(t, h.Publish(context.Background(), hub.Message{Topic: "public", Kind: hub.KindStatus, Body: "# Judging"}))

	conn := dial(t, url+"/ws?topic=public")
	m := readMsg(t, conn)
	assert.Equal(t, "Message", m.Type)
	require.NotNil(t, m.Message)
	assert.Equal(t, "# Judging", m.Message.Body)
	assert.Equal(t, hub.KindStatus, m.Message.Kind)
}

func TestHandler_Signals(t *testing.T) {
	_, sig, url := setup(t)
	conn := dial(t, url+"/ws?topic=operator:op-1&operator=op-1")

	send(t, conn, types.ClientMessage{Type: "Confirm", Round: "r-1"})
	assert.Equal(t, "Ack", readMsg(t, conn).Type)

	send(t, conn, types.ClientMessage{Type: "Cancel", Round: "r-2", User: "op-1"})
	assert.Equal(t, "Ack", readMsg(t, conn).Type)

	send(t, conn, types.ClientMessage{Type: "Confirm", Round: "r-4", User: "someone"})
	m := readMsg(t, conn)
	assert.Equal(t, "Error", m.Type)
	assert.Equal(t, "r-4", m.Round)
	assert.Equal(t, ErrOtherOperator.Error(), m.Error)

	send(t, conn, types.ClientMessage{Type: "Confirm", Round: "stale"})
	m = readMsg(t, conn)
	assert.Equal(t, "Error", m.Type)
	assert.Equal(t, confirm.ErrUnknownRound.Error(), m.Error)

	send(t, conn, types.ClientMessage{Type: "Shrug", Round: "r-3"})
	assert.Equal(t, "unknown type", readMsg(t, conn).Error)

	sig.mu.Lock()
	defer sig.mu.Unlock()
	assert.Equal(t, []signal{
		{"r-1", "op-1", confirm.SignalConfirm},
		{"r-2", "op-1", confirm.SignalCancel},
	}, sig.got)
}

func TestHandler_MissingTopic(t *testing.T) {
	_, _, url := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, url+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}
