package feed

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matthewbaird/outbreak/internal/event"
	"github.com/matthewbaird/outbreak/internal/types"
)

type received struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data"`
}

func dial(t *testing.T, hub *Hub) (context.Context, *websocket.Conn) {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return ctx, conn
}

func read(t *testing.T, ctx context.Context, conn *websocket.Conn) received {
	t.Helper()
	var msg received
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func outbreak(disease string) types.Record {
	r := types.Record{Epicode: "E_OU1_X", Type: types.RecordEpidemic}
	r.Disease, r.OrgUnit, r.Period = disease, "ou1", "2024W11"
	return r
}

func TestHub_SessionAndFilter(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, conn := dial(t, hub)

	msg := read(t, ctx, conn)
	require.Equal(t, "session", msg.Type)
	var sess SessionData
	require.NoError(t, json.Unmarshal(msg.Data, &sess))
	assert.NotEmpty(t, sess.SubscriberID)
	assert.Equal(t, 1, hub.Subscribers())

	sub, _ := json.Marshal(SubscribeData{Disease: "cholera", MinWeight: "major"})
	require.NoError(t, wsjson.Write(ctx, conn, ClientMessage{Type: "subscribe", ID: "r1", Data: sub}))
	msg = read(t, ctx, conn)
	require.Equal(t, "subscribed", msg.Type)
	assert.Equal(t, "r1", msg.RequestID)

	// Filtered out by weight, then by disease.
	require.NoError(t, hub.HandleEvent(ctx, event.NewOutbreakUpdated(outbreak("Cholera"))))
	require.NoError(t, hub.HandleEvent(ctx, event.NewOutbreakDeclared(outbreak("Measles"))))
	require.NoError(t, hub.HandleEvent(ctx, event.NewOutbreakDeclared(outbreak("Cholera"))))

	msg = read(t, ctx, conn)
	require.Equal(t, "event", msg.Type)
	var evt EventData
	require.NoError(t, json.Unmarshal(msg.Data, &evt))
	assert.Equal(t, event.TypeOutbreakDeclared, evt.EventType)
	assert.Contains(t, evt.Summary, "Cholera")
}

func TestHub_ClientErrors(t *testing.T) {
	hub := NewHub(nil)
	ctx, conn := dial(t, hub)
	read(t, ctx, conn)

	require.NoError(t, wsjson.Write(ctx, conn, ClientMessage{Type: "bogus", ID: "r1"}))
	msg := read(t, ctx, conn)
	assert.Equal(t, "error", msg.Type)

	sub, _ := json.Marshal(SubscribeData{MinWeight: "huge"})
	require.NoError(t, wsjson.Write(ctx, conn, ClientMessage{Type: "subscribe", ID: "r2", Data: sub}))
	msg = read(t, ctx, conn)
	assert.Equal(t, "error", msg.Type)
	var e ErrorData
	require.NoError(t, json.Unmarshal(msg.Data, &e))
	assert.Equal(t, "invalid_weight", e.Code)

	require.NoError(t, wsjson.Write(ctx, conn, ClientMessage{Type: "ping", ID: "r3"}))
	msg = read(t, ctx, conn)
	assert.Equal(t, "pong", msg.Type)
	assert.Equal(t, "r3", msg.RequestID)
}

func TestHub_DisconnectRemovesSubscriber(t *testing.T) {
	hub := NewHub(nil)
	ctx, conn := dial(t, hub)
	read(t, ctx, conn)
	require.Equal(t, 1, hub.Subscribers())

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	assert.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
