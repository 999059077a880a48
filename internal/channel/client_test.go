package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
)

// echoServer accepts one websocket and bounces every envelope back with the
// type prefixed, so the test can watch the full round trip.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusGoingAway, "test server closing")

		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var env Envelope
			if json.Unmarshal(data, &env) != nil {
				continue
			}
			reply, _ := json.Marshal(Envelope{Type: "ECHO_" + env.Type, Payload: env.Payload})
			if conn.Write(ctx, websocket.MessageText, reply) != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestClientRoundTrip(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	client := NewClient(Config{URL: wsURL(server)})

	received := make(chan json.RawMessage, 1)
	client.Subscribe("ECHO_USE_DICE", func(payload json.RawMessage) {
		received <- payload
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, client.Connect(ctx))
	defer client.Close()

	err := client.Send("/app/game/g1/roll-dice", "USE_DICE", map[string]string{"userName": "alice"})
	assert.NoError(t, err)

	select {
	case payload := <-received:
		var body map[string]string
		assert.NoError(t, json.Unmarshal(payload, &body))
		assert.Equal(t, "alice", body["userName"])
	case <-time.After(5 * time.Second):
		t.Fatal("no echo received")
	}

	assert.Equal(t, QualityGood, client.CurrentQuality())
}

func TestClientSendWithoutConnect(t *testing.T) {
	client := NewClient(Config{URL: "ws://localhost:1/websocket"})

	err := client.Send("/app/game/g1/end-turn", "TURN_SKIP", nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_CONNECTED")
	assert.Equal(t, QualityDisconnected, client.CurrentQuality())
}

func TestClientCloseIsIdempotent(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	client := NewClient(Config{URL: wsURL(server)})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, client.Connect(ctx))

	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())

	err := client.Send("/app/game/g1/end-turn", "TURN_SKIP", nil)
	assert.Error(t, err)
}

func TestClientConnectFailure(t *testing.T) {
	client := NewClient(Config{URL: "ws://127.0.0.1:1/websocket"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := client.Connect(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "CONNECT_FAILED")
}
