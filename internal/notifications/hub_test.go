package notifications

import (
	"net"
	"sync"
	"testing"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Starts a real server with one registered connection so writes go through
// the actual websocket stack. Needs no database.
func dialHub(t *testing.T, hub *Hub, userID string) *fastws.Conn {
	t.Helper()

	registered := make(chan struct{})
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		hub.Register(userID, c)
		close(registered)
		defer hub.Unregister(userID, c)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	conn, _, err := fastws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	select {
	case <-registered:
	case <-time.After(5 * time.Second):
		t.Fatal("connection never registered")
	}
	return conn
}

// Lifecycle handlers call Notify inline, so several goroutines can publish
// to the same user's connection at the same time. Every write must be
// serialized per connection and every message must arrive.
func TestPublish_ConcurrentFanOutToOneConnection(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "u1")

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			hub.Publish("u1", map[string]any{"seq": i})
		}(i)
	}

	deadline := time.Now().Add(5 * time.Second)
	got := 0
	for got < n {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		require.NotEmpty(t, msg)
		got++
	}
	wg.Wait()
	assert.Equal(t, n, got)
}

func TestPublish_NoConnectionIsANoOp(t *testing.T) {
	hub := NewHub()
	// No connection registered; must not block or panic.
	hub.Publish("nobody", map[string]any{"seq": 1})
}
