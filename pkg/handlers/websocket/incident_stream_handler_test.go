package websocket_test

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/incident"
	wsHandlers "github.com/NeuralTrust/TrustSentinel/pkg/handlers/websocket"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/logger"
	fiberws "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	stream    chan incident.Incident
	cancelled atomic.Bool
}

func (f *fakeSubscriber) Subscribe() (<-chan incident.Incident, func()) {
	return f.stream, func() { f.cancelled.Store(true) }
}

func startStream(t *testing.T, sub wsHandlers.Subscriber) string {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws/incidents", fiberws.New(wsHandlers.NewIncidentStreamHandler(logger.Discard(), sub).Handle))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "ws://" + ln.Addr().String() + "/ws/incidents"
}

func TestIncidentStream_PushesIncidentsAndClosesWithEngine(t *testing.T) {
	sub := &fakeSubscriber{stream: make(chan incident.Incident, 1)}
	url := startStream(t, sub)

	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	sub.stream <- incident.Incident{ID: "inc-1", SourceID: "203.0.113.7", State: "BLOCKED"}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got map[string]interface{}
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "inc-1", got["id"])
	assert.Equal(t, "203.0.113.7", got["source_id"])
	assert.Equal(t, "BLOCKED", got["state"])

	close(sub.stream)
	_, _, err = conn.ReadMessage()
	assert.True(t, gws.IsCloseError(err, gws.CloseGoingAway), "unexpected error: %v", err)
	assert.Eventually(t, sub.cancelled.Load, 2*time.Second, 10*time.Millisecond)
}

func TestIncidentStream_ClientDisconnectCancelsSubscription(t *testing.T) {
	sub := &fakeSubscriber{stream: make(chan incident.Incident)}
	url := startStream(t, sub)

	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	assert.Eventually(t, sub.cancelled.Load, 2*time.Second, 10*time.Millisecond)
}
