package websocket

import (
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/incident"
	"github.com/gofiber/contrib/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Subscriber is the part of the engine the stream needs.
type Subscriber interface {
	Subscribe() (<-chan incident.Incident, func())
}

type incidentStreamHandler struct {
	logger     *logrus.Logger
	subscriber Subscriber
}

func NewIncidentStreamHandler(logger *logrus.Logger, subscriber Subscriber) Handler {
	return &incidentStreamHandler{
		logger:     logger,
		subscriber: subscriber,
	}
}

// Handle pushes every classified incident to the client as JSON until the
// client disconnects or the engine stops. Incidents published while the
// client is slow are dropped by the engine, not queued here.
func (h *incidentStreamHandler) Handle(c *websocket.Conn) {
	stream, cancel := h.subscriber.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	remote := c.RemoteAddr().String()
	h.logger.WithField("remote", remote).Debug("incident stream opened")
	defer h.logger.WithField("remote", remote).Debug("incident stream closed")

	for {
		select {
		case inc, ok := <-stream:
			if !ok {
				_ = c.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteJSON(inc); err != nil {
				h.logger.WithError(err).Debug("incident stream write failed")
				return
			}
		case <-ping.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
