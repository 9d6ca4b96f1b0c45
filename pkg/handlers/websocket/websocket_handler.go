package websocket

import "github.com/gofiber/contrib/websocket"

// Handler serves one upgraded connection and returns when it is done with it.
type Handler interface {
	Handle(c *websocket.Conn)
}

type HandlerTransport interface {
	GetTransport() HandlerTransport
}

var _ HandlerTransport = (*HandlerTransportDTO)(nil)

type HandlerTransportDTO struct {
	IncidentStreamHandler Handler
}

func (t *HandlerTransportDTO) GetTransport() HandlerTransport {
	return t
}
