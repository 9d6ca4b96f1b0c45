package http

import "github.com/gofiber/fiber/v2"

type Handler interface {
	Handle(ctx *fiber.Ctx) error
}

type HandlerTransport interface {
	GetTransport() HandlerTransport
}

type HandlerTransportDTO struct {
	GetVersionHandler Handler

	// Status
	GetStatusHandler       Handler
	ListIncidentsHandler   Handler
	GetIntelligenceHandler Handler

	// Profiles
	ListProfilesHandler   Handler
	GetProfileHandler     Handler
	ReleaseProfileHandler Handler

	// Honeypots
	DeployHoneypotHandler   Handler
	GetHoneypotHandler      Handler
	TeardownHoneypotHandler Handler

	// Ingest
	ScanHandler          Handler
	TrafficEventHandler  Handler
	BehaviorEventHandler Handler

	// Decoy
	DecoyHandler Handler
}

func (t *HandlerTransportDTO) GetTransport() HandlerTransport {
	return t
}
