package server

import (
	"github.com/NeuralTrust/TrustSentinel/pkg/config"
	"github.com/NeuralTrust/TrustSentinel/pkg/server/router"
	"github.com/sirupsen/logrus"
)

type (
	AdminServerDI struct {
		Config  *config.Config
		Logger  *logrus.Logger
		Routers []router.ServerRouter
	}
	AdminServer struct {
		*BaseServer
	}
)

// NewAdminServer serves the query API, ingest endpoints and the incident
// stream.
func NewAdminServer(di AdminServerDI) *AdminServer {
	s := &AdminServer{
		BaseServer: NewBaseServer(di.Config, di.Logger),
	}
	s.setupHealthCheck()
	s.WithRouters(di.Routers...)
	return s
}

func (s *AdminServer) Run() error {
	return s.listen("admin", s.Config.Server.AdminPort)
}
