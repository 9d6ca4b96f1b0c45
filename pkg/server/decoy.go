package server

import (
	"github.com/NeuralTrust/TrustSentinel/pkg/config"
	"github.com/NeuralTrust/TrustSentinel/pkg/server/router"
	"github.com/sirupsen/logrus"
)

type (
	DecoyServerDI struct {
		Config  *config.Config
		Logger  *logrus.Logger
		Routers []router.ServerRouter
	}
	// DecoyServer exposes honeypot resources on their own port so they can be
	// published without the admin API. It has no health endpoint.
	DecoyServer struct {
		*BaseServer
	}
)

func NewDecoyServer(di DecoyServerDI) *DecoyServer {
	s := &DecoyServer{
		BaseServer: NewBaseServer(di.Config, di.Logger),
	}
	s.WithRouters(di.Routers...)
	return s
}

func (s *DecoyServer) Run() error {
	return s.listen("decoy", s.Config.Server.DecoyPort)
}
