package engine

import (
	"context"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/detection/scanner"
)

// Request is the part of an intercepted request the engine inspects.
type Request struct {
	SourceID  string
	SessionID string
	Method    string
	Path      string
	UserAgent string
	Query     string
	Headers   map[string]string
	Body      []byte
	Depth     int
	Timestamp time.Time
}

type Response struct {
	Status  int
	Latency time.Duration
}

// Inspector is what an interception hook calls on every request.
type Inspector interface {
	Inspect(ctx context.Context, req Request) scanner.Result
	Complete(req Request, resp Response)
}

// Hook binds the engine to a request path it does not own, such as an HTTP
// middleware chain. Attach is called once from New.
type Hook interface {
	Attach(inspector Inspector)
}

type noopHook struct{}

func (noopHook) Attach(Inspector) {}
