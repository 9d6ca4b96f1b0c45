package middleware

import "github.com/gofiber/fiber/v2"

type Middleware interface {
	Middleware() fiber.Handler
}

// Transport groups the middlewares shared by the HTTP servers.
type Transport struct {
	AuthMiddleware        Middleware
	RecoverMiddleware     Middleware
	TraceMiddleware       Middleware
	InterceptorMiddleware Middleware
	CORSMiddleware        Middleware
}

// GetMiddlewares returns the global chain in execution order, skipping unset
// entries. Auth is applied per route group.
func (t *Transport) GetMiddlewares() []interface{} {
	var handlers []interface{}
	for _, m := range []Middleware{
		t.RecoverMiddleware,
		t.TraceMiddleware,
		t.InterceptorMiddleware,
		t.CORSMiddleware,
	} {
		if m != nil {
			handlers = append(handlers, m.Middleware())
		}
	}
	return handlers
}
