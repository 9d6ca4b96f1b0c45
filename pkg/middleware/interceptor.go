package middleware

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/app/engine"
	"github.com/NeuralTrust/TrustSentinel/pkg/common"
	"github.com/NeuralTrust/TrustSentinel/pkg/config"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/enforcer"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/fingerprint"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/httpx"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/prometheus"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/sirupsen/logrus"
)

// Interceptor is the engine's hook into a fiber request path. It scans each
// request before the handler runs and records the outcome afterwards. It does
// not reject on findings; rejection is left to the Guard, which only sees
// what the enforcers have already decided.
type Interceptor struct {
	logger    *logrus.Logger
	cfg       config.InterceptorConfig
	resolver  fingerprint.Resolver
	guard     enforcer.Guard
	inspector atomic.Pointer[inspectorRef]
}

type inspectorRef struct {
	engine.Inspector
}

var (
	_ engine.Hook = (*Interceptor)(nil)
	_ Middleware  = (*Interceptor)(nil)
)

// NewInterceptor builds the hook. guard may be nil; it is only consulted when
// cfg.EnforceGuard is set.
func NewInterceptor(
	logger *logrus.Logger,
	cfg config.InterceptorConfig,
	resolver fingerprint.Resolver,
	guard enforcer.Guard,
) *Interceptor {
	return &Interceptor{
		logger:   logger,
		cfg:      cfg,
		resolver: resolver,
		guard:    guard,
	}
}

func (i *Interceptor) Attach(inspector engine.Inspector) {
	i.inspector.Store(&inspectorRef{inspector})
}

func (i *Interceptor) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ref := i.inspector.Load()
		if !i.cfg.Enabled || ref == nil || i.skipped(c.Path()) {
			return c.Next()
		}

		fp := FingerprintFrom(c, i.resolver)
		sourceID := fp.SourceID()

		if i.cfg.EnforceGuard && i.guard != nil {
			if blocked := i.enforceGuard(c, sourceID); blocked {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
			}
		}

		req := i.buildRequest(c, fp)

		started := time.Now()
		result := ref.Inspect(c.UserContext(), req)
		if prometheus.Config.EnableLatency {
			prometheus.InterceptLatency.Observe(float64(time.Since(started)) / float64(time.Millisecond))
		}
		c.Locals(common.ScanResultContextKey, result)
		if !result.Safe {
			i.logger.WithFields(logrus.Fields{
				"source_id": sourceID,
				"path":      req.Path,
				"findings":  len(result.Findings),
				"severity":  result.HighestSeverity().String(),
				"trace_id":  c.Locals(common.TraceIdKey),
			}).Warn("request flagged by interceptor")
		}

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				status = fiberErr.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		ref.Complete(req, engine.Response{Status: status, Latency: time.Since(started)})
		return err
	}
}

// enforceGuard fails open: a guard error lets the request through.
func (i *Interceptor) enforceGuard(c *fiber.Ctx, sourceID string) bool {
	ctx := c.UserContext()
	blocked, err := i.guard.IsBlocked(ctx, sourceID)
	if err != nil {
		i.logger.WithError(err).WithField("source_id", sourceID).Warn("guard lookup failed")
		return false
	}
	if blocked {
		return true
	}
	delay, err := i.guard.ThrottleDelay(ctx, sourceID)
	if err != nil {
		i.logger.WithError(err).WithField("source_id", sourceID).Warn("guard lookup failed")
		return false
	}
	if delay > 0 {
		wait(ctx, delay)
	}
	return false
}

func (i *Interceptor) buildRequest(c *fiber.Ctx, fp fingerprint.Fingerprint) engine.Request {
	// fiber strings alias the request buffer; the engine keeps these.
	req := engine.Request{
		SourceID:  utils.CopyString(fp.SourceID()),
		SessionID: fp.SessionID(),
		Method:    utils.CopyString(c.Method()),
		Path:      utils.CopyString(c.Path()),
		UserAgent: utils.CopyString(fp.UserAgent),
		Query:     i.query(c),
		Depth:     pathDepth(c.Path()),
		Timestamp: time.Now(),
	}
	if body := i.body(c); len(body) > 0 {
		req.Body = body
	}
	for _, name := range i.cfg.ScanHeaders {
		if value := c.Get(name); value != "" {
			if req.Headers == nil {
				req.Headers = make(map[string]string, len(i.cfg.ScanHeaders))
			}
			req.Headers[name] = utils.CopyString(value)
		}
	}
	return req
}

func (i *Interceptor) query(c *fiber.Ctx) string {
	raw := string(c.Request().URI().QueryString())
	if raw == "" {
		return ""
	}
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// body returns the decoded request body capped at MaxBodyBytes. Bodies whose
// encoding cannot be undone are scanned raw.
func (i *Interceptor) body(c *fiber.Ctx) []byte {
	raw := c.Request().Body()
	if len(raw) == 0 {
		return nil
	}
	decoded, _, err := httpx.DecodeChain(c.Get(fiber.HeaderContentEncoding), raw, i.cfg.MaxBodyBytes)
	if err != nil {
		i.logger.WithError(err).WithField("path", c.Path()).Debug("scanning undecoded request body")
		decoded = raw
	}
	if i.cfg.MaxBodyBytes > 0 && len(decoded) > i.cfg.MaxBodyBytes {
		decoded = decoded[:i.cfg.MaxBodyBytes]
	}
	return append([]byte(nil), decoded...)
}

func (i *Interceptor) skipped(path string) bool {
	for _, prefix := range i.cfg.SkipPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func pathDepth(path string) int {
	depth := 0
	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			depth++
		}
	}
	return depth
}

func wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
