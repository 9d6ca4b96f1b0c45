package http

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/app/engine"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/honeypot"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type decoyHandler struct {
	logger   *logrus.Logger
	engine   *engine.Engine
	maxDelay time.Duration
}

// NewDecoyHandler serves honeypot resources. maxDelay caps the artificial
// latency of resource-exhaustion decoys.
func NewDecoyHandler(logger *logrus.Logger, engine *engine.Engine, maxDelay time.Duration) Handler {
	return &decoyHandler{
		logger:   logger,
		engine:   engine,
		maxDelay: maxDelay,
	}
}

// Handle serves /decoy/:honeypot_id/* with synthetic content and records
// every hit as an interaction. Unknown and inactive honeypots answer 404 so
// probing cannot tell them apart.
func (h *decoyHandler) Handle(c *fiber.Ctx) error {
	honeypotID := c.Params("honeypot_id")
	path := "/" + strings.TrimPrefix(c.Params("*"), "/")

	resource, err := h.engine.DecoyResource(honeypotID, path)
	known := err == nil
	if err != nil && !domain.IsNotFoundError(err) && !errors.Is(err, domain.ErrHoneypotInactive) {
		h.logger.WithError(err).Error("failed to resolve decoy resource")
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	findings, err := h.engine.RecordHoneypotInteraction(c.UserContext(), honeypotID, honeypot.Interaction{
		Resource: path,
		Payload:  payload(c),
	})
	if err != nil {
		return c.SendStatus(fiber.StatusNotFound)
	}
	if len(findings) > 0 {
		h.logger.WithFields(logrus.Fields{
			"honeypot_id": honeypotID,
			"resource":    path,
			"findings":    len(findings),
		}).Warn("payload captured by honeypot")
	}

	if !known {
		return c.SendStatus(fiber.StatusNotFound)
	}
	if resource.Method != "" && !strings.EqualFold(resource.Method, c.Method()) {
		return c.SendStatus(fiber.StatusMethodNotAllowed)
	}
	if delay := time.Duration(resource.DelayMs) * time.Millisecond; delay > 0 {
		if h.maxDelay > 0 && delay > h.maxDelay {
			delay = h.maxDelay
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-c.UserContext().Done():
			timer.Stop()
		}
	}

	c.Set(fiber.HeaderContentType, resource.ContentType)
	return c.Status(fiber.StatusOK).SendString(resource.Body)
}

// payload joins the decoded query string and the request body, the two places
// injected input arrives in.
func payload(c *fiber.Ctx) string {
	var parts []string
	if raw := string(c.Request().URI().QueryString()); raw != "" {
		if decoded, err := url.QueryUnescape(raw); err == nil {
			raw = decoded
		}
		parts = append(parts, raw)
	}
	if body := c.Body(); len(body) > 0 {
		parts = append(parts, string(body))
	}
	return strings.Join(parts, "\n")
}
