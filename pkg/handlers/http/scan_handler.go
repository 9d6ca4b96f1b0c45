package http

import (
	"github.com/NeuralTrust/TrustSentinel/pkg/app/engine"
	"github.com/NeuralTrust/TrustSentinel/pkg/handlers/http/request"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type scanHandler struct {
	logger *logrus.Logger
	engine *engine.Engine
}

func NewScanHandler(logger *logrus.Logger, engine *engine.Engine) Handler {
	return &scanHandler{
		logger: logger,
		engine: engine,
	}
}

// Handle @Summary Scan input
// @Description Scans input on behalf of a gateway that cannot embed the interceptor. Findings are classified asynchronously.
// @Tags Ingest
// @Accept json
// @Produce json
// @Param Authorization header string true "Authorization token"
// @Param scan body request.ScanRequest true "Input to scan"
// @Success 200 {object} scanner.Result "Scan result"
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Router /api/v1/scan [post]
func (h *scanHandler) Handle(c *fiber.Ctx) error {
	var req request.ScanRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInvalidJsonPayload})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	result := h.engine.Scan(req.SourceID, req.ScanInput(), req.Context)
	return c.Status(fiber.StatusOK).JSON(result)
}
