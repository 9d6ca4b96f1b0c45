package router

import "github.com/gofiber/fiber/v2"

// ServerRouter mounts one surface (admin API, decoys) on a fiber app.
type ServerRouter interface {
	BuildRoutes(router *fiber.App) error
}
