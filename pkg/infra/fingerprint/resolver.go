package fingerprint

import (
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
)

var defaultIPHeaders = []string{
	"X-Real-IP",
	"X-Forwarded-For",
	"X-Original-Forwarded-For",
	"True-Client-IP",
	"CF-Connecting-IP",
}

var userHeaders = []string{
	"X-User-ID",
	"X-User-Id",
	"X-UserID",
	"User-ID",
}

var tokenHeaders = []string{
	"X-Access-Token",
	"X-Auth-Token",
}

type ResolverConfig struct {
	// TrustForwardedHeaders reads the client IP from proxy headers. Only
	// enable behind a proxy that overwrites them.
	TrustForwardedHeaders bool     `mapstructure:"trust_forwarded_headers"`
	IPHeaders             []string `mapstructure:"ip_headers"`
	SessionCookie         string   `mapstructure:"session_cookie"`
}

//go:generate mockery --name=Resolver --dir=. --output=./mocks --filename=resolver_mock.go --case=underscore --with-expecter
type Resolver interface {
	Resolve(ctx *fiber.Ctx) Fingerprint
}

type resolver struct {
	cfg ResolverConfig
}

func NewResolver(cfg ResolverConfig) Resolver {
	if len(cfg.IPHeaders) == 0 {
		cfg.IPHeaders = defaultIPHeaders
	}
	return &resolver{cfg: cfg}
}

func (r *resolver) Resolve(ctx *fiber.Ctx) Fingerprint {
	fp := Fingerprint{
		UserID:    strings.TrimSpace(firstHeader(ctx, userHeaders)),
		Token:     strings.TrimSpace(r.authToken(ctx)),
		IP:        r.ip(ctx),
		UserAgent: strings.TrimSpace(ctx.Get(fiber.HeaderUserAgent)),
	}
	if r.cfg.SessionCookie != "" {
		fp.Session = ctx.Cookies(r.cfg.SessionCookie)
	}
	return fp
}

func (r *resolver) authToken(ctx *fiber.Ctx) string {
	if auth := ctx.Get(fiber.HeaderAuthorization); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return firstHeader(ctx, tokenHeaders)
}

func (r *resolver) ip(ctx *fiber.Ctx) string {
	if r.cfg.TrustForwardedHeaders {
		for _, header := range r.cfg.IPHeaders {
			value := ctx.Get(header)
			if value == "" {
				continue
			}
			ip := strings.TrimSpace(strings.Split(value, ",")[0])
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	return strings.TrimSpace(ctx.IP())
}

func firstHeader(ctx *fiber.Ctx, headers []string) string {
	for _, header := range headers {
		if value := ctx.Get(header); value != "" {
			return value
		}
	}
	return ""
}
