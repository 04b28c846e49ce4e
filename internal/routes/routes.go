package routes

import (
	"time"

	"github.com/Reshigan/Heirloom-sub004/internal/config"
	"github.com/Reshigan/Heirloom-sub004/internal/handlers"
	"github.com/Reshigan/Heirloom-sub004/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
	deadManHandler *handlers.DeadManHandler,
	encryptionHandler *handlers.EncryptionHandler,
	contactHandler *handlers.ContactHandler,
) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", healthHandler.Check)

	// Auth — public, with a stricter rate limit: 10 req/min per IP
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/refresh", authHandler.Refresh)

	api.Post("/auth/logout", middleware.JWTProtected(cfg), authHandler.Logout)

	// Public token endpoints: attestation links and contact invites land
	// here without a session. Same strict limit as auth to slow guessing.
	tokenLimiter := limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	})
	api.Post("/deadman/verify/:token", tokenLimiter, deadManHandler.Verify)
	api.Post("/contacts/accept/:token", tokenLimiter, contactHandler.Accept)

	// Switch operations (JWT required)
	dms := api.Group("/deadman", middleware.JWTProtected(cfg))
	dms.Post("/configure", deadManHandler.Configure)
	dms.Post("/checkin", deadManHandler.CheckIn)
	dms.Post("/cancel", deadManHandler.Cancel)
	dms.Post("/disable", deadManHandler.Disable)
	dms.Get("/status", deadManHandler.Status)
	dms.Get("/history", deadManHandler.History)

	// Key escrow (JWT required)
	enc := api.Group("/encryption", middleware.JWTProtected(cfg))
	enc.Post("/setup", encryptionHandler.Setup)
	enc.Get("/params", encryptionHandler.Params)
	enc.Post("/escrow", encryptionHandler.CreateEscrow)

	// Legacy contacts (JWT required)
	contacts := api.Group("/contacts", middleware.JWTProtected(cfg))
	contacts.Post("/", contactHandler.Create)
	contacts.Get("/", contactHandler.List)
}
