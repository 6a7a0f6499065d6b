package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// Config customises the middleware registration pipeline.
type Config struct {
	Logger *zerolog.Logger
	// AllowOrigins is a comma separated CORS origin list; empty means "*".
	AllowOrigins string
}

// Register attaches the middlewares shared by every route. Access logging is done by Observability
// through zerolog.
func Register(app *fiber.App, cfg Config) {
	requestLogger := zerolog.Nop()
	if cfg.Logger != nil {
		requestLogger = cfg.Logger.With().Str("component", "http").Logger()
	}

	origins := cfg.AllowOrigins
	if origins == "" {
		origins = "*"
	}

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			requestLogger.Error().Interface("panic", e).Str("path", c.Path()).Msg("recovered from panic")
		},
	}))
	app.Use(CorrelationID())
	app.Use(Observability(requestLogger))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Correlation-ID",
		AllowMethods:  "GET,POST,DELETE,OPTIONS",
		ExposeHeaders: "X-Correlation-ID, X-Cache-Status, Last-Modified",
	}))
}
