// server/http/server.go
package http

import (
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ViniZap4/tasks-server/auth"
	"github.com/ViniZap4/tasks-server/domain"
	"github.com/ViniZap4/tasks-server/ws"
)

// TaskStore is the part of store.Store the handlers use.
type TaskStore interface {
	List() []domain.Task
	Create(title string) (domain.Task, error)
	Update(id int, patch domain.TaskPatch) (domain.Task, bool, error)
	Remove(id int) (bool, error)
	CompleteAll() ([]domain.Task, error)
	UncheckCompleted() ([]domain.Task, error)
}

type Options struct {
	CORSOrigins string
	// RequireAuth guards the task routes and the websocket.
	RequireAuth bool
}

type Server struct {
	store TaskStore
	hub   *ws.Hub
	authn *auth.Authenticator
	opts  Options
	log   zerolog.Logger
}

// NewServer wires the handlers. authn may be nil when no credentials are
// configured, in which case login is unavailable and RequireAuth must be false.
func NewServer(store TaskStore, hub *ws.Hub, authn *auth.Authenticator, opts Options, log zerolog.Logger) *Server {
	return &Server{
		store: store,
		hub:   hub,
		authn: authn,
		opts:  opts,
		log:   log.With().Str("component", "http").Logger(),
	}
}

// App builds the fiber application with every route registered.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "tasks-server",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	app.Use(requestLogger(s.log))
	app.Use(cors.New(cors.Config{
		AllowOrigins: s.opts.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + auth.TokenHeader,
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
	}))

	app.Get("/api/health", s.HandleHealth)
	app.Post("/api/login", s.HandleLogin)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	guard := func(c *fiber.Ctx) error { return c.Next() }
	if s.opts.RequireAuth && s.authn != nil {
		guard = s.authn.Middleware()
	}

	todos := app.Group("/api/todos", guard)
	todos.Get("/", s.HandleListTasks)
	todos.Post("/", s.HandleCreateTask)
	todos.Post("/complete-all", s.HandleCompleteAll)
	todos.Post("/uncheck-completed", s.HandleUncheckCompleted)
	todos.Patch("/:id", s.HandleUpdateTask)
	todos.Delete("/:id", s.HandleDeleteTask)

	app.Use("/ws", guard, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.hub.HandleConnection))

	return app
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code, msg = fe.Code, fe.Message
	}
	if code >= fiber.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(code).JSON(envelope{OK: false, Message: msg})
}
