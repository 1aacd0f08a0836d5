// Package api exposes the todo services over HTTP.
package api

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"smart-todos/internal/service"
)

const apiVersion = "1.0.0"

// Options tunes the server. Zero values are usable.
type Options struct {
	AllowedOrigins []string
	// AuthLimiter guards signup and login. Nil disables limiting.
	AuthLimiter Limiter
	Now         func() time.Time
	AccessLog   bool
}

// Server wires HTTP routes to services.
type Server struct {
	app        *fiber.App
	auth       *service.AuthService
	todos      *service.TaskService
	categories *service.CategoryService
	subtasks   *service.SubtaskService
	now        func() time.Time
}

func NewServer(authSvc *service.AuthService, taskSvc *service.TaskService, categorySvc *service.CategoryService, subtaskSvc *service.SubtaskService, opts Options) *Server {
	s := &Server{
		auth:       authSvc,
		todos:      taskSvc,
		categories: categorySvc,
		subtasks:   subtaskSvc,
		now:        opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "Smart Todos",
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})
	s.app.Use(recover.New())
	if opts.AccessLog {
		s.app.Use(logger.New())
	}
	if len(opts.AllowedOrigins) > 0 {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins:     strings.Join(opts.AllowedOrigins, ","),
			AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
			AllowCredentials: true,
		}))
	}

	s.routes(opts.AuthLimiter)
	return s
}

func (s *Server) routes(limiter Limiter) {
	s.app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "Smart Todos API is running", "version": apiVersion})
	})

	api := s.app.Group("/api")
	api.Get("/health", s.health)

	authGroup := api.Group("/auth")
	if limiter != nil {
		authGroup.Post("/signup", RateLimit(limiter), s.signup)
		authGroup.Post("/login", RateLimit(limiter), s.login)
	} else {
		authGroup.Post("/signup", s.signup)
		authGroup.Post("/login", s.login)
	}
	authGroup.Post("/refresh", s.refresh)
	authGroup.Get("/me", s.requireUser, s.me)

	api.Post("/ai/subtasks", s.generateSubtasks)

	protected := api.Group("", s.requireUser)
	protected.Get("/todos/overdue", s.overdue)
	protected.Get("/todos/due-soon", s.dueSoon)
	protected.Get("/todos/completed/:completed", s.todosByStatus)
	protected.Post("/todos/bulk-update", s.bulkUpdate)
	protected.Post("/todos/import", s.importTodos)
	protected.Get("/todos", s.listTodos)
	protected.Post("/todos", s.createTodo)
	protected.Delete("/todos", s.clearTodos)
	protected.Get("/todos/:id<int>", s.getTodo)
	protected.Put("/todos/:id<int>", s.updateTodo)
	protected.Delete("/todos/:id<int>", s.deleteTodo)
	protected.Get("/view", s.view)
	protected.Get("/statistics", s.statistics)
	protected.Get("/search", s.search)
	protected.Get("/categories", s.listCategories)
	protected.Get("/categories/suggestions", s.categorySuggestions)
	protected.Get("/priorities", s.priorities)
	protected.Get("/export", s.export)
}

// App exposes the fiber application, mostly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	log.Printf("[info] http server listening on %s", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// errorHandler writes every failure as {"detail": "..."}.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"detail": fe.Message})
	}

	status := service.HTTPStatus(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Method(), c.Path(), err)
	}
	if status == fiber.StatusUnauthorized {
		c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
	}
	return c.Status(status).JSON(fiber.Map{"detail": service.PublicMessage(err)})
}
