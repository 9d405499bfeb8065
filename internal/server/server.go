package server

import (
	"backend-pilanitrails/internal/auth"
	"backend-pilanitrails/internal/config"
	"backend-pilanitrails/internal/identity"
	"backend-pilanitrails/internal/location"
	"backend-pilanitrails/internal/proposal"
	"backend-pilanitrails/internal/storage"
	"backend-pilanitrails/internal/store"
	"backend-pilanitrails/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Deps are the collaborators the server is built from. Zero values fall
// back to in-process implementations; nil Events and Objects disable event
// publishing and image uploads.
type Deps struct {
	Store   store.Store
	Hub     *stream.Hub
	Events  proposal.Publisher
	Objects storage.ObjectStore
}

type Server struct {
	App       *fiber.App
	Cfg       config.Config
	Store     store.Store
	Stream    *stream.Hub
	Auth      *auth.Service
	Proposals *proposal.Service
	Locations *location.Engine
}

func NewServer(cfg config.Config, deps Deps) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	hub := deps.Hub
	if hub == nil {
		hub = stream.NewHub(nil)
	}
	st := deps.Store
	if st == nil {
		st = store.NewMemory(hub)
	}

	s := &Server{
		App:       app,
		Cfg:       cfg,
		Store:     st,
		Stream:    hub,
		Auth:      auth.NewService(cfg.JWTSecret, st),
		Proposals: proposal.NewService(st, cfg.RequireCoordinates, deps.Events),
		Locations: location.NewEngine(st),
	}

	registerRoutes(s, deps)
	return s
}

func registerRoutes(s *Server, deps Deps) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		body := fiber.Map{"status": "ok"}
		if err := s.Locations.Stale(); err != nil {
			body["locations"] = "stale"
		}
		return c.JSON(body)
	})

	authMiddleware := identity.Middleware(s.Auth, identity.NewDirectory(s.Store))
	images := storage.NewService(deps.Objects, s.Cfg.MinioBucket,
		storage.BaseURL(s.Cfg.MinioEndpoint, s.Cfg.MinioUseSSL, s.Cfg.MinioPublicURL), s.Store)

	auth.RegisterRoutes(s.App.Group("/auth"), s.Auth)
	identity.RegisterRoutes(s.App, authMiddleware)
	proposal.RegisterRoutes(s.App.Group("/proposals"), s.Proposals, authMiddleware)
	location.RegisterRoutes(s.App.Group("/locations"), s.Locations)
	storage.RegisterRoutes(s.App.Group("/storage"), images, authMiddleware)
}
