package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/shinyyama/snaplist-backend/internal/config"
	"github.com/shinyyama/snaplist-backend/internal/handler"
	"github.com/shinyyama/snaplist-backend/internal/media"
	appmw "github.com/shinyyama/snaplist-backend/internal/middleware"
	"github.com/shinyyama/snaplist-backend/internal/reqctx"
	"github.com/shinyyama/snaplist-backend/internal/service"
	"github.com/shinyyama/snaplist-backend/internal/tasks"
)

// Deps is everything the HTTP layer needs from the rest of the process.
type Deps struct {
	Items     service.ItemService
	Images    service.ImageService
	Ingestion service.IngestionService
	Analysis  service.AnalysisService
	Drafts    service.DraftService
	Verifier  appmw.TokenVerifier
	Tracker   *tasks.Tracker

	// Media, when set, serves signed object URLs under media.MediaPathPrefix.
	Media http.Handler
}

type Server struct {
	e *echo.Echo
}

func New(cfg *config.Config, deps Deps, sha, buildTime string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler
	e.Validator = handler.NewRequestValidator()

	e.Use(middleware.RequestID())
	e.Use(appmw.RequestContext)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("rid", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderContentType, echo.HeaderAuthorization, echo.HeaderXRequestID},
		ExposeHeaders: []string{echo.HeaderXRequestID},
	}))
	e.Use(middleware.BodyLimit(cfg.MaxRequestBytes))

	e.GET("/healthz", func(c echo.Context) error {
		body := map[string]interface{}{
			"ok":         true,
			"git_sha":    sha,
			"build_time": buildTime,
		}
		if deps.Tracker != nil {
			body["tasks"] = deps.Tracker.Stats()
		}
		return c.JSON(http.StatusOK, body)
	})

	if deps.Media != nil {
		e.GET(media.MediaPathPrefix+"*", echo.WrapHandler(deps.Media))
		e.HEAD(media.MediaPathPrefix+"*", echo.WrapHandler(deps.Media))
	}

	items := handler.NewItemHandler(deps.Items)
	images := handler.NewImageHandler(deps.Items, deps.Images, deps.Ingestion, cfg.MaxUploadBytes)
	drafts := handler.NewDraftHandler(deps.Analysis, deps.Drafts)

	api := e.Group(cfg.APIPrefix, appmw.NewAuthMiddleware(deps.Verifier).RequireAuth)
	registerRoutes(api, items, images, drafts)

	return &Server{e: e}
}

func registerRoutes(api *echo.Group, items *handler.ItemHandler, images *handler.ImageHandler, drafts *handler.DraftHandler) {
	api.POST("/items", items.Create)
	api.GET("/items", items.List)
	api.GET("/items/:id", items.Get)
	api.PATCH("/items/:id", items.Update)
	api.DELETE("/items/:id", items.Delete)

	api.POST("/items/:id/images", images.Upload)
	api.GET("/items/:id/images", images.List)
	api.PATCH("/items/:id/images/reorder", images.Reorder)
	api.GET("/items/:id/ingestions", images.ListIngestions)
	api.DELETE("/images/:id", images.Delete)

	api.POST("/items/:id/analyze", drafts.Analyze)
	api.GET("/items/:id/draft", drafts.Get)
	api.PATCH("/items/:id/draft", drafts.Update)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) Start(addr string) error {
	log.Info().Str("addr", addr).Msg("starting server")
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	logger := reqctx.Logger(ctx)
	logger.Info().Msg("shutting down http server")
	return s.e.Shutdown(ctx)
}
