// Package web serves the intake flow and the admin dashboard over HTTP, and
// pushes capture session events over a websocket.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-wastesnap/pkg/admin"
	"github.com/teslashibe/go-wastesnap/pkg/camera"
	"github.com/teslashibe/go-wastesnap/pkg/capture"
	"github.com/teslashibe/go-wastesnap/pkg/hub"
	"github.com/teslashibe/go-wastesnap/pkg/intake"
	"github.com/teslashibe/go-wastesnap/pkg/submission"
)

const shutdownTimeout = 5 * time.Second

// Authorizer signs administrators in and checks their tokens.
type Authorizer interface {
	Login(ctx context.Context, email, password string) (*admin.Session, error)
	Verify(ctx context.Context, token string) (*admin.Session, error)
	Logout(ctx context.Context, token string) error
}

// SheetsExporter exports submissions to Google Sheets.
type SheetsExporter interface {
	Connected() bool
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) error
	Export(ctx context.Context, title string, subs []submission.Submission) (string, error)
}

// Options wires the server to its collaborators.
type Options struct {
	Device         capture.Device
	Encoder        capture.Encoder
	Constraint     capture.Constraint
	CaptureTimeout time.Duration
	Camera         *camera.Manager

	Drafts      intake.Store
	Submissions *submission.Service

	Admin Authorizer
	// AdminBackend returns a backend acting as the signed-in administrator.
	AdminBackend func(token string) submission.Backend
	// Sheets is optional.
	Sheets SheetsExporter

	// SessionTTL closes capture sessions idle for longer. Zero disables reaping.
	SessionTTL time.Duration

	// ShootRate limits capture triggers across all sessions.
	ShootRate  rate.Limit
	ShootBurst int

	Logger *slog.Logger
}

// Server is the wastesnap HTTP server.
type Server struct {
	app    *fiber.App
	opts   Options
	logger *slog.Logger

	hub      *hub.Hub
	sessions *registry
	camera   *camera.Manager
	shoot    *rate.Limiter
	states   *oauthStates
}

// NewServer creates the server and registers all routes.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Constraint == (capture.Constraint{}) {
		opts.Constraint = capture.DefaultConstraint()
	}
	if opts.Camera == nil {
		opts.Camera = camera.NewManager()
	}
	if opts.ShootRate == 0 {
		opts.ShootRate = rate.Every(250 * time.Millisecond)
	}
	if opts.ShootBurst == 0 {
		opts.ShootBurst = 4
	}

	logger := opts.Logger.With("component", "web")
	s := &Server{
		opts:   opts,
		logger: logger,
		hub:    hub.New("capture", opts.Logger),
		camera: opts.Camera,
		shoot:  rate.NewLimiter(opts.ShootRate, opts.ShootBurst),
		states: newOAuthStates(10 * time.Minute),
	}
	s.sessions = newRegistry(s.newSession, logger)

	app := fiber.New(fiber.Config{
		AppName:               "wastesnap",
		DisableStartupMessage: true,
		Immutable:             true,
		BodyLimit:             1 << 20,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(s.accessLog)

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	api.Post("/intake", s.handleIntake)

	sess := api.Group("/capture/:id")
	sess.Post("/start", s.handleStart)
	sess.Get("/", s.handleSession)
	sess.Post("/shoot", s.handleShoot)
	sess.Get("/photo", s.handlePhoto)
	sess.Post("/retake", s.handleRetake)
	sess.Post("/confirm", s.handleConfirm)
	sess.Delete("/", s.handleDiscard)

	api.Get("/camera/config", s.handleGetCameraConfig)
	api.Put("/camera/config", s.requireAdmin, s.handleSetCameraConfig)
	api.Get("/camera/presets", s.handleCameraPresets)

	adm := api.Group("/admin")
	adm.Post("/login", s.handleLogin)
	adm.Post("/logout", s.handleLogout)
	adm.Get("/sheets/callback", s.handleSheetsCallback)
	adm.Use(s.requireAdmin)
	adm.Get("/submissions", s.handleListSubmissions)
	adm.Delete("/submissions/:id", s.handleDeleteSubmission)
	adm.Get("/export.csv", s.handleExportCSV)
	adm.Get("/export.xlsx", s.handleExportXLSX)
	adm.Get("/sheets/auth", s.handleSheetsAuth)
	adm.Post("/export/sheets", s.handleExportSheets)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/capture", websocket.New(s.handleCaptureWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Hub returns the capture event hub.
func (s *Server) Hub() *hub.Hub { return s.hub }

// Run serves on addr until ctx is canceled, then closes every capture
// session and shuts down.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.reap(ctx)
		return nil
	})
	g.Go(func() error {
		s.logger.Info("listening", "addr", ln.Addr().String())
		return s.app.Listener(ln)
	})
	g.Go(func() error {
		<-ctx.Done()
		s.sessions.closeAll()
		return s.app.ShutdownWithTimeout(shutdownTimeout)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// reap closes capture sessions idle for longer than SessionTTL and sweeps
// expired drafts.
func (s *Server) reap(ctx context.Context) {
	ttl := s.opts.SessionTTL
	if ttl <= 0 {
		return
	}
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.sessions.reap(now, ttl); n > 0 {
				s.logger.Info("closed idle capture sessions", "count", n)
			}
			if sw, ok := s.opts.Drafts.(interface{ Sweep() int }); ok {
				if n := sw.Sweep(); n > 0 {
					s.logger.Debug("swept expired drafts", "count", n)
				}
			}
		}
	}
}

func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		status = toAPIError(err).Status
	}
	level := slog.LevelDebug
	if status >= fiber.StatusInternalServerError {
		level = slog.LevelWarn
	}
	s.logger.Log(c.UserContext(), level, "request",
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"took", time.Since(start))
	return err
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"sessions": s.sessions.len(),
		"active":   s.sessions.activeID(),
		"clients":  s.hub.ClientCount(),
	})
}

func (s *Server) handleCaptureWS(c *websocket.Conn) {
	client := hub.NewClient(s.hub, c, c.Query("session"))
	if client == nil {
		return
	}
	client.Run()
}
