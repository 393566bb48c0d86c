// Package web exposes the operator surface: a small HTTP API for status and
// loop control, plus websocket streams for live telemetry.
package web

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/opensourceleg/go-osl/internal/log"
	"github.com/opensourceleg/go-osl/pkg/loop"
	"github.com/opensourceleg/go-osl/pkg/telemetry"
)

// Server is the operator-facing HTTP and websocket server.
type Server struct {
	app  *fiber.App
	port int

	sched *loop.Scheduler
	rec   *telemetry.Recorder

	// sampleHub fans telemetry samples out to /ws/telemetry clients.
	sampleHub *telemetry.Hub

	// cancel stops the hub and pump goroutines on Shutdown.
	cancel context.CancelFunc
}

// NewServer wires routes for a scheduler and its recorder.
func NewServer(port int, sched *loop.Scheduler, rec *telemetry.Recorder) *Server {
	s := &Server{
		port:      port,
		sched:     sched,
		rec:       rec,
		sampleHub: telemetry.NewHub("telemetry"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "osl-legd",
		DisableStartupMessage: true,
	})

	// CORS for lab tooling served from elsewhere
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/samples", s.handleSamples)
	api.Post("/start", s.handleStart)
	api.Post("/stop", s.handleStop)
	api.Post("/fault/reset", s.handleFaultReset)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/telemetry", websocket.New(s.handleTelemetryWS))
	s.registerOpsRoutes(app)

	s.app = app
	return s
}

// Start runs the hub, the telemetry pump and the listener. Blocks.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.sampleHub.Run(ctx)
	go s.pumpSamples(ctx)

	log.Info("web server listening", "port", s.port)
	return s.app.Listen(fmt.Sprintf(":%d", s.port))
}

// StartAsync runs the server in a goroutine.
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			log.Error("web server error", "error", err)
		}
	}()
}

// Shutdown stops the listener, then the hub and pump goroutines. The
// listener goes first so no client can register against a stopped hub.
func (s *Server) Shutdown() error {
	err := s.app.Shutdown()
	if s.cancel != nil {
		s.cancel()
	}
	return err
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// pumpSamples drains a recorder subscription into the websocket hub.
func (s *Server) pumpSamples(ctx context.Context) {
	samples, cancel := s.rec.Subscribe(256)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-samples:
			if !ok {
				return
			}
			if err := s.sampleHub.BroadcastMessage(telemetry.TypeSample, sample); err != nil {
				log.Warn("telemetry broadcast failed", "error", err)
			}
		}
	}
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	snap := s.sched.Snapshot()
	return c.JSON(fiber.Map{
		"loop":              snap,
		"telemetry_dropped": s.rec.Dropped(),
		"ws_clients":        s.sampleHub.ClientCount(),
	})
}

func (s *Server) handleSamples(c *fiber.Ctx) error {
	n, err := strconv.Atoi(c.Query("n", "100"))
	if err != nil || n < 1 {
		return fiber.NewError(fiber.StatusBadRequest, "n must be a positive integer")
	}
	return c.JSON(s.rec.Recent(n))
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	if s.sched.Snapshot().Running {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "loop already running"})
	}
	s.sched.Start(context.Background())
	return c.JSON(fiber.Map{"status": "started"})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	s.sched.Stop()
	return c.JSON(fiber.Map{"status": "stopped"})
}

func (s *Server) handleFaultReset(c *fiber.Ctx) error {
	s.sched.RequestReset()
	return c.JSON(fiber.Map{"status": "reset requested"})
}

// handleTelemetryWS streams samples to a dashboard client.
func (s *Server) handleTelemetryWS(c *websocket.Conn) {
	client := telemetry.NewClient(s.sampleHub, c)
	client.Run()
}
