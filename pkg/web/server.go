// Package web serves the optional live dashboard: the latest loop snapshot
// over HTTP and websockets, plus a throttled JPEG feed of the annotated view.
package web

import (
	"bytes"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-fintrack/internal/log"
	"github.com/teslashibe/go-fintrack/pkg/control"
	"github.com/teslashibe/go-fintrack/pkg/hub"
	"github.com/teslashibe/go-fintrack/pkg/status"
	"gocv.io/x/gocv"
	"golang.org/x/time/rate"
)

// Config configures the dashboard server.
type Config struct {
	Addr        string  // listen address, e.g. ":8080"
	FrameRate   float64 // max JPEG frames per second on /ws/camera
	JPEGQuality int     // 1-100

	// Per-client websocket settings; zero takes the hub defaults.
	ClientBuffer     int   // queued messages before a slow client is dropped
	MaxClientMessage int64 // inbound frame limit in bytes
}

// DefaultConfig returns sensible dashboard defaults.
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		FrameRate:   10,
		JPEGQuality: 70,

		ClientBuffer:     hub.DefaultOptions().ClientBuffer,
		MaxClientMessage: hub.DefaultOptions().MaxMessageSize,
	}
}

var _ control.StateUpdater = (*Server)(nil)

// Server is the dashboard server. It implements control.StateUpdater.
type Server struct {
	app    *fiber.App
	config Config
	log    *slog.Logger

	state   status.Snapshot
	stateMu sync.RWMutex

	statusHub *hub.Hub
	cameraHub *hub.Hub
	hubsOnce  sync.Once

	frames  *rate.Limiter
	started time.Time
}

// NewServer creates a dashboard server.
func NewServer(config Config) *Server {
	def := DefaultConfig()
	if config.Addr == "" {
		config.Addr = def.Addr
	}
	if config.FrameRate <= 0 {
		config.FrameRate = def.FrameRate
	}
	if config.JPEGQuality <= 0 || config.JPEGQuality > 100 {
		config.JPEGQuality = def.JPEGQuality
	}

	opts := hub.Options{
		ClientBuffer:   config.ClientBuffer,
		MaxMessageSize: config.MaxClientMessage,
	}

	s := &Server{
		config:    config,
		log:       log.With("component", "web"),
		statusHub: hub.New("status", opts),
		cameraHub: hub.New("camera", opts),
		frames:    rate.NewLimiter(rate.Limit(config.FrameRate), 1),
		started:   time.Now(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "fintrack",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/health", s.handleHealth)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

func (s *Server) startHubs() {
	s.hubsOnce.Do(func() {
		go s.statusHub.Run()
		go s.cameraHub.Run()
	})
}

// Start listens on the configured address and blocks.
func (s *Server) Start() error {
	s.startHubs()
	s.log.Info("dashboard listening", "addr", s.config.Addr)
	return s.app.Listen(s.config.Addr)
}

// Serve serves on an existing listener and blocks.
func (s *Server) Serve(ln net.Listener) error {
	s.startHubs()
	s.log.Info("dashboard listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// StartAsync starts the server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.log.Warn("dashboard stopped", "error", err)
		}
	}()
}

// Shutdown stops the server and disconnects every client.
func (s *Server) Shutdown() error {
	s.statusHub.Stop()
	s.cameraHub.Stop()
	return s.app.Shutdown()
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// UpdateTracking stores the snapshot and pushes it to status clients.
func (s *Server) UpdateTracking(snap status.Snapshot) {
	s.stateMu.Lock()
	s.state = snap
	s.stateMu.Unlock()

	if s.statusHub.ClientCount() == 0 {
		return
	}
	if err := s.statusHub.BroadcastJSON(snap); err != nil {
		s.log.Warn("encode snapshot", "error", err)
	}
}

// SendFrame JPEG-encodes the annotated frame for camera clients, at most
// Config.FrameRate times per second.
func (s *Server) SendFrame(frame gocv.Mat) {
	if frame.Empty() || s.cameraHub.ClientCount() == 0 || !s.frames.Allow() {
		return
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame, []int{int(gocv.IMWriteJpegQuality), s.config.JPEGQuality})
	if err != nil {
		s.log.Warn("encode frame", "error", err)
		return
	}
	data := bytes.Clone(buf.GetBytes())
	buf.Close()

	s.cameraHub.BroadcastBinary(data)
}

// Snapshot returns the latest snapshot.
func (s *Server) Snapshot() status.Snapshot {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Snapshot())
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	StatusClients int     `json:"status_clients"`
	CameraClients int     `json:"camera_clients"`
	HubsRunning   bool    `json:"hubs_running"`
	Frame         int64   `json:"frame"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(s.started).Seconds(),
		StatusClients: s.statusHub.ClientCount(),
		CameraClients: s.cameraHub.ClientCount(),
		HubsRunning:   s.statusHub.IsRunning() && s.cameraHub.IsRunning(),
		Frame:         s.Snapshot().Frame,
	})
}

// handleStatusWS sends the current snapshot, then every update.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	// Written before registering so the write pump is not yet running.
	if err := c.WriteJSON(s.Snapshot()); err != nil {
		return
	}
	client := hub.NewClient(s.statusHub, c)
	if client == nil {
		return
	}
	client.Run()
}

func (s *Server) handleCameraWS(c *websocket.Conn) {
	client := hub.NewClient(s.cameraHub, c)
	if client == nil {
		return
	}
	client.Run()
}
