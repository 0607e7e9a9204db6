// fintrack - select an object with the mouse, track it and steer four fins
// toward it over a serial link.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/google/uuid"
	"github.com/teslashibe/go-fintrack/internal/config"
	"github.com/teslashibe/go-fintrack/internal/log"
	"github.com/teslashibe/go-fintrack/pkg/camera"
	"github.com/teslashibe/go-fintrack/pkg/control"
	"github.com/teslashibe/go-fintrack/pkg/debug"
	"github.com/teslashibe/go-fintrack/pkg/display"
	"github.com/teslashibe/go-fintrack/pkg/link"
	"github.com/teslashibe/go-fintrack/pkg/tracking/opencv"
	"github.com/teslashibe/go-fintrack/pkg/web"
	"gocv.io/x/gocv"
)

// HighGUI must stay on the thread that created the window.
func init() {
	runtime.LockOSThread()
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[0], os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return 2
	}

	level := cfg.LogLevel
	if cfg.Debug {
		level = "debug"
	}
	log.Init(level)
	debug.Enabled = cfg.Debug
	debug.Tracking = cfg.DebugTracking

	session := uuid.NewString()
	log.SetAttrs(slog.String("session", session))

	factory, err := opencv.NewFactory(cfg.Tracker)
	if err != nil {
		log.Error("tracker unavailable", "error", err)
		return 1
	}

	printBanner(cfg)

	var sink control.CommandSink
	if serialLink, err := link.Open(cfg.LinkConfig()); err != nil {
		log.Warn("serial link unavailable, commands will not be sent", "port", cfg.SerialPort, "error", err)
	} else {
		log.Info("serial link open", "port", serialLink.Name(), "baud", cfg.Baud)
		sink = serialLink
	}

	source, err := camera.Open(cfg.CameraConfig())
	if err != nil {
		log.Error("cannot open camera", "camera", cfg.Camera, "error", err)
		if sink != nil {
			sink.Close()
		}
		return 1
	}

	opts := control.Options{
		Tracking: cfg.TrackingConfig(),
		Session:  session,
	}

	var dashboard *web.Server
	if cfg.Web != "" {
		dashboard = web.NewServer(web.Config{Addr: cfg.Web, FrameRate: cfg.WebFrameRate})
		dashboard.StartAsync()
		opts.Updater = dashboard
	}

	starter := control.InitializerFunc(func(frame gocv.Mat, box image.Rectangle) (control.Handle, error) {
		h, err := factory.Start(frame, box)
		if err != nil {
			return nil, err
		}
		return h, nil
	})

	loop := control.New(source, display.Open(display.DefaultTitle), sink, starter, opts)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runErr := loop.Run(ctx)

	if dashboard != nil {
		if err := dashboard.Shutdown(); err != nil {
			log.Warn("dashboard shutdown", "error", err)
		}
	}

	snap := loop.Snapshot()
	log.Info("session finished",
		"frames", snap.Frame, "commands", snap.CommandsSent, "lost", snap.TrackingLost)
	fmt.Println("Done")

	if runErr != nil {
		return 1
	}
	return 0
}

func printBanner(cfg config.Config) {
	fmt.Println("🎯 fintrack")
	fmt.Println("   Click and drag to draw a box around the object")
	fmt.Println("   Press 'r' to reset the selection")
	fmt.Println("   Press 'q' to quit")
	fmt.Printf("   Profile: %s  Tracker: %s  Serial: %s @ %d\n", cfg.Profile, cfg.Tracker, cfg.SerialPort, cfg.Baud)
	if cfg.Web != "" {
		fmt.Printf("   Dashboard: http://localhost%s\n", cfg.Web)
	}
}
