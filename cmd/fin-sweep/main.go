// fin-sweep - bench test for the fin controller: sweeps a synthetic target
// around the frame and writes the resulting commands to the serial port.
package main

import (
	"flag"
	"fmt"
	"image"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-fintrack/internal/log"
	"github.com/teslashibe/go-fintrack/pkg/link"
	"github.com/teslashibe/go-fintrack/pkg/tracking"
)

func main() {
	port := flag.String("port", os.Getenv("FINTRACK_SERIAL_PORT"), "serial port of the fin controller")
	baud := flag.Int("baud", link.DefaultBaud, "serial baud rate")
	rate := flag.Int("hz", 30, "commands per second")
	period := flag.Duration("period", 4*time.Second, "time for one full circle")
	dry := flag.Bool("dry-run", false, "print commands instead of sending them")
	flag.Parse()

	log.Init("info")

	if *port == "" && !*dry {
		fmt.Println("❌ -port (or FINTRACK_SERIAL_PORT) is required unless -dry-run is set")
		os.Exit(2)
	}
	if err := validateFlags(*rate, *period); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(2)
	}

	var out *link.Link
	if !*dry {
		cfg := link.DefaultConfig(*port)
		cfg.Baud = *baud
		l, err := link.Open(cfg)
		if err != nil {
			fmt.Printf("❌ Serial open failed: %v\n", err)
			os.Exit(1)
		}
		defer l.Close()
		out = l
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("🔄 Sweeping at %d Hz (Ctrl+C to stop)\n", *rate)

	mixer := tracking.NewMixer(tracking.DefaultConfig())
	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-sigChan:
			// Leave the fins centered.
			if out != nil {
				out.Send(tracking.Command{})
				fmt.Printf("\n📊 Sent %d commands\n", out.Sent())
			}
			return
		case <-ticker.C:
			box := sweepBox(time.Since(start), *period)
			_, _, cmd := mixer.Mix(box, frameW, frameH)
			if out == nil {
				fmt.Println(cmd)
				continue
			}
			if err := out.Send(cmd); err != nil {
				log.Warn("serial write failed", "error", err)
			}
		}
	}
}

// maxRate caps -hz so the ticker interval stays positive.
const maxRate = 1000

func validateFlags(rate int, period time.Duration) error {
	if rate <= 0 || rate > maxRate {
		return fmt.Errorf("-hz must be between 1 and %d, got %d", maxRate, rate)
	}
	if period <= 0 {
		return fmt.Errorf("-period must be positive, got %v", period)
	}
	return nil
}

const (
	frameW = 640
	frameH = 480
	boxW   = 80
	boxH   = 80
)

// sweepBox places a box on a circle reaching 90% of the way to each edge.
func sweepBox(elapsed, period time.Duration) image.Rectangle {
	phase := 2 * math.Pi * float64(elapsed%period) / float64(period)
	cx := frameW/2 + int(0.9*frameW/2*math.Cos(phase))
	cy := frameH/2 + int(0.9*frameH/2*math.Sin(phase))
	return image.Rect(cx-boxW/2, cy-boxH/2, cx+boxW/2, cy+boxH/2)
}
