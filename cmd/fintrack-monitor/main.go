// fintrack-monitor - print live tracking snapshots from a running fintrack
// dashboard (-web) in the terminal.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-fintrack/pkg/status"
)

func main() {
	addr := flag.String("addr", envOr("FINTRACK_MONITOR_ADDR", "localhost:8080"), "dashboard host:port")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	url := "ws://" + *addr + "/ws/status"
	fmt.Printf("📡 Connecting to %s\n", url)

	dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	dialCancel()
	if err != nil {
		fmt.Printf("❌ Connection failed: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				fmt.Printf("\n❌ Connection lost: %v\n", err)
				os.Exit(1)
			}
			fmt.Println()
			return
		}

		var snap status.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			fmt.Printf("\n⚠️  Bad snapshot: %v\n", err)
			continue
		}
		fmt.Printf("\r%s    ", formatSnapshot(snap))
	}
}

// formatSnapshot renders one status line.
func formatSnapshot(s status.Snapshot) string {
	line := fmt.Sprintf("#%d %-8s", s.Frame, s.Phase)
	switch {
	case s.Command != nil && s.Center != nil:
		line += fmt.Sprintf(" center=(%d,%d) fins=%s", s.Center.X, s.Center.Y, s.Command)
	case s.Lost:
		line += " LOST"
	}
	serial := "off"
	if s.SerialConnected {
		serial = fmt.Sprintf("%d sent", s.CommandsSent)
	}
	return line + " serial=" + serial
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
