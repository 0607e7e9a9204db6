// Package link streams fin commands to the microcontroller over a serial port.
package link

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
	"github.com/teslashibe/go-fintrack/pkg/tracking"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("link closed")

// Default serial settings.
const (
	DefaultBaud        = tracking.BaudRate
	DefaultSettleDelay = 2 * time.Second
	DefaultReadTimeout = 500 * time.Millisecond
)

// Config holds serial port settings.
type Config struct {
	Port        string        // Device path, e.g. /dev/ttyACM0 or COM3
	Baud        int           // Line speed (115200)
	SettleDelay time.Duration // Wait after open; the board resets when the port opens
	ReadTimeout time.Duration
}

// DefaultConfig returns the firmware's serial settings for port.
func DefaultConfig(port string) Config {
	return Config{
		Port:        port,
		Baud:        DefaultBaud,
		SettleDelay: DefaultSettleDelay,
		ReadTimeout: DefaultReadTimeout,
	}
}

// Link writes one command line per Send.
type Link struct {
	port   io.WriteCloser
	name   string
	mu     sync.Mutex
	closed bool
	sent   int64
}

// Open opens the serial port and waits for the board to settle.
func Open(cfg Config) (*Link, error) {
	if cfg.Port == "" {
		return nil, errors.New("serial port not set")
	}
	if cfg.Baud <= 0 {
		cfg.Baud = DefaultBaud
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Port, err)
	}

	if cfg.SettleDelay > 0 {
		time.Sleep(cfg.SettleDelay)
	}

	return New(port, cfg.Port), nil
}

// New wraps an already open writer, e.g. a pty in tests.
func New(w io.WriteCloser, name string) *Link {
	return &Link{port: w, name: name}
}

// Name returns the port name.
func (l *Link) Name() string {
	return l.name
}

// Send writes cmd as "<L,R,T,B>\n".
func (l *Link) Send(cmd tracking.Command) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	line := cmd.Encode()
	n, err := l.port.Write(line)
	if err != nil {
		return fmt.Errorf("write %s: %w", l.name, err)
	}
	if n != len(line) {
		return fmt.Errorf("write %s: short write %d/%d", l.name, n, len(line))
	}
	l.sent++
	return nil
}

// Sent returns the number of commands written.
func (l *Link) Sent() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sent
}

// Close closes the port. Only the first call reaches the port.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.port.Close()
}
