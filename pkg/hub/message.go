// Package hub fans dashboard updates out to websocket clients. One goroutine
// owns the client set; each client has its own writer goroutine.
package hub

// Kind tells the writer which websocket frame type to use.
type Kind int

const (
	// Text carries JSON snapshots.
	Text Kind = iota
	// Binary carries JPEG frames.
	Binary
)

// Message is one broadcast payload.
type Message struct {
	Kind Kind
	Data []byte
}
