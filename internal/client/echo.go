package client

import "sync"

// EchoGuard stops a client from re-broadcasting changes it did not make.
//
// Broadcasts carry the origin id of the client that caused them, so a client
// can ignore its own. When a remote text is pushed into the editor, the guard
// remembers it and swallows the editor's change notification for exactly
// that text. Any other notification is a real edit and is forwarded.
type EchoGuard struct {
	origin string

	mu      sync.Mutex
	pending *string
}

// NewEchoGuard returns a guard for the client identified by origin.
func NewEchoGuard(origin string) *EchoGuard {
	return &EchoGuard{origin: origin}
}

// Origin returns the id stamped on this client's outgoing messages.
func (g *EchoGuard) Origin() string { return g.origin }

// IsEcho reports whether a broadcast originated from this client.
func (g *EchoGuard) IsEcho(origin string) bool {
	return origin != "" && origin == g.origin
}

// BeginRemote records text as about to be applied to the editor.
func (g *EchoGuard) BeginRemote(text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = &text
}

// ShouldForward reports whether an editor change to text should be sent to
// the server. It consumes the pending remote text either way.
func (g *EchoGuard) ShouldForward(text string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.pending
	g.pending = nil
	return p == nil || *p != text
}
