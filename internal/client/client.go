// Package client is a collaborating participant: it joins a session over the
// websocket protocol, keeps a local copy of the session in step with its
// peers, and forwards local edits, language switches and runs.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/michaelbrown/pairpad/internal/logging"
	"github.com/michaelbrown/pairpad/internal/protocol"
	"github.com/michaelbrown/pairpad/internal/session"
)

// RunningPlaceholder is shown in the output pane while a run is in flight.
const RunningPlaceholder = "Running..."

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrRunInProgress   = errors.New("a run is already in progress")
	ErrClosed          = errors.New("client closed")
)

// Editor is the code editing surface. SetContent replaces the whole buffer;
// the editor reports user edits back through Client.LocalEdit.
//
// SetContent is called from the client's reader goroutine.
type Editor interface {
	SetContent(text string)
}

// Options configures a Client. Callbacks run on the reader goroutine and
// fire for changes made by other participants.
type Options struct {
	Origin   string // defaults to a random id
	Dialer   *websocket.Dialer
	Header   http.Header
	Starters session.Starters
	Log      *slog.Logger

	OnOutput     func(output string)
	OnLanguage   func(lang session.Language)
	OnConnection func(connected bool)
}

type runReply struct {
	result protocol.ExecutionResult
	err    error
}

// Client is one participant in a session.
type Client struct {
	conn   *websocket.Conn
	editor Editor
	guard  *EchoGuard
	opts   Options
	log    *slog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	state     session.Session
	connected bool
	running   bool

	joined    chan error
	replies   chan runReply
	done      chan struct{}
	closeOnce sync.Once
}

// WebSocketURL turns a server base URL (http, https, ws or wss) into the
// websocket endpoint.
func WebSocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// Dial connects to the websocket endpoint at wsURL and joins sessionID. It
// returns once the session snapshot has been applied to editor, or
// ErrSessionNotFound if the server does not know the session.
func Dial(ctx context.Context, wsURL, sessionID string, editor Editor, opts Options) (*Client, error) {
	if opts.Origin == "" {
		opts.Origin = uuid.NewString()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Starters == nil {
		opts.Starters = session.DefaultStarters()
	}
	if opts.Log == nil {
		opts.Log = logging.Discard()
	}

	conn, _, err := opts.Dialer.DialContext(ctx, wsURL, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", wsURL, err)
	}

	c := &Client{
		conn:    conn,
		editor:  editor,
		guard:   NewEchoGuard(opts.Origin),
		opts:    opts,
		log:     opts.Log.With("component", "client", "origin", opts.Origin),
		state:   session.Session{ID: sessionID},
		joined:  make(chan error, 1),
		replies: make(chan runReply, 4),
		done:    make(chan struct{}),
	}
	go c.readLoop()

	if err := c.send(protocol.EventJoinSession, sessionID); err != nil {
		c.Close()
		return nil, err
	}

	select {
	case err := <-c.joined:
		if err != nil {
			c.Close()
			return nil, err
		}
	case <-c.done:
		c.Close()
		select {
		case err := <-c.joined:
			if err != nil {
				return nil, err
			}
		default:
		}
		return nil, fmt.Errorf("joining %s: %w", sessionID, ErrClosed)
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}

	c.setConnected(true)
	return c, nil
}

// Origin returns the id this client stamps on its messages.
func (c *Client) Origin() string { return c.guard.Origin() }

// Snapshot returns the client's view of the session.
func (c *Client) Snapshot() session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the client is joined and its connection is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// LocalEdit is called by the editor whenever its content changes. Changes
// caused by applying a remote update are not forwarded.
func (c *Client) LocalEdit(text string) error {
	if !c.guard.ShouldForward(text) {
		return nil
	}
	c.mu.Lock()
	if c.state.Code == text {
		c.mu.Unlock()
		return nil
	}
	c.state.Code = text
	id := c.state.ID
	c.mu.Unlock()

	return c.send(protocol.EventCodeChange, protocol.CodeChange{SessionID: id, Code: text})
}

// SetLanguage switches the session language. A buffer that still holds a
// starter snippet is replaced with the new language's starter, and that code
// change is sent before the language change.
func (c *Client) SetLanguage(lang session.Language) error {
	c.mu.Lock()
	if c.state.Language == lang {
		c.mu.Unlock()
		return nil
	}
	swap := c.opts.Starters.IsStarter(c.state.Code)
	starter := c.opts.Starters.For(lang)
	if swap {
		swap = starter != c.state.Code
		c.state.Code = starter
	}
	c.state.Language = lang
	id := c.state.ID
	c.mu.Unlock()

	if swap {
		c.editor.SetContent(starter)
		if err := c.send(protocol.EventCodeChange, protocol.CodeChange{SessionID: id, Code: starter}); err != nil {
			return err
		}
	}
	return c.send(protocol.EventLanguageChange, protocol.LanguageChange{SessionID: id, Language: string(lang)})
}

// Run executes the current code on the server, shares the output with the
// other participants and returns it. Only one run may be in flight.
func (c *Client) Run(ctx context.Context) (protocol.ExecutionResult, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return protocol.ExecutionResult{}, ErrRunInProgress
	}
	c.running = true
	c.state.Output = RunningPlaceholder
	req := protocol.ExecuteRequest{
		SessionID: c.state.ID,
		Language:  string(c.state.Language),
		Code:      c.state.Code,
		RunID:     uuid.NewString(),
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	// Discard replies left over from cancelled runs.
	for drained := false; !drained; {
		select {
		case <-c.replies:
		default:
			drained = true
		}
	}

	if err := c.send(protocol.EventExecute, req); err != nil {
		return protocol.ExecutionResult{}, err
	}

	var reply runReply
	for reply.result.RunID != req.RunID {
		select {
		case reply = <-c.replies:
			// A reply to a cancelled earlier run has another id and is skipped.
			if reply.err != nil {
				return protocol.ExecutionResult{}, reply.err
			}
		case <-c.done:
			return protocol.ExecutionResult{}, ErrClosed
		case <-ctx.Done():
			return protocol.ExecutionResult{}, ctx.Err()
		}
	}
	if reply.result.Error != "" {
		return protocol.ExecutionResult{}, fmt.Errorf("server: %s", reply.result.Error)
	}

	c.mu.Lock()
	c.state.Output = reply.result.Output
	c.mu.Unlock()

	err := c.send(protocol.EventOutputChange, protocol.OutputChange{SessionID: req.SessionID, Output: reply.result.Output})
	return reply.result, err
}

// Close leaves the session and closes the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
		<-c.done
	})
	return err
}

func (c *Client) send(event string, data any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	env, err := protocol.NewEnvelope(event, data, c.guard.Origin())
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("sending %s: %w", event, err)
	}
	return nil
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	changed := c.connected != v
	c.connected = v
	c.mu.Unlock()
	if changed && c.opts.OnConnection != nil {
		c.opts.OnConnection(v)
	}
}

func (c *Client) readLoop() {
	defer func() {
		c.setConnected(false)
		close(c.done)
	}()

	joined := false
	for {
		var env protocol.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				c.log.Debug("read ended", "error", err)
			}
			return
		}
		if !joined {
			switch env.Event {
			case protocol.EventSessionData:
				joined = true
			case protocol.EventError:
				c.joined <- joinError(env)
				return
			default:
				continue
			}
		}
		c.dispatch(env)
	}
}

func joinError(env protocol.Envelope) error {
	var msg string
	if err := env.Decode(&msg); err != nil {
		return err
	}
	if msg == protocol.MsgSessionNotFound {
		return ErrSessionNotFound
	}
	return fmt.Errorf("join rejected: %s", msg)
}

func (c *Client) dispatch(env protocol.Envelope) {
	if env.Event != protocol.EventSessionData && c.guard.IsEcho(env.Origin) {
		return
	}

	switch env.Event {
	case protocol.EventSessionData:
		var snap session.Session
		if err := env.Decode(&snap); err != nil {
			c.log.Warn("bad session data", "error", err)
			return
		}
		c.mu.Lock()
		c.state = snap
		c.mu.Unlock()
		c.guard.BeginRemote(snap.Code)
		c.editor.SetContent(snap.Code)
		select {
		case c.joined <- nil:
		default:
		}

	case protocol.EventCodeUpdate:
		var code string
		if err := env.Decode(&code); err != nil {
			c.log.Warn("bad code update", "error", err)
			return
		}
		c.mu.Lock()
		if c.state.Code == code {
			c.mu.Unlock()
			return
		}
		c.state.Code = code
		c.guard.BeginRemote(code)
		c.mu.Unlock()
		c.editor.SetContent(code)

	case protocol.EventLanguageUpdate:
		var lang session.Language
		if err := env.Decode(&lang); err != nil {
			c.log.Warn("bad language update", "error", err)
			return
		}
		c.mu.Lock()
		c.state.Language = lang
		c.mu.Unlock()
		if c.opts.OnLanguage != nil {
			c.opts.OnLanguage(lang)
		}

	case protocol.EventOutputUpdate:
		var out string
		if err := env.Decode(&out); err != nil {
			c.log.Warn("bad output update", "error", err)
			return
		}
		c.mu.Lock()
		c.state.Output = out
		c.mu.Unlock()
		if c.opts.OnOutput != nil {
			c.opts.OnOutput(out)
		}

	case protocol.EventExecutionResult:
		var res protocol.ExecutionResult
		err := env.Decode(&res)
		c.reply(runReply{result: res, err: err})

	case protocol.EventError:
		var msg string
		if err := env.Decode(&msg); err != nil {
			msg = err.Error()
		}
		c.log.Warn("server error", "message", strings.TrimSpace(msg))
	}
}

func (c *Client) reply(r runReply) {
	select {
	case c.replies <- r:
	default:
	}
}
