// Package room implements the session rooms: connections join the room of a
// session, and every mutation one member sends is applied to the session
// store and relayed to the other members.
package room

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/michaelbrown/pairpad/internal/protocol"
	"github.com/michaelbrown/pairpad/internal/session"
)

// Hub owns room membership. All events are applied under one lock, which
// serialises store mutations and keeps each sender's messages in order on
// every peer's outbox.
type Hub struct {
	mu    sync.Mutex
	store session.Store
	rooms map[string]map[*Conn]struct{}
	log   *slog.Logger
}

// NewHub creates a hub backed by store.
func NewHub(store session.Store, log *slog.Logger) *Hub {
	return &Hub{
		store: store,
		rooms: make(map[string]map[*Conn]struct{}),
		log:   log.With("component", "hub"),
	}
}

// Handle applies one client event.
func (h *Hub) Handle(c *Conn, env protocol.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	origin := env.Origin
	if origin == "" {
		origin = c.id
	}

	switch env.Event {
	case protocol.EventJoinSession:
		var id string
		if err := env.Decode(&id); err != nil {
			h.reply(c, protocol.ErrorEnvelope(err.Error()))
			return
		}
		h.join(c, id)

	case protocol.EventCodeChange:
		var msg protocol.CodeChange
		if err := decodeScoped(env, &msg, &msg.SessionID); err != nil {
			h.reply(c, protocol.ErrorEnvelope(err.Error()))
			return
		}
		h.store.Update(msg.SessionID, session.CodePatch(msg.Code))
		h.broadcast(msg.SessionID, c, protocol.MustEnvelope(protocol.EventCodeUpdate, msg.Code, origin))

	case protocol.EventLanguageChange:
		var msg protocol.LanguageChange
		if err := decodeScoped(env, &msg, &msg.SessionID); err != nil {
			h.reply(c, protocol.ErrorEnvelope(err.Error()))
			return
		}
		lang, err := session.ParseLanguage(msg.Language)
		if err != nil {
			h.reply(c, protocol.ErrorEnvelope(err.Error()))
			return
		}
		h.store.Update(msg.SessionID, session.LanguagePatch(lang))
		h.broadcast(msg.SessionID, c, protocol.MustEnvelope(protocol.EventLanguageUpdate, lang, origin))

	case protocol.EventOutputChange:
		var msg protocol.OutputChange
		if err := decodeScoped(env, &msg, &msg.SessionID); err != nil {
			h.reply(c, protocol.ErrorEnvelope(err.Error()))
			return
		}
		h.store.Update(msg.SessionID, session.OutputPatch(msg.Output))
		h.broadcast(msg.SessionID, c, protocol.MustEnvelope(protocol.EventOutputUpdate, msg.Output, origin))

	default:
		h.reply(c, protocol.ErrorEnvelope(fmt.Sprintf("unknown event: %q", env.Event)))
	}
}

// Leave removes c from its room. Peers are not told.
func (h *Hub) Leave(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(c)
}

// RoomSize returns the number of connections in the room of sessionID.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[sessionID])
}

// Rooms returns the number of non-empty rooms.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

func (h *Hub) join(c *Conn, id string) {
	snap, ok := h.store.Get(id)
	if !ok {
		h.log.Debug("join unknown session", "conn", c.id, "session", id)
		h.reply(c, protocol.ErrorEnvelope(protocol.MsgSessionNotFound))
		return
	}

	if c.room != id {
		h.leave(c)
		members, ok := h.rooms[id]
		if !ok {
			members = make(map[*Conn]struct{})
			h.rooms[id] = members
		}
		members[c] = struct{}{}
		c.room = id
	}

	h.log.Debug("joined", "conn", c.id, "session", id, "members", len(h.rooms[id]))
	h.reply(c, protocol.MustEnvelope(protocol.EventSessionData, snap, ""))
}

func (h *Hub) leave(c *Conn) {
	if c.room == "" {
		return
	}
	if members, ok := h.rooms[c.room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	h.log.Debug("left", "conn", c.id, "session", c.room)
	c.room = ""
}

// broadcast queues env for every member of the room except sender.
func (h *Hub) broadcast(sessionID string, sender *Conn, env protocol.Envelope) {
	for peer := range h.rooms[sessionID] {
		if peer == sender {
			continue
		}
		if !peer.Send(env) {
			h.drop(peer)
		}
	}
}

func (h *Hub) reply(c *Conn, env protocol.Envelope) {
	if !c.Send(env) {
		h.drop(c)
	}
}

// drop disconnects a connection that cannot keep up.
func (h *Hub) drop(c *Conn) {
	h.log.Warn("dropping connection", "conn", c.id, "session", c.room)
	h.leave(c)
	c.Close()
}

// decodeScoped decodes a mutation payload and checks it names a session.
func decodeScoped(env protocol.Envelope, v any, sessionID *string) error {
	if err := env.Decode(v); err != nil {
		return err
	}
	if *sessionID == "" {
		return fmt.Errorf("%s: missing sessionId", env.Event)
	}
	return nil
}
