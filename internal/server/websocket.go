package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/michaelbrown/pairpad/internal/protocol"
	"github.com/michaelbrown/pairpad/internal/room"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.track(ws)
	defer s.untrack(ws)

	conn := room.NewConn(uuid.NewString(), s.cfg.Server.SendBuffer)
	log := s.log.With("conn", conn.ID())
	log.Debug("websocket connected", "remote", r.RemoteAddr)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(ws, conn)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	var runs sync.WaitGroup

	s.readPump(ctx, ws, conn, &runs)

	cancel()
	runs.Wait()
	s.hub.Leave(conn)
	conn.Close()
	<-writerDone
	log.Debug("websocket disconnected")
}

// readPump feeds client frames to the hub until the connection fails.
// Executions run beside the read loop so edits keep flowing during a run.
func (s *Server) readPump(ctx context.Context, ws *websocket.Conn, conn *room.Conn, runs *sync.WaitGroup) {
	if s.cfg.Server.MaxMessageBytes > 0 {
		ws.SetReadLimit(s.cfg.Server.MaxMessageBytes)
	}
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("websocket read error", "conn", conn.ID(), "error", err)
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			conn.Send(protocol.ErrorEnvelope("invalid message: " + err.Error()))
			continue
		}

		if env.Event == protocol.EventExecute {
			runs.Add(1)
			go func() {
				defer runs.Done()
				s.runForConn(ctx, conn, env)
			}()
			continue
		}
		s.hub.Handle(conn, env)
	}
}

// runForConn answers an execute event. The result goes to the requester
// only; sharing it is the requester's output-change.
func (s *Server) runForConn(ctx context.Context, conn *room.Conn, env protocol.Envelope) {
	var req protocol.ExecuteRequest
	if err := env.Decode(&req); err != nil {
		conn.Send(protocol.ErrorEnvelope(err.Error()))
		return
	}

	res, err := s.execute(ctx, req.SessionID, req.Language, req.Code)
	if err != nil {
		res = protocol.ExecutionResult{Failed: true, Error: err.Error()}
	}
	res.RunID = req.RunID
	if !conn.Send(protocol.MustEnvelope(protocol.EventExecutionResult, res, "")) {
		conn.Close()
	}
}

// writePump drains the outbox to the socket and keeps the connection alive.
// It closes the socket when the outbox is closed or a write fails.
func (s *Server) writePump(ws *websocket.Conn, conn *room.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case env, ok := <-conn.Outbox():
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteJSON(env); err != nil {
				s.log.Debug("websocket write error", "conn", conn.ID(), "error", err)
				conn.Close()
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}
