package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/michaelbrown/pairpad/internal/execution"
	"github.com/michaelbrown/pairpad/internal/protocol"
	"github.com/michaelbrown/pairpad/internal/session"
	"github.com/michaelbrown/pairpad/internal/storage"
)

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK"))
}

// --- Session handlers ---

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create(uuid.NewString())
	s.log.Info("session created", "session", sess.ID)
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, protocol.MsgSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// --- Execution handlers ---

type executeRequest struct {
	SessionID string `json:"sessionId"`
	Language  string `json:"language"`
	Code      string `json:"code"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	res, err := s.execute(r.Context(), req.SessionID, req.Language, req.Code)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, execution.ErrUnsupportedLanguage) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotFound, "run journal disabled")
		return
	}

	opts := storage.RunListOptions{SessionID: chi.URLParam(r, "id")}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			opts.Offset = n
		}
	}

	runs, err := s.journal.ListRuns(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// execute runs code for a session and journals the result. An empty
// language falls back to the session's current language.
func (s *Server) execute(ctx context.Context, sessionID, language, code string) (protocol.ExecutionResult, error) {
	if language == "" {
		language = string(session.DefaultLanguage)
		if sess, ok := s.sessions.Get(sessionID); ok {
			language = string(sess.Language)
		}
	}
	lang, err := session.ParseLanguage(language)
	if err != nil {
		return protocol.ExecutionResult{}, fmt.Errorf("%w: %q", execution.ErrUnsupportedLanguage, language)
	}

	res, err := s.engine.Execute(ctx, lang, code)
	if err != nil {
		return protocol.ExecutionResult{}, err
	}

	out := protocol.ExecutionResult{
		Output:     res.Output,
		Failed:     res.Failed,
		DurationMS: res.Duration.Milliseconds(),
	}

	if s.journal != nil {
		run := &storage.Run{
			ID:         uuid.NewString(),
			SessionID:  sessionID,
			Language:   string(lang),
			Source:     code,
			Output:     out.Output,
			Failed:     out.Failed,
			DurationMS: out.DurationMS,
		}
		if err := s.journal.RecordRun(context.WithoutCancel(ctx), run); err != nil {
			s.log.Error("journal write failed", "session", sessionID, "error", err)
		}
	}
	return out, nil
}
