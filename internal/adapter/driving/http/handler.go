package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Wyydra/peercall/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/peercall/internal/core/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// CallController is the part of the call service the UI drives.
type CallController interface {
	Status(ctx context.Context) (domain.Status, error)
	Logs(ctx context.Context, limit int) ([]domain.LogEntry, error)
	StartCall(ctx context.Context, target domain.PeerID) error
	EndCall(ctx context.Context) error
	AnswerPending(ctx context.Context) error
	RejectPending(ctx context.Context) error
	Reconnect(ctx context.Context) error
}

type Handler struct {
	Calls     CallController
	Hub       *ws.Hub
	StaticDir string
}

func NewHandler(calls CallController, hub *ws.Hub, staticDir string) *Handler {
	return &Handler{
		Calls:     calls,
		Hub:       hub,
		StaticDir: staticDir,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.getStatus)
		r.Get("/id", h.getID)
		r.Get("/logs", h.getLogs)
		r.Post("/calls", h.startCall)
		r.Delete("/calls/current", h.endCall)
		r.Post("/calls/pending/answer", h.answerPending)
		r.Delete("/calls/pending", h.rejectPending)
		r.Post("/reconnect", h.reconnect)
	})

	r.Get("/ws", h.ServeWS)

	if h.StaticDir != "" {
		fs := http.FileServer(http.Dir(h.StaticDir))
		r.Handle("/*", fs)
	}
	return r
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.Calls.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// getID serves the own peer id as plain text, for copying.
func (h *Handler) getID(w http.ResponseWriter, r *http.Request) {
	st, err := h.Calls.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if st.PeerID.IsZero() {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no peer id yet"})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(st.PeerID.String()))
}

func (h *Handler) getLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	entries, err := h.Calls.Logs(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type startCallRequest struct {
	Target string `json:"target"`
}

func (h *Handler) startCall(w http.ResponseWriter, r *http.Request) {
	var req startCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	h.respond(w, r, h.Calls.StartCall(r.Context(), domain.PeerID(req.Target)), http.StatusAccepted)
}

func (h *Handler) endCall(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.Calls.EndCall(r.Context()), http.StatusAccepted)
}

func (h *Handler) answerPending(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.Calls.AnswerPending(r.Context()), http.StatusAccepted)
}

func (h *Handler) rejectPending(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.Calls.RejectPending(r.Context()), http.StatusOK)
}

func (h *Handler) reconnect(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.Calls.Reconnect(r.Context()), http.StatusAccepted)
}

// respond answers an operation with the resulting status, or its error.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, opErr error, code int) {
	if opErr != nil {
		writeError(w, opErr)
		return
	}
	st, err := h.Calls.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, code, st)
}

type errorResponse struct {
	Error string `json:"error"`
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrCallInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSelfCall), errors.Is(err, domain.ErrInvalidTarget):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoPendingCall):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotConnected), errors.Is(err, domain.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
