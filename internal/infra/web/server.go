// Package web exposes the voice-note pipeline, the note store and the quote
// explorer as a JSON API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"voznote/internal/application"
	"voznote/internal/domain"
)

const (
	rateLimit       = 30
	rateLimitWindow = time.Minute
	// DurationHeader carries the client-measured length of an upload in seconds.
	DurationHeader = "X-Recording-Duration"
)

type Deps struct {
	Pipeline *application.Pipeline
	View     *application.ViewController
	Notes    application.NoteRepository
	Quotes   *application.QuoteExplorer
}

type Server struct {
	addr        string
	server      *http.Server
	logger      *slog.Logger
	mu          sync.Mutex
	running     bool
	mux         *http.ServeMux
	rateLimiter *RateLimiter
	stopCleanup context.CancelFunc
	authToken   string
	maxUpload   int

	pipeline *application.Pipeline
	view     *application.ViewController
	notes    application.NoteRepository
	quotes   *application.QuoteExplorer
}

func NewServer(addr, authToken string, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		addr:        addr,
		logger:      logger,
		mux:         http.NewServeMux(),
		rateLimiter: NewRateLimiter(rateLimit, rateLimitWindow),
		authToken:   authToken,
		maxUpload:   domain.MaxAudioBytes,
		pipeline:    deps.Pipeline,
		view:        deps.View,
		notes:       deps.Notes,
		quotes:      deps.Quotes,
	}

	limited := func(h http.HandlerFunc) http.HandlerFunc {
		return s.rateLimiter.Middleware(s.auth(h))
	}

	s.mux.HandleFunc("POST /audio", limited(s.handleAudio))
	s.mux.HandleFunc("POST /recordings/start", s.auth(s.handleStartRecording))
	s.mux.HandleFunc("POST /recordings/stop", s.auth(s.handleStopRecording))
	s.mux.HandleFunc("POST /recordings/cancel", s.auth(s.handleCancelRecording))

	s.mux.HandleFunc("GET /view", s.auth(s.handleView))
	s.mux.HandleFunc("PATCH /view/note", s.auth(s.handleEditActive))
	s.mux.HandleFunc("POST /view/save", s.auth(s.handleSaveActive))
	s.mux.HandleFunc("POST /view/discard", s.auth(s.handleDiscardActive))
	s.mux.HandleFunc("POST /view/open/{id}", s.auth(s.handleOpenNote))

	s.mux.HandleFunc("GET /notes", s.auth(s.handleListNotes))
	s.mux.HandleFunc("GET /notes/{id}", s.auth(s.handleGetNote))
	s.mux.HandleFunc("PUT /notes/{id}", s.auth(s.handlePutNote))
	s.mux.HandleFunc("DELETE /notes/{id}", s.auth(s.handleDeleteNote))
	s.mux.HandleFunc("GET /notes/{id}/audio", s.auth(s.handleNoteAudio))
	s.mux.HandleFunc("GET /notes/{id}/export", s.auth(s.handleExportNote))

	s.mux.HandleFunc("GET /quotes", limited(s.handleSearchQuotes))
	s.mux.HandleFunc("GET /quotes/random", limited(s.handleRandomQuote))
	s.mux.HandleFunc("POST /quotes/image", limited(s.handleRegenerateImage))
	s.mux.HandleFunc("GET /favorites", s.auth(s.handleFavorites))
	s.mux.HandleFunc("POST /favorites/toggle", s.auth(s.handleToggleFavorite))

	// No auth or rate limiting on health check
	s.mux.HandleFunc("GET /health", s.handleHealth)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// TrustProxyHeaders keys rate limiting on X-Forwarded-For / X-Real-IP.
// Enable it only behind a reverse proxy that sets them.
func (s *Server) TrustProxyHeaders(trust bool) {
	if trust {
		s.rateLimiter.keyFunc = ForwardedIP
	} else {
		s.rateLimiter.keyFunc = RemoteIP
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// Transcription and image synthesis can take minutes end to end.
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info("HTTP server starting", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	cleanupCtx, cancel := context.WithCancel(ctx)
	s.stopCleanup = cancel
	go s.rateLimiter.RunCleanup(cleanupCtx)

	s.running = true
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			if err := s.server.Close(); err != nil {
				return fmt.Errorf("closing server: %w", err)
			}
		}
	}

	if s.stopCleanup != nil {
		s.stopCleanup()
	}
	s.running = false
	return nil
}

// auth checks X-Auth-Token, or the token query parameter, when a token is configured.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" {
			token := r.Header.Get("X-Auth-Token")
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token != s.authToken {
				s.logger.Warn("unauthorized request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	// One byte past the limit lets the pipeline reject oversize uploads
	// with its own error.
	data, err := io.ReadAll(io.LimitReader(r.Body, int64(s.maxUpload)+1))
	if err != nil {
		s.logger.Error("reading audio body", "error", err)
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty audio")
		return
	}

	rec := &domain.Recording{
		Data:     data,
		MimeType: r.Header.Get("Content-Type"),
	}
	if secs, err := strconv.ParseFloat(r.Header.Get(DurationHeader), 64); err == nil && secs > 0 {
		rec.Duration = time.Duration(secs * float64(time.Second))
	}

	s.logger.Info("received audio via HTTP", "bytes", len(data), "mime", rec.MimeType)

	note, err := s.pipeline.Process(r.Context(), rec)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.Start(r.Context()); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.view.Snapshot())
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	note, err := s.pipeline.Stop(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (s *Server) handleCancelRecording(w http.ResponseWriter, r *http.Request) {
	s.pipeline.Cancel()
	writeJSON(w, http.StatusOK, s.view.Snapshot())
}

type viewResponse struct {
	application.Snapshot
	Elapsed string `json:"elapsed"`
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewResponse{
		Snapshot: s.view.Snapshot(),
		Elapsed:  domain.FormatDuration(s.pipeline.Elapsed()),
	})
}

type notePatch struct {
	Title         *string   `json:"title"`
	Summary       *string   `json:"summary"`
	Transcription *string   `json:"transcription"`
	Tags          *[]string `json:"tags"`
}

func (p notePatch) apply(n *domain.Note) {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Summary != nil {
		n.Summary = *p.Summary
	}
	if p.Transcription != nil {
		n.Transcription = *p.Transcription
	}
	if p.Tags != nil {
		n.Tags = *p.Tags
	}
}

func (s *Server) handleEditActive(w http.ResponseWriter, r *http.Request) {
	var patch notePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.view.Edit(patch.apply); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view.Snapshot())
}

func (s *Server) handleSaveActive(w http.ResponseWriter, r *http.Request) {
	note, err := s.view.Save(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleDiscardActive(w http.ResponseWriter, r *http.Request) {
	s.view.Discard()
	writeJSON(w, http.StatusOK, s.view.Snapshot())
}

func (s *Server) handleOpenNote(w http.ResponseWriter, r *http.Request) {
	if err := s.view.Open(r.PathValue("id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view.Snapshot())
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	notes := s.view.Search(r.URL.Query().Get("q"))
	if notes == nil {
		notes = []domain.Note{}
	}
	writeJSON(w, http.StatusOK, notes)
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	note, ok := s.notes.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) handlePutNote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var note domain.Note
	if existing, ok := s.notes.Get(id); ok {
		note = existing
	} else {
		note.ID = id
	}

	var patch notePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	patch.apply(&note)

	if err := s.notes.Upsert(r.Context(), note); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := s.view.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNoteAudio(w http.ResponseWriter, r *http.Request) {
	note, ok := s.notes.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	if note.Audio == nil || len(note.Audio.Data) == 0 {
		writeError(w, http.StatusGone, "audio is no longer available")
		return
	}

	w.Header().Set("Content-Type", note.Audio.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(note.Audio.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(note.Audio.Data)
}

func (s *Server) handleExportNote(w http.ResponseWriter, r *http.Request) {
	note, ok := s.notes.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="nota-%s.txt"`, note.ID))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, application.ExportText(note))
}

func (s *Server) handleSearchQuotes(w http.ResponseWriter, r *http.Request) {
	quotes, err := s.quotes.Search(r.Context(), r.URL.Query().Get("theme"))
	if err != nil {
		if errors.Is(err, application.ErrEmptyTheme) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quotes)
}

func (s *Server) handleRandomQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.quotes.Random(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleRegenerateImage(w http.ResponseWriter, r *http.Request) {
	var q domain.Quote
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil || q.Text == "" {
		writeError(w, http.StatusBadRequest, "quote required")
		return
	}
	updated, err := s.quotes.RegenerateImage(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleFavorites(w http.ResponseWriter, r *http.Request) {
	favs := s.quotes.Favorites()
	if favs == nil {
		favs = []domain.Quote{}
	}
	writeJSON(w, http.StatusOK, favs)
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	var q domain.Quote
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil || q.Text == "" {
		writeError(w, http.StatusBadRequest, "quote required")
		return
	}
	added, err := s.quotes.ToggleFavorite(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"favorite": added})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"running":  running,
		"pipeline": s.pipeline.State(),
	})
}

// writeDomainError maps error kinds onto status codes and always sends the
// user-facing message.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, application.ErrNotRecording), errors.Is(err, application.ErrNoActiveNote):
		status = http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
	default:
		switch domain.KindOf(err) {
		case domain.KindOversize, domain.KindPayloadTooLarge:
			status = http.StatusRequestEntityTooLarge
		case domain.KindEmptyResult:
			status = http.StatusUnprocessableEntity
		case domain.KindDeviceAccess:
			status = http.StatusServiceUnavailable
		case domain.KindAuth, domain.KindConnection, domain.KindSummarization,
			domain.KindOverloaded, domain.KindRateLimited, domain.KindUnavailable:
			status = http.StatusBadGateway
		}
	}

	if status >= 500 {
		s.logger.Error("request failed", "error", err)
	}

	msg := err.Error()
	var de *domain.Error
	if errors.As(err, &de) {
		msg = de.UserMessage()
	}
	writeError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
