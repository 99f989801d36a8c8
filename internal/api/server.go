// Package api serves a storage backend over HTTP: directory listings, entry
// mutations, file content and a change event stream.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"go.uber.org/zap"

	"github.com/sly67/treedesk/internal/events"
	"github.com/sly67/treedesk/internal/logging"
	"github.com/sly67/treedesk/internal/metrics"
	"github.com/sly67/treedesk/internal/storage"
	"github.com/sly67/treedesk/pkg/models"
	"github.com/sly67/treedesk/pkg/protocol"
)

// Server is the treedesk HTTP server.
type Server struct {
	backend        storage.Backend
	broadcaster    *events.Broadcaster
	maxContentSize int64
}

// NewServer creates a server over backend. A nil broadcaster disables the
// event stream.
func NewServer(backend storage.Backend, broadcaster *events.Broadcaster, maxContentSize int64) *Server {
	return &Server{
		backend:        backend,
		broadcaster:    broadcaster,
		maxContentSize: maxContentSize,
	}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", s.handleHealth)

	// Entries
	mux.HandleFunc("GET /api/files", s.handleList)
	mux.HandleFunc("POST /api/files", s.handleCreate)
	mux.HandleFunc("PATCH /api/files", s.handleRename)
	mux.HandleFunc("DELETE /api/files", s.handleDelete)

	// Content
	mux.HandleFunc("GET /api/content", s.handleRead)
	mux.HandleFunc("POST /api/content", s.handleWrite)

	// Events API (SSE)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)

	return logging.Middleware(metrics.Middleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.HealthResponse{Status: "ok"})
}

// ─── Entries ────────────────────────────────────────────────────────────────

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	dir, err := parseDir(r.URL.Query().Get("path"))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid path", err.Error())
		return
	}

	entries, err := s.backend.List(r.Context(), dir)
	if err != nil {
		s.sendStorageError(w, r, "failed to list directory", err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.ListResponse(entries))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req protocol.CreateRequest
	if !s.decode(w, r, &req) {
		return
	}
	dir, name, ok := s.target(w, req.Path, req.Name)
	if !ok {
		return
	}
	kind, err := models.ParseKind(string(req.Type))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid type", err.Error())
		return
	}

	if err := s.backend.Create(r.Context(), dir, name, kind); err != nil {
		s.sendStorageError(w, r, "failed to create entry", err)
		return
	}

	logging.WithContext(r.Context()).Info("entry created",
		zap.String("path", join(dir, name)),
		zap.String("type", string(kind)))
	s.publish(events.Event{Type: protocol.EventCreate, Path: join(dir, name), Kind: kind})
	writeJSON(w, http.StatusCreated, protocol.SuccessResponse{Success: true})
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req protocol.RenameRequest
	if !s.decode(w, r, &req) {
		return
	}
	dir, oldName, ok := s.target(w, req.Path, req.OldName)
	if !ok {
		return
	}
	if err := validateName(req.NewName); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid new name", err.Error())
		return
	}

	if err := s.backend.Rename(r.Context(), dir, oldName, req.NewName); err != nil {
		s.sendStorageError(w, r, "failed to rename entry", err)
		return
	}

	logging.WithContext(r.Context()).Info("entry renamed",
		zap.String("from", join(dir, oldName)),
		zap.String("to", join(dir, req.NewName)))
	s.publish(events.Event{Type: protocol.EventRename, Path: join(dir, req.NewName), From: join(dir, oldName)})
	writeJSON(w, http.StatusOK, protocol.SuccessResponse{Success: true})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req protocol.DeleteRequest
	if !s.decode(w, r, &req) {
		return
	}
	dir, name, ok := s.target(w, req.Path, req.Name)
	if !ok {
		return
	}

	if err := s.backend.Delete(r.Context(), dir, name); err != nil {
		s.sendStorageError(w, r, "failed to delete entry", err)
		return
	}

	logging.WithContext(r.Context()).Info("entry deleted", zap.String("path", join(dir, name)))
	s.publish(events.Event{Type: protocol.EventDelete, Path: join(dir, name)})
	writeJSON(w, http.StatusOK, protocol.SuccessResponse{Success: true})
}

// ─── Content ────────────────────────────────────────────────────────────────

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dir, name, ok := s.target(w, q.Get("path"), q.Get("name"))
	if !ok {
		return
	}

	data, err := s.backend.Read(r.Context(), dir, name)
	if err != nil {
		s.sendStorageError(w, r, "failed to read file", err)
		return
	}

	metrics.RecordContentRead(len(data))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	if s.maxContentSize > 0 {
		// Base64 inflates by 4/3; leave room for the JSON envelope.
		r.Body = http.MaxBytesReader(w, r.Body, s.maxContentSize/3*4+4096)
	}

	var req protocol.WriteContentRequest
	if !s.decode(w, r, &req) {
		return
	}
	dir, name, ok := s.target(w, req.Path, req.Name)
	if !ok {
		return
	}
	if s.maxContentSize > 0 && int64(len(req.Data)) > s.maxContentSize {
		s.sendError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("content exceeds maximum size of %d bytes", s.maxContentSize), "")
		return
	}

	if err := s.backend.Write(r.Context(), dir, name, req.Data); err != nil {
		s.sendStorageError(w, r, "failed to write file", err)
		return
	}

	metrics.RecordContentWrite(len(req.Data))
	logging.WithContext(r.Context()).Info("file saved",
		zap.String("path", join(dir, name)),
		zap.Int("size", len(req.Data)))
	s.publish(events.Event{Type: protocol.EventModify, Path: join(dir, name), Kind: models.KindFile, Size: int64(len(req.Data))})
	writeJSON(w, http.StatusCreated, protocol.SuccessResponse{Success: true})
}

// ─── SSE Events ─────────────────────────────────────────────────────────────

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.broadcaster == nil {
		s.sendError(w, http.StatusNotFound, "event stream disabled", "")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported", "")
		return
	}

	// Subscribe before the headers go out so a client that has seen the
	// response cannot miss an event.
	ch := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := events.WriteSSE(w, event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// publish sends an event to the broadcaster if available.
func (s *Server) publish(e events.Event) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Publish(e)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// parseDir validates a relative directory path. Dot segments are rejected so
// no request can address anything outside the served root.
func parseDir(raw string) (string, error) {
	p, err := models.ParsePath(raw)
	if err != nil {
		return "", err
	}
	for _, seg := range p.Directories() {
		if seg == "." || seg == ".." {
			return "", &models.InvalidPathError{Input: raw}
		}
	}
	return p.FullPath(), nil
}

func validateName(name string) error {
	if err := models.ValidateName(name); err != nil {
		return err
	}
	if name == "." || name == ".." {
		return &models.InvalidPathError{Input: name}
	}
	return nil
}

// target validates a directory and entry name pair, answering 400 on failure.
func (s *Server) target(w http.ResponseWriter, rawDir, name string) (string, string, bool) {
	dir, err := parseDir(rawDir)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid path", err.Error())
		return "", "", false
	}
	if err := validateName(name); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid name", err.Error())
		return "", "", false
	}
	return dir, name, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("content exceeds maximum size of %d bytes", s.maxContentSize), "")
			return false
		}
		s.sendError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func join(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// statusFor maps backend errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, fs.ErrExist):
		return http.StatusConflict
	case errors.Is(err, fs.ErrInvalid), errors.Is(err, models.ErrInvalidPath):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendStorageError(w http.ResponseWriter, r *http.Request, message string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logging.WithContext(r.Context()).Error(message, zap.Error(err))
	}
	s.sendError(w, code, message, err.Error())
}

func (s *Server) sendError(w http.ResponseWriter, code int, message, details string) {
	writeJSON(w, code, protocol.ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
