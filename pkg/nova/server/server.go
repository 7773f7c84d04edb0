// Package server exposes the GUI API: JSON endpoints under /api/ plus the
// image files the GUI references under /Bots/ and /Personas/. Action
// endpoints follow the GUI's convention of returning 200 with a success
// flag; transport-level failures are the only non-200 responses.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/project-nova/nova/pkg/nova/bots"
	"github.com/project-nova/nova/pkg/nova/chats"
	"github.com/project-nova/nova/pkg/nova/fsrecord"
	"github.com/project-nova/nova/pkg/nova/personas"
	"github.com/project-nova/nova/pkg/nova/pipeline"
	"github.com/project-nova/nova/pkg/nova/settings"
	"github.com/project-nova/nova/pkg/nova/usage"
)

// Server wires the stores and the pipeline to the HTTP surface.
type Server struct {
	root     *fsrecord.Root
	bots     *bots.Store
	chats    *chats.Store
	personas *personas.Store
	settings *settings.Manager
	pipeline *pipeline.Pipeline
	usage    *usage.Tracker
	logger   *slog.Logger

	mu               sync.Mutex
	currentBot       string
	currentPersonaID string

	httpServer *http.Server
}

// New creates a server. The usage tracker may be nil.
func New(root *fsrecord.Root, botStore *bots.Store, chatStore *chats.Store, personaStore *personas.Store, settingsMgr *settings.Manager, pipe *pipeline.Pipeline, tracker *usage.Tracker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		root:     root,
		bots:     botStore,
		chats:    chatStore,
		personas: personaStore,
		settings: settingsMgr,
		pipeline: pipe,
		usage:    tracker,
		logger:   logger.With("component", "server"),
	}
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/bots", s.handleBots)
	mux.HandleFunc("/api/bot/select", s.handleBotSelect)
	mux.HandleFunc("/api/bot/iam", s.handleBotIAM)
	mux.HandleFunc("/api/bot/images", s.handleBotImages)

	mux.HandleFunc("/api/chats", s.handleChats)
	mux.HandleFunc("/api/message", s.handleMessage)
	mux.HandleFunc("/api/load-chat", s.handleLoadChat)
	mux.HandleFunc("/api/last-chat", s.handleLastChat)

	mux.HandleFunc("/api/personas", s.handlePersonas)
	mux.HandleFunc("/api/persona/images", s.handlePersonaImages)

	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/api/settings/reset", s.handleSettingsReset)
	mux.HandleFunc("/api/settings/test", s.handleSettingsTest)
	mux.HandleFunc("/api/settings/local-models", s.handleLocalModels)
	mux.HandleFunc("/api/usage", s.handleUsage)

	// Artwork referenced by the GUI.
	mux.Handle("/Bots/", http.StripPrefix("/Bots/", safeFileServer(s.root.BotsDir())))
	mux.Handle("/Personas/", http.StripPrefix("/Personas/", safeFileServer(s.root.PersonasDir())))

	return s.requestLog(mux)
}

// ListenAndServe starts the API server and blocks until the context is
// canceled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()
	s.logger.Info("GUI API listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// requestLog tags each request with an id and logs it after completion.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		next.ServeHTTP(w, r)

		if strings.HasPrefix(r.URL.Path, "/api/") {
			s.logger.Debug("request handled",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
	})
}

// safeFileServer serves files from dir, refusing dotfiles and traversal.
func safeFileServer(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "..") || strings.HasPrefix(r.URL.Path, ".") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as the response body.
func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("writing response", "error", err)
	}
}

// readBody decodes the JSON request body into a generic map. Empty bodies
// decode as an empty map.
func readBody(r *http.Request) (map[string]any, error) {
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, 32<<20))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]any{}, nil
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	return body, nil
}

func bodyString(body map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := body[key]; ok && v != nil {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func bodyInt(body map[string]any, key string, def int) int {
	switch t := body[key].(type) {
	case float64:
		return int(t)
	case int:
		return t
	}
	return def
}

func bodyBool(body map[string]any, key string) bool {
	b, _ := body[key].(bool)
	return b
}

// sortCaseInsensitive orders strings without letting case split the list.
func sortCaseInsensitive(values []string) {
	sort.Slice(values, func(i, j int) bool {
		return strings.ToLower(values[i]) < strings.ToLower(values[j])
	})
}

// fail is the standard action-failure response.
func fail(message string) map[string]any {
	return map[string]any{"success": false, "message": message}
}

// refused reports whether err is a store-level refusal rather than a
// transport problem.
func refused(err error) bool {
	return errors.Is(err, fsrecord.ErrRefused)
}
