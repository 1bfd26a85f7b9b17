// Package channel exposes the assistant over a JSON HTTP API.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"secretary-ai/internal/domain"
	"secretary-ai/internal/infra/config"
	"secretary-ai/internal/infra/middleware"
	"secretary-ai/internal/usecase"
)

// ChatHandler runs one chat turn.
type ChatHandler interface {
	HandleMessage(ctx context.Context, in usecase.ChatInput) (*usecase.ChatOutput, error)
}

// HTTPDeps holds the API's collaborators. Nil stores disable their routes.
type HTTPDeps struct {
	Chat          ChatHandler
	Conversations domain.ConversationStore
	Credentials   domain.CredentialStore
	Todos         domain.TodoStore
	Logger        *slog.Logger
	Now           func() time.Time
}

// HTTPChannel serves the JSON API.
type HTTPChannel struct {
	cfg    config.HTTPConfig
	deps   HTTPDeps
	logger *slog.Logger

	server    *http.Server
	boundAddr string

	// Lifecycle for the rate limiter cleanup goroutine.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHTTPChannel creates the API channel.
func NewHTTPChannel(cfg config.HTTPConfig, deps HTTPDeps) *HTTPChannel {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &HTTPChannel{cfg: cfg, deps: deps, logger: deps.Logger}
}

// Handler builds the router. The context bounds background middleware work.
func (h *HTTPChannel) Handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(h.recoverer)
	r.Use(middleware.SecurityHeaders)
	if h.cfg.RateLimit > 0 {
		r.Use(middleware.RateLimit(ctx, middleware.RateLimitConfig{
			PerSecond: h.cfg.RateLimit,
			Burst:     h.cfg.RateBurst,
		}))
	}
	r.Use(middleware.MaxBody(h.cfg.MaxBodyBytes))
	r.Use(h.requestLogger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, domain.NewDomainError("http", domain.ErrNotFound, "no route for "+r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Code: "METHOD_NOT_ALLOWED"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.handleHealth)
		r.Post("/chat", h.handleChat)

		if h.deps.Conversations != nil {
			r.Get("/conversations/{id}", h.handleGetConversation)
			r.Delete("/conversations/{id}", h.handleDeleteConversation)
		}

		if h.deps.Credentials == nil && h.deps.Todos == nil {
			return
		}
		r.Route("/users/{userID}", func(r chi.Router) {
			if h.deps.Credentials != nil {
				r.Put("/calendar/credentials", h.handlePutCredentials)
				r.Delete("/calendar/credentials", h.handleDeleteCredentials)
			}
			if h.deps.Todos != nil {
				r.Get("/todos", h.handleListTodos)
				r.Post("/todos", h.handleCreateTodo)
				r.Patch("/todos/{id}", h.handleUpdateTodo)
				r.Delete("/todos/{id}", h.handleDeleteTodo)
			}
		})
	})
	return r
}

// Start begins serving. Non-blocking.
func (h *HTTPChannel) Start(ctx context.Context) error {
	h.ctx, h.cancel = context.WithCancel(ctx)

	readTimeout := h.cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := h.cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 120 * time.Second
	}

	h.server = &http.Server{
		Addr:              h.cfg.Addr,
		Handler:           h.Handler(h.ctx),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		BaseContext: func(_ net.Listener) context.Context {
			return h.ctx
		},
	}

	ln, err := net.Listen("tcp", h.cfg.Addr)
	if err != nil {
		h.cancel()
		return fmt.Errorf("listen %s: %w", h.cfg.Addr, err)
	}
	h.boundAddr = ln.Addr().String()

	go func() {
		h.logger.Info("http api started", "addr", h.boundAddr)
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("http server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address after Start.
func (h *HTTPChannel) Addr() string { return h.boundAddr }

// Stop gracefully shuts down the server.
func (h *HTTPChannel) Stop(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	err := h.server.Shutdown(ctx)
	h.cancel()
	return err
}

func (h *HTTPChannel) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}

func (h *HTTPChannel) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.logger.Error("http handler panicked", "path", r.URL.Path, "panic", rec)
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: string(domain.CodeUnknown)})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
