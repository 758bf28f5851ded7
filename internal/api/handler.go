package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amcassist/amcassist/internal/agent"
	"github.com/amcassist/amcassist/internal/auth"
	"github.com/amcassist/amcassist/internal/catalog"
	"github.com/amcassist/amcassist/internal/chat"
	"github.com/amcassist/amcassist/internal/config"
	"github.com/amcassist/amcassist/internal/explorer"
	"github.com/amcassist/amcassist/internal/export"
	"github.com/amcassist/amcassist/internal/observability"
	"github.com/amcassist/amcassist/internal/scope"
	"github.com/amcassist/amcassist/internal/warehouse"
)

type ReadinessCheck func(ctx context.Context) error

type Assistant interface {
	Respond(ctx context.Context, session agent.SessionContext, text string) agent.Envelope
}

type ScopeResolver interface {
	Resolve(ctx context.Context, names []string) (scope.Scope, error)
}

type TenantLister interface {
	ListTenants(ctx context.Context) ([]warehouse.Tenant, error)
}

type DatasetExplorer interface {
	Datasets() []catalog.TableDef
	Explore(ctx context.Context, table string, s scope.Scope, limit int) (explorer.Dataset, error)
}

type ExportArchiver interface {
	Archive(ctx context.Context, chatID, turnID string, f export.Format, data []byte) (export.Archived, error)
	Link(ctx context.Context, rec chat.ExportRecord) (string, error)
	Purge(ctx context.Context, records []chat.ExportRecord) error
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Chats             chat.Store
	Assistant         Assistant
	Resolver          ScopeResolver
	Tenants           TenantLister
	Explorer          DatasetExplorer
	// Archiver is optional; without it exports are streamed only.
	Archiver ExportArchiver
	Now      func() time.Time
}

type server struct {
	cfg    config.Config
	deps   Dependencies
	logger *slog.Logger
	now    func() time.Time
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	s := &server{cfg: cfg, deps: deps, logger: deps.Logger, now: deps.Now}
	if s.logger == nil {
		s.logger = observability.DiscardLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	routes := map[string]http.HandlerFunc{
		"GET /v1/prompts":                        s.handlePrompts,
		"GET /v1/advertisers":                    s.handleAdvertisers,
		"GET /v1/datasets":                       s.handleListDatasets,
		"GET /v1/datasets/{table}":               s.handleGetDataset,
		"POST /v1/chats":                         s.handleCreateChat,
		"GET /v1/chats":                          s.handleListChats,
		"GET /v1/chats/{id}":                     s.handleGetChat,
		"PATCH /v1/chats/{id}":                   s.handleRenameChat,
		"DELETE /v1/chats/{id}":                  s.handleDeleteChat,
		"POST /v1/chats/{id}/messages":           s.handlePostMessage,
		"DELETE /v1/chats/{id}/turns":            s.handleClearTurns,
		"GET /v1/chats/{id}/turns/{turn}/export": s.handleExport,
		"GET /v1/chats/{id}/exports":             s.handleListExports,
	}
	for pattern, handler := range routes {
		protected.HandleFunc(pattern, handler)
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			s.logger.Error("auth required but auth middleware missing")
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	} else {
		protectedHandler = auth.AnonymousMiddleware(protectedHandler)
	}
	for pattern := range routes {
		mux.Handle(pattern, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.RecoverMiddleware(s.logger),
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckPing adapts any dependency with a context-aware health check.
func CheckPing(name string, ping func(ctx context.Context) error) ReadinessCheck {
	return func(ctx context.Context) error {
		if ping == nil {
			return errors.New(name + " is not configured")
		}
		if err := ping(ctx); err != nil {
			return errors.New(name + " unavailable: " + err.Error())
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if !cfg.ObjectStore.ArchiveExports {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func ownerFromRequest(r *http.Request) (string, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity.UserID == "" {
		return "", false
	}
	return identity.UserID, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
