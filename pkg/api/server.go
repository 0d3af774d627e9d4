// Package api assembles and serves the gateway's HTTP API.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v1 "github.com/doculearn/gateway/pkg/api/v1"
	"github.com/doculearn/gateway/pkg/auth"
	authmw "github.com/doculearn/gateway/pkg/auth/middleware"
	"github.com/doculearn/gateway/pkg/config"
	"github.com/doculearn/gateway/pkg/forward"
	"github.com/doculearn/gateway/pkg/identity"
	"github.com/doculearn/gateway/pkg/logger"
	"github.com/doculearn/gateway/pkg/oauth"
	"github.com/doculearn/gateway/pkg/storage/sqlite"
	"github.com/doculearn/gateway/pkg/telemetry"
)

const (
	// middlewareTimeout must exceed the longest forwarding timeout so the
	// upload path is not cut short.
	middlewareTimeout = 200 * time.Second
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware allows the configured frontend origin to call the API
// with credentials. Cookies require an exact origin, not a wildcard.
func corsMiddleware(frontendURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin == frontendURL {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"service":"doculearn-gateway","status":"ok"}`))
}

// NewRouter builds the full gateway router from its wired subsystems.
// Split out from Serve so tests can drive the complete routing table
// without a listening socket.
func NewRouter(
	settings *config.Settings,
	verifier *auth.Verifier,
	flow *oauth.Flow,
	resolver *identity.Resolver,
	cookie auth.SessionCookie,
	store v1.Pinger,
	generation *forward.Service,
	rag *forward.Service,
) http.Handler {
	authenticator := authmw.NewAuthenticator(verifier, resolver, cookie)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
		corsMiddleware(settings.FrontendURL),
		headersMiddleware,
	)

	r.Get("/", rootHandler)
	r.Mount("/health", v1.HealthcheckRouter(store))
	r.Handle("/metrics", telemetry.Handler())
	r.Mount("/api/v1/auth", v1.AuthRouter(flow, verifier, resolver, cookie, settings.FrontendURL))

	r.Group(func(r chi.Router) {
		r.Use(authenticator.RequireUser)
		r.Mount("/api/v1/users", v1.UsersRouter())
		r.Mount("/api/v1/generation", v1.GenerationRouter(generation))
		r.Mount("/api/v1/rag", v1.RAGRouter(rag))
	})

	return r
}

// Serve wires the gateway's subsystems from settings, then serves the API
// until ctx is cancelled. It is assumed that the caller sets up signal
// handling.
func Serve(ctx context.Context, settings *config.Settings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := sqlite.NewUserStore(ctx, settings.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open user store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnf("failed to close user store: %v", err)
		}
	}()

	keys, err := auth.NewKeySetCache(settings.Provider.JWKSURL())
	if err != nil {
		return fmt.Errorf("failed to create key-set cache: %w", err)
	}
	verifier, err := auth.NewVerifier(keys,
		settings.Provider.Issuer(), settings.Provider.ClientID, settings.Provider.Algorithm)
	if err != nil {
		return fmt.Errorf("failed to create token verifier: %w", err)
	}
	flow, err := oauth.NewFlow(settings.Provider)
	if err != nil {
		return fmt.Errorf("failed to create OAuth flow: %w", err)
	}
	cookie, err := auth.NewSessionCookie(
		settings.Cookie.Name, settings.Cookie.Secure, settings.Cookie.SameSite)
	if err != nil {
		return fmt.Errorf("failed to create session cookie: %w", err)
	}
	generation, err := forward.NewService("generation", settings.GenerationServiceURL)
	if err != nil {
		return fmt.Errorf("failed to create generation forwarder: %w", err)
	}
	rag, err := forward.NewService("rag", settings.RAGServiceURL)
	if err != nil {
		return fmt.Errorf("failed to create rag forwarder: %w", err)
	}

	handler := NewRouter(settings, verifier, flow,
		identity.NewResolver(store), cookie, store, generation, rag)

	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              settings.Address,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	listener, err := net.Listen("tcp", settings.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", settings.Address, err)
	}

	logger.Infof("starting HTTP server on %s", settings.Address)

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Panicf("server stopped with error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Infof("HTTP server stopped")
	return nil
}
