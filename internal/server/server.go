// Package server runs the loopback HTTP API the product UI and local
// tools drive: overlay lifecycle, one-shot drafting, selection history,
// and the MCP mount.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/db"
	"github.com/quillhq/quill/internal/hub"
	"github.com/quillhq/quill/internal/lifecycle"
	"github.com/quillhq/quill/internal/suggest"
)

// Deps holds what the API serves. Store and Engine may be nil; the
// affected endpoints answer 503.
type Deps struct {
	Config     *config.Config
	Supervisor *hub.Supervisor
	Engine     *suggest.Engine
	Store      *db.Store
	MCP        http.Handler // mounted at /mcp when non-nil
	Quiet      bool         // suppress startup messages for clean CLI output
}

// Run starts the host API and blocks until ctx is cancelled.
func Run(ctx context.Context, deps Deps) error {
	port := deps.Config.Server.Port

	if err := checkPortAvailable(port); err != nil {
		return fmt.Errorf("port %d is already in use - only one Quill instance allowed per computer", port)
	}

	if !deps.Quiet {
		fmt.Printf("Starting host API on http://127.0.0.1:%d\n", port)
	}

	r := buildRouter(deps)

	// ReadTimeout/WriteTimeout stay unset: they put deadlines on the
	// underlying conns, which breaks long-polling clients.
	httpServer := &http.Server{
		Addr:        fmt.Sprintf("127.0.0.1:%d", port),
		Handler:     r,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("HTTP server error: %v\n", err)
		}
	}()

	lifecycle.Emit(lifecycle.EventServerStarted, httpServer.Addr)
	if !deps.Quiet {
		fmt.Printf("Host API ready at http://127.0.0.1:%d\n", port)
	}

	<-ctx.Done()

	if !deps.Quiet {
		fmt.Println("\nShutting down host API...")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	httpServer.Shutdown(shutdownCtx)
	return nil
}

func buildRouter(deps Deps) chi.Router {
	r := chi.NewRouter()

	if !deps.Quiet {
		r.Use(chimw.Logger)
	}
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(corsMiddleware())

	r.Get("/health", healthHandler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/overlay/activate", activateOverlayHandler(deps))
		r.Post("/overlay/deactivate", deactivateOverlayHandler(deps))
		r.Get("/overlay/status", overlayStatusHandler(deps))
		r.Post("/draft", draftHandler(deps))
		r.Get("/selections", listSelectionsHandler(deps))
	})

	if deps.MCP != nil {
		r.Handle("/mcp", deps.MCP)
		r.Handle("/mcp/*", deps.MCP)
	}

	return r
}

func checkPortAvailable(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func corsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Only localhost origins get CORS headers; the listener is
			// loopback-bound so nothing else reaches it anyway.
			if origin == "" || isLocalhostOrigin(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
