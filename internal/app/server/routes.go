package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"fwblock/internal/auth"
	"fwblock/internal/blocklist"
	"fwblock/internal/domain"
)

const shutdownTimeout = 5 * time.Second

// Loader reads the persisted block list.
type Loader interface {
	Load(ctx context.Context) ([]domain.BlockRecord, error)
}

// Server exposes the block list read-only. Every request reloads from the
// loader so the CLI stays the only writer.
type Server struct {
	loader Loader
	policy blocklist.Policy
}

func New(loader Loader, policy blocklist.Policy) *Server {
	return &Server{loader: loader, policy: policy}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Handler() http.Handler {
	router := http.NewServeMux()
	router.HandleFunc("GET /api/version", getVersion)

	router.Handle("GET /api/blocks", auth.RequireAuth(http.HandlerFunc(s.getBlocks)))
	router.Handle("GET /api/blocks/search", auth.RequireAuth(http.HandlerFunc(s.searchBlocks)))
	router.Handle("GET /api/blocks/country/{code}", auth.RequireAuth(http.HandlerFunc(s.getBlocksByCountry)))
	router.Handle("GET /api/export", auth.RequireAuth(http.HandlerFunc(s.getExport)))

	return enableCORS(router)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting API server", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	log.Info("API server stopped")
	return nil
}

func (s *Server) loadStore(ctx context.Context) (*blocklist.Store, error) {
	records, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	store := blocklist.NewStore(s.policy, nil)
	store.Load(records)
	return store, nil
}
