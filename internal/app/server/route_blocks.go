package server

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"fwblock/internal/app/version"
	"fwblock/internal/blocklist"
	"fwblock/internal/domain"
)

type blocksResponse struct {
	Count   int                  `json:"count"`
	Records []domain.BlockRecord `json:"records"`
}

func getVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

func (s *Server) getBlocks(w http.ResponseWriter, r *http.Request) {
	var pick func(*blocklist.Store) []domain.BlockRecord
	switch status := r.URL.Query().Get("status"); status {
	case "", "all":
		pick = (*blocklist.Store).Records
	case "active":
		pick = (*blocklist.Store).Active
	case "expired":
		pick = (*blocklist.Store).Expired
	default:
		writeError(w, "status must be active, expired or all", http.StatusBadRequest)
		return
	}

	s.respondRecords(w, r, pick)
}

func (s *Server) searchBlocks(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("prefix"))
	if prefix == "" {
		writeError(w, "prefix is required", http.StatusBadRequest)
		return
	}

	s.respondRecords(w, r, func(store *blocklist.Store) []domain.BlockRecord {
		return store.FindByPrefix(prefix)
	})
}

func (s *Server) getBlocksByCountry(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	s.respondRecords(w, r, func(store *blocklist.Store) []domain.BlockRecord {
		return store.FindByCountry(code)
	})
}

func (s *Server) getExport(w http.ResponseWriter, r *http.Request) {
	store, err := s.loadStore(r.Context())
	if err != nil {
		log.Error("Failed to load block list", "error", err)
		writeError(w, "failed to load block list", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	for _, line := range store.ExportLines() {
		_, _ = w.Write([]byte(line + "\n"))
	}
}

func (s *Server) respondRecords(w http.ResponseWriter, r *http.Request, pick func(*blocklist.Store) []domain.BlockRecord) {
	store, err := s.loadStore(r.Context())
	if err != nil {
		log.Error("Failed to load block list", "error", err)
		writeError(w, "failed to load block list", http.StatusInternalServerError)
		return
	}

	records := pick(store)
	writeJSON(w, http.StatusOK, blocksResponse{Count: len(records), Records: records})
}
