package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fwblock/internal/auth"
	"fwblock/internal/blocklist"
	"fwblock/internal/domain"
)

type staticLoader struct {
	records []domain.BlockRecord
	err     error
}

func (l staticLoader) Load(context.Context) ([]domain.BlockRecord, error) {
	return l.records, l.err
}

func testRecords() []domain.BlockRecord {
	added := time.Date(2021, 2, 21, 10, 27, 53, 0, time.UTC)
	expiredAt := added.Add(time.Hour)
	return []domain.BlockRecord{
		{Address: "2.0.0.0/8", DtAdded: added, Country: "FR"},
		{Address: "10.0.0.1", PortScope: "ssh", DtAdded: added, Country: "DE"},
		{Address: "10.0.0.2", DtAdded: added, Country: "FR", Status: domain.StatusExpired, DtExpired: &expiredAt},
	}
}

func testPolicy() blocklist.Policy {
	return blocklist.Policy{
		PortGroups: map[string]blocklist.PortGroup{"ssh": {Ports: []int{22}}},
		Reasons:    []string{"manual"},
	}
}

func newTestServer(t *testing.T, loader Loader) (http.Handler, string) {
	t.Helper()
	t.Setenv("JWT_SECRET", "server-test-secret")

	token, err := auth.GenerateJWT("test", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT returned error: %v", err)
	}
	return New(loader, testPolicy()).Handler(), token
}

func doRequest(h http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBlocks(t *testing.T, rec *httptest.ResponseRecorder) blocksResponse {
	t.Helper()
	var resp blocksResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestVersionIsPublic(t *testing.T) {
	h, _ := newTestServer(t, staticLoader{})

	rec := doRequest(h, "/api/version", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "buildVersion") {
		t.Fatalf("body = %s, want version info", rec.Body.String())
	}
}

func TestBlocksRequireAuth(t *testing.T) {
	h, _ := newTestServer(t, staticLoader{records: testRecords()})

	for _, path := range []string{"/api/blocks", "/api/blocks/search?prefix=10", "/api/blocks/country/FR", "/api/export"} {
		if rec := doRequest(h, path, ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s status = %d, want 401", path, rec.Code)
		}
	}
}

func TestGetBlocksByStatus(t *testing.T) {
	h, token := newTestServer(t, staticLoader{records: testRecords()})

	tests := []struct {
		query string
		want  int
	}{
		{query: "", want: 3},
		{query: "?status=all", want: 3},
		{query: "?status=active", want: 2},
		{query: "?status=expired", want: 1},
	}

	for _, tt := range tests {
		rec := doRequest(h, "/api/blocks"+tt.query, token)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want 200", tt.query, rec.Code)
		}
		if resp := decodeBlocks(t, rec); resp.Count != tt.want || len(resp.Records) != tt.want {
			t.Fatalf("%s count = %d, want %d", tt.query, resp.Count, tt.want)
		}
	}

	if rec := doRequest(h, "/api/blocks?status=bogus", token); rec.Code != http.StatusBadRequest {
		t.Fatalf("bogus status = %d, want 400", rec.Code)
	}
}

func TestSearchAndCountry(t *testing.T) {
	h, token := newTestServer(t, staticLoader{records: testRecords()})

	resp := decodeBlocks(t, doRequest(h, "/api/blocks/search?prefix=10.0.0", token))
	if resp.Count != 2 {
		t.Fatalf("search count = %d, want 2", resp.Count)
	}

	if rec := doRequest(h, "/api/blocks/search", token); rec.Code != http.StatusBadRequest {
		t.Fatalf("search without prefix status = %d, want 400", rec.Code)
	}

	resp = decodeBlocks(t, doRequest(h, "/api/blocks/country/FR", token))
	if resp.Count != 2 {
		t.Fatalf("country count = %d, want 2", resp.Count)
	}
	for _, r := range resp.Records {
		if r.Country != "FR" {
			t.Fatalf("country search returned %s with country %s", r.Address, r.Country)
		}
	}
}

func TestExport(t *testing.T) {
	h, token := newTestServer(t, staticLoader{records: testRecords()})

	rec := doRequest(h, "/api/export", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q, want text/plain", ct)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("export has %d lines, want 2 active records: %q", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "2.0.0.0/8 # FR") {
		t.Fatalf("first line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "tcp|in|d=22|s=10.0.0.1 # DE") {
		t.Fatalf("second line = %q", lines[1])
	}
}

func TestLoaderFailure(t *testing.T) {
	h, token := newTestServer(t, staticLoader{err: errors.New("disk gone")})

	if rec := doRequest(h, "/api/blocks", token); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if rec := doRequest(h, "/api/export", token); rec.Code != http.StatusInternalServerError {
		t.Fatalf("export status = %d, want 500", rec.Code)
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s := New(staticLoader{}, testPolicy())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- s.ListenAndServe(ctx, "127.0.0.1:0")
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ListenAndServe returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not stop after cancel")
	}
}
