package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPLookupFlattensResponse(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","countryCode":"NL","org":"Example BV","as":{"number":64500,"name":"EXAMPLE"},"tags":["a","b"],"proxy":false,"extra":null}`))
	}))
	t.Cleanup(srv.Close)

	h := NewHTTP(srv.URL+"/json/{ip}", time.Second, nil)
	fields, err := h.Lookup(context.Background(), "192.0.2.1")
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}

	if gotPath != "/json/192.0.2.1" {
		t.Fatalf("request path = %q, want /json/192.0.2.1", gotPath)
	}

	want := map[string]string{
		"status":      "success",
		"countryCode": "NL",
		"org":         "Example BV",
		"as.number":   "64500",
		"as.name":     "EXAMPLE",
		"tags.0":      "a",
		"tags.1":      "b",
		"proxy":       "false",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Fatalf("fields[%q] = %q, want %q", k, fields[k], v)
		}
	}
	if _, ok := fields["extra"]; ok {
		t.Fatal("null value was not skipped")
	}
}

func TestHTTPLookupStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	h := NewHTTP(srv.URL+"/{ip}", time.Second, nil)
	_, err := h.Lookup(context.Background(), "192.0.2.1")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("Lookup error = %v, want status 429", err)
	}
}

func TestHTTPLookupRejectsNonObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["not","an","object"]`))
	}))
	t.Cleanup(srv.Close)

	h := NewHTTP(srv.URL+"/{ip}", time.Second, nil)
	if _, err := h.Lookup(context.Background(), "192.0.2.1"); err == nil {
		t.Fatal("Lookup returned no error for a JSON array")
	}
}
