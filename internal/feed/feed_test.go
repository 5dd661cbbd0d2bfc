package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	payload := []byte(`# Spamhaus style drop list
; comment
1.10.16.0/20 ; SBL256894
2.56.192.0/22 ; SBL459831
scanner 203.0.113.7 seen twice 203.0.113.7
not-an-ip 1.2.3
`)

	got := Parse(payload)
	want := []string{"1.10.16.0/20", "2.56.192.0/22", "203.0.113.7"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("Parse returned %v, want %v", got, want)
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/drop.txt" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("198.51.100.0/24\n192.0.2.1\n"))
	}))
	t.Cleanup(srv.Close)

	got, err := Fetch(context.Background(), srv.Client(), srv.URL+"/drop.txt")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if fmt.Sprint(got) != fmt.Sprint([]string{"198.51.100.0/24", "192.0.2.1"}) {
		t.Fatalf("Fetch returned %v", got)
	}

	_, err = Fetch(context.Background(), srv.Client(), srv.URL+"/missing")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("Fetch error = %v, want status 404", err)
	}
}

func TestIsURL(t *testing.T) {
	tests := map[string]bool{
		"https://example.net/drop.txt": true,
		"HTTP://example.net/list":      true,
		"/var/lib/fwblock/import.txt":  false,
		"import.txt":                   false,
	}
	for in, want := range tests {
		if got := IsURL(in); got != want {
			t.Fatalf("IsURL(%q) = %v, want %v", in, got, want)
		}
	}
}
