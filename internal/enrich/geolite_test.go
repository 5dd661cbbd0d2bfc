package enrich

import (
	"context"
	"testing"
)

func TestOpenGeoLiteMissingDatabases(t *testing.T) {
	if _, err := OpenGeoLite(t.TempDir()); err == nil {
		t.Fatal("OpenGeoLite returned no error for an empty directory")
	}
}

func TestGeoLiteRejectsInvalidAddress(t *testing.T) {
	g := &GeoLite{}
	if _, err := g.Lookup(context.Background(), "not-an-ip"); err == nil {
		t.Fatal("Lookup returned no error for an invalid address")
	}
}
