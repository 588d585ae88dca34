package geoip

import (
	"errors"
	"testing"
)

func TestOpenEmptyPathDisablesLookups(t *testing.T) {
	r, err := Open("  ")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if r != nil {
		t.Fatalf("expected nil resolver")
	}
	if r.Lookup() != nil {
		t.Fatalf("nil resolver should not provide a lookup")
	}
	if _, err := r.Country("203.0.113.1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Country on nil resolver = %v, want ErrUnavailable", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close on nil resolver = %v", err)
	}
}

func TestOpenMissingDatabaseFails(t *testing.T) {
	if _, err := Open(t.TempDir() + "/missing.mmdb"); err == nil {
		t.Fatalf("expected missing database to fail")
	}
}
