package urlkey

import (
	"testing"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/model"
)

func TestNormalizeIdempotent(t *testing.T) {
	cases := []string{
		"HTTP://Example.COM:80/Path?q=1",
		"https://example.com:443/path/",
		"http://example.com/",
		"https://example.com:8443/x",
	}
	for _, raw := range cases {
		once, err := Normalize(raw)
		if err != nil {
			t.Fatalf("normalize %q: %v", raw, err)
		}
		twice, err := Normalize(once)
		if err != nil {
			t.Fatalf("normalize twice %q: %v", raw, err)
		}
		if once != twice {
			t.Fatalf("not idempotent: %q -> %q -> %q", raw, once, twice)
		}
	}
}

func TestNormalizeStripsDefaultPort(t *testing.T) {
	got, err := Normalize("http://Example.com:80/foo")
	if err != nil {
		t.Fatal(err)
	}
	if got != "http://example.com/foo" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeKeepsNonDefaultPort(t *testing.T) {
	got, err := Normalize("http://example.com:8080/foo")
	if err != nil {
		t.Fatal(err)
	}
	if got != "http://example.com:8080/foo" {
		t.Fatalf("got %q", got)
	}
}

func TestHashStable(t *testing.T) {
	a, err := Normalize("HTTP://Example.com/x")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Normalize("http://example.com/x")
	if err != nil {
		t.Fatal(err)
	}
	if Hash(a) != Hash(b) {
		t.Fatalf("expected equal hashes for %q and %q", a, b)
	}
	if len(Hash(a)) != 16 {
		t.Fatalf("expected 16 hex chars, got %d", len(Hash(a)))
	}
}

func TestRegistrableDomainLastTwoLabels(t *testing.T) {
	cases := map[string]string{
		"http://www.example.com/x": "example.com",
		"http://example.com/x":     "example.com",
		"http://a.b.example.org/":  "example.org",
	}
	for raw, want := range cases {
		got, err := RegistrableDomain(raw)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("RegistrableDomain(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestKeyIncludesTier(t *testing.T) {
	u, _ := Normalize("http://example.com/x")
	curated := Key(model.Curated, u)
	hot := Key(model.Hot, u)
	if curated == hot {
		t.Fatalf("expected different keys per tier")
	}
}
