package allowlist

import "testing"

func TestMatchesStarWithinSegment(t *testing.T) {
	if !Matches([]string{"http://*.art/"}, "http://museum.art/") {
		t.Fatalf("expected match")
	}
	if Matches([]string{"http://*.art/"}, "http://museum.art/collection/") {
		t.Fatalf("single * must not cross a path segment")
	}
}

func TestMatchesDoubleStarCrossesSegments(t *testing.T) {
	if !Matches([]string{"http://example.com/**"}, "http://example.com/a/b/c") {
		t.Fatalf("expected ** to match across segments")
	}
}

func TestEmptyAllowlistDeniesEverything(t *testing.T) {
	if Matches(nil, "http://example.com/") {
		t.Fatalf("expected empty allowlist to deny")
	}
	if Matches([]string{}, "http://example.com/") {
		t.Fatalf("expected empty allowlist to deny")
	}
}

func TestNoPatternMatches(t *testing.T) {
	if Matches([]string{"http://other.example/"}, "http://example.com/") {
		t.Fatalf("unexpected match")
	}
}
