package sourcefmt_test

import (
	"strings"
	"testing"

	"exprc/internal/sourcefmt"
)

func TestCanonicalizeProducesSingleSpaceSeparation(t *testing.T) {
	canonical, err := sourcefmt.Canonicalize("var   x =1+2;\nprint_int( x ) ;")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(canonical, "  ") {
		t.Fatalf("expected no double spaces in canonical output, got %q", canonical)
	}
}

func TestCanonicalizeTightensPunctuation(t *testing.T) {
	canonical, err := sourcefmt.Canonicalize("print_int(1);")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(canonical, "( 1") || strings.Contains(canonical, "1 )") || strings.Contains(canonical, " ;") {
		t.Fatalf("expected tight punctuation spacing, got %q", canonical)
	}
}

func TestCanonicalizeIsIdempotent(t *testing.T) {
	once, err := sourcefmt.Canonicalize("var x = 1; print_int(x + 2);")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	twice, err := sourcefmt.Canonicalize(once)
	if err != nil {
		t.Fatalf("unexpected error re-canonicalizing: %v", err)
	}
	if once != twice {
		t.Fatalf("expected canonicalization to be idempotent, got %q then %q", once, twice)
	}
}

func TestCanonicalizePropagatesLexicalErrors(t *testing.T) {
	_, err := sourcefmt.Canonicalize("1 @ 2;")
	if err == nil {
		t.Fatal("expected an error for an unrecognized character")
	}
}
