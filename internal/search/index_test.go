package search

import (
	"testing"
)

func TestOptionsAndDefaults(t *testing.T) {
	def := defaultConfig()
	if def.minRunes != 1 || def.stopwords != nil || def.maxDocs != 0 {
		t.Fatalf("defaultConfig unexpected: %#v", def)
	}

	cfg := def
	WithMinRunes(10)(&cfg)
	if cfg.minRunes != 10 {
		t.Fatalf("WithMinRunes failed: %d", cfg.minRunes)
	}
	WithMinRunes(-5)(&cfg) // no-op
	if cfg.minRunes != 10 {
		t.Fatalf("negative minRunes should be ignored")
	}

	WithStopwords([]string{"  The ", "", "An"})(&cfg)
	if _, ok := cfg.stopwords["the"]; !ok {
		t.Fatalf("WithStopwords failed (missing 'the'): %#v", cfg.stopwords)
	}
	WithStopwords([]string{"", "  "})(&cfg) // empty list keeps previous set
	if _, ok := cfg.stopwords["an"]; !ok {
		t.Fatalf("empty stopword list should not reset: %#v", cfg.stopwords)
	}

	WithMaxDocs(0)(&cfg)
	if cfg.maxDocs != 0 {
		t.Fatalf("WithMaxDocs(0) should be ignored")
	}
	WithMaxDocs(2)(&cfg)
	if cfg.maxDocs != 2 {
		t.Fatalf("WithMaxDocs failed")
	}
}

func cannedDocs() []Document {
	return []Document{
		{ID: "pricing", Text: "Pricing: plans start at $9 per month, billed monthly."},
		{ID: "hours", Text: "Support hours are Monday to Friday, 9am to 5pm."},
		{ID: "refund", Text: "Refunds are available within 30 days of purchase."},
		{ID: "blank", Text: "   "},
	}
}

func TestTopK_RanksByOverlap(t *testing.T) {
	idx := NewIndex(cannedDocs(), WithStopwords(EnglishStopwords))

	res := idx.TopK("what are your support hours?", 2)
	if len(res) == 0 || res[0].ID != "hours" {
		t.Fatalf("expected hours first, got %+v", res)
	}
	if res[0].Score <= 0 || res[0].Score > 1 {
		t.Fatalf("score out of range: %v", res[0].Score)
	}

	res = idx.TopK("Are refunds available?", 3)
	if len(res) != 1 || res[0].ID != "refund" {
		t.Fatalf("expected only refund, got %+v", res)
	}
}

func TestTopK_EmptyInputs(t *testing.T) {
	idx := NewIndex(cannedDocs())
	if got := idx.TopK("   ", 3); got != nil {
		t.Fatalf("blank query should return nil, got %+v", got)
	}
	if got := idx.TopK("zzz qqq", 3); got != nil {
		t.Fatalf("no-overlap query should return nil, got %+v", got)
	}
	if got := NewIndex(nil).TopK("pricing", 3); got != nil {
		t.Fatalf("empty index should return nil")
	}
	stopOnly := NewIndex(cannedDocs(), WithStopwords([]string{"the"}))
	if got := stopOnly.TopK("the", 3); got != nil {
		t.Fatalf("stopword-only query should return nil, got %+v", got)
	}
}

func TestTopK_DefaultKAndTieBreak(t *testing.T) {
	docs := []Document{
		{ID: "b", Text: "shipping info"},
		{ID: "a", Text: "shipping info"},
		{ID: "c", Text: "shipping information for all orders"},
		{ID: "d", Text: "shipping"},
	}
	idx := NewIndex(docs)
	res := idx.TopK("shipping", 0)
	if len(res) != 3 {
		t.Fatalf("k<=0 should default to 3, got %d", len(res))
	}
	if res[0].ID != "d" || res[1].ID != "a" || res[2].ID != "b" {
		t.Fatalf("unexpected tie-break order: %+v", res)
	}
}

func TestNewIndex_MinRunesAndMaxDocs(t *testing.T) {
	idx := NewIndex(cannedDocs(), WithMinRunes(50)).(*index)
	if len(idx.docs) != 1 || idx.docs[0].id != "pricing" {
		t.Fatalf("min runes filter failed: %+v", idx.docs)
	}
	idx = NewIndex(cannedDocs(), WithMaxDocs(2)).(*index)
	if len(idx.docs) != 2 {
		t.Fatalf("max docs cap failed: %d", len(idx.docs))
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	if got := normalizeWhitespace("a \t\r\n  b"); got != "a b" {
		t.Fatalf("normalizeWhitespace = %q", got)
	}
}
