package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("orchestrate: %w", Timeout("poll budget exceeded", context.DeadlineExceeded))
	if got := KindOf(err); got != KindTimeout {
		t.Fatalf("KindOf = %q, want TIMEOUT", got)
	}
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected errors.Is to match timeout sentinel")
	}
	if errors.Is(err, ErrProviderError) {
		t.Fatalf("timeout must not match provider sentinel")
	}
}

func TestKindOfPlainErrors(t *testing.T) {
	if got := KindOf(context.DeadlineExceeded); got != KindTimeout {
		t.Fatalf("deadline mapped to %q", got)
	}
	if got := KindOf(errors.New("boom")); got != KindProviderError {
		t.Fatalf("unclassified mapped to %q", got)
	}
	if got := KindOf(nil); got != "" {
		t.Fatalf("nil mapped to %q", got)
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(fmt.Errorf("submit: %w", TransientProviderError("status 503", nil))) {
		t.Fatalf("expected transient provider error")
	}
	if IsTransient(ProviderError("status 400", nil)) {
		t.Fatalf("400 must not be transient")
	}
	if IsTransient(errors.New("x")) {
		t.Fatalf("plain errors are not transient")
	}
}

func TestRawRecordAccessors(t *testing.T) {
	rec := RawRecord{
		"id":       float64(3127),
		"caption":  "  hi  ",
		"hashtags": []any{"a", "b"},
		"mixed":    []any{"a", 1},
		"ts":       "1700000000",
	}
	if got := rec.String("missing", "id"); got != "3127" {
		t.Fatalf("String(id) = %q", got)
	}
	if got := rec.String("caption"); got != "hi" {
		t.Fatalf("String(caption) = %q", got)
	}
	if tags, ok := rec.Strings("hashtags"); !ok || len(tags) != 2 {
		t.Fatalf("Strings(hashtags) = %v %v", tags, ok)
	}
	if _, ok := rec.Strings("mixed"); ok {
		t.Fatalf("mixed list must not be treated as a string list")
	}
	if n, ok := rec.Number("ts"); !ok || n != 1700000000 {
		t.Fatalf("Number(ts) = %v %v", n, ok)
	}
}
