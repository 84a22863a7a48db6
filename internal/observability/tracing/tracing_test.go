package tracing

import (
	"context"
	"errors"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" authorization = Bearer x ,broken, =v,k=")
	if len(got) != 1 || got["authorization"] != "Bearer x" {
		t.Fatalf("unexpected headers: %v", got)
	}
	if ParseHeaders("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestClampRatio(t *testing.T) {
	if clampRatio(-1) != 0 || clampRatio(2) != 1 || clampRatio(0.25) != 0.25 {
		t.Fatalf("unexpected clamp results")
	}
}

func TestSpansWorkWithoutInit(t *testing.T) {
	ctx, span := Start(context.Background(), "test")
	if ctx == nil {
		t.Fatalf("expected context")
	}
	End(span, errors.New("boom"))
}
