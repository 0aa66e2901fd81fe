package analysis

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

func TestEntropyBounds(t *testing.T) {
	if got := Entropy([]byte{1, 1, 1, 1, 1, 1}); got != 0 {
		t.Fatalf("expected 0 for repeated byte, got %f", got)
	}
	if got := Entropy([]byte{1, 2, 3, 4, 5, 6}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("expected 1 for distinct bytes, got %f", got)
	}
	mid := Entropy([]byte{1, 1, 1, 2, 2, 2})
	if mid <= 0 || mid >= 1 {
		t.Fatalf("expected entropy in (0,1), got %f", mid)
	}
}

func TestValidateKeyStrength(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"000000000000", false},
		{"FFFFFFFFFFFF", false},
		{"777777777777", false},
		{"A0A1A2A3A4A5", false}, // arithmetic
		{"010203030201", false}, // mirrored
		{"ABCDABCDABCD", false},
		{"1A2B3C1A2B3C", false},
		{"4D3A99F1C207", true},
		{"D3F7D3F7D3F8", true},
	}
	for _, tt := range tests {
		k := mfclassic.MustParseKey(tt.key)
		if got := ValidateKeyStrength(k); got != tt.want {
			t.Fatalf("ValidateKeyStrength(%s): expected %v, got %v", tt.key, tt.want, got)
		}
	}
}

func TestValidationScoreOrdering(t *testing.T) {
	strong := ValidationScore(mfclassic.MustParseKey("4D3A99F1C207"))
	weak := ValidationScore(mfclassic.MustParseKey("FFFFFFFFFFFF"))
	if strong <= weak {
		t.Fatalf("expected strong key to outscore weak key: %f <= %f", strong, weak)
	}
	if math.Abs(strong-1) > 1e-9 {
		t.Fatalf("expected perfect score for distinct non-trivial key, got %f", strong)
	}
}

func TestRunAllFiltersAndKeepsOrder(t *testing.T) {
	good := mfclassic.MustParseKey("4D3A99F1C207")
	methods := []Method{
		{Name: "low", Run: func(context.Context) (Result, bool) { return Result{Key: good, Confidence: 0.5}, true }},
		{Name: "first", Run: func(context.Context) (Result, bool) {
			time.Sleep(10 * time.Millisecond)
			return Result{Key: good, Confidence: 0.9}, true
		}},
		{Name: "degenerate", Run: func(context.Context) (Result, bool) {
			return Result{Key: mfclassic.Key{}, Confidence: 1}, true
		}},
		{Name: "none", Run: func(context.Context) (Result, bool) { return Result{}, false }},
		{Name: "second", Run: func(context.Context) (Result, bool) { return Result{Key: good, Confidence: 0.9}, true }},
	}
	results := RunAll(context.Background(), methods, 0.7)
	if len(results) != 2 {
		t.Fatalf("expected 2 accepted results, got %d", len(results))
	}
	best, ok := Best(results)
	if !ok || best.Method != "first" {
		t.Fatalf("expected tie to go to first registered, got %+v", best)
	}
}

func TestRunAllReturnsWhenContextDone(t *testing.T) {
	slow := func(context.Context) (Result, bool) {
		time.Sleep(2 * time.Second)
		return Result{Key: mfclassic.MustParseKey("4D3A99F1C207"), Confidence: 1}, true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	results := RunAll(ctx, []Method{{Name: "a", Run: slow}, {Name: "b", Run: slow}}, 0.5)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected RunAll to return near the deadline, took %s", elapsed)
	}
	if results != nil {
		t.Fatalf("expected no results after deadline, got %d", len(results))
	}
}

func TestLinearComplexityContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := LinearComplexityContext(ctx, make([]byte, 1024)); err == nil {
		t.Fatalf("expected error on cancelled context")
	}
}

func TestPRNGSuccessorCycle(t *testing.T) {
	x := uint32(0x01200145)
	if PRNGSuccessor(x, 0) != x {
		t.Fatalf("expected zero steps to be identity")
	}
	y := PRNGSuccessor(x, 1)
	if PRNGSuccessor(y, 1) != PRNGSuccessor(x, 2) {
		t.Fatalf("expected successor to compose")
	}
}

func TestLinearComplexity(t *testing.T) {
	if got := LinearComplexity([]byte{0, 0, 0, 0}); got != 0 {
		t.Fatalf("expected 0 for zero sequence, got %d", got)
	}
	if got := LinearComplexity([]byte{1, 1, 1, 1, 1, 1}); got != 1 {
		t.Fatalf("expected 1 for constant ones, got %d", got)
	}
	if got := LinearComplexity([]byte{1, 0, 1, 0, 1, 0, 1, 0}); got != 2 {
		t.Fatalf("expected 2 for alternating sequence, got %d", got)
	}
}
