package bruteforce

import (
	"context"
	"testing"
	"time"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

var testUID = []byte{0x04, 0xA1, 0xB2, 0xC3}

// tickingTag advances a fake clock by step on every authentication.
type tickingTag struct {
	mfclassic.Tag
	now  time.Time
	step time.Duration
}

func (t *tickingTag) Authenticate(sector int, kt mfclassic.KeyType, key mfclassic.Key) (bool, error) {
	t.now = t.now.Add(t.step)
	return t.Tag.Authenticate(sector, kt, key)
}

func (t *tickingTag) clock() time.Time { return t.now }

func newTag(t *testing.T) (*mfclassic.SimCard, *tickingTag, *Engine) {
	t.Helper()
	sim := mfclassic.NewSimCard(testUID, mfclassic.Layout1K)
	r := mfclassic.NewReader(mfclassic.StaticDialer(sim), mfclassic.Layout{})
	if err := r.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	tag := &tickingTag{Tag: r, now: time.Unix(1700000000, 0), step: time.Millisecond}
	e := New()
	e.Now = tag.clock
	return sim, tag, e
}

func keyPtr(s string) *mfclassic.Key {
	k := mfclassic.MustParseKey(s)
	return &k
}

func TestBudgetIsHardBound(t *testing.T) {
	sim, tag, e := newTag(t)
	sim.SetSectorKeys(1, keyPtr("4D3A99F1C207"), keyPtr("4D3A99F1C208"))

	budget := 10 * time.Millisecond
	res, err := e.AttackSector(context.Background(), tag, 1, Random, budget, nil)
	if err != nil {
		t.Fatalf("AttackSector returned error: %v", err)
	}
	if res.Found {
		t.Fatalf("expected no key within budget")
	}
	// Each candidate costs two authentications (2ms): candidates start at 0,2,4,6,8ms.
	if res.Attempts != 5 {
		t.Fatalf("expected 5 candidates, got %d", res.Attempts)
	}
	if got := sim.SectorAuthAttempts(1); got != 2*res.Attempts {
		t.Fatalf("expected both sides per candidate (%d), got %d", 2*res.Attempts, got)
	}
	if res.Elapsed > budget+2*time.Millisecond {
		t.Fatalf("elapsed %v exceeds budget %v by more than one candidate", res.Elapsed, budget)
	}
}

func TestSequentialFindsKeyA(t *testing.T) {
	sim, tag, e := newTag(t)
	sim.SetSectorKeys(2, keyPtr("000000000003"), nil)

	res, err := e.AttackSector(context.Background(), tag, 2, Sequential, time.Hour, nil)
	if err != nil {
		t.Fatalf("AttackSector returned error: %v", err)
	}
	if !res.Found || res.KeyType != mfclassic.KeyA || res.Key != mfclassic.MustParseKey("000000000003") {
		t.Fatalf("expected key A 000000000003, got %+v", res)
	}
	if res.Attempts != 4 || res.LastKey != res.Key {
		t.Fatalf("expected 4 attempts ending on the key, got %d (last %s)", res.Attempts, res.LastKey)
	}
}

func TestPatternFindsKeyB(t *testing.T) {
	sim, tag, e := newTag(t)
	sim.SetSectorKeys(3, keyPtr("4D3A99F1C207"), keyPtr("121212121212"))

	res, err := e.AttackSector(context.Background(), tag, 3, Pattern, time.Hour, nil)
	if err != nil {
		t.Fatalf("AttackSector returned error: %v", err)
	}
	if !res.Found || res.KeyType != mfclassic.KeyB {
		t.Fatalf("expected key B, got %+v", res)
	}
}

func TestNibbleOrder(t *testing.T) {
	sim, tag, e := newTag(t)
	sim.SetSectorKeys(4, keyPtr("300000000000"), keyPtr("4D3A99F1C207"))

	res, err := e.AttackSector(context.Background(), tag, 4, Nibble, time.Hour, nil)
	if err != nil {
		t.Fatalf("AttackSector returned error: %v", err)
	}
	if !res.Found || res.Attempts != 4 {
		t.Fatalf("expected key after 4 candidates, got %+v", res)
	}
}

func TestHybridSplitsBudget(t *testing.T) {
	sim, tag, e := newTag(t)
	sim.SetSectorKeys(5, keyPtr("4D3A99F1C207"), keyPtr("4D3A99F1C208"))

	var reports []Progress
	e.ReportEvery = 3
	budget := 30 * time.Millisecond
	res, err := e.AttackSector(context.Background(), tag, 5, Hybrid, budget, func(p Progress) {
		reports = append(reports, p)
	})
	if err != nil {
		t.Fatalf("AttackSector returned error: %v", err)
	}
	if res.Found || res.Strategy != Hybrid {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Elapsed > budget+2*time.Millisecond {
		t.Fatalf("elapsed %v exceeds budget %v", res.Elapsed, budget)
	}
	// 5 candidates per 10ms phase.
	if res.Attempts != 15 {
		t.Fatalf("expected 15 candidates, got %d", res.Attempts)
	}
	if len(reports) != 5 {
		t.Fatalf("expected 5 progress reports, got %d", len(reports))
	}
}

func TestCancelledContext(t *testing.T) {
	_, tag, e := newTag(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.AttackSector(ctx, tag, 1, Random, time.Hour, nil)
	if err != context.Canceled || res.Attempts != 0 {
		t.Fatalf("expected immediate cancellation, got attempts=%d err=%v", res.Attempts, err)
	}
}

func TestCardRemoved(t *testing.T) {
	sim, tag, e := newTag(t)
	sim.Remove()
	_, err := e.AttackSector(context.Background(), tag, 1, Random, time.Hour, nil)
	if !mfclassic.IsNotConnected(err) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestParseStrategy(t *testing.T) {
	for i, name := range strategyNames {
		s, err := ParseStrategy(name)
		if err != nil || s != Strategy(i) {
			t.Fatalf("ParseStrategy(%q) = %v, %v", name, s, err)
		}
	}
	if _, err := ParseStrategy("quantum"); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}

func TestPatternKeysUnique(t *testing.T) {
	keys := patternKeys()
	seen := make(map[mfclassic.Key]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			t.Fatalf("duplicate pattern key %s", k)
		}
		seen[k] = true
	}
	if !seen[mfclassic.MustParseKey("010203010203")] {
		t.Fatalf("expected date pattern 01.02.03 to be present")
	}
}
