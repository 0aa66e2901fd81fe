package dictionary

import (
	"context"
	"errors"
	"testing"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/keycorpus"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

var testUID = []byte{0x04, 0xA1, 0xB2, 0xC3}

func newCard(t *testing.T) (*mfclassic.SimCard, *mfclassic.Reader) {
	t.Helper()
	sim := mfclassic.NewSimCard(testUID, mfclassic.Layout1K)
	r := mfclassic.NewReader(mfclassic.StaticDialer(sim), mfclassic.Layout{})
	if err := r.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	return sim, r
}

func keyPtr(s string) *mfclassic.Key {
	k := mfclassic.MustParseKey(s)
	return &k
}

// cancelingTag cancels a context after a fixed number of authentications.
type cancelingTag struct {
	mfclassic.Tag
	after  int
	calls  int
	cancel context.CancelFunc
}

func (c *cancelingTag) Authenticate(sector int, kt mfclassic.KeyType, key mfclassic.Key) (bool, error) {
	c.calls++
	if c.calls == c.after {
		c.cancel()
	}
	return c.Tag.Authenticate(sector, kt, key)
}

func TestFactoryKeyOnSectorThree(t *testing.T) {
	sim, r := newCard(t)
	sim.SetSectorKeys(3, nil, keyPtr("0102A3B4C5D6"))

	entries := Entries([]mfclassic.Key{mfclassic.MustParseKey("FFFFFFFFFFFF")}, keycorpus.CategoryDefault)
	match, err := New().AttemptSector(context.Background(), r, 3, entries, nil)
	if err != nil {
		t.Fatalf("AttemptSector returned error: %v", err)
	}
	if match == nil {
		t.Fatalf("expected a match")
	}
	a, ok := match.Pair.Get(mfclassic.KeyA)
	if !ok || a != mfclassic.MustParseKey("FFFFFFFFFFFF") {
		t.Fatalf("expected key A FFFFFFFFFFFF, got %s", match.Pair)
	}
	if match.Pair.Has(mfclassic.KeyB) {
		t.Fatalf("expected key B unknown, got %s", match.Pair)
	}
	if match.Category != keycorpus.CategoryDefault {
		t.Fatalf("expected default category, got %s", match.Category)
	}
	// One matching A attempt plus one rejected B attempt with the same key.
	if got := sim.SectorAuthAttempts(3); got != 2 {
		t.Fatalf("expected 2 authentications, got %d", got)
	}
}

func TestCapturesOtherSideFromLaterKey(t *testing.T) {
	sim, r := newCard(t)
	sim.SetSectorKeys(1, keyPtr("4D3A99C351DD"), keyPtr("1A982C7E459A"))

	entries := keycorpus.New().Entries()
	match, err := New().AttemptSector(context.Background(), r, 1, entries, nil)
	if err != nil {
		t.Fatalf("AttemptSector returned error: %v", err)
	}
	if match == nil || !match.Pair.Complete() {
		t.Fatalf("expected both sides, got %+v", match)
	}
	for _, kt := range []mfclassic.KeyType{mfclassic.KeyA, mfclassic.KeyB} {
		k, _ := match.Pair.Get(kt)
		ok, err := r.Authenticate(1, kt, k)
		if err != nil || !ok {
			t.Fatalf("recovered key %s for side %s does not authenticate", k, kt)
		}
	}
}

func TestNoMatch(t *testing.T) {
	sim, r := newCard(t)
	sim.SetSectorKeys(2, keyPtr("0102A3B4C5D6"), keyPtr("0102A3B4C5D7"))

	var reports []Progress
	entries := Entries(keycorpus.Basic(), keycorpus.CategoryDefault)
	m := &Matcher{ReportEvery: 3, BatchSize: 2}
	match, err := m.AttemptSector(context.Background(), r, 2, entries, func(p Progress) {
		reports = append(reports, p)
	})
	if err != nil || match != nil {
		t.Fatalf("expected no match and no error, got %+v err=%v", match, err)
	}
	if got := sim.SectorAuthAttempts(2); got != 2*len(entries) {
		t.Fatalf("expected %d authentications, got %d", 2*len(entries), got)
	}
	// 8 entries every 3: reports at 3, 6 and the final 8.
	if len(reports) != 3 || reports[len(reports)-1].Tried != len(entries) {
		t.Fatalf("unexpected progress reports %+v", reports)
	}
}

func TestTransientErrorsSkipped(t *testing.T) {
	sim, r := newCard(t)
	sim.FailNext(2)
	entries := Entries([]mfclassic.Key{
		mfclassic.MustParseKey("FFFFFFFFFFFF"),
		mfclassic.MustParseKey("FFFFFFFFFFFF"),
	}, keycorpus.CategoryDefault)
	// Duplicate entry lets the second pass find the key after the failures.
	match, err := New().AttemptSector(context.Background(), r, 0, entries, nil)
	if err != nil {
		t.Fatalf("AttemptSector returned error: %v", err)
	}
	if match == nil || match.Errors != 2 {
		t.Fatalf("expected match after 2 skipped errors, got %+v", match)
	}
}

func TestCardRemovedStopsScan(t *testing.T) {
	sim, r := newCard(t)
	sim.Remove()
	_, err := New().AttemptSector(context.Background(), r, 0, Entries(keycorpus.Basic(), keycorpus.CategoryDefault), nil)
	if !mfclassic.IsNotConnected(err) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestCancellationStopsWithinBatch(t *testing.T) {
	sim, r := newCard(t)
	sim.SetSectorKeys(4, keyPtr("0102A3B4C5D6"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tag := &cancelingTag{Tag: r, after: 5, cancel: cancel}

	entries := keycorpus.New().Entries()
	match, err := New().AttemptSector(ctx, tag, 4, entries, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if tag.calls != 5 {
		t.Fatalf("expected scan to stop right after cancellation, got %d calls", tag.calls)
	}
	// Key B is still the factory key and was found before cancellation.
	if match == nil || !match.Pair.Has(mfclassic.KeyB) {
		t.Fatalf("expected partial match to survive cancellation, got %+v", match)
	}
}
