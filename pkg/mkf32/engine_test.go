package mkf32

import (
	"testing"
	"time"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

var scenarioUID = []byte{0x04, 0xA1, 0xB2, 0xC3}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	return New(WithClock(clk.now)), clk
}

func TestEnhancedScenario(t *testing.T) {
	e, _ := newTestEngine(t)
	first := e.Generate(scenarioUID, 0, Enhanced)
	if first.Key != mfclassic.MustParseKey("D92115E7FB3F") {
		t.Fatalf("expected D92115E7FB3F, got %s", first.Key)
	}
	if first.Cached {
		t.Fatalf("expected fresh result on first call")
	}
	second := e.Generate(scenarioUID, 0, Enhanced)
	if second.Key != first.Key {
		t.Fatalf("expected identical key, got %s and %s", first.Key, second.Key)
	}
	if !second.Cached || second.Confidence != CachedConfidence {
		t.Fatalf("expected cache hit with confidence %.2f, got cached=%v confidence=%.2f", CachedConfidence, second.Cached, second.Confidence)
	}
}

func TestDeterministicAlgorithms(t *testing.T) {
	for _, alg := range []Algorithm{Enhanced, Regional, Statistical, Adaptive} {
		a := New().Generate(scenarioUID, 5, alg)
		b := New().Generate(scenarioUID, 5, alg)
		if a.Key != b.Key {
			t.Fatalf("%s: expected deterministic key, got %s and %s", alg, a.Key, b.Key)
		}
		if a.Entropy < 0 || a.Entropy > 1 || a.ValidationScore < 0 || a.ValidationScore > 1 {
			t.Fatalf("%s: scores out of range: entropy=%f validation=%f", alg, a.Entropy, a.ValidationScore)
		}
	}
}

func TestSectorsDiffer(t *testing.T) {
	e := New()
	for _, alg := range []Algorithm{Enhanced, Regional, Statistical} {
		a := e.Generate(scenarioUID, 1, alg)
		b := e.Generate(scenarioUID, 2, alg)
		if a.Key == b.Key {
			t.Fatalf("%s: expected sector-dependent keys, both %s", alg, a.Key)
		}
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	e, clk := newTestEngine(t)
	first := e.Generate(scenarioUID, 3, Regional)

	clk.advance(DefaultTTL)
	hit := e.Generate(scenarioUID, 3, Regional)
	if !hit.Cached {
		t.Fatalf("expected hit at exactly TTL")
	}

	clk.advance(time.Second)
	fresh := e.Generate(scenarioUID, 3, Regional)
	if fresh.Cached {
		t.Fatalf("expected regeneration after TTL")
	}
	if !fresh.GeneratedAt.After(first.GeneratedAt) {
		t.Fatalf("expected new timestamp, got %v (first %v)", fresh.GeneratedAt, first.GeneratedAt)
	}
	if fresh.Key != first.Key {
		t.Fatalf("expected same key after regeneration")
	}
}

func TestCryptographicNeverCached(t *testing.T) {
	e, clk := newTestEngine(t)
	a := e.Generate(scenarioUID, 1, Cryptographic)
	if e.Cache().Len() != 0 {
		t.Fatalf("expected empty cache, got %d entries", e.Cache().Len())
	}
	clk.advance(time.Nanosecond)
	b := e.Generate(scenarioUID, 1, Cryptographic)
	if b.Cached {
		t.Fatalf("expected uncached cryptographic result")
	}
	if a.Key == b.Key {
		t.Fatalf("expected time component to change the key")
	}
}

func TestAdaptiveTagsSource(t *testing.T) {
	r := New().Generate(scenarioUID, 2, Adaptive)
	src := r.Metadata["source"]
	if src != Enhanced.String() && src != Regional.String() && src != Statistical.String() {
		t.Fatalf("unexpected adaptive source %q", src)
	}
	if r.Algorithm != Adaptive {
		t.Fatalf("expected adaptive algorithm tag, got %s", r.Algorithm)
	}
}

func TestGenerateAllUnique(t *testing.T) {
	results := New().GenerateAll(scenarioUID, 4)
	if len(results) < 4 {
		t.Fatalf("expected at least 4 distinct keys, got %d", len(results))
	}
	if results[0].Algorithm != Adaptive {
		t.Fatalf("expected adaptive first, got %s", results[0].Algorithm)
	}
	seen := make(map[mfclassic.Key]bool)
	for _, r := range results {
		if seen[r.Key] {
			t.Fatalf("duplicate key %s", r.Key)
		}
		seen[r.Key] = true
	}
}

func TestCacheEvictsOldest(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	c := NewCache(time.Minute, 2, CacheClock(clk.now))
	e := New(WithCache(c), WithClock(clk.now))
	e.Generate([]byte{1}, 0, Enhanced)
	clk.advance(time.Second)
	e.Generate([]byte{2}, 0, Enhanced)
	clk.advance(time.Second)
	e.Generate([]byte{3}, 0, Enhanced)

	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	if _, ok := c.Get([]byte{1}, 0, Enhanced); ok {
		t.Fatalf("expected oldest entry evicted")
	}
	if _, ok := c.Get([]byte{3}, 0, Enhanced); !ok {
		t.Fatalf("expected newest entry kept")
	}
	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after purge")
	}
}

func TestCachedMetadataIsCopied(t *testing.T) {
	e, _ := newTestEngine(t)
	first := e.Generate(scenarioUID, 2, Adaptive)
	src := first.Metadata["source"]
	first.Metadata["source"] = "tampered"

	hit := e.Generate(scenarioUID, 2, Adaptive)
	if !hit.Cached || hit.Metadata["source"] != src {
		t.Fatalf("expected cached source %q, got %q (cached=%v)", src, hit.Metadata["source"], hit.Cached)
	}
	hit.Metadata["source"] = "tampered"
	if again := e.Generate(scenarioUID, 2, Adaptive); again.Metadata["source"] != src {
		t.Fatalf("expected cache entry untouched, got %q", again.Metadata["source"])
	}
}

func TestSharedCacheKeepsItsClock(t *testing.T) {
	cacheClk := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := NewCache(time.Minute, 0, CacheClock(cacheClk.now))
	engineClk := &fakeClock{t: cacheClk.t}
	e := New(WithCache(c), WithClock(engineClk.now))
	e.Generate(scenarioUID, 1, Enhanced)

	engineClk.advance(time.Hour)
	if _, ok := c.Get(scenarioUID, 1, Enhanced); !ok {
		t.Fatalf("expected cache to expire against its own clock, not the engine's")
	}
	cacheClk.advance(2 * time.Minute)
	if _, ok := c.Get(scenarioUID, 1, Enhanced); ok {
		t.Fatalf("expected entry expired once the cache clock passed the TTL")
	}
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm("Regional")
	if err != nil || a != Regional {
		t.Fatalf("expected regional, got %v err=%v", a, err)
	}
	if _, err := ParseAlgorithm("md5"); err == nil {
		t.Fatalf("expected error for unknown algorithm")
	}
}
