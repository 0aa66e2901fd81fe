// Package mkf32 derives candidate sector keys from a card UID and sector
// index. All algorithms except Cryptographic are deterministic in
// (uid, sector); results are cached for a bounded time.
package mkf32

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/analysis"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

// Algorithm selects a derivation.
type Algorithm int

const (
	Enhanced Algorithm = iota
	Regional
	Statistical
	Adaptive
	Cryptographic
)

// CachedConfidence is reported for every cache hit.
const CachedConfidence = 0.95

var algorithmNames = [...]string{
	Enhanced:      "enhanced",
	Regional:      "regional",
	Statistical:   "statistical",
	Adaptive:      "adaptive",
	Cryptographic: "cryptographic",
}

// algorithmWeight scales the quality score into a confidence per algorithm.
var algorithmWeight = [...]float64{
	Enhanced:      0.85,
	Regional:      0.80,
	Statistical:   0.75,
	Adaptive:      0.90,
	Cryptographic: 0.70,
}

// Algorithms is the order the orchestrator tries derivations in.
var Algorithms = []Algorithm{Adaptive, Enhanced, Regional, Statistical, Cryptographic}

func (a Algorithm) String() string {
	if a >= 0 && int(a) < len(algorithmNames) {
		return algorithmNames[a]
	}
	return fmt.Sprintf("algorithm(%d)", int(a))
}

// ParseAlgorithm maps a name to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	for i, n := range algorithmNames {
		if strings.EqualFold(s, n) {
			return Algorithm(i), nil
		}
	}
	return 0, fmt.Errorf("unknown MKF32 algorithm %q", s)
}

// Result is one generated key with its quality scores.
type Result struct {
	Key             mfclassic.Key
	Entropy         float64
	Algorithm       Algorithm
	ValidationScore float64
	Confidence      float64
	Metadata        map[string]string
	Cached          bool
	GeneratedAt     time.Time
}

// Engine generates keys and caches the deterministic ones.
type Engine struct {
	cache *Cache
	now   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache replaces the default cache. The cache keeps its own clock; build
// it with CacheClock to share the engine's.
func WithCache(c *Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithClock sets the time source for timestamps, cache expiry and the
// Cryptographic time component.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New returns an Engine with a default 5-minute cache.
func New(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = NewCache(DefaultTTL, DefaultCacheSize, CacheClock(e.now))
	}
	return e
}

// Cache exposes the engine's cache.
func (e *Engine) Cache() *Cache {
	return e.cache
}

// Generate returns the key derived by alg for (uid, sector).
func (e *Engine) Generate(uid []byte, sector int, alg Algorithm) Result {
	if alg != Cryptographic {
		if r, ok := e.cache.Get(uid, sector, alg); ok {
			r.Confidence = CachedConfidence
			r.Cached = true
			return r
		}
	}

	seed := uidSeed(uid)
	var r Result
	switch alg {
	case Regional:
		r = finish(regional(seed, sector), alg)
	case Statistical:
		r = finish(statistical(uid, sector), alg)
	case Adaptive:
		r = e.adaptive(uid, seed, sector)
	case Cryptographic:
		r = finish(cryptographic(seed, uid, sector, e.now()), alg)
	default:
		alg = Enhanced
		r = finish(enhanced(seed, sector), alg)
	}
	r.GeneratedAt = e.now()

	if alg != Cryptographic {
		e.cache.Put(uid, sector, r)
	}
	slog.Debug("mkf32 key generated", "algorithm", alg.String(), "sector", sector, "key", r.Key.String(), "confidence", r.Confidence)
	return r
}

// GenerateAll runs Algorithms in order and drops repeated keys.
func (e *Engine) GenerateAll(uid []byte, sector int) []Result {
	seen := make(map[mfclassic.Key]bool)
	var out []Result
	for _, alg := range Algorithms {
		r := e.Generate(uid, sector, alg)
		if seen[r.Key] {
			continue
		}
		seen[r.Key] = true
		out = append(out, r)
	}
	return out
}

func (e *Engine) adaptive(uid []byte, seed [4]byte, sector int) Result {
	candidates := []Result{
		finish(enhanced(seed, sector), Enhanced),
		finish(regional(seed, sector), Regional),
		finish(statistical(uid, sector), Statistical),
	}
	best := candidates[0]
	bestScore := quality(best)
	for _, c := range candidates[1:] {
		if s := quality(c); s > bestScore {
			best, bestScore = c, s
		}
	}
	r := best
	r.Algorithm = Adaptive
	r.Confidence = analysis.Clamp(bestScore * algorithmWeight[Adaptive])
	r.Metadata = map[string]string{
		"source": best.Algorithm.String(),
		"score":  fmt.Sprintf("%.3f", bestScore),
	}
	return r
}

func quality(r Result) float64 {
	return r.Entropy*0.6 + r.ValidationScore*0.4
}

func finish(k mfclassic.Key, alg Algorithm) Result {
	r := Result{
		Key:             k,
		Entropy:         analysis.Entropy(k[:]),
		ValidationScore: analysis.ValidationScore(k),
		Algorithm:       alg,
	}
	r.Confidence = analysis.Clamp(quality(r) * algorithmWeight[alg])
	return r
}

// uidSeed returns the first 4 UID bytes, cycling short UIDs. An empty UID seeds zeros.
func uidSeed(uid []byte) [4]byte {
	var s [4]byte
	if len(uid) == 0 {
		return s
	}
	for i := range s {
		s[i] = uid[i%len(uid)]
	}
	return s
}
