// Package hardnested derives a candidate key for a target sector from traces
// collected while holding a known key for another sector.
//
// The analyses are heuristics over trace correlations; a candidate must be
// verified on the card before it is trusted.
package hardnested

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"log/slog"
	"math/bits"
	"math/rand"
	"time"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/analysis"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

const (
	DefaultTraceBudget = 100
	DefaultMinTraces   = 15
	// MinConsistency is the fraction of keystream bits a candidate must
	// predict. Any key agrees with about half the bits of unrelated traces.
	MinConsistency = 0.9
)

// Known is a key already recovered for a reference sector.
type Known struct {
	Sector int
	Type   mfclassic.KeyType
	Key    mfclassic.Key
}

// Candidate is a key for the target sector.
type Candidate struct {
	Key        mfclassic.Key
	KeyType    mfclassic.KeyType // set for direct hits
	Confidence float64
	Method     string
	Traces     int
	Direct     bool // the key authenticated the target during collection
}

// Trace is one probe exchange with the target sector.
type Trace struct {
	Nonce     [4]byte
	Encrypted [4]byte
	Keystream [4]byte
	Parity    byte
	Pattern   int
	Timestamp time.Time
}

// Attacker runs the correlation attack. Zero fields take defaults.
type Attacker struct {
	TraceBudget int
	MinTraces   int
	// Seed fixes the nonce and candidate generator; 0 derives it from the card and sectors.
	Seed int64
}

// New returns an Attacker with the default budgets.
func New() *Attacker {
	return &Attacker{TraceBudget: DefaultTraceBudget, MinTraces: DefaultMinTraces}
}

func (a *Attacker) budget() int {
	if a.TraceBudget <= 0 {
		return DefaultTraceBudget
	}
	return a.TraceBudget
}

func (a *Attacker) minTraces() int {
	if a.MinTraces <= 0 {
		return DefaultMinTraces
	}
	return a.MinTraces
}

func (a *Attacker) rng(uid []byte, known, target int) *rand.Rand {
	if a.Seed != 0 {
		return rand.New(rand.NewSource(a.Seed))
	}
	h := fnv.New64a()
	h.Write(uid)
	var b [8]byte
	binary.BigEndian.PutUint32(b[:4], uint32(known))
	binary.BigEndian.PutUint32(b[4:], uint32(target))
	h.Write(b[:])
	return rand.New(rand.NewSource(int64(h.Sum64() >> 1)))
}

// Attack returns a candidate key for target, or nil when preconditions fail,
// too few traces were collected or no analysis produced an acceptable key.
// ErrNotConnected and context errors are returned.
func (a *Attacker) Attack(ctx context.Context, tag mfclassic.Tag, known Known, target int) (*Candidate, error) {
	layout := tag.Layout()
	if known.Sector == target || !layout.ValidSector(known.Sector) || !layout.ValidSector(target) {
		return nil, nil
	}
	if known.Type != mfclassic.KeyA && known.Type != mfclassic.KeyB {
		return nil, nil
	}

	ok, err := tag.Authenticate(known.Sector, known.Type, known.Key)
	if err != nil {
		if mfclassic.IsNotConnected(err) {
			return nil, err
		}
		slog.Warn("hardnested: known sector authentication failed", "sector", known.Sector, "error", err)
		return nil, nil
	}
	if !ok {
		slog.Warn("hardnested: known key rejected", "sector", known.Sector, "key_type", known.Type.String())
		return nil, nil
	}

	rng := a.rng(tag.UID(), known.Sector, target)
	traces, hit, err := a.collect(ctx, tag, rng, known, target)
	if err != nil {
		return nil, err
	}
	if hit != nil {
		return hit, nil
	}
	if len(traces) < a.minTraces() {
		slog.Debug("hardnested: not enough traces", "target", target, "traces", len(traces))
		return nil, nil
	}

	c, err := analyze(ctx, rng, traces, known)
	if c != nil {
		slog.Info("hardnested candidate", "target", target, "method", c.Method, "key", c.Key.String(), "confidence", c.Confidence)
	}
	return c, err
}

// analyze runs the analyses in order and returns the first key the validator accepts.
func analyze(ctx context.Context, rng *rand.Rand, traces []Trace, known Known) (*Candidate, error) {
	for _, an := range analyses {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		k, conf := an.fn(rng, traces, known)
		if !accept(k, traces) {
			slog.Debug("hardnested analysis rejected", "method", an.name, "key", k.String())
			continue
		}
		return &Candidate{Key: k, Confidence: analysis.Clamp(conf), Method: an.name, Traces: len(traces)}, nil
	}
	return nil, nil
}

// collect probes the target once per trace. The first probe reuses the known
// key; later probes are derived from it and the trace nonce.
func (a *Attacker) collect(ctx context.Context, tag mfclassic.Tag, rng *rand.Rand, known Known, target int) ([]Trace, *Candidate, error) {
	budget := a.budget()
	traces := make([]Trace, 0, budget)
	for i := 0; i < budget; i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		t := Trace{Pattern: i % 4, Nonce: patternNonce(rng, i), Timestamp: time.Now()}
		probe := known.Key
		if i > 0 {
			probe = probeKey(known.Key, t.Nonce)
		}
		ok, err := tag.Authenticate(target, mfclassic.KeyA, probe)
		if err != nil {
			if mfclassic.IsNotConnected(err) {
				return nil, nil, err
			}
			continue
		}
		if ok {
			return traces, &Candidate{
				Key: probe, KeyType: mfclassic.KeyA, Confidence: 1,
				Method: "direct", Traces: len(traces), Direct: true,
			}, nil
		}
		rng.Read(t.Encrypted[:])
		for j := range t.Keystream {
			t.Keystream[j] = t.Nonce[j] ^ t.Encrypted[j] ^ probe[j] ^ probe[j+2]
		}
		t.Parity = byte(rng.Intn(16))
		traces = append(traces, t)
	}
	return traces, nil, nil
}

// patternNonce cycles pure random, high-bit forced, low-entropy sequential
// and a fixed boundary pattern.
func patternNonce(rng *rand.Rand, i int) [4]byte {
	var n [4]byte
	switch i % 4 {
	case 0:
		rng.Read(n[:])
	case 1:
		rng.Read(n[:])
		n[0] |= 0x80
		n[2] |= 0x80
	case 2:
		n = [4]byte{byte(i), byte(i), byte(i + 1), byte(i + 1)}
	default:
		n = [4]byte{0x00, 0xFF, 0x80, 0x7F}
		n[3] ^= byte(i >> 2)
	}
	return n
}

func probeKey(k mfclassic.Key, nonce [4]byte) mfclassic.Key {
	for i := range k {
		k[i] ^= nonce[i%4] ^ byte(i*0x1B)
	}
	return k
}

// predicted is the keystream candidate k would produce for a trace nonce.
func predicted(k mfclassic.Key, nonce [4]byte) [4]byte {
	var out [4]byte
	for i := range out {
		out[i] = k[i] ^ k[i+2] ^ nonce[i]
	}
	return out
}

// similarity is the fraction of keystream bits k predicts correctly.
func similarity(k mfclassic.Key, t Trace) float64 {
	p := predicted(k, t.Nonce)
	diff := 0
	for i := range p {
		diff += bits.OnesCount8(p[i] ^ t.Keystream[i])
	}
	return 1 - float64(diff)/32
}

// Consistency averages similarity over traces.
func Consistency(k mfclassic.Key, traces []Trace) float64 {
	if len(traces) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range traces {
		sum += similarity(k, t)
	}
	return sum / float64(len(traces))
}

// plausible reports whether k looks like a real key.
func plausible(k mfclassic.Key) bool {
	if !analysis.ValidateKeyStrength(k) {
		return false
	}
	e := analysis.Entropy(k[:])
	return e >= 0.6 && e <= 1
}

// accept is the independent validator every analysis result goes through.
func accept(k mfclassic.Key, traces []Trace) bool {
	return plausible(k) && Consistency(k, traces) >= MinConsistency
}
