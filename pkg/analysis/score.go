// Package analysis holds the scoring helpers shared by the key derivation,
// nonce and correlation engines: entropy, key-strength validation, the
// common Result contract and a parallel method runner.
package analysis

import (
	"math"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

// Entropy returns the Shannon entropy of b normalized to [0,1].
// The maximum is log2 of the number of symbols b could hold (min(len, 256)).
func Entropy(b []byte) float64 {
	n := len(b)
	if n < 2 {
		return 0
	}
	var counts [256]int
	for _, v := range b {
		counts[v]++
	}
	h := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(n)
		h -= p * math.Log2(p)
	}
	maxSymbols := n
	if maxSymbols > 256 {
		maxSymbols = 256
	}
	return Clamp(h / math.Log2(float64(maxSymbols)))
}

// Distinct returns the number of distinct byte values in b.
func Distinct(b []byte) int {
	var seen [256]bool
	d := 0
	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			d++
		}
	}
	return d
}

// DistinctRatio is Distinct(b) / len(b).
func DistinctRatio(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}
	return float64(Distinct(b)) / float64(len(b))
}

func allEqual(b []byte) bool {
	for i := 1; i < len(b); i++ {
		if b[i] != b[0] {
			return false
		}
	}
	return true
}

// arithmetic reports a constant step (mod 256) between consecutive bytes.
func arithmetic(b []byte) bool {
	if len(b) < 3 {
		return false
	}
	step := b[1] - b[0]
	for i := 2; i < len(b); i++ {
		if b[i]-b[i-1] != step {
			return false
		}
	}
	return true
}

func mirrored(b []byte) bool {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		if b[i] != b[j] {
			return false
		}
	}
	return true
}

// periodic reports whether b repeats with period p.
func periodic(b []byte, p int) bool {
	if p <= 0 || p >= len(b) {
		return false
	}
	for i := p; i < len(b); i++ {
		if b[i] != b[i-p] {
			return false
		}
	}
	return true
}

// HasTrivialPattern reports all-equal, arithmetic, mirrored or short-period keys.
func HasTrivialPattern(k mfclassic.Key) bool {
	b := k[:]
	return allEqual(b) || arithmetic(b) || mirrored(b) || periodic(b, 2) || periodic(b, 3)
}

// ValidationScore weights distinct-byte ratio (0.4), entropy (0.4) and the
// absence of a trivial pattern (0.2).
func ValidationScore(k mfclassic.Key) float64 {
	score := 0.4*DistinctRatio(k[:]) + 0.4*Entropy(k[:])
	if !HasTrivialPattern(k) {
		score += 0.2
	}
	return Clamp(score)
}

// ValidateKeyStrength accepts keys with at least 3 distinct bytes and no trivial pattern.
func ValidateKeyStrength(k mfclassic.Key) bool {
	return Distinct(k[:]) >= 3 && !HasTrivialPattern(k)
}

// IsDegenerate reports all-zero, all-0xFF and single-repeated-byte keys.
func IsDegenerate(k mfclassic.Key) bool {
	return allEqual(k[:])
}

// Clamp bounds v to [0,1]. NaN maps to 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
