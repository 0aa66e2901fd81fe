package nonce

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"sort"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/analysis"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/keycorpus"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

// maxLFSRDistance bounds the successor search between two nonces.
const maxLFSRDistance = 1 << 16

func result(k mfclassic.Key, confidence float64, meta map[string]string) (analysis.Result, bool) {
	return analysis.Result{Key: k, Confidence: analysis.Clamp(confidence), Metadata: meta}, true
}

// advancedPattern folds XOR deltas, rotations and the modular sum of
// consecutive nonces. Confidence grows with how often the same delta repeats.
func advancedPattern(ctx context.Context, samples []Sample, uid []byte) (analysis.Result, bool) {
	var k mfclassic.Key
	var sum uint32
	deltas := make(map[uint32]int)
	for i := 0; i+1 < len(samples); i++ {
		a, b := samples[i].NonceValue(), samples[i+1].NonceValue()
		d := a ^ b
		deltas[d]++
		r := bits.RotateLeft32(a, 8*(i%4)+1)
		sum += a + b
		var db, rb [4]byte
		binary.BigEndian.PutUint32(db[:], d)
		binary.BigEndian.PutUint32(rb[:], r)
		for j := 0; j < 4; j++ {
			k[j] ^= db[j] + rb[(j+1)%4]
		}
	}
	k[4] = byte(sum>>24) ^ byte(sum>>8)
	k[5] = byte(sum>>16) ^ byte(sum)
	for i, b := range uid {
		k[i%mfclassic.KeySize] ^= bits.RotateLeft8(b, i+1)
	}

	most := 0
	for _, c := range deltas {
		if c > most {
			most = c
		}
	}
	regularity := float64(most) / float64(len(samples)-1)
	return result(k, 0.5+0.45*regularity, map[string]string{
		"distinct_deltas": fmt.Sprint(len(deltas)),
	})
}

// temporalPattern mixes nonce bytes over windows of three samples, weighted
// by how even the time gaps are.
func temporalPattern(ctx context.Context, samples []Sample, uid []byte) (analysis.Result, bool) {
	if len(samples) < 3 {
		return analysis.Result{}, false
	}
	var k mfclassic.Key
	regular := 0
	windows := 0
	for i := 0; i+2 < len(samples); i++ {
		dt1 := samples[i+1].Timestamp.Sub(samples[i].Timestamp)
		dt2 := samples[i+2].Timestamp.Sub(samples[i+1].Timestamp)
		maxDt := math.Max(math.Abs(float64(dt1)), math.Abs(float64(dt2)))
		w := 1.0
		if maxDt > 0 {
			w = 1 - math.Abs(float64(dt1-dt2))/maxDt
		}
		if w >= 0.9 {
			regular++
		}
		windows++
		for j := range k {
			n := samples[i+j%3].Nonce[j%4]
			k[j] = bits.RotateLeft8(k[j], 1) ^ byte(float64(n)*w) ^ samples[i+2-j%3].Keystream[(j+1)%4]
		}
	}
	ratio := float64(regular) / float64(windows)
	return result(k, 0.4+0.5*ratio, map[string]string{
		"windows": fmt.Sprint(windows),
		"regular": fmt.Sprint(regular),
	})
}

// column returns byte j of every sample: nonce bytes for j < 4, then keystream bytes.
func column(samples []Sample, j int) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		if j < 4 {
			out[i] = s.Nonce[j]
		} else {
			out[i] = s.Keystream[j%4]
		}
	}
	return out
}

// statisticalPattern picks the most, least or median frequent byte per position.
func statisticalPattern(ctx context.Context, samples []Sample, uid []byte) (analysis.Result, bool) {
	var k mfclassic.Key
	skew := 0.0
	for j := range k {
		col := column(samples, j)
		var counts [256]int
		for _, b := range col {
			counts[b]++
		}
		type bc struct {
			b byte
			c int
		}
		var present []bc
		for b, c := range counts {
			if c > 0 {
				present = append(present, bc{byte(b), c})
			}
		}
		sort.SliceStable(present, func(a, b int) bool { return present[a].c > present[b].c })
		switch j % 3 {
		case 0:
			k[j] = present[0].b
		case 1:
			k[j] = present[len(present)-1].b
		default:
			k[j] = present[len(present)/2].b
		}
		skew += float64(present[0].c) / float64(len(col))
	}
	skew /= mfclassic.KeySize
	return result(k, 0.45+0.5*skew, map[string]string{"skew": fmt.Sprintf("%.3f", skew)})
}

// frequencyWeakness measures the chi-square deviation of keystream bytes
// from uniform and builds the key from the most over-represented bytes.
func frequencyWeakness(ctx context.Context, samples []Sample, uid []byte) (analysis.Result, bool) {
	var counts [256]int
	total := 0
	for _, s := range samples {
		for _, b := range s.Keystream {
			counts[b]++
			total++
		}
	}
	expected := float64(total) / 256
	chi := 0.0
	for _, c := range counts {
		d := float64(c) - expected
		chi += d * d / expected
	}
	// Deviation relative to the 255 degrees of freedom of a fair source.
	dev := 0.0
	if chi > 255 {
		dev = (chi - 255) / chi
	}

	idx := make([]int, 256)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return counts[idx[a]] > counts[idx[b]] })
	var k mfclassic.Key
	for j := range k {
		k[j] = byte(idx[j])
	}
	return result(k, 0.3+0.65*dev, map[string]string{"chi_square": fmt.Sprintf("%.1f", chi)})
}

// patternKeystream is the keystream a regional key produces for nonce n.
func patternKeystream(k mfclassic.Key, n [4]byte) [4]byte {
	var out [4]byte
	for i := range out {
		out[i] = k[i] ^ k[i+2] ^ n[i]
	}
	return out
}

// knownPattern checks the regional corpus against the samples. A key that
// explains at least two samples and passes the strength check wins with 0.95.
func knownPattern(ctx context.Context, samples []Sample, uid []byte) (analysis.Result, bool) {
	for _, k := range keycorpus.Regional() {
		if ctx.Err() != nil {
			return analysis.Result{}, false
		}
		matches := 0
		for _, s := range samples {
			if patternKeystream(k, s.Nonce) == s.Keystream {
				matches++
			}
		}
		if matches >= 2 && analysis.ValidateKeyStrength(k) {
			return result(k, 0.95, map[string]string{"matches": fmt.Sprint(matches)})
		}
	}
	return analysis.Result{}, false
}

// lfsrDistance returns the number of successor steps from a to b, or -1.
func lfsrDistance(a, b uint32) int {
	x := a
	for d := 1; d < maxLFSRDistance; d++ {
		x = analysis.PRNGSuccessor(x, 1)
		if x == b {
			return d
		}
	}
	return -1
}

// lfsrState detects nonces generated by the card's 16-bit LFSR. Each
// consecutive pair linked by a successor walk raises confidence; the
// distances and the first state seed the key.
func lfsrState(ctx context.Context, samples []Sample, uid []byte) (analysis.Result, bool) {
	linked := 0
	var k mfclassic.Key
	binary.BigEndian.PutUint32(k[:4], samples[0].NonceValue())
	for i := 0; i+1 < len(samples); i++ {
		if ctx.Err() != nil {
			return analysis.Result{}, false
		}
		d := lfsrDistance(samples[i].NonceValue(), samples[i+1].NonceValue())
		if d < 0 {
			continue
		}
		linked++
		k[4] ^= byte(d >> 8)
		k[5] ^= byte(d)
		k[i%4] = bits.RotateLeft8(k[i%4], 3) ^ byte(d)
	}
	var nb []byte
	for _, s := range samples {
		nb = append(nb, s.Nonce[:]...)
	}
	recurrence := analysis.LFSRConsistent(analysis.Bits(nb))
	ratio := float64(linked) / float64(len(samples)-1)
	return result(k, 0.3+0.6*ratio+0.08*recurrence, map[string]string{
		"linked":     fmt.Sprint(linked),
		"recurrence": fmt.Sprintf("%.3f", recurrence),
	})
}

// cryptoWeakness scores keystream bits by autocorrelation, periodicity and
// linear complexity.
func cryptoWeakness(ctx context.Context, samples []Sample, uid []byte) (analysis.Result, bool) {
	var ks []byte
	for _, s := range samples {
		ks = append(ks, s.Keystream[:]...)
	}
	b := analysis.Bits(ks)
	n := len(b)

	auto := 0.0
	for lag := 1; lag <= 8 && lag < n; lag++ {
		same := 0
		for i := lag; i < n; i++ {
			if b[i] == b[i-lag] {
				same++
			}
		}
		c := math.Abs(2*float64(same)/float64(n-lag) - 1)
		if c > auto {
			auto = c
		}
	}

	period := 0.0
	for p := 1; p <= 32 && p < n; p++ {
		same := 0
		for i := p; i < n; i++ {
			if b[i] == b[i-p] {
				same++
			}
		}
		if float64(same)/float64(n-p) >= 0.9 {
			period = 1
			break
		}
	}

	lc, err := analysis.LinearComplexityContext(ctx, b)
	if err != nil {
		return analysis.Result{}, false
	}
	lowComplexity := 1 - math.Min(1, float64(lc)/(float64(n)/2))

	var k mfclassic.Key
	for i, v := range ks {
		k[i%mfclassic.KeySize] = bits.RotateLeft8(k[i%mfclassic.KeySize], 1) ^ v
	}
	weakness := 0.4*auto + 0.3*period + 0.3*lowComplexity
	return result(k, weakness, map[string]string{
		"autocorrelation":   fmt.Sprintf("%.3f", auto),
		"linear_complexity": fmt.Sprint(lc),
	})
}
