package hardnested

import (
	"math/rand"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/analysis"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

// correlationCandidates is the number of random keys scored by the advanced correlation pass.
const correlationCandidates = 200

// chainSeeds bounds the seed pairs byteCorrelation tries for a plausible key.
const chainSeeds = 32

type analysisFunc func(rng *rand.Rand, traces []Trace, known Known) (mfclassic.Key, float64)

// analyses run in order; the first validated key wins.
var analyses = []struct {
	name string
	fn   analysisFunc
}{
	{"advanced-correlation", advancedCorrelation},
	{"statistical-weighting", statisticalWeighting},
	{"spectral", spectral},
	{"byte-correlation", byteCorrelation},
	{"entropy-minimization", entropyMinimization},
	{"naive-statistical", naiveStatistical},
}

// patternWeight trusts random nonces most and the fixed boundary pattern least.
var patternWeight = [4]float64{1.0, 0.8, 0.5, 0.3}

func score(k mfclassic.Key, traces []Trace) float64 {
	return 0.5*Consistency(k, traces) + 0.3*analysis.ValidationScore(k) + 0.2*analysis.Entropy(k[:])
}

func advancedCorrelation(rng *rand.Rand, traces []Trace, _ Known) (mfclassic.Key, float64) {
	var best mfclassic.Key
	bestScore := -1.0
	for i := 0; i < correlationCandidates; i++ {
		var k mfclassic.Key
		rng.Read(k[:])
		if s := score(k, traces); s > bestScore {
			best, bestScore = k, s
		}
	}
	return best, bestScore
}

func statisticalWeighting(_ *rand.Rand, traces []Trace, _ Known) (mfclassic.Key, float64) {
	var k mfclassic.Key
	for j := range k {
		var weights [256]float64
		for _, t := range traces {
			v := t.Keystream[j%4] ^ t.Nonce[(j+1)%4]
			weights[v] += patternWeight[t.Pattern%4]
		}
		k[j] = argmax(weights[:])
	}
	return k, score(k, traces)
}

func spectral(_ *rand.Rand, traces []Trace, _ Known) (mfclassic.Key, float64) {
	var k mfclassic.Key
	for j := range k {
		col := make([]byte, len(traces))
		var counts [256]float64
		for i, t := range traces {
			col[i] = t.Keystream[j%4] ^ t.Encrypted[(j+3)%4]
			counts[col[i]]++
		}
		k[j] = argmax(counts[:]) ^ byte(analysis.Entropy(col)*255)
	}
	return k, score(k, traces)
}

// byteCorrelation votes, per keystream byte, on k[i]^k[i+2] and chains the
// key from a seed pair. The first seed is the head of the known key.
func byteCorrelation(rng *rand.Rand, traces []Trace, known Known) (mfclassic.Key, float64) {
	var d [4]byte
	for i := range d {
		var votes [256]float64
		for _, t := range traces {
			votes[t.Keystream[i]^t.Nonce[i]] += patternWeight[t.Pattern%4]
		}
		d[i] = argmax(votes[:])
	}
	k := chain(known.Key[0], known.Key[1], d)
	for try := 0; try < chainSeeds && !plausible(k); try++ {
		k = chain(byte(rng.Intn(256)), byte(rng.Intn(256)), d)
	}
	return k, score(k, traces)
}

// chain builds the key whose pairwise differences k[i]^k[i+2] equal d.
func chain(k0, k1 byte, d [4]byte) mfclassic.Key {
	k := mfclassic.Key{k0, k1}
	for i := 2; i < len(k); i++ {
		k[i] = k[i-2] ^ d[i-2]
	}
	return k
}

// entropyMinimization keeps, per position, the mask that leaves the masked
// keystream column with the least entropy.
func entropyMinimization(_ *rand.Rand, traces []Trace, _ Known) (mfclassic.Key, float64) {
	var k mfclassic.Key
	col := make([]byte, len(traces))
	for j := range k {
		best, bestE := 0, 2.0
		for v := 1; v < 256; v++ {
			for i, t := range traces {
				col[i] = t.Keystream[j%4] ^ (byte(v) & t.Nonce[(j+1)%4])
			}
			if e := analysis.Entropy(col); e < bestE {
				best, bestE = v, e
			}
		}
		k[j] = byte(best)
	}
	return k, score(k, traces)
}

func naiveStatistical(_ *rand.Rand, traces []Trace, known Known) (mfclassic.Key, float64) {
	k := known.Key
	for _, t := range traces {
		for j := range k {
			k[j] ^= t.Keystream[j%4] ^ t.Encrypted[(j+1)%4]
		}
	}
	return k, 0.5 * score(k, traces)
}

func argmax(v []float64) byte {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return byte(best)
}
