package bruteforce

import (
	"crypto/rand"
	"encoding/binary"
	"hash/fnv"
	mrand "math/rand"
	"time"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

// generator yields the next candidate; false means the space is exhausted.
type generator func() (mfclassic.Key, bool)

func sequential(start mfclassic.Key) generator {
	next := start
	done := false
	return func() (mfclassic.Key, bool) {
		if done {
			return mfclassic.Key{}, false
		}
		k := next
		// Big-endian 48-bit increment; wrapping to zero ends the space.
		done = true
		for i := mfclassic.KeySize - 1; i >= 0; i-- {
			next[i]++
			if next[i] != 0 {
				done = false
				break
			}
		}
		if next == start {
			done = true
		}
		return k, true
	}
}

func random() generator {
	return func() (mfclassic.Key, bool) {
		var k mfclassic.Key
		if _, err := rand.Read(k[:]); err != nil {
			return mfclassic.Key{}, false
		}
		return k, true
	}
}

// nibble walks all 12-nibble values with the leading nibble changing fastest.
func nibble() generator {
	var n [2 * mfclassic.KeySize]byte
	done := false
	return func() (mfclassic.Key, bool) {
		if done {
			return mfclassic.Key{}, false
		}
		var k mfclassic.Key
		for i := range k {
			k[i] = n[2*i]<<4 | n[2*i+1]
		}
		done = true
		for i := range n {
			n[i] = (n[i] + 1) & 0x0F
			if n[i] != 0 {
				done = false
				break
			}
		}
		return k, true
	}
}

var hexWords = []mfclassic.Key{
	{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x00},
	{0xCA, 0xFE, 0xBA, 0xBE, 0x00, 0x00},
	{0xC0, 0xFF, 0xEE, 0xC0, 0xFF, 0xEE},
	{0xBA, 0xDC, 0x0F, 0xFE, 0xE0, 0x00},
	{0xFE, 0xED, 0xFA, 0xCE, 0x00, 0x00},
	{0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC},
	{0xAB, 0xCD, 0xEF, 0x12, 0x34, 0x56},
}

func bcd(v int) byte {
	return byte((v/10)<<4 | v%10)
}

// patternKeys enumerates repeated bytes, increasing and decreasing runs,
// hex words and DDMMYY dates, each followed by its XOR variants.
func patternKeys() []mfclassic.Key {
	var base []mfclassic.Key
	for b := 0; b < 256; b++ {
		var rep, up, down, pair mfclassic.Key
		for i := range rep {
			rep[i] = byte(b)
			up[i] = byte(b + i)
			down[i] = byte(b - i)
			pair[i] = byte(b)
			if i%2 == 1 {
				pair[i] = ^byte(b)
			}
		}
		base = append(base, rep, up, down, pair)
	}
	base = append(base, hexWords...)
	for y := 1970; y < 2040; y++ {
		for m := 1; m <= 12; m++ {
			for d := 1; d <= 31; d++ {
				dd, mm, yy := bcd(d), bcd(m), bcd(y%100)
				base = append(base, mfclassic.Key{dd, mm, yy, dd, mm, yy})
			}
		}
	}

	seen := make(map[mfclassic.Key]bool, len(base)*3)
	out := make([]mfclassic.Key, 0, len(base)*3)
	add := func(k mfclassic.Key) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, k := range base {
		add(k)
	}
	for _, mask := range []byte{0xFF, 0x55, 0xAA} {
		for _, k := range base {
			for i := range k {
				k[i] ^= mask
			}
			add(k)
		}
	}
	return out
}

func fromList(keys []mfclassic.Key) generator {
	i := 0
	return func() (mfclassic.Key, bool) {
		if i >= len(keys) {
			return mfclassic.Key{}, false
		}
		k := keys[i]
		i++
		return k, true
	}
}

func seeded(seed int64) generator {
	rng := mrand.New(mrand.NewSource(seed))
	return func() (mfclassic.Key, bool) {
		var k mfclassic.Key
		rng.Read(k[:])
		return k, true
	}
}

// commonBytes are byte values over-represented in deployed keys, with weights.
var commonBytes = []struct {
	b byte
	w int
}{
	{0xFF, 8}, {0x00, 6}, {0xA0, 4}, {0xA1, 3}, {0xB0, 3}, {0xD3, 3}, {0xF7, 3},
	{0x12, 2}, {0x34, 2}, {0x56, 2}, {0xAB, 2}, {0xCD, 2}, {0xEF, 2}, {0x4D, 1}, {0x3A, 1},
}

func weightedCommon(seed int64) generator {
	rng := mrand.New(mrand.NewSource(seed))
	total := 0
	for _, c := range commonBytes {
		total += c.w
	}
	return func() (mfclassic.Key, bool) {
		var k mfclassic.Key
		for i := range k {
			r := rng.Intn(total)
			for _, c := range commonBytes {
				if r < c.w {
					k[i] = c.b
					break
				}
				r -= c.w
			}
		}
		return k, true
	}
}

func uidSeed(uid []byte, sector int) int64 {
	h := fnv.New64a()
	h.Write(uid)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(sector))
	h.Write(b[:])
	return int64(h.Sum64() >> 1)
}

// smartRandom round-robins UID-seeded, time-seeded, sector-seeded and
// weighted common-byte generators.
func smartRandom(uid []byte, sector int, now time.Time) generator {
	gens := []generator{
		seeded(uidSeed(uid, -1)),
		seeded(now.UnixNano()),
		seeded(int64(sector)*0x9E3779B9 + 1),
		weightedCommon(uidSeed(uid, sector)),
	}
	i := 0
	return func() (mfclassic.Key, bool) {
		g := gens[i%len(gens)]
		i++
		return g()
	}
}
