package mkf32

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/bits"
	"time"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/analysis"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

const (
	enhancedRounds      = 8
	regionalRounds      = 3
	cryptographicRounds = 3
)

// regionalConstants are the intercom vendor constants, picked by sector mod 6.
var regionalConstants = [...]uint32{
	0x4D494641, 0x52455553, 0x444F4D4F, 0x50484F4E, 0x4B455953, 0x494E5443,
}

// regionalPermutation is applied to the regional key as out[i] = k[perm[i]].
var regionalPermutation = [mfclassic.KeySize]int{3, 0, 5, 1, 4, 2}

func rotl8(v byte, n int) byte {
	return bits.RotateLeft8(v, n%8)
}

func enhanced(seed [4]byte, sector int) mfclassic.Key {
	var k mfclassic.Key
	copy(k[:4], seed[:])
	s := byte(sector)
	k[4] = sbox[s] ^ rotl8(seed[0], 3)
	k[5] = sbox[s*7+1] ^ rotl8(seed[3], 5)
	for i := 0; i < 4; i++ {
		k[i] = sbox[k[i]^s] ^ rotl8(seed[(i+1)%4], i+1)
	}

	for r := 0; r < enhancedRounds; r++ {
		// Confusion.
		for i := range k {
			v := k[i] ^ seed[(i+r)%4] ^ byte(r)
			k[i] = sbox[rotl8(v, 1+(i+r)%7)]
		}
		// Diffusion: mix each byte with both neighbours.
		var t mfclassic.Key
		for i := range k {
			t[i] = k[i] ^ (k[(i+1)%6] + rotl8(k[(i+5)%6], 3))
		}
		k = t
	}

	var sum byte
	for _, v := range k {
		sum ^= v
	}
	sum ^= s
	k[1] ^= sum
	k[4] ^= rotl8(sum, 4)
	return k
}

func regional(seed [4]byte, sector int) mfclassic.Key {
	n := len(regionalConstants)
	c := regionalConstants[((sector%n)+n)%n]
	u := binary.BigEndian.Uint32(seed[:])
	v := u ^ c

	var k mfclassic.Key
	binary.BigEndian.PutUint32(k[:4], v)
	k[4] = byte(c>>24) ^ byte(sector)
	k[5] = byte(u) ^ byte(c)

	for r := 0; r < regionalRounds; r++ {
		v = bits.RotateLeft32(v, 7+r) ^ c
		var vb [4]byte
		binary.BigEndian.PutUint32(vb[:], v)
		for i := 0; i < 4; i++ {
			k[i] ^= vb[i]
		}
		k[4] ^= byte(v >> (8 * r))
		k[5] = rotl8(k[5]^k[4], 3)
	}

	var out mfclassic.Key
	for i, p := range regionalPermutation {
		out[i] = k[p]
	}
	return out
}

func statistical(uid []byte, sector int) mfclassic.Key {
	if len(uid) == 0 {
		uid = []byte{0}
	}
	n := float64(len(uid))
	var counts [256]int
	mean := 0.0
	for _, b := range uid {
		mean += float64(b)
		counts[b]++
	}
	mean /= n
	variance := 0.0
	for _, b := range uid {
		d := float64(b) - mean
		variance += d * d
	}
	variance /= n
	std := math.Sqrt(variance)
	entropy := analysis.Entropy(uid)

	var k mfclassic.Key
	for i := range k {
		b := uid[i%len(uid)]
		z := 0.0
		if std > 0 {
			z = (float64(b) - mean) / std
		}
		freq := float64(counts[b]) / n
		v := 128 + z*42 + entropy*31*float64(i+1) + freq*17 + float64(sector*(i+3)*13) + variance/float64(i+2)
		iv := int(math.Round(v)) % 256
		if iv < 0 {
			iv += 256
		}
		k[i] = byte(iv)
	}
	return k
}

// cryptographic folds SHA-256 digests of (key, uid, sector, round, time)
// into the enhanced key. The time component makes it non-reproducible.
func cryptographic(seed [4]byte, uid []byte, sector int, now time.Time) mfclassic.Key {
	k := enhanced(seed, sector)
	var sb [4]byte
	binary.BigEndian.PutUint32(sb[:], uint32(sector))
	var tb [8]byte
	binary.BigEndian.PutUint64(tb[:], uint64(now.UnixNano()))

	for r := 0; r < cryptographicRounds; r++ {
		h := sha256.New()
		h.Write(k[:])
		h.Write(uid)
		h.Write(sb[:])
		h.Write([]byte{byte(r)})
		h.Write(tb[:])
		sum := h.Sum(nil)
		for j, v := range sum {
			k[j%mfclassic.KeySize] ^= v
		}
	}
	return k
}
