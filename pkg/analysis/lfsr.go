package analysis

import "context"

// PRNGSuccessor advances the card's 16-bit nonce LFSR (x^16 + x^14 + x^13 +
// x^11 + 1) by n steps. The 32-bit value is the nonce as sent on the wire;
// the LFSR state lives in its high half, which must not be zero.
func PRNGSuccessor(x uint32, n int) uint32 {
	x = swapEndian(x)
	for ; n > 0; n-- {
		x = x>>1 | (x>>16^x>>18^x>>19^x>>21)<<31
	}
	return swapEndian(x)
}

func swapEndian(x uint32) uint32 {
	return x>>8&0x00FF00FF | (x&0x00FF00FF)<<8
}

// LFSRConsistent reports whether bits follows x[k] = x[k-16]^x[k-14]^x[k-13]^x[k-11]
// and returns the fraction of positions that satisfied it.
func LFSRConsistent(bits []byte) float64 {
	if len(bits) <= 16 {
		return 0
	}
	ok := 0
	for k := 16; k < len(bits); k++ {
		want := bits[k-16] ^ bits[k-14] ^ bits[k-13] ^ bits[k-11]
		if bits[k]&1 == want&1 {
			ok++
		}
	}
	return float64(ok) / float64(len(bits)-16)
}

// Bits expands b into one bit per byte, most significant bit first.
func Bits(b []byte) []byte {
	out := make([]byte, 0, len(b)*8)
	for _, v := range b {
		for i := 7; i >= 0; i-- {
			out = append(out, (v>>uint(i))&1)
		}
	}
	return out
}

// LinearComplexity estimates the shortest LFSR generating bits (Berlekamp-Massey over GF(2)).
func LinearComplexity(bits []byte) int {
	l, _ := LinearComplexityContext(context.Background(), bits)
	return l
}

// LinearComplexityContext is LinearComplexity that stops with ctx's error
// once ctx is done.
func LinearComplexityContext(ctx context.Context, bits []byte) (int, error) {
	n := len(bits)
	if n == 0 {
		return 0, nil
	}
	c := make([]byte, n+1)
	b := make([]byte, n+1)
	c[0], b[0] = 1, 1
	l, m := 0, -1
	for i := 0; i < n; i++ {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		d := bits[i] & 1
		for j := 1; j <= l; j++ {
			d ^= c[j] & bits[i-j]
		}
		if d == 0 {
			continue
		}
		t := append([]byte(nil), c...)
		for j := 0; j+i-m <= n; j++ {
			c[j+i-m] ^= b[j]
		}
		if l <= i/2 {
			l = i + 1 - l
			m = i
			b = t
		}
	}
	return l, nil
}
