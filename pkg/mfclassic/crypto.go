package mfclassic

import (
	"crypto/aes"
)

// aesCMAC computes AES-CMAC (RFC 4493) of msg.
func aesCMAC(key, msg []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	k1, k2 := generateCMACSubkeys(block)

	n := (len(msg) + 15) / 16
	if n == 0 {
		n = 1
	}
	lastComplete := len(msg) != 0 && len(msg)%16 == 0

	last := make([]byte, 16)
	if lastComplete {
		copy(last, msg[(n-1)*16:])
		xorBlock(last, last, k1)
	} else {
		remain := len(msg) - (n-1)*16
		if remain > 0 {
			copy(last, msg[(n-1)*16:])
		}
		last[remain] = 0x80
		xorBlock(last, last, k2)
	}

	x := make([]byte, 16)
	y := make([]byte, 16)
	for i := 0; i < n-1; i++ {
		xorBlock(y, x, msg[i*16:i*16+16])
		block.Encrypt(x, y)
	}
	xorBlock(y, x, last)
	block.Encrypt(x, y)
	return x, nil
}

type cipherBlock interface {
	Encrypt(dst, src []byte)
}

func generateCMACSubkeys(block cipherBlock) (k1, k2 []byte) {
	const rb = 0x87
	zero := make([]byte, 16)
	l := make([]byte, 16)
	block.Encrypt(l, zero)

	k1 = make([]byte, 16)
	leftShift1(k1, l)
	if (l[0] & 0x80) != 0 {
		k1[15] ^= rb
	}

	k2 = make([]byte, 16)
	leftShift1(k2, k1)
	if (k1[0] & 0x80) != 0 {
		k2[15] ^= rb
	}
	return k1, k2
}

func leftShift1(dst, src []byte) {
	var carry byte
	for i := len(src) - 1; i >= 0; i-- {
		b := src[i]
		dst[i] = (b << 1) | carry
		carry = (b >> 7) & 1
	}
}

func xorBlock(dst, a, b []byte) {
	for i := 0; i < len(a) && i < len(b); i++ {
		dst[i] = a[i] ^ b[i]
	}
}
