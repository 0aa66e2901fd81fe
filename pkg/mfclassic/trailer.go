package mfclassic

import (
	"fmt"
	"io"
)

// TransportAccess is the factory access configuration (FF 07 80) with GPB 0x69.
var TransportAccess = [4]byte{0xFF, 0x07, 0x80, 0x69}

// Trailer is the decoded content of a sector trailer block.
type Trailer struct {
	KeyA   Key
	Access [4]byte // bytes 6..8 access bits, byte 9 general purpose byte
	KeyB   Key
}

// ParseTrailer splits a 16-byte trailer block.
func ParseTrailer(block []byte) (Trailer, error) {
	var t Trailer
	if len(block) != BlockSize {
		return t, fmt.Errorf("trailer must be %d bytes, got %d", BlockSize, len(block))
	}
	copy(t.KeyA[:], block[0:6])
	copy(t.Access[:], block[6:10])
	copy(t.KeyB[:], block[10:16])
	return t, nil
}

// Bytes encodes the trailer back into a block.
func (t Trailer) Bytes() []byte {
	out := make([]byte, BlockSize)
	copy(out[0:6], t.KeyA[:])
	copy(out[6:10], t.Access[:])
	copy(out[10:16], t.KeyB[:])
	return out
}

// AccessBits are the C1 C2 C3 bits controlling one block (index 3 = trailer).
type AccessBits struct {
	C1, C2, C3 bool
}

func (a AccessBits) code() int {
	c := 0
	if a.C1 {
		c |= 4
	}
	if a.C2 {
		c |= 2
	}
	if a.C3 {
		c |= 1
	}
	return c
}

func (a AccessBits) String() string {
	return fmt.Sprintf("%03b", a.code())
}

// AccessConditions holds the access bits for block groups 0..2 and the trailer (3).
type AccessConditions [4]AccessBits

// Conditions decodes the access bytes and checks the inverted copies.
//
// Byte 6 = ~C2 | ~C1, byte 7 = C1 | ~C3, byte 8 = C3 | C2 (high | low nibble),
// bit i of each nibble belongs to block group i.
func (t Trailer) Conditions() (AccessConditions, error) {
	b6, b7, b8 := t.Access[0], t.Access[1], t.Access[2]
	c1 := b7 >> 4
	c2 := b8 & 0x0F
	c3 := b8 >> 4
	if ^b6&0x0F != c1 || (^b6>>4)&0x0F != c2 || ^b7&0x0F != c3 {
		return AccessConditions{}, fmt.Errorf("access bits %02X %02X %02X are inconsistent", b6, b7, b8)
	}
	var ac AccessConditions
	for i := 0; i < 4; i++ {
		ac[i] = AccessBits{
			C1: c1&(1<<i) != 0,
			C2: c2&(1<<i) != 0,
			C3: c3&(1<<i) != 0,
		}
	}
	return ac, nil
}

// EncodeAccess builds access bytes 6..8 from conditions.
func EncodeAccess(ac AccessConditions) [3]byte {
	var c1, c2, c3 byte
	for i := 0; i < 4; i++ {
		if ac[i].C1 {
			c1 |= 1 << i
		}
		if ac[i].C2 {
			c2 |= 1 << i
		}
		if ac[i].C3 {
			c3 |= 1 << i
		}
	}
	return [3]byte{
		(^c2&0x0F)<<4 | ^c1&0x0F,
		c1<<4 | ^c3&0x0F,
		c3<<4 | c2,
	}
}

var dataAccessLabels = [8]string{
	0: "read AB  write AB  incr AB  decr AB (transport)",
	1: "read AB  write --  incr --  decr AB (value, non-rechargeable)",
	2: "read AB  write --  incr --  decr -- (read-only)",
	3: "read B   write B   incr --  decr --",
	4: "read AB  write B   incr --  decr --",
	5: "read B   write --  incr --  decr --",
	6: "read AB  write B   incr B   decr AB (value, rechargeable)",
	7: "read --  write --  incr --  decr -- (locked)",
}

var trailerAccessLabels = [8]string{
	0: "keyA w:A   access r:A     keyB r/w:A",
	1: "keyA w:A   access r/w:A   keyB r/w:A (transport)",
	2: "keyA w:--  access r:A     keyB r:A",
	3: "keyA w:B   access r:AB w:B keyB w:B",
	4: "keyA w:B   access r:AB    keyB w:B",
	5: "keyA w:--  access r:AB w:B keyB w:--",
	6: "keyA w:--  access r:AB    keyB w:--",
	7: "keyA w:--  access r:AB    keyB w:-- (frozen)",
}

// KeyBReadable reports whether the trailer's Key B bytes can be read with Key A,
// in which case Key B cannot be used for authentication.
func (ac AccessConditions) KeyBReadable() bool {
	switch ac[3].code() {
	case 0, 1, 2:
		return true
	}
	return false
}

// DataLabel describes the access rights of data block group i.
func (ac AccessConditions) DataLabel(i int) string {
	return dataAccessLabels[ac[i].code()]
}

// TrailerLabel describes the access rights of the trailer.
func (ac AccessConditions) TrailerLabel() string {
	return trailerAccessLabels[ac[3].code()]
}

// FormatTrailer prints a trailer in a human-readable format.
func FormatTrailer(w io.Writer, sector int, t Trailer) {
	fmt.Fprintf(w, "  Sector %d trailer:  [raw access: %02X %02X %02X GPB %02X]\n",
		sector, t.Access[0], t.Access[1], t.Access[2], t.Access[3])
	fmt.Fprintf(w, "    Key A:            %s\n", t.KeyA)
	fmt.Fprintf(w, "    Key B:            %s\n", t.KeyB)

	ac, err := t.Conditions()
	if err != nil {
		fmt.Fprintf(w, "    Access:           invalid (%v)\n", err)
		return
	}
	for i := 0; i < 3; i++ {
		fmt.Fprintf(w, "    Block group %d:    [%s] %s\n", i, ac[i], ac.DataLabel(i))
	}
	fmt.Fprintf(w, "    Trailer:          [%s] %s\n", ac[3], ac.TrailerLabel())
}
