package mfclassic

import (
	"errors"
	"sync"
)

// ErrSimTransient is returned by SimCard for injected transport failures.
var ErrSimTransient = errors.New("sim: transient transmit failure")

// SimCard is an in-memory MIFARE Classic card answering the PC/SC
// pseudo-APDUs used by Reader. It backs the tests and the emulator mode.
//
// Key A always reads back as zeros from a trailer, like a real card.
type SimCard struct {
	mu      sync.Mutex
	uid     []byte
	layout  Layout
	blocks  [][]byte
	slots   map[byte]Key
	authSec int
	removed bool

	failNext     int
	failSectors  map[int]bool
	authAttempts int
	sectorAuths  map[int]int
}

// NewSimCard builds a card with transport trailers (FFFFFFFFFFFF both sides)
// and zeroed data blocks.
func NewSimCard(uid []byte, layout Layout) *SimCard {
	c := &SimCard{
		uid:         append([]byte(nil), uid...),
		layout:      layout,
		blocks:      make([][]byte, layout.BlockCount()),
		slots:       make(map[byte]Key),
		authSec:     -1,
		failSectors: make(map[int]bool),
		sectorAuths: make(map[int]int),
	}
	for i := range c.blocks {
		c.blocks[i] = make([]byte, BlockSize)
	}
	factory := MustParseKey("FFFFFFFFFFFF")
	for s := 0; s < layout.Sectors; s++ {
		t := Trailer{KeyA: factory, Access: TransportAccess, KeyB: factory}
		c.blocks[layout.TrailerBlock(s)] = t.Bytes()
	}
	c.blocks[0] = manufacturerBlock(uid, layout.SAK())
	return c
}

func manufacturerBlock(uid []byte, sak byte) []byte {
	b := make([]byte, BlockSize)
	n := copy(b, uid)
	var bcc byte
	for _, v := range uid {
		bcc ^= v
	}
	if n < BlockSize {
		b[n] = bcc
	}
	if n+1 < BlockSize {
		b[n+1] = sak
	}
	return b
}

// Layout lets Reader pick up the simulated card size.
func (c *SimCard) Layout() Layout {
	return c.layout
}

// SetSectorKeys replaces the keys stored in a sector trailer. A nil side keeps its key.
func (c *SimCard) SetSectorKeys(sector int, a, b *Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tb := c.layout.TrailerBlock(sector)
	t, _ := ParseTrailer(c.blocks[tb])
	if a != nil {
		t.KeyA = *a
	}
	if b != nil {
		t.KeyB = *b
	}
	c.blocks[tb] = t.Bytes()
}

// SectorKeys returns the keys currently stored in a sector trailer.
func (c *SimCard) SectorKeys(sector int) (Key, Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, _ := ParseTrailer(c.blocks[c.layout.TrailerBlock(sector)])
	return t.KeyA, t.KeyB
}

// SetBlock overwrites raw block memory, bypassing access checks.
func (c *SimCard) SetBlock(block int, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.blocks[block], data)
}

// Block returns a copy of raw block memory.
func (c *SimCard) Block(block int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.blocks[block]...)
}

// Remove takes the card out of the field; every APDU fails with ErrNotConnected.
func (c *SimCard) Remove() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = true
	c.authSec = -1
}

// Insert puts the card back.
func (c *SimCard) Insert() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = false
}

// FailNext makes the next n APDUs fail with ErrSimTransient.
func (c *SimCard) FailNext(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = n
}

// FailSector makes every authentication of sector fail with ErrSimTransient.
func (c *SimCard) FailSector(sector int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failSectors[sector] = true
}

// AuthAttempts returns how many GENERAL AUTHENTICATE commands were received.
func (c *SimCard) AuthAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authAttempts
}

// SectorAuthAttempts returns how many authentications targeted sector.
func (c *SimCard) SectorAuthAttempts(sector int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sectorAuths[sector]
}

// Transmit implements Card.
func (c *SimCard) Transmit(apdu []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.removed {
		return nil, ErrNotConnected
	}
	if c.failNext > 0 {
		c.failNext--
		return nil, ErrSimTransient
	}
	if len(apdu) < 5 || apdu[0] != 0xFF {
		return sw(SWClassNotSupported), nil
	}

	switch apdu[1] {
	case 0xCA:
		return append(append([]byte(nil), c.uid...), 0x90, 0x00), nil
	case 0x82:
		if len(apdu) != 5+KeySize || apdu[4] != KeySize {
			return sw(SWWrongLength), nil
		}
		var k Key
		copy(k[:], apdu[5:])
		c.slots[apdu[3]] = k
		return sw(SWSuccess), nil
	case 0x86:
		return c.authenticate(apdu)
	case 0xB0:
		return c.read(int(apdu[2])<<8 | int(apdu[3]))
	case 0xD6:
		if len(apdu) != 5+BlockSize {
			return sw(SWWrongLength), nil
		}
		return c.write(int(apdu[2])<<8|int(apdu[3]), apdu[5:])
	}
	return sw(SWInsNotSupported), nil
}

func (c *SimCard) authenticate(apdu []byte) ([]byte, error) {
	if len(apdu) != 10 {
		return sw(SWWrongLength), nil
	}
	block := int(apdu[6])<<8 | int(apdu[7])
	kt := KeyType(apdu[8])
	if !c.layout.ValidBlock(block) {
		return sw(SWWrongP1P2), nil
	}
	key, ok := c.slots[apdu[9]]
	if !ok {
		return sw(SWKeyNotLoaded), nil
	}
	sector := c.layout.BlockToSector(block)
	c.authAttempts++
	c.sectorAuths[sector]++
	if c.failSectors[sector] {
		return nil, ErrSimTransient
	}

	t, _ := ParseTrailer(c.blocks[c.layout.TrailerBlock(sector)])
	want := t.KeyA
	if kt == KeyB {
		want = t.KeyB
	}
	if kt != KeyA && kt != KeyB || key != want {
		c.authSec = -1
		return sw(SWAuthFailed), nil
	}
	c.authSec = sector
	return sw(SWSuccess), nil
}

func (c *SimCard) read(block int) ([]byte, error) {
	if !c.layout.ValidBlock(block) {
		return sw(SWWrongP1P2), nil
	}
	if c.authSec != c.layout.BlockToSector(block) {
		return sw(SWSecurityNotSatisfied), nil
	}
	data := append([]byte(nil), c.blocks[block]...)
	if c.layout.IsTrailer(block) {
		for i := 0; i < KeySize; i++ {
			data[i] = 0x00
		}
	}
	return append(data, 0x90, 0x00), nil
}

func (c *SimCard) write(block int, data []byte) ([]byte, error) {
	if !c.layout.ValidBlock(block) {
		return sw(SWWrongP1P2), nil
	}
	if c.authSec != c.layout.BlockToSector(block) {
		return sw(SWSecurityNotSatisfied), nil
	}
	if block == 0 {
		return sw(SWMemoryFailure), nil
	}
	copy(c.blocks[block], data)
	return sw(SWSuccess), nil
}

func sw(v uint16) []byte {
	return []byte{byte(v >> 8), byte(v)}
}
