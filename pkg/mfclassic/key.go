package mfclassic

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// KeySize is the length of a MIFARE Classic sector key.
const KeySize = 6

// Key is a 6-byte sector key.
type Key [KeySize]byte

// KeyType selects which of the two sector keys is used. The values are the
// GENERAL AUTHENTICATE key type bytes.
type KeyType byte

const (
	KeyA KeyType = 0x60
	KeyB KeyType = 0x61
)

func (t KeyType) String() string {
	switch t {
	case KeyA:
		return "A"
	case KeyB:
		return "B"
	default:
		return fmt.Sprintf("0x%02X", byte(t))
	}
}

// Other returns the opposite key type.
func (t KeyType) Other() KeyType {
	if t == KeyA {
		return KeyB
	}
	return KeyA
}

// ParseKeyType accepts "a", "A", "b", "B".
func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return KeyA, nil
	case "B":
		return KeyB, nil
	}
	return 0, fmt.Errorf("key type must be A or B, got %q", s)
}

func (t KeyType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *KeyType) UnmarshalText(b []byte) error {
	v, err := ParseKeyType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseKey parses 12 hex characters. Spaces, colons and dashes between bytes are ignored.
func ParseKey(s string) (Key, error) {
	clean := strings.NewReplacer(" ", "", ":", "", "-", "").Replace(strings.TrimSpace(s))
	if len(clean) != 2*KeySize {
		return Key{}, fmt.Errorf("key must be %d hex chars, got %d", 2*KeySize, len(clean))
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return Key{}, fmt.Errorf("invalid hex key: %v", err)
	}
	return KeyFromBytes(b)
}

// MustParseKey is ParseKey for package-level tables; it panics on malformed input.
func MustParseKey(s string) Key {
	k, err := ParseKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

// KeyFromBytes copies exactly KeySize bytes into a Key.
func KeyFromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) != KeySize {
		return k, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

func (k Key) String() string {
	return strings.ToUpper(hex.EncodeToString(k[:]))
}

// Bytes returns a copy of the key bytes.
func (k Key) Bytes() []byte {
	return append([]byte(nil), k[:]...)
}

func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Key) UnmarshalText(b []byte) error {
	v, err := ParseKey(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// KeyPair holds the recovered keys of one sector. A nil side is unknown.
type KeyPair struct {
	A *Key `yaml:"a,omitempty"`
	B *Key `yaml:"b,omitempty"`
}

// PairOf returns a KeyPair with only the given side set.
func PairOf(t KeyType, k Key) KeyPair {
	return KeyPair{}.With(t, k)
}

// Get returns the key for side t.
func (p KeyPair) Get(t KeyType) (Key, bool) {
	src := p.A
	if t == KeyB {
		src = p.B
	}
	if src == nil {
		return Key{}, false
	}
	return *src, true
}

// Has reports whether side t is known.
func (p KeyPair) Has(t KeyType) bool {
	_, ok := p.Get(t)
	return ok
}

// With returns a copy of p with side t set to k.
func (p KeyPair) With(t KeyType, k Key) KeyPair {
	kc := k
	if t == KeyB {
		p.B = &kc
	} else {
		p.A = &kc
	}
	return p
}

// Merge fills unknown sides of p from o. Known sides of p win.
func (p KeyPair) Merge(o KeyPair) KeyPair {
	if !p.Has(KeyA) {
		if k, ok := o.Get(KeyA); ok {
			p = p.With(KeyA, k)
		}
	}
	if !p.Has(KeyB) {
		if k, ok := o.Get(KeyB); ok {
			p = p.With(KeyB, k)
		}
	}
	return p
}

// Empty reports whether neither side is known.
func (p KeyPair) Empty() bool {
	return p.A == nil && p.B == nil
}

// Complete reports whether both sides are known.
func (p KeyPair) Complete() bool {
	return p.A != nil && p.B != nil
}

func (p KeyPair) String() string {
	side := func(k *Key) string {
		if k == nil {
			return "------------"
		}
		return k.String()
	}
	return fmt.Sprintf("A=%s B=%s", side(p.A), side(p.B))
}
