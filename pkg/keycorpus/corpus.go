// Package keycorpus is the static, categorized candidate key collection used
// by the dictionary scan, the hardnested bootstrap and the nonce probes.
package keycorpus

import (
	"fmt"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

// Category tags where a candidate key comes from.
type Category int

const (
	CategoryDefault Category = iota
	CategoryTransport
	CategoryAccess
	CategoryRegional
	CategoryBreached
	CategoryWeakPattern
	CategoryVendor
	CategoryGenerated
	CategoryUIDDerived
	CategoryDiversified
	CategoryUser
)

var categoryNames = map[Category]string{
	CategoryDefault:     "default",
	CategoryTransport:   "transport",
	CategoryAccess:      "access",
	CategoryRegional:    "regional",
	CategoryBreached:    "breached",
	CategoryWeakPattern: "weak-pattern",
	CategoryVendor:      "vendor",
	CategoryGenerated:   "generated",
	CategoryUIDDerived:  "uid-derived",
	CategoryDiversified: "diversified",
	CategoryUser:        "user",
}

func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Entry is a candidate key with its provenance.
type Entry struct {
	Key      mfclassic.Key
	Category Category
}

func (e Entry) String() string {
	return fmt.Sprintf("%s (%s)", e.Key, e.Category)
}

// Static tables, in dictionary order.
var (
	defaultKeys = []string{
		"FFFFFFFFFFFF", "000000000000", "A0A1A2A3A4A5", "B0B1B2B3B4B5",
		"D3F7D3F7D3F7", "AABBCCDDEEFF", "4D3A99C351DD", "1A982C7E459A",
		"714C5C886E97", "587EE5F9350F", "A0478CC39091", "533CB6C723F6",
		"8FD0A4F256E9",
	}
	transportKeys = []string{
		"A64598A77478", "26940B21FF5D", "FC00018778F7", "00000FFE2488",
		"5C598C9C58B5", "E4D2770A89BE", "434F4D4D4F41", "434F4D4D4F42",
		"47524F555041", "47524F555042", "505249564141", "505249564142",
	}
	accessKeys = []string{
		"0297927C0F77", "EE0042F88840", "722BFCC5375F", "F1D83F964314",
		"6A1987C40A21", "7F33625BC129", "48FFE71294A0",
	}
	regionalKeys = []string{
		"F1A97341A9FC", "44AB09010845", "85FED980EA5A", "A94133013401",
		"BB52F8CCE07F", "0000014B5C31", "A7141147D430", "8A8D88151A00",
		"314B49474956", "564C505F4D41",
	}
	breachedKeys = []string{
		"8829DA9DAF76", "FE04ECFE5577", "2612C6DE84CA", "707B11FC1481",
		"03F9067646AE", "2352C5B56D85",
	}
	weakPatternKeys = []string{
		"111111111111", "222222222222", "123456789ABC", "010203040506",
		"121212121212", "ABCDEFABCDEF", "012345678901", "123456123456",
	}
	vendorKeys = []string{
		"FC0001877BF7", "D01AFEEB890A", "75CCB59C9BED", "4B791BEA7BCC",
		"ABBA1234FCB0",
	}
	// basicKeys is the quick-scan subset: factory, MAD, NFC Forum and the
	// most common transport key.
	basicKeys = []string{
		"FFFFFFFFFFFF", "A0A1A2A3A4A5", "D3F7D3F7D3F7", "000000000000",
		"B0B1B2B3B4B5", "4D3A99C351DD", "1A982C7E459A", "AABBCCDDEEFF",
	}

	uidSuffixes = [][2]byte{{0x00, 0x00}, {0xFF, 0xFF}, {0x00, 0x01}, {0x12, 0x34}, {0xA0, 0xA1}, {0x5A, 0xA5}}
	uidMasks    = []byte{0xFF, 0xA5, 0x5A, 0x0F}
)

var staticTables = []struct {
	cat  Category
	keys []string
}{
	{CategoryDefault, defaultKeys},
	{CategoryTransport, transportKeys},
	{CategoryAccess, accessKeys},
	{CategoryRegional, regionalKeys},
	{CategoryBreached, breachedKeys},
	{CategoryWeakPattern, weakPatternKeys},
	{CategoryVendor, vendorKeys},
}

var (
	staticEntries []Entry
	classified    map[mfclassic.Key]Category
)

func init() {
	classified = make(map[mfclassic.Key]Category)
	for _, tbl := range staticTables {
		for _, s := range tbl.keys {
			k := mfclassic.MustParseKey(s)
			if _, dup := classified[k]; dup {
				continue
			}
			classified[k] = tbl.cat
			staticEntries = append(staticEntries, Entry{Key: k, Category: tbl.cat})
		}
	}
	for _, k := range generated() {
		if _, dup := classified[k]; dup {
			continue
		}
		classified[k] = CategoryGenerated
		staticEntries = append(staticEntries, Entry{Key: k, Category: CategoryGenerated})
	}
}

// generated returns numeric, alphabetic and incremental variants.
func generated() []mfclassic.Key {
	var out []mfclassic.Key
	// Repeated decimal digits: 000000000000, 111111111111, ...
	for d := byte(0); d <= 9; d++ {
		out = append(out, repeat(d<<4|d))
	}
	// Repeated hex letters: AAAAAAAAAAAA .. FFFFFFFFFFFF.
	for d := byte(0xA); d <= 0xF; d++ {
		out = append(out, repeat(d<<4|d))
	}
	// Incremental runs starting at 0x00, 0x10, .. 0xF0.
	for start := 0; start < 256; start += 0x10 {
		var k mfclassic.Key
		for i := range k {
			k[i] = byte(start + i)
		}
		out = append(out, k)
	}
	// Year-like patterns 2000..2029 as BCD, padded with FFFF.
	for y := 2000; y < 2030; y++ {
		out = append(out, mfclassic.Key{
			bcd(y / 100), bcd(y % 100), 0xFF, 0xFF, bcd(y / 100), bcd(y % 100),
		})
	}
	return out
}

func repeat(b byte) mfclassic.Key {
	var k mfclassic.Key
	for i := range k {
		k[i] = b
	}
	return k
}

func bcd(v int) byte {
	return byte((v/10)<<4 | v%10)
}

// All returns every static and generated key in dictionary order,
// deduplicated with the first occurrence winning.
func All() []mfclassic.Key {
	out := make([]mfclassic.Key, len(staticEntries))
	for i, e := range staticEntries {
		out[i] = e.Key
	}
	return out
}

// Basic returns the small high-probability subset.
func Basic() []mfclassic.Key {
	out := make([]mfclassic.Key, 0, len(basicKeys))
	for _, s := range basicKeys {
		out = append(out, mfclassic.MustParseKey(s))
	}
	return out
}

// Regional returns the intercom-system keys.
func Regional() []mfclassic.Key {
	out := make([]mfclassic.Key, 0, len(regionalKeys))
	for _, s := range regionalKeys {
		out = append(out, mfclassic.MustParseKey(s))
	}
	return out
}

// FromUID derives candidates from a UID: the first 4 UID bytes followed by
// fixed suffixes, and the UID spread over 6 bytes XORed with fixed masks.
// An empty UID yields nothing.
func FromUID(uid []byte) []mfclassic.Key {
	if len(uid) == 0 {
		return nil
	}
	var prefix [4]byte
	for i := range prefix {
		prefix[i] = uid[i%len(uid)]
	}

	seen := make(map[mfclassic.Key]bool)
	var out []mfclassic.Key
	add := func(k mfclassic.Key) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, sfx := range uidSuffixes {
		add(mfclassic.Key{prefix[0], prefix[1], prefix[2], prefix[3], sfx[0], sfx[1]})
	}
	var spread mfclassic.Key
	for i := range spread {
		spread[i] = uid[i%len(uid)]
	}
	add(spread)
	for _, m := range uidMasks {
		var k mfclassic.Key
		for i := range k {
			k[i] = spread[i] ^ m
		}
		add(k)
	}
	// Reversed UID bytes.
	var rev mfclassic.Key
	for i := range rev {
		rev[i] = uid[(len(uid)-1-i%len(uid)+len(uid))%len(uid)]
	}
	add(rev)
	return out
}

// Classify returns the category of a static or generated key.
func Classify(k mfclassic.Key) (Category, bool) {
	c, ok := classified[k]
	return c, ok
}
