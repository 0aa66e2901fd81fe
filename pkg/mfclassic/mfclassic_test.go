package mfclassic

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var testUID = []byte{0x04, 0xA1, 0xB2, 0xC3}

func newSimReader(t *testing.T) (*SimCard, *Reader) {
	t.Helper()
	sim := NewSimCard(testUID, Layout1K)
	r := NewReader(StaticDialer(sim), Layout{})
	if err := r.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	return sim, r
}

func TestLayoutMapping(t *testing.T) {
	tests := []struct {
		layout  Layout
		sector  int
		first   int
		trailer int
		blocks  int
	}{
		{Layout1K, 0, 0, 3, 4},
		{Layout1K, 15, 60, 63, 4},
		{Layout4K, 31, 124, 127, 4},
		{Layout4K, 32, 128, 143, 16},
		{Layout4K, 39, 240, 255, 16},
	}
	for _, tt := range tests {
		if got := tt.layout.SectorToBlock(tt.sector); got != tt.first {
			t.Fatalf("%s sector %d: expected first block %d, got %d", tt.layout, tt.sector, tt.first, got)
		}
		if got := tt.layout.TrailerBlock(tt.sector); got != tt.trailer {
			t.Fatalf("%s sector %d: expected trailer %d, got %d", tt.layout, tt.sector, tt.trailer, got)
		}
		if got := tt.layout.BlocksInSector(tt.sector); got != tt.blocks {
			t.Fatalf("%s sector %d: expected %d blocks, got %d", tt.layout, tt.sector, tt.blocks, got)
		}
		if got := tt.layout.BlockToSector(tt.trailer); got != tt.sector {
			t.Fatalf("%s block %d: expected sector %d, got %d", tt.layout, tt.trailer, tt.sector, got)
		}
		if !tt.layout.IsTrailer(tt.trailer) || tt.layout.IsTrailer(tt.first) {
			t.Fatalf("%s sector %d: trailer detection wrong", tt.layout, tt.sector)
		}
	}
	if Layout4K.BlockCount() != 256 || Layout1K.BlockCount() != 64 {
		t.Fatalf("unexpected block counts: 4K=%d 1K=%d", Layout4K.BlockCount(), Layout1K.BlockCount())
	}
}

func TestLayoutSAKAndSectorCount(t *testing.T) {
	for _, l := range []Layout{LayoutMini, Layout1K, Layout2K, Layout4K} {
		if got, ok := LayoutForSAK(l.SAK()); !ok || got != l {
			t.Fatalf("expected SAK %02X to map back to %s, got %s", l.SAK(), l, got)
		}
		if got, err := LayoutForSectors(l.Sectors); err != nil || got != l {
			t.Fatalf("expected %d sectors to give %s, got %s (%v)", l.Sectors, l, got, err)
		}
	}
	if _, ok := LayoutForSAK(0x20); ok {
		t.Fatalf("expected SAK 20 to name no MIFARE Classic layout")
	}
	if _, err := LayoutForSectors(7); err == nil {
		t.Fatalf("expected error for 7 sectors")
	}
	sim := NewSimCard(testUID, Layout4K)
	if sak := sim.Block(0)[len(testUID)+1]; sak != 0x18 {
		t.Fatalf("expected 4K manufacturer block SAK 18, got %02X", sak)
	}
}

func TestParseKeyFormats(t *testing.T) {
	for _, in := range []string{"a0a1a2a3a4a5", "A0 A1 A2 A3 A4 A5", "A0:A1:A2:A3:A4:A5"} {
		k, err := ParseKey(in)
		if err != nil {
			t.Fatalf("ParseKey(%q) returned error: %v", in, err)
		}
		if k.String() != "A0A1A2A3A4A5" {
			t.Fatalf("ParseKey(%q): expected A0A1A2A3A4A5, got %s", in, k)
		}
	}
	if _, err := ParseKey("A0A1A2"); err == nil {
		t.Fatalf("expected error for short key")
	}
	if _, err := ParseKey("ZZA1A2A3A4A5"); err == nil {
		t.Fatalf("expected error for non-hex key")
	}
}

func TestKeyPairMerge(t *testing.T) {
	a := MustParseKey("FFFFFFFFFFFF")
	b := MustParseKey("A0A1A2A3A4A5")
	p := PairOf(KeyA, a)
	if p.Has(KeyB) || !p.Has(KeyA) {
		t.Fatalf("expected only A set, got %s", p)
	}
	merged := p.Merge(PairOf(KeyB, b).With(KeyA, b))
	if got, _ := merged.Get(KeyA); got != a {
		t.Fatalf("expected known A to win, got %s", got)
	}
	if got, _ := merged.Get(KeyB); got != b {
		t.Fatalf("expected B from merge, got %s", got)
	}
	if !merged.Complete() {
		t.Fatalf("expected complete pair")
	}
}

func TestParseKeyListSkipsCommentsAndDuplicates(t *testing.T) {
	in := `
# factory
FFFFFFFFFFFF
a0a1a2a3a4a5   # MAD
FFFFFFFFFFFF
`
	keys, err := ParseKeyList(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ParseKeyList returned error: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}

	_, err = ParseKeyList(strings.NewReader("FFFFFFFFFFFF\nnothex\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line 2 error, got %v", err)
	}
}

func TestLoadAllKeyFilesSkipsInvalid(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "good.dic"), []byte("D3F7D3F7D3F7\n"), 0o644); err != nil {
		t.Fatalf("write good.dic: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.dic"), []byte("xyz\n"), 0o644); err != nil {
		t.Fatalf("write bad.dic: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("FFFFFFFFFFFF\n"), 0o644); err != nil {
		t.Fatalf("write notes.md: %v", err)
	}
	files, err := LoadAllKeyFiles(dir)
	if err != nil {
		t.Fatalf("LoadAllKeyFiles returned error: %v", err)
	}
	if len(files) != 1 || files[0].Name != "good.dic" {
		t.Fatalf("expected only good.dic, got %+v", files)
	}
}

func TestLoadKeyHexFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.hex")
	if err := os.WriteFile(path, []byte("00112233445566778899AABBCCDDEEFF\n"), 0o644); err != nil {
		t.Fatalf("write master key: %v", err)
	}
	key, err := LoadKeyHexFile(path)
	if err != nil {
		t.Fatalf("LoadKeyHexFile returned error: %v", err)
	}
	if len(key) != 16 || key[15] != 0xFF {
		t.Fatalf("unexpected key %X", key)
	}
}

func TestTransportTrailerConditions(t *testing.T) {
	tr := Trailer{Access: TransportAccess}
	ac, err := tr.Conditions()
	if err != nil {
		t.Fatalf("Conditions returned error: %v", err)
	}
	if ac[3].String() != "001" {
		t.Fatalf("expected trailer bits 001, got %s", ac[3])
	}
	for i := 0; i < 3; i++ {
		if ac[i].String() != "000" {
			t.Fatalf("expected block group %d bits 000, got %s", i, ac[i])
		}
	}
	if !ac.KeyBReadable() {
		t.Fatalf("expected key B readable in transport configuration")
	}
	enc := EncodeAccess(ac)
	if !bytes.Equal(enc[:], TransportAccess[:3]) {
		t.Fatalf("expected re-encoded %X, got %X", TransportAccess[:3], enc)
	}

	bad := Trailer{Access: [4]byte{0xFF, 0xFF, 0x80, 0x69}}
	if _, err := bad.Conditions(); err == nil {
		t.Fatalf("expected inconsistent access bits error")
	}
}

func TestFormatTrailer(t *testing.T) {
	var buf bytes.Buffer
	FormatTrailer(&buf, 2, Trailer{KeyA: MustParseKey("A0A1A2A3A4A5"), Access: TransportAccess})
	out := buf.String()
	if !strings.Contains(out, "A0A1A2A3A4A5") || !strings.Contains(out, "transport") {
		t.Fatalf("unexpected trailer dump:\n%s", out)
	}
}

func TestReaderAuthenticateReadWrite(t *testing.T) {
	sim, r := newSimReader(t)
	secret := MustParseKey("A0A1A2A3A4A5")
	sim.SetSectorKeys(1, &secret, nil)

	if !bytes.Equal(r.UID(), testUID) {
		t.Fatalf("expected UID %X, got %X", testUID, r.UID())
	}
	ok, err := r.Authenticate(1, KeyA, MustParseKey("FFFFFFFFFFFF"))
	if err != nil || ok {
		t.Fatalf("expected rejection without error, got ok=%v err=%v", ok, err)
	}
	ok, err = r.Authenticate(1, KeyA, secret)
	if err != nil || !ok {
		t.Fatalf("expected success, got ok=%v err=%v", ok, err)
	}

	data := bytes.Repeat([]byte{0x5A}, BlockSize)
	if err := r.WriteBlock(5, data); err != nil {
		t.Fatalf("WriteBlock returned error: %v", err)
	}
	got, err := r.ReadBlock(5)
	if err != nil {
		t.Fatalf("ReadBlock returned error: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("expected %X, got %X", data, got)
	}

	trailer, err := r.ReadBlock(7)
	if err != nil {
		t.Fatalf("ReadBlock trailer returned error: %v", err)
	}
	if !bytes.Equal(trailer[:6], make([]byte, 6)) {
		t.Fatalf("expected masked key A, got %X", trailer[:6])
	}

	if _, err := r.ReadBlock(8); !IsAuthError(err) {
		t.Fatalf("expected auth error reading unauthenticated sector, got %v", err)
	}
}

func TestReaderTransientAndRemoval(t *testing.T) {
	sim, r := newSimReader(t)
	sim.FailNext(1)
	_, err := r.Authenticate(0, KeyA, MustParseKey("FFFFFFFFFFFF"))
	if !errors.Is(err, ErrSimTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if !r.IsConnected() {
		t.Fatalf("transient error must not drop the card")
	}

	sim.Remove()
	_, err = r.Authenticate(0, KeyA, MustParseKey("FFFFFFFFFFFF"))
	if !IsNotConnected(err) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if r.IsConnected() {
		t.Fatalf("expected reader to drop the card after removal")
	}
	sim.Insert()
	if err := r.Connect(); err != nil {
		t.Fatalf("reconnect returned error: %v", err)
	}
}

func TestProbeKeyBothSides(t *testing.T) {
	sim, r := newSimReader(t)
	a := MustParseKey("D3F7D3F7D3F7")
	sim.SetSectorKeys(3, &a, &a)
	res := ProbeKey(r, 3, a)
	if !res.A || !res.B || res.Err != nil {
		t.Fatalf("expected both sides, got %+v", res)
	}
	if !res.Pair().Complete() {
		t.Fatalf("expected complete pair")
	}

	kt, ok, err := AuthenticateWithFallback(r, 3, PairOf(KeyB, a), KeyA)
	if err != nil || !ok || kt != KeyB {
		t.Fatalf("expected fallback to B, got kt=%s ok=%v err=%v", kt, ok, err)
	}
}

func TestDiversifyKey(t *testing.T) {
	master := bytes.Repeat([]byte{0x11}, 16)
	k1, err := DiversifyKey(master, testUID, 1, KeyA)
	if err != nil {
		t.Fatalf("DiversifyKey returned error: %v", err)
	}
	k2, _ := DiversifyKey(master, testUID, 1, KeyA)
	if k1 != k2 {
		t.Fatalf("expected deterministic diversification")
	}
	k3, _ := DiversifyKey(master, testUID, 2, KeyA)
	if k1 == k3 {
		t.Fatalf("expected different keys for different sectors")
	}
	if _, err := DiversifyKey(master[:8], testUID, 1, KeyA); err == nil {
		t.Fatalf("expected error for short master key")
	}
}

func TestAESCMACRFC4493(t *testing.T) {
	key := []byte{0x2b, 0x7e, 0x15, 0x16, 0x28, 0xae, 0xd2, 0xa6, 0xab, 0xf7, 0x15, 0x88, 0x09, 0xcf, 0x4f, 0x3c}
	mac, err := aesCMAC(key, nil)
	if err != nil {
		t.Fatalf("aesCMAC returned error: %v", err)
	}
	want := []byte{0xbb, 0x1d, 0x69, 0x29, 0xe9, 0x59, 0x37, 0x28, 0x7f, 0xa3, 0x7d, 0x12, 0x9b, 0x75, 0x67, 0x46}
	if !bytes.Equal(mac, want) {
		t.Fatalf("expected %X, got %X", want, mac)
	}
}

func TestLayoutFromATR(t *testing.T) {
	atr := []byte{0x3B, 0x8F, 0x80, 0x01, 0x80, 0x4F, 0x0C, 0xA0, 0x00, 0x00, 0x03, 0x06, 0x03, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x69}
	l, ok := LayoutFromATR(atr)
	if !ok || l != Layout4K {
		t.Fatalf("expected 4K layout, got %v ok=%v", l, ok)
	}
	if _, ok := LayoutFromATR([]byte{0x3B, 0x00}); ok {
		t.Fatalf("expected short ATR to be rejected")
	}
}
