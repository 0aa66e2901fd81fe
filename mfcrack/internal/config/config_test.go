package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", filepath.Base(path), err)
	}
}

func TestLoadValidCrackConfigAndResolveRelativePaths(t *testing.T) {
	tmp := t.TempDir()
	dictDir := filepath.Join(tmp, "keys")
	if err := os.Mkdir(dictDir, 0o755); err != nil {
		t.Fatalf("mkdir keys: %v", err)
	}
	masterPath := filepath.Join(tmp, "master.hex")
	writeFile(t, masterPath, "00112233445566778899AABBCCDDEEFF\n")

	cfgPath := filepath.Join(tmp, "config.yaml")
	writeFile(t, cfgPath, `
runtime:
  reader_index: 0
attack:
  method: combined
  sectors: [0, 1, 2]
  connect_retries: 5
  connect_backoff: 100ms
bruteforce:
  strategy: hybrid
  budget: 45s
nonce:
  probes: 4
  depth: quick
dictionaries:
  dir: "keys"
  master_key_files: ["master.hex"]
output:
  dump_file: "out/dump.yaml"
`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Dictionaries.Dir != dictDir {
		t.Fatalf("expected resolved dictionary dir %q, got %q", dictDir, cfg.Dictionaries.Dir)
	}
	if cfg.Dictionaries.MasterKeyFiles[0] != masterPath {
		t.Fatalf("expected resolved master key path %q, got %q", masterPath, cfg.Dictionaries.MasterKeyFiles[0])
	}
	if want := filepath.Join(tmp, "out", "dump.yaml"); cfg.Output.DumpFile != want {
		t.Fatalf("expected resolved output path %q, got %q", want, cfg.Output.DumpFile)
	}
	if cfg.ConnectBackoff() != 100*time.Millisecond {
		t.Fatalf("expected 100ms backoff, got %s", cfg.ConnectBackoff())
	}
	if cfg.BruteForceBudget() != 45*time.Second {
		t.Fatalf("expected 45s budget, got %s", cfg.BruteForceBudget())
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	writeFile(t, cfgPath, `
runtime:
  reader_index: 0
  reader_name: "ACR122"
`)

	_, err := Load(cfgPath)
	if err == nil {
		t.Fatalf("expected error for unknown field")
	}
	if !strings.Contains(err.Error(), "reader_name") {
		t.Fatalf("expected unknown field in error, got: %v", err)
	}
}

func TestValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		mode ValidationMode
		yaml string
		want string
	}{
		{"missing reader", ValidationCrack, "attack:\n  method: dictionary\n", "config.runtime.reader_index is required"},
		{"negative reader", ValidationRead, "runtime:\n  reader_index: -1\n", "config.runtime.reader_index must be >= 0"},
		{"bad layout", ValidationCrack, "runtime:\n  reader_index: 0\n  layout: 8k\n", "config.runtime.layout"},
		{"bad budget", ValidationCrack, "runtime:\n  reader_index: 0\nbruteforce:\n  budget: soon\n", "config.bruteforce.budget"},
		{"bad depth", ValidationCrack, "runtime:\n  reader_index: 0\nnonce:\n  depth: deeper\n", "config.nonce.depth"},
		{"sector range", ValidationCrack, "runtime:\n  reader_index: 0\nattack:\n  sectors: [40]\n", "config.attack.sectors"},
		{"write dump", ValidationWrite, "runtime:\n  reader_index: 0\n", "config.write.dump_file is required"},
		{"emulator uid", ValidationEmulator, "emulator:\n  layout: 1k\n", "config.emulator.uid is required"},
		{"emulator uid length", ValidationEmulator, "emulator:\n  uid: 04A1B2\n", "4 or 7 bytes"},
		{"emulator key", ValidationEmulator, "emulator:\n  uid: 04A1B2C3\n  sectors:\n    - sector: 1\n      key_a: XYZ\n", "config.emulator.sectors[0].key_a"},
		{"emulator block", ValidationEmulator, "emulator:\n  uid: 04A1B2C3\n  blocks:\n    - block: 64\n      data: 00\n", "out of range"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfgPath := filepath.Join(t.TempDir(), "config.yaml")
			writeFile(t, cfgPath, tc.yaml)
			_, err := LoadWithMode(cfgPath, tc.mode)
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got: %v", tc.want, err)
			}
		})
	}
}

func TestEmulatorModeDoesNotNeedReader(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, `
emulator:
  uid: 04A1B2C3
  layout: 1k
  sectors:
    - sector: 1
      key_a: 4D3A99F1C207
  blocks:
    - block: 4
      data: "00112233445566778899AABBCCDDEEFF"
`)

	cfg, err := LoadWithMode(cfgPath, ValidationEmulator)
	if err != nil {
		t.Fatalf("LoadWithMode returned error: %v", err)
	}
	sim, err := cfg.NewSimCard()
	if err != nil {
		t.Fatalf("NewSimCard returned error: %v", err)
	}
	a, b := sim.SectorKeys(1)
	if a != mfclassic.MustParseKey("4D3A99F1C207") {
		t.Fatalf("expected emulated key A, got %s", a)
	}
	if b != mfclassic.MustParseKey("FFFFFFFFFFFF") {
		t.Fatalf("expected key B to stay at the transport key, got %s", b)
	}
	want := []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	if !bytes.Equal(sim.Block(4), want) {
		t.Fatalf("expected block 4 %X, got %X", want, sim.Block(4))
	}
}

func TestWriteModeRequiresReadableDump(t *testing.T) {
	tmp := t.TempDir()
	writeFile(t, filepath.Join(tmp, "dump.yaml"), "uid: 04A1B2C3\nblocks: []\n")
	cfgPath := filepath.Join(tmp, "config.yaml")
	writeFile(t, cfgPath, "runtime:\n  reader_index: 1\nwrite:\n  dump_file: dump.yaml\n")

	cfg, err := LoadWithMode(cfgPath, ValidationWrite)
	if err != nil {
		t.Fatalf("LoadWithMode returned error: %v", err)
	}
	if cfg.Write.DumpFile != filepath.Join(tmp, "dump.yaml") {
		t.Fatalf("expected resolved dump path, got %q", cfg.Write.DumpFile)
	}
}

func TestDumpSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.yaml")
	d := &Dump{
		UID:    "04A1B2C3",
		Layout: "1k",
		Keys: []DumpKeys{
			{Sector: 1, KeyA: "FFFFFFFFFFFF"},
			{Sector: 1, KeyB: "9C1E5B2D7A03"},
		},
		Blocks: []DumpBlock{
			{Block: 4, KeyType: "B", Data: "000102030405060708090A0B0C0D0E0F"},
			{Block: 5, Data: "FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF"},
		},
	}
	if err := d.Save(path); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	got, err := LoadDump(path)
	if err != nil {
		t.Fatalf("LoadDump returned error: %v", err)
	}

	pairs := got.KeyPairs()
	if !pairs[1].Complete() {
		t.Fatalf("expected both keys of sector 1 merged, got %s", pairs[1])
	}
	blocks := got.BlockData()
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].KeyType != mfclassic.KeyB || blocks[0].Data[15] != 0x0F {
		t.Fatalf("unexpected first block %+v", blocks[0])
	}
	if blocks[1].KeyType != mfclassic.KeyA {
		t.Fatalf("expected key type to default to A, got %s", blocks[1].KeyType)
	}
}

func TestLoadDumpRejectsShortBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.yaml")
	writeFile(t, path, "uid: 04A1B2C3\nblocks:\n  - block: 4\n    data: \"0011\"\n")

	_, err := LoadDump(path)
	if err == nil || !strings.Contains(err.Error(), "dump.blocks[0].data") {
		t.Fatalf("expected block data error, got: %v", err)
	}
}

func TestParseLayoutAcceptsSectorCount(t *testing.T) {
	tests := []struct {
		in   string
		want mfclassic.Layout
	}{
		{"4K", mfclassic.Layout4K},
		{"40", mfclassic.Layout4K},
		{" 5 ", mfclassic.LayoutMini},
		{"", mfclassic.Layout{}},
	}
	for _, tt := range tests {
		got, err := ParseLayout(tt.in)
		if err != nil || got != tt.want {
			t.Fatalf("ParseLayout(%q): expected %s, got %s (%v)", tt.in, tt.want, got, err)
		}
	}
	for _, bad := range []string{"7", "8k"} {
		if _, err := ParseLayout(bad); err == nil {
			t.Fatalf("expected error for layout %q", bad)
		}
	}
}
