package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eddyslarez/lectorNFCV2-sub000/mfcrack/internal/config"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/attack"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

func runSim(t *testing.T, fill byte, cfg attack.Config) (*mfclassic.SimCard, *attack.Report) {
	t.Helper()
	sim := mfclassic.NewSimCard([]byte{0x04, 0xA1, 0xB2, 0xC3}, mfclassic.Layout1K)
	sim.SetBlock(4, bytes.Repeat([]byte{fill}, mfclassic.BlockSize))
	rep, err := attack.New(mfclassic.NewReader(mfclassic.StaticDialer(sim), mfclassic.Layout{}), cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	return sim, rep
}

func TestDumpRoundTripDrivesWritePass(t *testing.T) {
	_, rep := runSim(t, 0x5A, attack.Config{Method: attack.MethodDictionary, Sectors: []int{0, 1}})

	d := dumpFromReport(rep)
	if d.UID != "04A1B2C3" || d.Layout != "1k" {
		t.Fatalf("unexpected dump header %q %q", d.UID, d.Layout)
	}
	if len(d.Blocks) != 8 || len(d.Keys) != 2 {
		t.Fatalf("expected 8 blocks and 2 key entries, got %d and %d", len(d.Blocks), len(d.Keys))
	}

	path := filepath.Join(t.TempDir(), "dump.yaml")
	if err := d.Save(path); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	loaded, err := config.LoadDump(path)
	if err != nil {
		t.Fatalf("LoadDump returned error: %v", err)
	}

	wc := attack.Config{Mode: attack.ModeWrite, Method: attack.MethodDictionary, Sectors: []int{0, 1}, Keys: loaded.KeyPairs()}
	for _, b := range loaded.BlockData() {
		wc.Dump = append(wc.Dump, attack.BlockData{Block: b.Block, Data: b.Data, KeyType: b.KeyType})
	}
	sim, wrep := runSim(t, 0x00, wc)
	// blocks 1, 2, 4, 5, 6 are writable; 0, 3 and 7 are refused.
	if wrep.Written != 5 || wrep.NotWritten != 3 {
		t.Fatalf("expected 5 written and 3 refused, got %d and %d", wrep.Written, wrep.NotWritten)
	}
	if !bytes.Equal(sim.Block(4), bytes.Repeat([]byte{0x5A}, mfclassic.BlockSize)) {
		t.Fatalf("block 4 not restored")
	}
}

func TestPrintReportShowsTrailer(t *testing.T) {
	_, rep := runSim(t, 0x5A, attack.Config{Method: attack.MethodDictionary, Sectors: []int{1}})

	var buf bytes.Buffer
	printReport(&buf, rep)
	out := buf.String()
	for _, want := range []string{"Outcome: succeeded", "sector  1: A=FFFFFFFFFFFF B=FFFFFFFFFFFF", "Sector 1 trailer", "5A 5A 5A"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected report to contain %q, got:\n%s", want, out)
		}
	}
}

func TestChooseMethodPrefersFlagThenConfig(t *testing.T) {
	m, err := chooseMethod("nonce", "mkf32")
	if err != nil || m != attack.MethodNonce {
		t.Fatalf("expected nonce from flag, got %s (%v)", m, err)
	}
	m, err = chooseMethod("", "mkf32")
	if err != nil || m != attack.MethodMKF32 {
		t.Fatalf("expected mkf32 from config, got %s (%v)", m, err)
	}
	if _, err := chooseMethod("rainbow", ""); err == nil {
		t.Fatalf("expected error for unknown method")
	}
}
