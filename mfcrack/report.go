package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/eddyslarez/lectorNFCV2-sub000/mfcrack/internal/config"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/attack"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

func printReport(w io.Writer, rep *attack.Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Attack report ===")
	if len(rep.UID) > 0 {
		fmt.Fprintf(w, "Session: %s\n", rep.SessionID)
		fmt.Fprintf(w, "UID:     %X (%s)\n", rep.UID, rep.Layout)
	}
	fmt.Fprintf(w, "Method:  %s, mode %s\n", rep.Method, rep.Mode)
	fmt.Fprintf(w, "Outcome: %s", rep.Outcome)
	if rep.Reason != "" {
		fmt.Fprintf(w, " (%s)", rep.Reason)
	}
	fmt.Fprintf(w, " in %s\n", rep.Finished.Sub(rep.Started).Round(time.Millisecond))

	if len(rep.Stages) > 0 {
		fmt.Fprintln(w)
		for _, st := range rep.Stages {
			fmt.Fprintf(w, "  %-11s attempted %2d, cracked %2d\n", st.Method, len(st.Attempted), len(st.Cracked))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Keys (%d sectors cracked):\n", rep.CrackedCount())
	sectors := make([]int, 0, len(rep.Found))
	for s := range rep.Found {
		sectors = append(sectors, s)
	}
	sort.Ints(sectors)
	for _, s := range sectors {
		fmt.Fprintf(w, "  sector %2d: %s  [%s]\n", s, rep.Found[s], rep.Sources[s])
	}

	if rep.Mode == attack.ModeWrite {
		printWrites(w, rep)
		return
	}
	printBlocks(w, rep)
}

func printBlocks(w io.Writer, rep *attack.Report) {
	if len(rep.Blocks) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Blocks:")
	for _, b := range rep.Blocks {
		switch b.Status {
		case attack.BlockOK:
			fmt.Fprintf(w, "  %3d  % X\n", b.Block, b.Data)
			if rep.Layout.IsTrailer(b.Block) {
				if t, err := mfclassic.ParseTrailer(b.Data); err == nil {
					var sb strings.Builder
					mfclassic.FormatTrailer(&sb, b.Sector, t)
					for _, line := range strings.Split(strings.TrimRight(sb.String(), "\n"), "\n") {
						fmt.Fprintf(w, "       %s\n", line)
					}
				}
			}
		case attack.BlockReadError, attack.BlockNotAuthenticated:
			fmt.Fprintf(w, "  %3d  -- %s: %s\n", b.Block, b.Status, b.Err)
		default:
			fmt.Fprintf(w, "  %3d  -- %s\n", b.Block, b.Status)
		}
	}
}

func printWrites(w io.Writer, rep *attack.Report) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Written: %d, not written: %d\n", rep.Written, rep.NotWritten)
	for _, b := range rep.Blocks {
		line := fmt.Sprintf("  %3d  %s", b.Block, b.Status)
		if b.Status == attack.BlockWritten {
			line += " with key " + b.KeyType.String()
		}
		if b.Err != "" {
			line += ": " + b.Err
		}
		fmt.Fprintln(w, line)
	}
}

// dumpFromReport keeps the blocks that were read and every recovered key.
// Trailers and block 0 are saved for reference; the write pass refuses them.
func dumpFromReport(rep *attack.Report) *config.Dump {
	d := &config.Dump{
		UID:    fmt.Sprintf("%X", rep.UID),
		Layout: layoutName(rep.Layout),
	}
	sectors := make([]int, 0, len(rep.Found))
	for s := range rep.Found {
		sectors = append(sectors, s)
	}
	sort.Ints(sectors)
	for _, s := range sectors {
		p := rep.Found[s]
		k := config.DumpKeys{Sector: s}
		if a, ok := p.Get(mfclassic.KeyA); ok {
			k.KeyA = a.String()
		}
		if b, ok := p.Get(mfclassic.KeyB); ok {
			k.KeyB = b.String()
		}
		d.Keys = append(d.Keys, k)
	}
	for _, b := range rep.Blocks {
		if b.Status != attack.BlockOK {
			continue
		}
		d.Blocks = append(d.Blocks, config.DumpBlock{
			Block:   b.Block,
			KeyType: b.KeyType.String(),
			Data:    fmt.Sprintf("%X", b.Data),
		})
	}
	return d
}

func layoutName(l mfclassic.Layout) string {
	switch l.Sectors {
	case mfclassic.LayoutMini.Sectors:
		return "mini"
	case mfclassic.Layout2K.Sectors:
		return "2k"
	case mfclassic.Layout4K.Sectors:
		return "4k"
	}
	return "1k"
}
