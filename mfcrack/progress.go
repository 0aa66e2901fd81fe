package main

import (
	"fmt"
	"os"

	"github.com/cheggaaa/pb/v3"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/attack"
)

const progressTemplate = `{{string . "stage" | blue}} {{counters .}} {{bar . "[" "=" ">" " " "]"}} {{string . "detail" | green}} {{string . "cracked"}}`

// progress renders orchestrator status updates as a pb/v3 bar.
type progress struct {
	bar *pb.ProgressBar
}

func newProgress() *progress {
	bar := pb.New(0)
	bar.SetTemplateString(progressTemplate)
	bar.SetWriter(os.Stderr)
	bar.Set("stage", "connecting")
	return &progress{bar: bar}
}

func (p *progress) update(s attack.Status) {
	if s.State == attack.StateIdle {
		return
	}
	if !p.bar.IsStarted() {
		p.bar.Start()
	}
	if s.Total > 0 {
		p.bar.SetTotal(int64(s.Total))
		p.bar.SetCurrent(int64(s.Current))
	}
	p.bar.Set("stage", s.Message)
	p.bar.Set("detail", s.Progress)
	p.bar.Set("cracked", fmt.Sprintf("(%d cracked)", len(s.Cracked)))
}

func (p *progress) finish() {
	if p.bar.IsStarted() {
		p.bar.Finish()
	}
}
