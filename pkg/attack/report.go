package attack

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

// Status is published to the observer on every state change and at a
// bounded cadence while engines run.
type Status struct {
	State    State
	Method   Method
	Message  string
	Progress string
	Current  int // 1-based position in the current sector list
	Total    int
	Cracked  []int
	Found    map[int]mfclassic.KeyPair
}

// BlockStatus tags the outcome of reading or writing one block.
type BlockStatus int

const (
	BlockOK BlockStatus = iota
	BlockNotAuthenticated
	BlockNotCracked
	BlockReadError
	BlockWritten
	BlockRefused
	BlockWriteError
	BlockVerifyFailed
)

var blockStatusNames = [...]string{
	BlockOK:               "ok",
	BlockNotAuthenticated: "not authenticated",
	BlockNotCracked:       "sector not cracked",
	BlockReadError:        "read error",
	BlockWritten:          "written",
	BlockRefused:          "refused",
	BlockWriteError:       "write error",
	BlockVerifyFailed:     "verify failed",
}

func (s BlockStatus) String() string {
	if s >= 0 && int(s) < len(blockStatusNames) {
		return blockStatusNames[s]
	}
	return fmt.Sprintf("block-status(%d)", int(s))
}

// BlockResult is one block of a read or write pass.
type BlockResult struct {
	Block   int
	Sector  int
	Status  BlockStatus
	Data    []byte // read data, or the data written
	KeyType mfclassic.KeyType
	Err     string
}

// StageReport lists the sectors a stage attempted and cracked.
type StageReport struct {
	Method    string
	Attempted []int
	Cracked   []int
}

// Report is the final result of a run. Partial results are kept on
// cancellation and failure.
type Report struct {
	SessionID  uuid.UUID
	UID        []byte
	Layout     mfclassic.Layout
	Mode       Mode
	Method     Method
	Outcome    State
	Reason     string
	Found      map[int]mfclassic.KeyPair
	Sources    map[int]string
	Stages     []StageReport
	Blocks     []BlockResult
	Written    int
	NotWritten int
	Started    time.Time
	Finished   time.Time
}

// CrackedCount returns the number of sectors with at least one key.
func (r *Report) CrackedCount() int {
	n := 0
	for _, p := range r.Found {
		if !p.Empty() {
			n++
		}
	}
	return n
}
