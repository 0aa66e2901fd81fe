package attack

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConnection means the card could not be reached after the configured retries.
	ErrConnection = errors.New("card unreachable")
	// ErrBusy is returned by Run while another run is in progress.
	ErrBusy = errors.New("orchestrator is busy")
)

// Mode selects what a run does after cracking.
type Mode int

const (
	ModeCrack Mode = iota // crack, then read every block
	ModeRead              // same as ModeCrack; kept for callers that only dump
	ModeWrite             // crack, then write Config.Dump back to the card
)

var modeNames = [...]string{ModeCrack: "crack", ModeRead: "read", ModeWrite: "write"}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode maps a name to a Mode.
func ParseMode(s string) (Mode, error) {
	for i, n := range modeNames {
		if strings.EqualFold(s, n) {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q (want crack, read or write)", s)
}

// Method selects the attack engines.
type Method int

const (
	MethodDictionary Method = iota
	MethodNonce
	MethodHardnested
	MethodMKF32
	MethodBruteForce
	MethodCombined
)

var methodNames = [...]string{
	MethodDictionary: "dictionary",
	MethodNonce:      "nonce",
	MethodHardnested: "hardnested",
	MethodMKF32:      "mkf32",
	MethodBruteForce: "bruteforce",
	MethodCombined:   "combined",
}

// Methods lists every method in menu order.
var Methods = []Method{MethodDictionary, MethodMKF32, MethodHardnested, MethodNonce, MethodBruteForce, MethodCombined}

func (m Method) String() string {
	if m >= 0 && int(m) < len(methodNames) {
		return methodNames[m]
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// ParseMethod maps a name to a Method.
func ParseMethod(s string) (Method, error) {
	for i, n := range methodNames {
		if strings.EqualFold(s, n) {
			return Method(i), nil
		}
	}
	return 0, fmt.Errorf("unknown attack method %q", s)
}

// State is the orchestrator state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateRunning
	StateSucceeded
	StateCancelled
	StateFailed
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateConnecting: "connecting",
	StateRunning:    "running",
	StateSucceeded:  "succeeded",
	StateCancelled:  "cancelled",
	StateFailed:     "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateCancelled || s == StateFailed
}
