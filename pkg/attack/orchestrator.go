// Package attack sequences the key recovery engines against one card and
// drives the final read or write pass with the recovered keys.
package attack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/bruteforce"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/dictionary"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/hardnested"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/keycorpus"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mkf32"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/nonce"
)

const (
	DefaultConnectRetries = 3
	DefaultConnectBackoff = 250 * time.Millisecond
	DefaultNonceProbes    = 8
)

// NonceDepth selects the NonceAnalyzer path.
type NonceDepth int

const (
	NonceDefault NonceDepth = iota
	NonceQuick
	NonceDeep
)

// BlockData is one captured block to write back, with the key type it was read with.
type BlockData struct {
	Block   int
	Data    []byte
	KeyType mfclassic.KeyType
}

// Config is the externally supplied run configuration. Zero values take defaults.
type Config struct {
	Mode   Mode
	Method Method
	// Sectors restricts the run; empty means every sector of the card.
	Sectors []int

	ConnectRetries int
	ConnectBackoff time.Duration

	BruteForceStrategy bruteforce.Strategy
	BruteForceBudget   time.Duration

	NonceProbes int
	NonceDepth  NonceDepth

	// Keys are sector keys known before the run (e.g. from an earlier dump).
	Keys map[int]mfclassic.KeyPair
	// Dump is written back in ModeWrite.
	Dump []BlockData
}

// Orchestrator runs attack sessions against one Tag. Runs are sequential.
type Orchestrator struct {
	tag     mfclassic.Tag
	cfg     Config
	baseLog *slog.Logger
	log     *slog.Logger
	notify  func(Status)

	corpus    *keycorpus.Corpus
	dict      *dictionary.Matcher
	mkf       *mkf32.Engine
	analyzer  *nonce.Analyzer
	collector *nonce.Collector
	hard      *hardnested.Attacker
	brute     *bruteforce.Engine

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	session *Session
	stages  []StageReport
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithObserver registers the status callback. It runs on the run goroutine.
func WithObserver(fn func(Status)) Option {
	return func(o *Orchestrator) { o.notify = fn }
}

// WithCorpus replaces the static key corpus.
func WithCorpus(c *keycorpus.Corpus) Option {
	return func(o *Orchestrator) { o.corpus = c }
}

func WithDictionary(m *dictionary.Matcher) Option {
	return func(o *Orchestrator) { o.dict = m }
}

func WithMKF32(e *mkf32.Engine) Option {
	return func(o *Orchestrator) { o.mkf = e }
}

func WithNonceAnalyzer(a *nonce.Analyzer) Option {
	return func(o *Orchestrator) { o.analyzer = a }
}

func WithHardnested(a *hardnested.Attacker) Option {
	return func(o *Orchestrator) { o.hard = a }
}

func WithBruteForce(e *bruteforce.Engine) Option {
	return func(o *Orchestrator) { o.brute = e }
}

// New builds an Orchestrator for tag.
func New(tag mfclassic.Tag, cfg Config, opts ...Option) *Orchestrator {
	if cfg.ConnectRetries <= 0 {
		cfg.ConnectRetries = DefaultConnectRetries
	}
	if cfg.ConnectBackoff <= 0 {
		cfg.ConnectBackoff = DefaultConnectBackoff
	}
	if cfg.BruteForceBudget <= 0 {
		cfg.BruteForceBudget = bruteforce.DefaultBudget
	}
	if cfg.NonceProbes <= 0 {
		cfg.NonceProbes = DefaultNonceProbes
	}
	o := &Orchestrator{tag: tag, cfg: cfg}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	o.baseLog = o.log
	if o.corpus == nil {
		o.corpus = keycorpus.New()
	}
	if o.dict == nil {
		o.dict = dictionary.New()
	}
	if o.mkf == nil {
		o.mkf = mkf32.New()
	}
	if o.analyzer == nil {
		o.analyzer = nonce.New()
	}
	if o.collector == nil {
		o.collector = &nonce.Collector{}
	}
	if o.hard == nil {
		o.hard = hardnested.New()
	}
	if o.brute == nil {
		o.brute = bruteforce.New()
	}
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Cancel stops the current run at the next check point. Keys found so far are kept.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// publish sends a status snapshot. Never called with o.mu held.
func (o *Orchestrator) publish(msg, progress string, current, total int) {
	if o.notify == nil {
		return
	}
	st := Status{
		State:    o.State(),
		Method:   o.cfg.Method,
		Message:  msg,
		Progress: progress,
		Current:  current,
		Total:    total,
	}
	if o.session != nil {
		st.Cracked = o.session.CrackedSectors()
		st.Found = o.session.FoundCopy()
	}
	o.notify(st)
}

// Run connects to the card, runs the configured method and the final pass.
// The returned Report is never nil. The error is ErrConnection when the card
// could not be reached and the context error when the run was cancelled.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return &Report{Outcome: StateFailed, Reason: ErrBusy.Error()}, ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.state = StateConnecting
	o.session = nil
	o.stages = nil
	o.mu.Unlock()

	defer func() {
		cancel()
		o.mu.Lock()
		o.cancel = nil
		o.state = StateIdle
		o.mu.Unlock()
		o.publish("idle", "", 0, 0)
	}()

	started := time.Now()
	o.publish("connecting", "", 0, 0)
	if err := o.connect(ctx); err != nil {
		return o.finish(started, err), err
	}

	o.session = newSession(o.tag.UID(), o.tag.Layout(), o.cfg.Mode, o.cfg.Method)
	for sec, pair := range o.cfg.Keys {
		o.session.Record(sec, pair, "preset")
	}
	o.log = o.baseLog.With("session", o.session.ID.String())
	o.log.Info("attack started", "uid", fmt.Sprintf("%X", o.session.UID), "layout", o.session.Layout.String(), "mode", o.cfg.Mode.String(), "method", o.cfg.Method.String())

	o.setState(StateRunning)
	o.publish("running "+o.cfg.Method.String(), "", 0, len(o.sectors()))

	err := o.runMethod(ctx, o.cfg.Method)
	if err == nil {
		if o.cfg.Mode == ModeWrite {
			err = o.writePass(ctx)
		} else {
			err = o.readPass(ctx)
		}
	}
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	return o.finish(started, err), err
}

// finish builds the report and moves to the terminal state. Cancellation wins.
func (o *Orchestrator) finish(started time.Time, err error) *Report {
	r := &Report{
		Mode:     o.cfg.Mode,
		Method:   o.cfg.Method,
		Started:  started,
		Finished: time.Now(),
		Stages:   o.stages,
	}
	if s := o.session; s != nil {
		r.SessionID = s.ID
		r.UID = s.UID
		r.Layout = s.Layout
		r.Found = s.FoundCopy()
		r.Sources = make(map[int]string, len(s.Sources))
		for k, v := range s.Sources {
			r.Sources[k] = v
		}
		r.Blocks = s.blocks
		for _, b := range s.blocks {
			switch b.Status {
			case BlockWritten:
				r.Written++
			case BlockRefused, BlockWriteError, BlockVerifyFailed, BlockNotCracked, BlockNotAuthenticated:
				if o.cfg.Mode == ModeWrite {
					r.NotWritten++
				}
			}
		}
	}

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		r.Outcome = StateCancelled
		r.Reason = err.Error()
		if o.session != nil {
			o.session.Cancelled = true
		}
	case err != nil:
		r.Outcome = StateFailed
		r.Reason = err.Error()
	default:
		r.Outcome = StateSucceeded
	}
	o.setState(r.Outcome)
	o.log.Info("attack finished", "outcome", r.Outcome.String(), "cracked", r.CrackedCount(), "reason", r.Reason)
	o.publish(r.Outcome.String(), fmt.Sprintf("%d sectors cracked", r.CrackedCount()), 0, 0)
	return r
}

// connect dials the card with doubling backoff.
func (o *Orchestrator) connect(ctx context.Context) error {
	backoff := o.cfg.ConnectBackoff
	var lastErr error
	for attempt := 0; attempt <= o.cfg.ConnectRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = o.tag.Connect()
		if lastErr == nil {
			return nil
		}
		o.log.Warn("connect failed", "attempt", attempt+1, "error", lastErr)
		if attempt == o.cfg.ConnectRetries {
			break
		}
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		backoff *= 2
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrConnection, o.cfg.ConnectRetries+1, lastErr)
}

// withReconnect runs fn and, if the card left the field, reconnects and runs it once more.
func (o *Orchestrator) withReconnect(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !mfclassic.IsNotConnected(err) {
		return err
	}
	o.log.Warn("card lost, reconnecting", "error", err)
	o.publish("card lost, reconnecting", "", 0, 0)
	if cerr := o.connect(ctx); cerr != nil {
		return cerr
	}
	return fn()
}

// sectors returns the configured sector list, or every sector of the card.
func (o *Orchestrator) sectors() []int {
	layout := o.tag.Layout()
	if len(o.cfg.Sectors) > 0 {
		var out []int
		for _, s := range o.cfg.Sectors {
			if layout.ValidSector(s) {
				out = append(out, s)
			}
		}
		return out
	}
	out := make([]int, layout.SectorCount())
	for i := range out {
		out[i] = i
	}
	return out
}
