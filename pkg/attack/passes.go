package attack

import (
	"bytes"
	"context"
	"fmt"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

// readPass reads every block of the selected sectors with the recovered keys.
// Trailer blocks are patched with the known keys since cards mask key A.
func (o *Orchestrator) readPass(ctx context.Context) error {
	layout := o.tag.Layout()
	sectors := o.sectors()
	for i, s := range sectors {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.publish(fmt.Sprintf("reading sector %d", s), "", i+1, len(sectors))
		err := o.withReconnect(ctx, func() error {
			return o.readSector(layout, s)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) readSector(layout mfclassic.Layout, sector int) error {
	first := layout.SectorToBlock(sector)
	n := layout.BlocksInSector(sector)
	results := make([]BlockResult, 0, n)
	fill := func(status BlockStatus, msg string) {
		for b := first; b < first+n; b++ {
			results = append(results, BlockResult{Block: b, Sector: sector, Status: status, Err: msg})
		}
	}

	pair, ok := o.session.Found[sector]
	switch {
	case !ok || pair.Empty():
		fill(BlockNotCracked, "")
	default:
		kt, authed, err := mfclassic.AuthenticateWithFallback(o.tag, sector, pair, mfclassic.KeyA)
		if err != nil && mfclassic.IsNotConnected(err) {
			return err
		}
		if !authed {
			msg := ""
			if err != nil {
				msg = err.Error()
			}
			fill(BlockNotAuthenticated, msg)
			break
		}
		cur, live := kt, true
		for b := first; b < first+n; b++ {
			data, used, err := o.readWithKeys(sector, b, pair, cur, live)
			if err != nil {
				if mfclassic.IsNotConnected(err) {
					return err
				}
				live = false
				results = append(results, BlockResult{Block: b, Sector: sector, Status: BlockReadError, KeyType: used, Err: err.Error()})
				continue
			}
			cur, live = used, true
			if layout.IsTrailer(b) {
				data = patchTrailer(data, pair)
			}
			if b == 0 {
				o.checkManufacturerSAK(layout, data)
			}
			results = append(results, BlockResult{Block: b, Sector: sector, Status: BlockOK, Data: data, KeyType: cur})
		}
	}
	o.session.blocks = append(o.session.blocks, results...)
	return nil
}

// readWithKeys reads block with side cur and retries with the other known
// side. A refused read drops the card's authentication, so authed=false
// makes the first attempt re-authenticate.
func (o *Orchestrator) readWithKeys(sector, block int, pair mfclassic.KeyPair, cur mfclassic.KeyType, authed bool) ([]byte, mfclassic.KeyType, error) {
	sides := []mfclassic.KeyType{cur}
	if pair.Has(cur.Other()) {
		sides = append(sides, cur.Other())
	}
	var lastErr error
	for i, side := range sides {
		if i > 0 || !authed {
			key, _ := pair.Get(side)
			ok, err := o.tag.Authenticate(sector, side, key)
			if err != nil {
				if mfclassic.IsNotConnected(err) {
					return nil, side, err
				}
				lastErr = err
				continue
			}
			if !ok {
				lastErr = fmt.Errorf("key %s rejected", side)
				continue
			}
		}
		data, err := o.tag.ReadBlock(block)
		if err == nil {
			return data, side, nil
		}
		if !mfclassic.IsAuthError(err) {
			return nil, side, err
		}
		o.log.Debug("block read refused", "block", block, "key_type", side.String(), "error", err)
		lastErr = err
	}
	return nil, cur, lastErr
}

// checkManufacturerSAK warns when the SAK stored in block 0 names another card size.
func (o *Orchestrator) checkManufacturerSAK(layout mfclassic.Layout, block0 []byte) {
	i := len(o.session.UID) + 1
	if len(o.session.UID) != 4 || i >= len(block0) {
		return
	}
	if l, ok := mfclassic.LayoutForSAK(block0[i]); ok && l != layout {
		o.log.Warn("manufacturer SAK disagrees with layout", "sak", fmt.Sprintf("%02X", block0[i]), "sak_layout", l.String(), "layout", layout.String())
	}
}

func patchTrailer(data []byte, pair mfclassic.KeyPair) []byte {
	t, err := mfclassic.ParseTrailer(data)
	if err != nil {
		return data
	}
	if k, ok := pair.Get(mfclassic.KeyA); ok {
		t.KeyA = k
	}
	if k, ok := pair.Get(mfclassic.KeyB); ok {
		t.KeyB = k
	}
	return t.Bytes()
}

// writePass writes Config.Dump back. Block 0 and trailers are refused; every
// other block is written with the sector's original key type (falling back
// to the other) and read back for verification.
func (o *Orchestrator) writePass(ctx context.Context) error {
	layout := o.tag.Layout()
	dump := sortedDump(o.cfg.Dump)
	for i, bd := range dump {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.publish(fmt.Sprintf("writing block %d", bd.Block), "", i+1, len(dump))
		var res BlockResult
		err := o.withReconnect(ctx, func() error {
			var err error
			res, err = o.writeBlock(layout, bd)
			return err
		})
		if err != nil {
			return err
		}
		o.session.blocks = append(o.session.blocks, res)
	}
	return nil
}

func (o *Orchestrator) writeBlock(layout mfclassic.Layout, bd BlockData) (BlockResult, error) {
	res := BlockResult{Block: bd.Block, Data: bd.Data}
	if !layout.ValidBlock(bd.Block) {
		res.Status = BlockRefused
		res.Err = "block out of range"
		return res, nil
	}
	sector := layout.BlockToSector(bd.Block)
	res.Sector = sector
	switch {
	case layout.IsManufacturerBlock(bd.Block):
		res.Status = BlockRefused
		res.Err = "manufacturer block is read-only"
		o.log.Warn("refusing to write block 0")
		return res, nil
	case layout.IsTrailer(bd.Block):
		res.Status = BlockRefused
		res.Err = "sector trailer writes are not allowed"
		o.log.Warn("refusing to write trailer", "block", bd.Block)
		return res, nil
	case len(bd.Data) != mfclassic.BlockSize:
		res.Status = BlockRefused
		res.Err = fmt.Sprintf("data must be %d bytes, got %d", mfclassic.BlockSize, len(bd.Data))
		return res, nil
	}

	pair, ok := o.session.Found[sector]
	if !ok || pair.Empty() {
		res.Status = BlockNotCracked
		return res, nil
	}
	preferred := bd.KeyType
	if preferred != mfclassic.KeyB {
		preferred = mfclassic.KeyA
	}
	kt, authed, err := mfclassic.AuthenticateWithFallback(o.tag, sector, pair, preferred)
	if err != nil && mfclassic.IsNotConnected(err) {
		return res, err
	}
	if !authed {
		res.Status = BlockNotAuthenticated
		if err != nil {
			res.Err = err.Error()
		}
		return res, nil
	}
	res.KeyType = kt

	if err := o.tag.WriteBlock(bd.Block, bd.Data); err != nil {
		if mfclassic.IsNotConnected(err) {
			return res, err
		}
		res.Status = BlockWriteError
		res.Err = err.Error()
		return res, nil
	}
	back, err := o.tag.ReadBlock(bd.Block)
	if err != nil {
		if mfclassic.IsNotConnected(err) {
			return res, err
		}
		res.Status = BlockVerifyFailed
		res.Err = err.Error()
		return res, nil
	}
	if !bytes.Equal(back, bd.Data) {
		res.Status = BlockVerifyFailed
		res.Err = fmt.Sprintf("read back %X", back)
		return res, nil
	}
	res.Status = BlockWritten
	o.log.Info("block written", "block", bd.Block, "key_type", kt.String())
	return res, nil
}
