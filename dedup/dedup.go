// Package dedup removes sub-halo particles from their host halos' particle
// lists, across shard boundaries, so that no particle is claimed by both.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package dedup

import (
	"context"
	"fmt"
	"slices"

	"github.com/NVIDIA/tspec/cmn/cos"
	"github.com/NVIDIA/tspec/cmn/debug"
	"github.com/NVIDIA/tspec/cmn/mono"
	"github.com/NVIDIA/tspec/cmn/nlog"
	"github.com/NVIDIA/tspec/halo"
	"github.com/NVIDIA/tspec/transport"
)

// stats names
const (
	StatMIA     = "dedup.mia"
	StatReplies = "dedup.replies"
	StatMasked  = "dedup.masked"
)

type (
	Opts struct {
		StatsTracker cos.StatsUpdater
		Strategy     string // cmn.StrategyNested | cmn.StrategyMerge
	}
	Result struct {
		Local    int64 // sub-halos found in the local table
		MIA      int64 // sub-halos requested from peers
		Replies  int64 // replies served to peers
		Masked   int64 // particle entries replaced with the sentinel
		Warnings int64 // replies whose host id disagrees with the requesting halo
		Elapsed  int64 // nanoseconds
	}

	// mask hosts[slot] against pids (a sub-halo's original list)
	maskOp struct {
		pids []int32
		slot int
	}

	deduper struct {
		comm *transport.Comm
		t    *halo.Table
		mask MaskFunc
		ops  []maskOp
		res  Result
	}
)

// Run resolves host/sub-halo overlap for every halo slot. All workers of comm
// must call it with tables of equal size (halo.Table.NMax). Masks are applied
// once the exchange is complete, so that every host is masked against its
// subs' original (unmasked) lists regardless of reply arrival order. This
// also makes Run idempotent.
func Run(ctx context.Context, comm *transport.Comm, t *halo.Table, opts *Opts) (*Result, error) {
	mask, err := MaskFor(opts.Strategy)
	if err != nil {
		return nil, err
	}
	var (
		d       = &deduper{comm: comm, t: t, mask: mask}
		started = mono.NanoTime()
	)
	for slot := range t.NMax {
		if err := d.slot(ctx, slot); err != nil {
			return nil, err
		}
	}
	for _, op := range d.ops {
		d.res.Masked += int64(d.mask(t.Get(op.slot).PIDs, op.pids))
	}
	d.res.Elapsed = mono.SinceNano(started)
	if tr := opts.StatsTracker; tr != nil {
		tr.Add(StatMIA, d.res.MIA)
		tr.Add(StatReplies, d.res.Replies)
		tr.Add(StatMasked, d.res.Masked)
	}
	if comm.IsCoord() {
		nlog.Infof("dedup: %d local, %d remote sub-halo%s, %d particle entr%s masked (%s)",
			d.res.Local, d.res.MIA, cos.Plural(int(d.res.MIA)), d.res.Masked, plurY(d.res.Masked),
			cos.FormatNanoTime(d.res.Elapsed))
	}
	return &d.res, nil
}

func plurY(n int64) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

// slot runs one halo slot: local resolution, then one round per rank.
func (d *deduper) slot(ctx context.Context, slot int) error {
	var (
		h   = d.t.Get(slot)
		mia []int64
	)
	for _, sub := range h.Subs {
		if j, ok := d.t.Find(sub); ok {
			d.ops = append(d.ops, maskOp{slot: slot, pids: slices.Clone(d.t.Get(j).PIDs)})
			d.res.Local++
			continue
		}
		mia = append(mia, sub)
	}
	for active := range d.comm.Size() {
		var err error
		if active == d.comm.Rank() {
			err = d.request(ctx, slot, mia)
		} else {
			err = d.serve(ctx, slot, active)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// request is the active side of a round.
func (d *deduper) request(ctx context.Context, slot int, mia []int64) error {
	var (
		h       = d.t.Get(slot)
		npeers  = d.comm.Size() - 1
		body    = packIDs(mia)
		pending = make(map[int64]struct{}, len(mia))
		scanned = int64(d.t.NLocal) // bounded by halo.Table.NTot
	)
	for _, id := range mia {
		pending[id] = struct{}{}
	}
	d.res.MIA += int64(len(mia))
	for r := range d.comm.Size() {
		if r == d.comm.Rank() {
			continue
		}
		if err := d.comm.Send(ctx, r, TagMIA, int64(slot), body); err != nil {
			return err
		}
	}
	for done := 0; done < npeers; {
		msg, err := d.comm.RecvAny(ctx, transport.AnySource, TagReply, TagDone)
		if err != nil {
			return err
		}
		if msg.Tag == TagDone {
			if msg.Corr != int64(slot) {
				return cos.NewErrIntegrity(d.where(), "done marker from rank %d for slot %d, expected %d",
					msg.Src, msg.Corr, slot)
			}
			n, err := cos.NewUnpacker(msg.Body).ReadInt64()
			if err != nil {
				return cos.NewErrIntegrity(d.where(), "bad done marker from rank %d: %v", msg.Src, err)
			}
			scanned += n
			done++
			continue
		}
		id := msg.Corr
		if _, ok := pending[id]; !ok {
			return cos.NewErrIntegrity(d.where(), "unexpected reply for halo %d from rank %d (requested by halo %d: %v)",
				id, msg.Src, h.ID, mia)
		}
		var rep reply
		if err := cos.NewUnpacker(msg.Body).ReadAny(&rep); err != nil {
			return cos.NewErrIntegrity(d.where(), "bad reply for halo %d from rank %d: %v", id, msg.Src, err)
		}
		if rep.host != h.ID {
			d.res.Warnings++
			nlog.Warningf("%s: sub-halo %d (rank %d) names host %d, listed by halo %d", d.where(), id, msg.Src, rep.host, h.ID)
		}
		delete(pending, id)
		d.ops = append(d.ops, maskOp{slot: slot, pids: rep.pids})
	}
	if len(pending) > 0 {
		missing := make([]int64, 0, len(pending))
		for id := range pending {
			missing = append(missing, id)
		}
		slices.Sort(missing)
		debug.Assert(scanned >= int64(d.t.NLocal))
		return cos.NewErrMaxIters(int(scanned), "halo %d: sub-halo%s %v not found in any of %d shard%s",
			h.ID, cos.Plural(len(missing)), missing, d.comm.Size(), cos.Plural(d.comm.Size()))
	}
	return nil
}

// serve is the passive side: answer the active rank's MIA list.
func (d *deduper) serve(ctx context.Context, slot, active int) error {
	msg, err := d.comm.Recv(ctx, active, TagMIA)
	if err != nil {
		return err
	}
	if msg.Corr != int64(slot) {
		return cos.NewErrIntegrity(d.where(), "MIA list from rank %d for slot %d, expected %d", active, msg.Corr, slot)
	}
	ids, err := cos.NewUnpacker(msg.Body).ReadI64s()
	if err != nil {
		return cos.NewErrIntegrity(d.where(), "bad MIA list from rank %d: %v", active, err)
	}
	for _, id := range ids {
		j, ok := d.t.Find(id)
		if !ok {
			continue
		}
		sub := d.t.Get(j)
		if err := d.comm.Send(ctx, active, TagReply, id, packReply(&reply{pids: sub.PIDs, host: sub.Host})); err != nil {
			return err
		}
		d.res.Replies++
	}
	return d.comm.Send(ctx, active, TagDone, int64(slot), packInt64(int64(d.t.NLocal)))
}

func (d *deduper) where() string { return fmt.Sprintf("dedup[rank %d]", d.comm.Rank()) }
