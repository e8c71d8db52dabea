// Package flagger marks every particle that belongs to a (deduplicated) halo
// and assigns it the halo's virial mass.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package flagger

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/NVIDIA/tspec/cmn/cos"
	"github.com/NVIDIA/tspec/cmn/mono"
	"github.com/NVIDIA/tspec/cmn/nlog"
	"github.com/NVIDIA/tspec/core"
	"github.com/NVIDIA/tspec/halo"
	"github.com/NVIDIA/tspec/transport"
)

const StatFlagged = "flag.particles"

type (
	Result struct {
		Assigned int64 // (halo, particle) assignments, sentinels excluded
		Flagged  int64 // distinct particles flagged
		Elapsed  int64
	}

	// one shard's halo table, flattened
	shardHalos struct {
		ids    []int64
		counts []int32
		masses []float32
		pids   []int32
		offs   []int // offs[i]: start of slot i in pids
	}
)

// interface guard
var _ cos.Packer = (*shardHalos)(nil)

func fromTable(t *halo.Table) *shardHalos {
	var (
		n  int
		sh = &shardHalos{ids: make([]int64, t.NMax), counts: make([]int32, t.NMax), masses: make([]float32, t.NMax)}
	)
	for i := range t.NMax {
		h := t.Get(i)
		sh.ids[i] = h.ID
		sh.counts[i] = int32(len(h.PIDs))
		sh.masses[i] = h.MVir
		n += len(h.PIDs)
	}
	sh.pids = make([]int32, 0, n)
	for i := range t.NMax {
		sh.pids = append(sh.pids, t.Get(i).PIDs...)
	}
	sh.index()
	return sh
}

func (sh *shardHalos) index() {
	sh.offs = make([]int, len(sh.counts))
	var off int
	for i, c := range sh.counts {
		sh.offs[i] = off
		off += int(c)
	}
}

func (sh *shardHalos) slot(i int) (pids []int32, mvir float32) {
	return sh.pids[sh.offs[i] : sh.offs[i]+int(sh.counts[i])], sh.masses[i]
}

func (sh *shardHalos) PackedSize() int {
	return cos.PackedI64sLen(len(sh.ids)) + cos.PackedI32sLen(len(sh.counts)) + cos.PackedI32sLen(len(sh.masses)) + cos.PackedI32sLen(len(sh.pids))
}

func (sh *shardHalos) Pack(wr *cos.BytePack) {
	wr.WriteI64s(sh.ids)
	wr.WriteI32s(sh.counts)
	wr.WriteF32s(sh.masses)
	wr.WriteI32s(sh.pids)
}

func (sh *shardHalos) Unpack(rd *cos.ByteUnpack) (err error) {
	if sh.ids, err = rd.ReadI64s(); err != nil {
		return
	}
	if sh.counts, err = rd.ReadI32s(); err != nil {
		return
	}
	if sh.masses, err = rd.ReadF32s(); err != nil {
		return
	}
	if sh.pids, err = rd.ReadI32s(); err != nil {
		return
	}
	var total int
	for _, c := range sh.counts {
		if c < 0 {
			return fmt.Errorf("negative halo particle count %d", c)
		}
		total += int(c)
	}
	if len(sh.ids) != len(sh.counts) || len(sh.masses) != len(sh.counts) || total != len(sh.pids) {
		return fmt.Errorf("inconsistent halo payload: %d ids, %d counts, %d masses, %d/%d particles",
			len(sh.ids), len(sh.counts), len(sh.masses), total, len(sh.pids))
	}
	sh.index()
	return nil
}

// Flag sets InHalo and MVir on every particle listed by a halo of any shard.
// Only the coordinator's particles (the full id-sorted set, indexed by idx)
// are modified; other workers pass nil and contribute their halo tables.
// Halos are applied in ascending id order, whatever their shard: when a
// particle is listed by several halos the one with the largest id sets its mass.
func Flag(ctx context.Context, comm *transport.Comm, t *halo.Table, parts []core.Particle, idx *core.PIDIndex,
	tracker cos.StatsUpdater) (*Result, error) {
	var (
		started = mono.NanoTime()
		shards  []*shardHalos
		local   = fromTable(t)
	)
	if comm.Size() == 1 {
		shards = []*shardHalos{local}
	} else {
		packer := cos.NewPacker(nil, local.PackedSize())
		packer.WriteAny(local)
		bufs, err := comm.Gather(ctx, transport.Coord, packer.Bytes())
		if err != nil {
			return nil, err
		}
		if !comm.IsCoord() {
			return &Result{}, nil
		}
		shards = make([]*shardHalos, len(bufs))
		for r, b := range bufs {
			sh := &shardHalos{}
			if err := cos.NewUnpacker(b).ReadAny(sh); err != nil {
				return nil, cos.NewErrIntegrity("flagger", "halos from rank %d: %v", r, err)
			}
			if len(sh.counts) != t.NMax {
				return nil, cos.NewErrIntegrity("flagger", "rank %d sent %d halo slots, expected %d",
					r, len(sh.counts), t.NMax)
			}
			shards[r] = sh
		}
	}

	res, err := flag(shards, t.NMax, parts, idx)
	if err != nil {
		return nil, err
	}
	res.Elapsed = mono.SinceNano(started)
	if tracker != nil {
		tracker.Add(StatFlagged, res.Flagged)
	}
	nlog.Infof("flagged %d particle%s in %d halo%s (%d assignments, %s)", res.Flagged, cos.Plural(int(res.Flagged)),
		t.NTot, cos.Plural(t.NTot), res.Assigned, cos.FormatNanoTime(res.Elapsed))
	return res, nil
}

type assignment struct {
	id    int64
	shard int
	slot  int
}

func flag(shards []*shardHalos, nmax int, parts []core.Particle, idx *core.PIDIndex) (*Result, error) {
	order := make([]assignment, 0, nmax*len(shards))
	for r, sh := range shards {
		for i := range nmax {
			if id := sh.ids[i]; id != halo.GhostID {
				order = append(order, assignment{id: id, shard: r, slot: i})
			}
		}
	}
	slices.SortFunc(order, func(a, b assignment) int { return cmp.Compare(a.id, b.id) })

	res := &Result{}
	for _, a := range order {
		pids, mvir := shards[a.shard].slot(a.slot)
		for _, pid := range pids {
			if pid == halo.Sentinel {
				continue
			}
			j, err := idx.Lookup(pid)
			if err != nil {
				return nil, err
			}
			p := &parts[j]
			if !p.IsInHalo() {
				res.Flagged++
			}
			p.InHalo = 1
			p.MVir = mvir
			res.Assigned++
		}
	}
	return res, nil
}
