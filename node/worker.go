// Package node runs the tspec pipeline: one worker per rank of an in-process
// transport group, from halo catalogs and snapshot to the annotated output.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package node

import (
	"context"
	"os"
	"time"

	"github.com/NVIDIA/tspec/cmn/cos"
	"github.com/NVIDIA/tspec/cmn/mono"
	"github.com/NVIDIA/tspec/cmn/nlog"
	"github.com/NVIDIA/tspec/core"
	"github.com/NVIDIA/tspec/cosmo"
	"github.com/NVIDIA/tspec/dedup"
	"github.com/NVIDIA/tspec/flagger"
	"github.com/NVIDIA/tspec/halo"
	"github.com/NVIDIA/tspec/reb"
	"github.com/NVIDIA/tspec/snap"
	"github.com/NVIDIA/tspec/stats"
	"github.com/NVIDIA/tspec/transport"
)

type worker struct {
	r     *Runner
	comm  *transport.Comm
	hcomm *transport.Comm // halo stages; nil when this worker holds no halos
	hdr   *snap.Header
	table *halo.Table
	idx   *core.PIDIndex
	parts []core.Particle // coordinator: all gas particles until rebalanced
	local []core.Particle // this worker's share
	temp  cosmo.Temperaturer
	shard int
}

// Run is one worker's pipeline. All workers of the group must call it.
func Run(ctx context.Context, comm *transport.Comm, r *Runner) error {
	var (
		started = mono.NanoTime()
		w       = &worker{r: r, comm: comm, shard: comm.Rank()}
	)
	switch {
	case r.config.Halo.NFiles == comm.Size():
		w.hcomm = comm
	case comm.IsCoord():
		// a single AHF file set: the coordinator dedups and flags alone
		w.hcomm = transport.NewGroup(1, &transport.Extra{StatsTracker: r.tracker}).Comm(0)
	}
	stages := []struct {
		fn   func(context.Context) error
		name string
	}{
		{w.loadHalos, "loading halos"},
		{w.loadSnapshot, "loading snapshot"},
		{w.bcastHeader, "broadcasting header"},
		{w.dedup, "removing duplicates"},
		{w.flag, "flagging halo particles"},
		{w.temperatures, "calculating temperatures"},
		{w.write, "writing data"},
	}
	for _, stage := range stages {
		end := r.BeginStage(stage.name, comm.Rank())
		if err := stage.fn(ctx); err != nil {
			return err
		}
		end()
	}

	wall := time.Duration(mono.SinceNano(started)).Seconds()
	maxWall, err := comm.AllreduceFloat64(ctx, wall, transport.OpMax)
	if err != nil {
		return err
	}
	if comm.IsCoord() {
		r.summary.WallTime = maxWall
		nlog.Infof("total time: %.3fs, total halos: %d", maxWall, r.summary.NHalos)
	}
	return nil
}

func (w *worker) loadHalos(ctx context.Context) error {
	if w.hcomm == nil {
		return nil
	}
	files, err := halo.FindShardFiles(&w.r.config.Halo, w.shard)
	if err != nil {
		return err
	}
	if w.table, err = halo.Load(ctx, w.hcomm, files); err != nil {
		return err
	}
	w.r.tracker.Add(stats.HalosLoaded, int64(w.table.NLocal))
	w.r.tracker.Add(stats.HalosGhost, int64(w.table.NGhosts()))
	if w.comm.IsCoord() {
		w.r.summary.NHalos = int64(w.table.NTot)
	}
	return nil
}

func (w *worker) loadSnapshot(context.Context) (err error) {
	if !w.comm.IsCoord() {
		return nil
	}
	if w.hdr, w.parts, err = snap.Load(w.r.config.Snapshot); err != nil {
		return err
	}
	core.SortByID(w.parts)
	w.idx = core.NewPIDIndex(w.parts)
	if !w.idx.Contiguous() {
		nlog.Warningln("particle ids are not contiguous, using a map index")
	}
	w.r.tracker.Add(stats.PartsLoaded, int64(len(w.parts)))
	w.r.summary.NGas = int64(len(w.parts))
	w.r.summary.Redshift = w.hdr.Redshift
	nlog.Infoln(w.hdr.String())
	return nil
}

func (w *worker) bcastHeader(ctx context.Context) error {
	var body []byte
	if w.comm.IsCoord() {
		var err error
		if body, err = w.hdr.MarshalBinary(); err != nil {
			return err
		}
	}
	body, err := w.comm.Bcast(ctx, transport.Coord, body)
	if err != nil || w.comm.IsCoord() {
		return err
	}
	w.hdr = &snap.Header{}
	return w.hdr.UnmarshalBinary(body)
}

func (w *worker) dedup(ctx context.Context) error {
	if w.table == nil {
		return nil
	}
	_, err := dedup.Run(ctx, w.hcomm, w.table, &dedup.Opts{Strategy: w.r.config.Dedup.Strategy, StatsTracker: w.r.tracker})
	return err
}

func (w *worker) flag(ctx context.Context) error {
	if w.table == nil {
		return nil
	}
	res, err := flagger.Flag(ctx, w.hcomm, w.table, w.parts, w.idx, w.r.tracker)
	if err != nil {
		return err
	}
	w.table.Release()
	w.table = nil
	if !w.comm.IsCoord() {
		return nil
	}
	w.r.summary.Flagged = res.Flagged
	if w.r.config.Output.DumpFlagged {
		return dumpFlagged(flaggedName(w.r.config.Output.Dir), w.parts)
	}
	return nil
}

func (w *worker) temperatures(ctx context.Context) (err error) {
	var t0 float64
	if w.comm.IsCoord() {
		tbl, err := cosmo.LoadT0Table(w.r.config.T0Table)
		if err != nil {
			return err
		}
		if t0, err = tbl.At(w.hdr.Redshift); err != nil {
			return err
		}
	}
	if t0, err = bcastFloat64(ctx, w.comm, t0); err != nil {
		return err
	}
	var (
		config = w.r.config
		params = cosmo.NewParams(w.hdr.Omega0, w.hdr.OmegaLambda, w.hdr.HubbleParam, &config.DarkEnergy)
	)
	model, err := cosmo.NewModel(params, &config.Units, w.hdr.Time, w.hdr.Redshift, t0)
	if err != nil {
		return err
	}
	w.temp = model
	if w.comm.IsCoord() {
		w.r.summary.T0 = t0
		nlog.Infoln(model.String())
	}

	if w.local, err = reb.Rebalance(ctx, w.comm, w.parts, w.r.tracker); err != nil {
		return err
	}
	w.parts, w.idx = nil, nil
	w.r.InObjsAdd(int64(len(w.local)))

	w.temp.Apply(w.local)
	w.r.ObjsAdd(int64(len(w.local)))
	w.r.tracker.Add(stats.PartsHeated, int64(len(w.local)))
	return nil
}

func (w *worker) write(ctx context.Context) error {
	all, err := reb.Gather(ctx, w.comm, w.local, w.r.tracker)
	if err != nil {
		return err
	}
	w.r.OutObjsAdd(int64(len(w.local)))
	w.local = nil
	if !w.comm.IsCoord() {
		return nil
	}
	fqn := snap.OutputName(w.r.config.Snapshot, w.r.config.Output.Dir)
	if err := snap.WriteOutput(fqn, w.hdr, all); err != nil {
		return err
	}
	finfo, err := os.Stat(fqn)
	if err != nil {
		return err
	}
	w.r.tracker.Add(stats.PartsWritten, int64(len(all)))
	w.r.tracker.Add(stats.SizeWritten, finfo.Size())

	s := &w.r.summary
	s.RunID, s.Snapshot, s.Output = w.r.ID(), w.r.config.Snapshot, fqn
	s.Workers, s.HaloFiles, s.Strategy = w.comm.Size(), w.r.config.Halo.NFiles, w.r.config.Dedup.Strategy
	s.Digest = snap.DigestString(all)
	nlog.Infof("wrote %d particle%s to %s (%s, digest %s)", len(all), cos.Plural(len(all)), fqn,
		cos.ToSizeIEC(finfo.Size(), 2), s.Digest)
	return nil
}

func bcastFloat64(ctx context.Context, comm *transport.Comm, v float64) (float64, error) {
	var body []byte
	if comm.IsCoord() {
		packer := cos.NewPacker(nil, cos.SizeofI64)
		packer.WriteFloat64(v)
		body = packer.Bytes()
	}
	body, err := comm.Bcast(ctx, transport.Coord, body)
	if err != nil {
		return 0, err
	}
	return cos.NewUnpacker(body).ReadFloat64()
}
