// Package halo loads sharded AHF halo catalogs into per-worker halo tables.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package halo

import (
	"context"
	"io"
	"os"

	"github.com/NVIDIA/tspec/cmn/cos"
	"github.com/NVIDIA/tspec/cmn/nlog"
	"github.com/NVIDIA/tspec/transport"
)

// Load reads this worker's AHF file set and returns its halo table, padded
// with ghosts to the cluster-wide maximum so that every worker runs the same
// number of per-halo exchanges. All workers of comm must call Load.
func Load(ctx context.Context, comm *transport.Comm, files *Files) (*Table, error) {
	local, err := readFile(files.Parts, func(r io.Reader) ([]Halo, error) { return ReadParticles(r, files.Parts) })
	if err != nil {
		return nil, err
	}
	nlocal := int64(len(local))
	nmax, err := comm.AllreduceInt64(ctx, nlocal, transport.OpMax)
	if err != nil {
		return nil, err
	}
	ntot, err := comm.AllreduceInt64(ctx, nlocal, transport.OpSum)
	if err != nil {
		return nil, err
	}
	t, err := NewTable(local, int(nmax), int(ntot))
	if err != nil {
		return nil, err
	}
	if _, err := readFile(files.Subs, func(r io.Reader) (any, error) { return nil, ReadSubstruct(r, files.Subs, t) }); err != nil {
		return nil, err
	}
	header := files.Shard == 0 // the root file set only
	if _, err := readFile(files.Halos, func(r io.Reader) (any, error) { return nil, ReadProperties(r, files.Halos, t, header) }); err != nil {
		return nil, err
	}
	if comm.IsCoord() {
		nlog.Infof("loaded %d halo%s (max per shard %d, total %d)", t.NLocal, cos.Plural(t.NLocal), t.NMax, t.NTot)
	}
	return t, nil
}

func readFile[T any](fqn string, parse func(io.Reader) (T, error)) (v T, err error) {
	f, err := os.Open(fqn)
	if err != nil {
		if cos.IsNotExist(err) {
			err = cos.NewErrNotFound("AHF", "%q", fqn)
		}
		return v, err
	}
	defer f.Close()
	return parse(f)
}
