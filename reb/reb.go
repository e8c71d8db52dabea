// Package reb evenly redistributes the flagged particle set across workers
// and gathers the results back to the coordinator.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package reb

import (
	"context"

	"github.com/NVIDIA/tspec/cmn/cos"
	"github.com/NVIDIA/tspec/cmn/nlog"
	"github.com/NVIDIA/tspec/core"
	"github.com/NVIDIA/tspec/transport"
)

const (
	StatSent     = "reb.sent"     // particle records scattered
	StatGathered = "reb.gathered" // particle records gathered back
)

// Counts splits n particles over w workers: n/w each, the remainder goes to the last.
func Counts(n int64, w int) []int64 {
	cos.Assert(w > 0 && n >= 0)
	var (
		counts = make([]int64, w)
		chunk  = n / int64(w)
	)
	for r := range counts {
		counts[r] = chunk
	}
	counts[w-1] += n % int64(w)
	return counts
}

// Displs returns the starting offset of every rank's chunk.
func Displs(counts []int64) []int64 {
	displs := make([]int64, len(counts))
	for r := 1; r < len(counts); r++ {
		displs[r] = displs[r-1] + counts[r-1]
	}
	return displs
}

// Rebalance scatters the coordinator's particles (all) so that every worker
// ends up with its Counts share, in id order. Non-coordinators pass nil.
// The coordinator must drop its reference to all once this returns.
func Rebalance(ctx context.Context, comm *transport.Comm, all []core.Particle, tracker cos.StatsUpdater) ([]core.Particle, error) {
	n, err := comm.BcastInt64(ctx, transport.Coord, int64(len(all)))
	if err != nil {
		return nil, err
	}
	counts := Counts(n, comm.Size())

	// every worker reports what it expects to receive
	got, err := comm.GatherInt64(ctx, transport.Coord, counts[comm.Rank()])
	if err != nil {
		return nil, err
	}

	var parts [][]byte
	if comm.IsCoord() {
		var sum int64
		for _, c := range got {
			sum += c
		}
		if sum != int64(len(all)) {
			return nil, cos.NewErrIntegrity("rebalance", "workers expect %d particles, have %d", sum, len(all))
		}
		displs := Displs(got)
		parts = make([][]byte, comm.Size())
		for r := range parts {
			parts[r] = core.PackParticles(all[displs[r] : displs[r]+got[r]])
		}
		if tracker != nil {
			tracker.Add(StatSent, n)
		}
		nlog.Infof("rebalance: %d particle%s over %d worker%s, %v", n, cos.Plural(int(n)),
			comm.Size(), cos.Plural(comm.Size()), got)
	}
	b, err := comm.Scatter(ctx, transport.Coord, parts)
	if err != nil {
		return nil, err
	}
	local, err := core.UnpackParticles(b)
	if err != nil {
		return nil, cos.NewErrIntegrity("rebalance", "rank %d: %v", comm.Rank(), err)
	}
	if int64(len(local)) != counts[comm.Rank()] {
		return nil, cos.NewErrIntegrity("rebalance", "rank %d received %d particles, expected %d",
			comm.Rank(), len(local), counts[comm.Rank()])
	}
	return local, nil
}
