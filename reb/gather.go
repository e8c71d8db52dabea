// Package reb evenly redistributes the flagged particle set across workers
// and gathers the results back to the coordinator.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package reb

import (
	"context"

	"github.com/NVIDIA/tspec/cmn/cos"
	"github.com/NVIDIA/tspec/core"
	"github.com/NVIDIA/tspec/transport"
)

// Gather collects every worker's particles to the coordinator, in rank order.
// Per-rank counts are queried again rather than assumed from Rebalance.
// Non-coordinators get nil.
func Gather(ctx context.Context, comm *transport.Comm, local []core.Particle, tracker cos.StatsUpdater) ([]core.Particle, error) {
	counts, err := comm.GatherInt64(ctx, transport.Coord, int64(len(local)))
	if err != nil {
		return nil, err
	}
	bufs, err := comm.Gather(ctx, transport.Coord, core.PackParticles(local))
	if err != nil || !comm.IsCoord() {
		return nil, err
	}
	var (
		displs = Displs(counts)
		last   = len(counts) - 1
		all    = make([]core.Particle, displs[last]+counts[last])
	)
	for r, b := range bufs {
		parts, err := core.UnpackParticles(b)
		if err != nil {
			return nil, cos.NewErrIntegrity("gather", "rank %d: %v", r, err)
		}
		if int64(len(parts)) != counts[r] {
			return nil, cos.NewErrIntegrity("gather", "rank %d sent %d particles, announced %d", r, len(parts), counts[r])
		}
		copy(all[displs[r]:], parts)
	}
	if tracker != nil {
		tracker.Add(StatGathered, int64(len(all)))
	}
	return all, nil
}
