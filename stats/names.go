// Package stats provides methods and functionality to register, track, log,
// and export tspec run metrics (counters and sizes).
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"github.com/NVIDIA/tspec/dedup"
	"github.com/NVIDIA/tspec/flagger"
	"github.com/NVIDIA/tspec/reb"
	"github.com/NVIDIA/tspec/transport"
)

const (
	HalosLoaded  = "halos.loaded"
	HalosGhost   = "halos.ghost"
	PartsLoaded  = "snap.particles"
	PartsHeated  = "temp.particles"
	PartsWritten = "snap.written"
	SizeWritten  = "snap.written.size"
)

func (t *Tracker) regMetrics() {
	t.register(HalosLoaded, KindCounter, "real halos loaded by all workers")
	t.register(HalosGhost, KindCounter, "ghost halos padding the workers' tables")
	t.register(PartsLoaded, KindCounter, "gas particles read from the snapshot")
	t.register(PartsHeated, KindCounter, "particles assigned a temperature")
	t.register(PartsWritten, KindCounter, "particles written to the output snapshot")
	t.register(SizeWritten, KindSize, "size of the output snapshot")

	t.register(dedup.StatMIA, KindCounter, "sub-halos requested from other workers")
	t.register(dedup.StatReplies, KindCounter, "sub-halo particle lists sent to other workers")
	t.register(dedup.StatMasked, KindCounter, "host-halo particle entries masked")
	t.register(flagger.StatFlagged, KindCounter, "particles flagged as belonging to a halo")
	t.register(reb.StatSent, KindCounter, "particle records scattered by the coordinator")
	t.register(reb.StatGathered, KindCounter, "particle records gathered by the coordinator")

	t.register(transport.OutMsgCount, KindCounter, "messages sent")
	t.register(transport.OutMsgSize, KindSize, "payload bytes sent (uncompressed)")
	t.register(transport.OutMsgCmprsd, KindSize, "compressed payload bytes sent")
}
