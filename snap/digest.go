// Package snap reads and writes Gadget-2 (format 1) snapshots.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package snap

import (
	"strconv"

	"github.com/NVIDIA/tspec/core"

	"github.com/cespare/xxhash/v2"
)

// Digest is a content hash of the particle records, in order. Two runs that
// produce the same annotated particle set (regardless of worker count) have
// equal digests.
func Digest(parts []core.Particle) uint64 {
	const batch = 4096
	d := xxhash.New()
	for i := 0; i < len(parts); i += batch {
		d.Write(core.PackParticles(parts[i:min(i+batch, len(parts))]))
	}
	return d.Sum64()
}

func DigestString(parts []core.Particle) string {
	return strconv.FormatUint(Digest(parts), 16)
}
