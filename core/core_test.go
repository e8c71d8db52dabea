// Package core_test: unit tests
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package core_test

import (
	"testing"

	"github.com/NVIDIA/tspec/cmn/cos"
	"github.com/NVIDIA/tspec/core"
	"github.com/NVIDIA/tspec/tools/tassert"
)

func TestParticleRecords(t *testing.T) {
	parts := []core.Particle{
		{Pos: [3]float32{1, 2, 3}, Vel: [3]float32{-1, 0, 1}, Mass: 0.5, Density: 12.5, Hsml: 0.1, Type: 0, ID: 3},
		{ID: 1, InHalo: 1, MVir: 5.0, Temp: 1e4},
		{ID: 2, InHalo: 1, MVir: 1.0},
	}
	b := core.PackParticles(parts)
	tassert.Fatalf(t, len(b) == len(parts)*core.PackedParticleSize, "payload %d", len(b))

	out, err := core.UnpackParticles(b)
	tassert.CheckFatal(t, err)
	for i := range parts {
		tassert.Errorf(t, out[i] == parts[i], "record %d: %v != %v", i, out[i], parts[i])
	}

	_, err = core.UnpackParticles(b[:len(b)-1])
	tassert.Errorf(t, err != nil, "expected error on truncated payload")
}

func TestPIDIndex(t *testing.T) {
	parts := []core.Particle{{ID: 3}, {ID: 1}, {ID: 2}}
	core.SortByID(parts)
	idx := core.NewPIDIndex(parts)
	tassert.Fatalf(t, idx.Contiguous(), "expected contiguous ids")
	i, err := idx.Lookup(3)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, i == 2, "id 3 at %d", i)

	_, err = idx.Lookup(-1)
	tassert.Errorf(t, cos.IsErrNotFound(err), "ghost sentinel must not resolve, got %v", err)
	_, err = idx.Lookup(4)
	tassert.Errorf(t, cos.IsErrNotFound(err), "out-of-range id must not resolve, got %v", err)

	sparse := []core.Particle{{ID: 100}, {ID: 7}, {ID: 42}}
	core.SortByID(sparse)
	idx = core.NewPIDIndex(sparse)
	tassert.Fatalf(t, !idx.Contiguous(), "expected sparse ids")
	i, err = idx.Lookup(42)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, sparse[i].ID == 42, "lookup 42 -> %d", sparse[i].ID)
	_, err = idx.Lookup(1)
	tassert.Errorf(t, cos.IsErrNotFound(err), "unknown id must not resolve")
}
