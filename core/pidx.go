// Package core provides core tspec types: particles and their fixed-layout
// wire records
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package core

import (
	"cmp"
	"slices"

	"github.com/NVIDIA/tspec/cmn/cos"
)

// PIDIndex maps a particle id to its position in the (id-sorted) particle
// array. Gadget ids are usually contiguous 1..N, in which case the index is
// simply id-1; otherwise a map is built once.
type PIDIndex struct {
	m          map[int32]int
	n          int
	contiguous bool
}

// SortByID orders particles by ascending id (in place).
func SortByID(parts []Particle) {
	slices.SortFunc(parts, func(a, b Particle) int { return cmp.Compare(a.ID, b.ID) })
}

// NewPIDIndex expects particles sorted by id (see SortByID).
func NewPIDIndex(parts []Particle) *PIDIndex {
	idx := &PIDIndex{n: len(parts), contiguous: true}
	for i := range parts {
		if parts[i].ID != int32(i+1) {
			idx.contiguous = false
			break
		}
	}
	if idx.contiguous {
		return idx
	}
	idx.m = make(map[int32]int, len(parts))
	for i := range parts {
		idx.m[parts[i].ID] = i
	}
	return idx
}

func (idx *PIDIndex) Contiguous() bool { return idx.contiguous }

// Lookup returns the array position of the particle with the given id.
// Sentinel (-1) and unknown ids yield ErrNotFound.
func (idx *PIDIndex) Lookup(pid int32) (int, error) {
	if idx.contiguous {
		if pid >= 1 && int(pid) <= idx.n {
			return int(pid) - 1, nil
		}
	} else if i, ok := idx.m[pid]; ok {
		return i, nil
	}
	return -1, cos.NewErrNotFound("particle index", "particle id %d", pid)
}
