// Package halo loads sharded AHF halo catalogs into per-worker halo tables.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package halo

import (
	"fmt"
)

const (
	// Sentinel marks a particle removed from a halo's list (or the ghost's only entry).
	Sentinel int32 = -1

	GhostID   int64   = -1
	GhostMVir float32 = -1
)

type (
	// Halo is one AHF halo. PIDs is sorted ascending and, once masked,
	// keeps its original length: removed entries become Sentinel in place.
	Halo struct {
		PIDs  []int32
		Subs  []int64 // ids of direct sub-halos
		ID    int64
		Host  int64 // 0: no host
		Index int   // position in the shard's table
		MVir  float32
	}

	// Table is a shard's halo arena: NLocal real halos followed by ghost
	// padding up to NMax, the cluster-wide maximum local count.
	Table struct {
		index  map[int64]int
		Halos  []Halo
		NLocal int
		NMax   int
		NTot   int // real halos across all shards
	}
)

// NewGhost returns a padding halo; it never matches a particle.
func NewGhost(index int) Halo {
	return Halo{ID: GhostID, PIDs: []int32{Sentinel}, MVir: GhostMVir, Index: index}
}

func (h *Halo) IsGhost() bool { return h.ID == GhostID && h.MVir == GhostMVir }

// Live counts non-sentinel particle entries.
func (h *Halo) Live() (n int) {
	for _, pid := range h.PIDs {
		if pid != Sentinel {
			n++
		}
	}
	return
}

func (h *Halo) String() string {
	if h.IsGhost() {
		return fmt.Sprintf("ghost[%d]", h.Index)
	}
	return fmt.Sprintf("halo[%d, idx=%d, npart=%d, nsub=%d, host=%d, mvir=%g]",
		h.ID, h.Index, len(h.PIDs), len(h.Subs), h.Host, h.MVir)
}

// NewTable builds a table out of already-parsed local halos and pads it to nmax.
func NewTable(local []Halo, nmax, ntot int) (*Table, error) {
	if nmax < len(local) {
		return nil, fmt.Errorf("halo table: nhalos_max %d < local count %d", nmax, len(local))
	}
	t := &Table{
		Halos:  make([]Halo, nmax),
		NLocal: len(local),
		NMax:   nmax,
		NTot:   ntot,
		index:  make(map[int64]int, len(local)),
	}
	copy(t.Halos, local)
	for i := range t.Halos {
		if i >= t.NLocal {
			t.Halos[i] = NewGhost(i)
			continue
		}
		h := &t.Halos[i]
		h.Index = i
		if _, dup := t.index[h.ID]; dup {
			return nil, fmt.Errorf("halo table: duplicate halo id %d", h.ID)
		}
		t.index[h.ID] = i
	}
	return t, nil
}

// Find returns the table position of a (real) halo.
func (t *Table) Find(id int64) (int, bool) {
	i, ok := t.index[id]
	return i, ok
}

func (t *Table) Get(i int) *Halo { return &t.Halos[i] }

func (t *Table) NGhosts() int { return t.NMax - t.NLocal }

// Release drops particle and sub-halo lists once flagging is done.
func (t *Table) Release() {
	t.Halos, t.index = nil, nil
}
