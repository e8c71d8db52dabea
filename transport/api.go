// Package transport provides in-process, rank-addressed message passing
// between the workers of one tspec run: point-to-point send/receive with
// selective (source, tag) matching plus the collectives built on top of it.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"sync"
	ratomic "sync/atomic"

	"github.com/NVIDIA/tspec/cmn"
	"github.com/NVIDIA/tspec/cmn/cos"
	"github.com/NVIDIA/tspec/cmn/debug"
)

const (
	AnySource = -1
	Coord     = 0 // coordinator rank
)

// stats names
const (
	OutMsgCount  = "transport.msgs"
	OutMsgSize   = "transport.bytes"
	OutMsgCmprsd = "transport.bytes.compressed"
)

// msg flags
const (
	FlagCompressed = 1 << iota
)

type (
	// Msg is the envelope. Corr carries the full correlation key (e.g., a
	// 64-bit halo id); it is never truncated.
	Msg struct {
		Body  []byte
		Corr  int64
		Flags int64
		Src   int
		Dst   int
		Tag   int32
	}

	// Extra configures a group.
	Extra struct {
		StatsTracker cos.StatsUpdater
		Compression  string // cmn.CompressNone | cmn.CompressLZ4
		CompressMin  int64
	}

	// group-wide stats
	Stats struct {
		Num            ratomic.Int64 // messages sent
		Size           ratomic.Int64 // payload bytes sent (uncompressed)
		CompressedSize ratomic.Int64 // bytes of compressed payloads as sent
	}

	// Group is a fixed set of ranks [0, Size) sharing one address space.
	Group struct {
		err     error
		abortCh chan struct{}
		extra   Extra
		boxes   []*mailbox
		comms   []*Comm
		stats   Stats
		once    sync.Once
	}

	// Comm is one rank's endpoint. Not safe for concurrent use: each rank
	// is driven by exactly one goroutine.
	Comm struct {
		g    *Group
		seq  int64 // collective sequence number; identical across ranks
		rank int
	}
)

func NewGroup(size int, extra *Extra) *Group {
	debug.Assert(size > 0)
	g := &Group{
		abortCh: make(chan struct{}),
		boxes:   make([]*mailbox, size),
		comms:   make([]*Comm, size),
	}
	if extra != nil {
		g.extra = *extra
	}
	for i := range size {
		g.boxes[i] = newMailbox()
		g.comms[i] = &Comm{g: g, rank: i}
	}
	return g
}

// NewGroupFromConfig wires transport knobs from the run configuration.
func NewGroupFromConfig(size int, config *cmn.Config, tracker cos.StatsUpdater) *Group {
	return NewGroup(size, &Extra{
		Compression:  config.Transport.Compression,
		CompressMin:  config.Transport.CompressMin,
		StatsTracker: tracker,
	})
}

func (g *Group) Size() int           { return len(g.comms) }
func (g *Group) Comm(rank int) *Comm { return g.comms[rank] }
func (g *Group) Stats() *Stats       { return &g.stats }

func (g *Group) compressed() bool { return g.extra.Compression == cmn.CompressLZ4 }

// Abort unblocks every pending and future receive in the group; the first
// error wins.
func (g *Group) Abort(err error) {
	g.once.Do(func() {
		g.err = err
		close(g.abortCh)
	})
}

func (g *Group) Aborted() error {
	select {
	case <-g.abortCh:
		return &ErrAborted{cause: g.err}
	default:
		return nil
	}
}

//
// Comm
//

func (c *Comm) Rank() int     { return c.rank }
func (c *Comm) Size() int     { return len(c.g.comms) }
func (c *Comm) IsCoord() bool { return c.rank == Coord }
func (c *Comm) Group() *Group { return c.g }
