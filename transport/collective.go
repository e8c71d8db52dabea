// Package transport provides in-process, rank-addressed message passing
// between the workers of one tspec run: point-to-point send/receive with
// selective (source, tag) matching plus the collectives built on top of it.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"context"
	"fmt"
	"math"

	"github.com/NVIDIA/tspec/cmn/cos"
)

// Collectives are full barriers: every rank of the group must make the same
// sequence of collective calls. Messages are matched by (source, reserved tag,
// sequence number), so collectives never interfere with user point-to-point
// traffic in flight.

type Op int

const (
	OpSum Op = iota
	OpMax
	OpMin
)

const (
	tagBarrier int32 = -1 - iota
	tagBcast
	tagGather
	tagScatter
)

func (op Op) String() string {
	switch op {
	case OpSum:
		return "sum"
	case OpMax:
		return "max"
	case OpMin:
		return "min"
	default:
		return fmt.Sprintf("op(%d)", int(op))
	}
}

func (c *Comm) nextSeq() int64 {
	c.seq++
	return c.seq
}

func (c *Comm) recvColl(ctx context.Context, src int, tag int32, seq int64) (*Msg, error) {
	return c.recv(ctx, func(msg *Msg) bool {
		return msg.Src == src && msg.Tag == tag && msg.Corr == seq
	})
}

func (c *Comm) checkRoot(op string, root int) error {
	if root < 0 || root >= c.Size() {
		return &ErrRank{op: op, rank: root, size: c.Size()}
	}
	return nil
}

// Barrier returns once every rank has entered it.
func (c *Comm) Barrier(ctx context.Context) error {
	seq := c.nextSeq()
	if c.Size() == 1 {
		return nil
	}
	if !c.IsCoord() {
		if err := c.send(ctx, Coord, tagBarrier, seq, nil); err != nil {
			return err
		}
		_, err := c.recvColl(ctx, Coord, tagBarrier, seq)
		return err
	}
	for r := 1; r < c.Size(); r++ {
		if _, err := c.recvColl(ctx, r, tagBarrier, seq); err != nil {
			return err
		}
	}
	for r := 1; r < c.Size(); r++ {
		if err := c.send(ctx, r, tagBarrier, seq, nil); err != nil {
			return err
		}
	}
	return nil
}

// Bcast distributes root's body to every rank; body is ignored elsewhere.
func (c *Comm) Bcast(ctx context.Context, root int, body []byte) ([]byte, error) {
	seq := c.nextSeq()
	if err := c.checkRoot("bcast", root); err != nil {
		return nil, err
	}
	if c.rank != root {
		msg, err := c.recvColl(ctx, root, tagBcast, seq)
		if err != nil {
			return nil, err
		}
		return msg.Body, nil
	}
	for r := range c.Size() {
		if r == root {
			continue
		}
		if err := c.send(ctx, r, tagBcast, seq, body); err != nil {
			return nil, err
		}
	}
	return body, nil
}

// Gather collects one payload per rank on root, in rank order.
// Non-root ranks get nil.
func (c *Comm) Gather(ctx context.Context, root int, body []byte) ([][]byte, error) {
	seq := c.nextSeq()
	if err := c.checkRoot("gather", root); err != nil {
		return nil, err
	}
	if c.rank != root {
		return nil, c.send(ctx, root, tagGather, seq, body)
	}
	out := make([][]byte, c.Size())
	for r := range c.Size() {
		if r == root {
			out[r] = body
			continue
		}
		msg, err := c.recvColl(ctx, r, tagGather, seq)
		if err != nil {
			return nil, err
		}
		out[r] = msg.Body
	}
	return out, nil
}

// Scatter sends parts[r] to rank r; parts is only used on root.
func (c *Comm) Scatter(ctx context.Context, root int, parts [][]byte) ([]byte, error) {
	seq := c.nextSeq()
	if err := c.checkRoot("scatter", root); err != nil {
		return nil, err
	}
	if c.rank != root {
		msg, err := c.recvColl(ctx, root, tagScatter, seq)
		if err != nil {
			return nil, err
		}
		return msg.Body, nil
	}
	if len(parts) != c.Size() {
		return nil, fmt.Errorf("transport: scatter: %d parts for group size %d", len(parts), c.Size())
	}
	for r := range c.Size() {
		if r == root {
			continue
		}
		if err := c.send(ctx, r, tagScatter, seq, parts[r]); err != nil {
			return nil, err
		}
	}
	return parts[root], nil
}

//
// typed helpers
//

func packI64(v int64) []byte {
	packer := cos.NewPacker(nil, cos.SizeofI64)
	packer.WriteInt64(v)
	return packer.Bytes()
}

func unpackI64(b []byte) (int64, error) {
	return cos.NewUnpacker(b).ReadInt64()
}

// GatherInt64 is Gather of one int64 per rank.
func (c *Comm) GatherInt64(ctx context.Context, root int, v int64) ([]int64, error) {
	bodies, err := c.Gather(ctx, root, packI64(v))
	if err != nil || bodies == nil {
		return nil, err
	}
	out := make([]int64, len(bodies))
	for r, b := range bodies {
		if out[r], err = unpackI64(b); err != nil {
			return nil, fmt.Errorf("transport: gather from rank %d: %w", r, err)
		}
	}
	return out, nil
}

func (c *Comm) BcastInt64(ctx context.Context, root int, v int64) (int64, error) {
	b, err := c.Bcast(ctx, root, packI64(v))
	if err != nil {
		return 0, err
	}
	return unpackI64(b)
}

// ReduceInt64 folds one value per rank with op; the result is valid on root only.
func (c *Comm) ReduceInt64(ctx context.Context, root int, v int64, op Op) (int64, error) {
	vals, err := c.GatherInt64(ctx, root, v)
	if err != nil || c.rank != root {
		return 0, err
	}
	return reduce(vals, op), nil
}

func (c *Comm) AllreduceInt64(ctx context.Context, v int64, op Op) (int64, error) {
	res, err := c.ReduceInt64(ctx, Coord, v, op)
	if err != nil {
		return 0, err
	}
	return c.BcastInt64(ctx, Coord, res)
}

func (c *Comm) AllreduceFloat64(ctx context.Context, v float64, op Op) (float64, error) {
	vals, err := c.GatherInt64(ctx, Coord, int64(math.Float64bits(v)))
	if err != nil {
		return 0, err
	}
	var res float64
	if c.IsCoord() {
		res = math.Float64frombits(uint64(vals[0]))
		for _, bits := range vals[1:] {
			f := math.Float64frombits(uint64(bits))
			switch op {
			case OpSum:
				res += f
			case OpMax:
				res = max(res, f)
			case OpMin:
				res = min(res, f)
			}
		}
	}
	bits, err := c.BcastInt64(ctx, Coord, int64(math.Float64bits(res)))
	return math.Float64frombits(uint64(bits)), err
}

func reduce(vals []int64, op Op) int64 {
	res := vals[0]
	for _, v := range vals[1:] {
		switch op {
		case OpSum:
			res += v
		case OpMax:
			res = max(res, v)
		case OpMin:
			res = min(res, v)
		}
	}
	return res
}
