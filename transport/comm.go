// Package transport provides in-process, rank-addressed message passing
// between the workers of one tspec run: point-to-point send/receive with
// selective (source, tag) matching plus the collectives built on top of it.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"context"

	"github.com/NVIDIA/tspec/cmn/debug"
)

// Send delivers body to rank dst. Sends never block: the receiving mailbox
// is unbounded. The caller must not modify body after Send.
// User tags are non-negative; negative tags are reserved for collectives.
func (c *Comm) Send(ctx context.Context, dst int, tag int32, corr int64, body []byte) error {
	debug.Assertf(tag >= 0, "reserved tag %d", tag)
	return c.send(ctx, dst, tag, corr, body)
}

func (c *Comm) send(ctx context.Context, dst int, tag int32, corr int64, body []byte) error {
	if dst < 0 || dst >= c.Size() {
		return &ErrRank{op: "send", rank: dst, size: c.Size()}
	}
	if err := c.g.Aborted(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &Msg{Src: c.rank, Dst: dst, Tag: tag, Corr: corr, Body: body}
	c.g.stats.Num.Add(1)
	c.g.stats.Size.Add(int64(len(body)))
	if c.g.compressed() && int64(len(body)) >= c.g.extra.CompressMin && len(body) > 0 {
		zb, err := compress(body)
		if err != nil {
			return err
		}
		msg.Body, msg.Flags = zb, msg.Flags|FlagCompressed
		c.g.stats.CompressedSize.Add(int64(len(zb)))
		c.trackStats(OutMsgCmprsd, int64(len(zb)))
	}
	c.trackStats(OutMsgCount, 1)
	c.trackStats(OutMsgSize, int64(len(body)))
	c.g.boxes[dst].put(msg)
	return nil
}

func (c *Comm) trackStats(name string, val int64) {
	if t := c.g.extra.StatsTracker; t != nil {
		t.Add(name, val)
	}
}

// Recv blocks until a message with the given tag arrives from src
// (or from any rank when src == AnySource).
func (c *Comm) Recv(ctx context.Context, src int, tag int32) (*Msg, error) {
	return c.RecvAny(ctx, src, tag)
}

// RecvAny is Recv that matches any of the given tags.
func (c *Comm) RecvAny(ctx context.Context, src int, tags ...int32) (*Msg, error) {
	debug.Assert(len(tags) > 0)
	return c.recv(ctx, func(msg *Msg) bool {
		if src != AnySource && msg.Src != src {
			return false
		}
		for _, tag := range tags {
			if msg.Tag == tag {
				return true
			}
		}
		return false
	})
}

func (c *Comm) recv(ctx context.Context, match func(*Msg) bool) (*Msg, error) {
	msg, err := c.g.boxes[c.rank].take(ctx, c.g, match)
	if err != nil {
		return nil, err
	}
	if msg.Flags&FlagCompressed != 0 {
		body, err := decompress(msg.Body)
		if err != nil {
			return nil, err
		}
		msg.Body, msg.Flags = body, msg.Flags&^FlagCompressed
	}
	return msg, nil
}

// Pending returns the number of undelivered messages queued for this rank.
func (c *Comm) Pending() int { return c.g.boxes[c.rank].pending() }
