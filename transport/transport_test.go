// Package transport_test - point-to-point and collective tests
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package transport_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/NVIDIA/tspec/cmn"
	"github.com/NVIDIA/tspec/tools/tassert"
	"github.com/NVIDIA/tspec/transport"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// run executes fn on every rank of a new group and collects errors
func run(t *testing.T, g *transport.Group, fn func(ctx context.Context, c *transport.Comm) error) {
	var (
		wg    sync.WaitGroup
		errCh = make(chan error, g.Size())
		ctx   = context.Background()
	)
	for r := range g.Size() {
		wg.Add(1)
		go func(c *transport.Comm) {
			defer wg.Done()
			if err := fn(ctx, c); err != nil {
				errCh <- fmt.Errorf("rank %d: %w", c.Rank(), err)
				g.Abort(err)
			}
		}(g.Comm(r))
	}
	wg.Wait()
	tassert.SelectErr(t, errCh, "run", true)
}

func TestSendRecvSelective(t *testing.T) {
	const (
		tagA = 1
		tagB = 2
		num  = 100
	)
	g := transport.NewGroup(2, nil)
	run(t, g, func(ctx context.Context, c *transport.Comm) error {
		if c.Rank() == 1 {
			for i := range num {
				if err := c.Send(ctx, 0, tagA, int64(i), nil); err != nil {
					return err
				}
				if err := c.Send(ctx, 0, tagB, int64(-i), nil); err != nil {
					return err
				}
			}
			return nil
		}
		// drain B first: selective receive must skip queued A's; each tag is FIFO
		for i := range num {
			msg, err := c.Recv(ctx, 1, tagB)
			if err != nil {
				return err
			}
			if msg.Corr != int64(-i) {
				return fmt.Errorf("tag B out of order: %d, expected %d", msg.Corr, -i)
			}
		}
		for i := range num {
			msg, err := c.Recv(ctx, transport.AnySource, tagA)
			if err != nil {
				return err
			}
			if msg.Corr != int64(i) || msg.Src != 1 {
				return fmt.Errorf("tag A out of order: %+v, expected corr %d", msg, i)
			}
		}
		if n := c.Pending(); n != 0 {
			return fmt.Errorf("expected empty mailbox, %d pending", n)
		}
		return nil
	})
}

func TestCorrelationFullWidth(t *testing.T) {
	const big = int64(1)<<62 + 12345 // does not fit 32 bits
	g := transport.NewGroup(2, nil)
	run(t, g, func(ctx context.Context, c *transport.Comm) error {
		if c.Rank() == 0 {
			return c.Send(ctx, 1, 7, big, []byte("x"))
		}
		msg, err := c.Recv(ctx, 0, 7)
		if err != nil {
			return err
		}
		if msg.Corr != big {
			return fmt.Errorf("correlation truncated: %d != %d", msg.Corr, big)
		}
		return nil
	})
}

func TestCollectives(t *testing.T) {
	for _, size := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("size-%d", size), func(t *testing.T) {
			g := transport.NewGroup(size, nil)
			run(t, g, func(ctx context.Context, c *transport.Comm) error {
				if err := c.Barrier(ctx); err != nil {
					return err
				}
				// bcast from the last rank
				root := c.Size() - 1
				b, err := c.Bcast(ctx, root, []byte("header"))
				if err != nil {
					return err
				}
				if string(b) != "header" {
					return fmt.Errorf("bcast: %q", b)
				}
				// gather
				bodies, err := c.Gather(ctx, transport.Coord, []byte{byte(c.Rank())})
				if err != nil {
					return err
				}
				if c.IsCoord() {
					for r, body := range bodies {
						if len(body) != 1 || int(body[0]) != r {
							return fmt.Errorf("gather: rank %d sent %v", r, body)
						}
					}
				} else if bodies != nil {
					return errors.New("gather: non-root got a result")
				}
				// scatter
				var parts [][]byte
				if c.IsCoord() {
					parts = make([][]byte, c.Size())
					for r := range parts {
						parts[r] = bytes.Repeat([]byte{'p'}, r)
					}
				}
				part, err := c.Scatter(ctx, transport.Coord, parts)
				if err != nil {
					return err
				}
				if len(part) != c.Rank() {
					return fmt.Errorf("scatter: got %d bytes", len(part))
				}
				// reductions
				maxv, err := c.AllreduceInt64(ctx, int64(c.Rank()*10), transport.OpMax)
				if err != nil {
					return err
				}
				sum, err := c.AllreduceInt64(ctx, 1, transport.OpSum)
				if err != nil {
					return err
				}
				if maxv != int64((c.Size()-1)*10) || sum != int64(c.Size()) {
					return fmt.Errorf("allreduce: max %d, sum %d", maxv, sum)
				}
				wall, err := c.AllreduceFloat64(ctx, 0.5+float64(c.Rank()), transport.OpMax)
				if err != nil {
					return err
				}
				if wall != 0.5+float64(c.Size()-1) {
					return fmt.Errorf("allreduce float: %g", wall)
				}
				return c.Barrier(ctx)
			})
		})
	}
}

func TestCompression(t *testing.T) {
	g := transport.NewGroup(2, &transport.Extra{Compression: cmn.CompressLZ4, CompressMin: 1024})
	payload := bytes.Repeat([]byte("tspec-halo-particles "), 4096)
	run(t, g, func(ctx context.Context, c *transport.Comm) error {
		if c.Rank() == 0 {
			if err := c.Send(ctx, 1, 1, 0, payload); err != nil {
				return err
			}
			return c.Send(ctx, 1, 1, 1, []byte("small"))
		}
		for _, expected := range [][]byte{payload, []byte("small")} {
			msg, err := c.Recv(ctx, 0, 1)
			if err != nil {
				return err
			}
			if !bytes.Equal(msg.Body, expected) {
				return fmt.Errorf("payload mismatch: %d bytes, expected %d", len(msg.Body), len(expected))
			}
		}
		return nil
	})
	stats := g.Stats()
	tassert.Errorf(t, stats.Num.Load() == 2, "sent %d", stats.Num.Load())
	cs := stats.CompressedSize.Load()
	tassert.Errorf(t, cs > 0 && cs < int64(len(payload)), "compressed size %d (payload %d)", cs, len(payload))
}

func TestAbortUnblocks(t *testing.T) {
	var (
		g     = transport.NewGroup(3, nil)
		cause = errors.New("shard 2: malformed halo file")
		errCh = make(chan error, 2)
		wg    sync.WaitGroup
	)
	for r := range 2 {
		wg.Add(1)
		go func(c *transport.Comm) {
			defer wg.Done()
			// nobody ever sends: only Abort can release this
			_, err := c.Recv(context.Background(), transport.AnySource, 1)
			errCh <- err
		}(g.Comm(r))
	}
	time.Sleep(10 * time.Millisecond)
	g.Abort(cause)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		tassert.Errorf(t, transport.IsErrAborted(err) && errors.Is(err, cause), "expected abort, got %v", err)
	}
	err := g.Comm(2).Send(context.Background(), 0, 1, 0, nil)
	tassert.Errorf(t, transport.IsErrAborted(err), "send after abort: %v", err)
}

func TestContextCancel(t *testing.T) {
	g := transport.NewGroup(2, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Comm(0).Barrier(ctx)
	tassert.Errorf(t, errors.Is(err, context.DeadlineExceeded), "expected deadline, got %v", err)
}

func TestInvalidRank(t *testing.T) {
	g := transport.NewGroup(2, nil)
	err := g.Comm(0).Send(context.Background(), 5, 1, 0, nil)
	_, ok := err.(*transport.ErrRank)
	tassert.Errorf(t, ok, "expected rank error, got %v", err)
}
