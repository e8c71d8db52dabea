// Package dedup_test - cross-shard duplicate removal tests
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package dedup_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"

	"github.com/NVIDIA/tspec/cmn"
	"github.com/NVIDIA/tspec/cmn/cos"
	"github.com/NVIDIA/tspec/dedup"
	"github.com/NVIDIA/tspec/halo"
	"github.com/NVIDIA/tspec/tools/tassert"
	"github.com/NVIDIA/tspec/transport"
)

type counters map[string]int64

func (c counters) Add(name string, val int64) { c[name] += val }

// shards distributes halos by their position in the outer slice; nmax and
// ntot are computed here the way halo.Load does it
func newTables(t *testing.T, shards [][]halo.Halo) []*halo.Table {
	var nmax, ntot int
	for _, s := range shards {
		nmax = max(nmax, len(s))
		ntot += len(s)
	}
	tables := make([]*halo.Table, len(shards))
	for r, s := range shards {
		local := make([]halo.Halo, len(s))
		for i := range s {
			local[i] = s[i]
			local[i].PIDs = slices.Clone(s[i].PIDs)
			local[i].Subs = slices.Clone(s[i].Subs)
		}
		tbl, err := halo.NewTable(local, nmax, ntot)
		tassert.CheckFatal(t, err)
		tables[r] = tbl
	}
	return tables
}

func runDedup(tables []*halo.Table, strategy string) ([]*dedup.Result, []error) {
	var (
		g    = transport.NewGroup(len(tables), nil)
		res  = make([]*dedup.Result, len(tables))
		errs = make([]error, len(tables))
		wg   sync.WaitGroup
	)
	for r := range tables {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			var err error
			res[r], err = dedup.Run(context.Background(), g.Comm(r), tables[r], &dedup.Opts{Strategy: strategy})
			if err != nil {
				errs[r] = fmt.Errorf("rank %d: %w", r, err)
				g.Abort(err)
			}
		}(r)
	}
	wg.Wait()
	return res, errs
}

func mustDedup(t *testing.T, tables []*halo.Table, strategy string) []*dedup.Result {
	res, errs := runDedup(tables, strategy)
	for _, err := range errs {
		tassert.CheckFatal(t, err)
	}
	return res
}

// union of all real halos, by id
func byID(tables []*halo.Table) map[int64]*halo.Halo {
	all := make(map[int64]*halo.Halo)
	for _, tbl := range tables {
		for i := range tbl.NLocal {
			h := tbl.Get(i)
			all[h.ID] = h
		}
	}
	return all
}

func checkNoDoubleMembership(t *testing.T, tables []*halo.Table) {
	all := byID(tables)
	for _, h := range all {
		for _, sid := range h.Subs {
			sub := all[sid]
			for _, pid := range sub.PIDs {
				if pid == halo.Sentinel {
					continue
				}
				tassert.Errorf(t, !slices.Contains(h.PIDs, pid),
					"particle %d unmasked in both host %d and sub-halo %d", pid, h.ID, sid)
			}
		}
	}
}

func checkGhosts(t *testing.T, tables []*halo.Table) {
	for r, tbl := range tables {
		for i := tbl.NLocal; i < tbl.NMax; i++ {
			g := tbl.Get(i)
			tassert.Errorf(t, g.IsGhost() && slices.Equal(g.PIDs, []int32{halo.Sentinel}),
				"rank %d slot %d: ghost modified: %s %v", r, i, g, g.PIDs)
		}
	}
}

// genCatalog builds a three-level hierarchy where every sub-halo's particles
// are a subset of its host's, and spreads the halos randomly over nshards
func genCatalog(rnd *rand.Rand, nhosts, nshards int) [][]halo.Halo {
	var (
		halos []halo.Halo
		id    int64 = 100
		next  int32 = 1
	)
	take := func(from []int32, n int) []int32 {
		out := slices.Clone(from)
		rnd.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		out = out[:min(n, len(out))]
		slices.Sort(out)
		return out
	}
	var add func(host int64, pids []int32, depth int) int64
	add = func(host int64, pids []int32, depth int) int64 {
		id++
		h := halo.Halo{ID: id, Host: host, PIDs: pids, MVir: float32(len(pids))}
		pos := len(halos)
		halos = append(halos, h)
		if depth < 2 {
			for range rnd.IntN(3) {
				sub := add(h.ID, take(pids, 1+len(pids)/3), depth+1)
				halos[pos].Subs = append(halos[pos].Subs, sub)
			}
		}
		return h.ID
	}
	for range nhosts {
		n := 10 + rnd.IntN(30)
		pids := make([]int32, n)
		for i := range pids {
			pids[i] = next
			next++
		}
		add(0, pids, 0)
	}
	shards := make([][]halo.Halo, nshards)
	for _, h := range halos {
		r := rnd.IntN(nshards)
		shards[r] = append(shards[r], h)
	}
	return shards
}

func TestMaskStrategies(t *testing.T) {
	tests := []struct {
		host, sub, want []int32
	}{
		{[]int32{1, 2, 3, 4}, []int32{2, 3}, []int32{1, -1, -1, 4}},
		{[]int32{1, 2, 3, 4}, []int32{5, 6}, []int32{1, 2, 3, 4}},
		{[]int32{1, -1, 3, 4}, []int32{-1, 3}, []int32{1, -1, -1, 4}},
		{[]int32{-1}, []int32{1, 2}, []int32{-1}},
		{[]int32{1, 5, 9}, nil, []int32{1, 5, 9}},
		{[]int32{2, 4, 6, 8}, []int32{1, 2, 3, 8, 9}, []int32{-1, 4, 6, -1}},
	}
	for _, test := range tests {
		for name, mask := range map[string]dedup.MaskFunc{cmn.StrategyNested: dedup.MaskNested, cmn.StrategyMerge: dedup.MaskMerge} {
			host := slices.Clone(test.host)
			mask(host, test.sub)
			tassert.Errorf(t, slices.Equal(host, test.want), "%s(%v, %v) = %v, expected %v",
				name, test.host, test.sub, host, test.want)
		}
	}
	_, err := dedup.MaskFor("bogus")
	tassert.Errorf(t, err != nil, "expected unknown strategy error")
}

func TestScenarioTwoShards(t *testing.T) {
	tables := newTables(t, [][]halo.Halo{
		{{ID: 10, PIDs: []int32{1, 2, 3, 4}, Subs: []int64{20}, MVir: 5}},
		{{ID: 20, PIDs: []int32{2, 3}, Host: 10, MVir: 1}},
	})
	res := mustDedup(t, tables, cmn.StrategyMerge)
	host, sub := tables[0].Get(0), tables[1].Get(0)
	tassert.Errorf(t, slices.Equal(host.PIDs, []int32{1, -1, -1, 4}), "host pids %v", host.PIDs)
	tassert.Errorf(t, slices.Equal(sub.PIDs, []int32{2, 3}), "sub pids %v", sub.PIDs)
	tassert.Errorf(t, res[0].MIA == 1 && res[0].Masked == 2 && res[1].Replies == 1,
		"rank 0: %+v, rank 1: %+v", res[0], res[1])
	tassert.Errorf(t, res[0].Warnings == 0, "unexpected host mismatch warnings: %d", res[0].Warnings)
}

func TestSingleShardLocal(t *testing.T) {
	tables := newTables(t, [][]halo.Halo{{
		{ID: 10, PIDs: []int32{1, 2, 3, 4}, Subs: []int64{20}, MVir: 5},
		{ID: 20, PIDs: []int32{2, 3}, Host: 10, MVir: 1},
	}})
	g := transport.NewGroup(1, nil)
	tracker := counters{}
	res, err := dedup.Run(context.Background(), g.Comm(0), tables[0], &dedup.Opts{StatsTracker: tracker})
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, slices.Equal(tables[0].Get(0).PIDs, []int32{1, -1, -1, 4}), "host pids %v", tables[0].Get(0).PIDs)
	tassert.Errorf(t, res.Local == 1 && res.MIA == 0, "%+v", res)
	tassert.Errorf(t, tracker[dedup.StatMasked] == 2, "stats %v", tracker)
	tassert.Errorf(t, g.Stats().Num.Load() == 0, "single shard sent %d messages", g.Stats().Num.Load())
}

func TestSubNeverFound(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		tables := newTables(t, [][]halo.Halo{{{ID: 10, PIDs: []int32{1, 2}, Subs: []int64{99}, MVir: 5}}})
		_, errs := runDedup(tables, cmn.StrategyMerge)
		tassert.Errorf(t, cos.IsErrMaxIters(errs[0]), "expected max-iters, got %v", errs[0])
	})
	t.Run("sharded", func(t *testing.T) {
		tables := newTables(t, [][]halo.Halo{
			{{ID: 10, PIDs: []int32{1, 2}, Subs: []int64{99}, MVir: 5}},
			{{ID: 20, PIDs: []int32{3}, MVir: 1}},
			{{ID: 30, PIDs: []int32{4}, MVir: 1}},
		})
		_, errs := runDedup(tables, cmn.StrategyMerge)
		tassert.Errorf(t, cos.IsErrMaxIters(errs[0]), "expected max-iters, got %v", errs[0])
		for r := 1; r < len(errs); r++ {
			tassert.Errorf(t, errs[r] == nil || transport.IsErrAborted(errs[r]), "rank %d: %v", r, errs[r])
		}
	})
}

func TestUnexpectedReply(t *testing.T) {
	var (
		g   = transport.NewGroup(2, nil)
		ctx = context.Background()
		wg  sync.WaitGroup
		err error
	)
	tables := newTables(t, [][]halo.Halo{{{ID: 10, PIDs: []int32{1, 2}, Subs: []int64{20}, MVir: 5}}})
	wg.Add(1)
	go func() {
		defer wg.Done()
		// rogue peer: answers with an id nobody asked for
		if _, err := g.Comm(1).Recv(ctx, 0, dedup.TagMIA); err != nil {
			return
		}
		body := cos.NewPacker(nil, cos.PackedI32sLen(1)+cos.SizeofI64)
		body.WriteI32s([]int32{1})
		body.WriteInt64(10)
		_ = g.Comm(1).Send(ctx, 0, dedup.TagReply, 77, body.Bytes())
	}()
	_, err = dedup.Run(ctx, g.Comm(0), tables[0], &dedup.Opts{})
	wg.Wait()
	tassert.Errorf(t, cos.IsErrIntegrity(err), "expected integrity violation, got %v", err)
}

func TestCrossShard(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 2))
	for _, nshards := range []int{1, 2, 3, 5} {
		t.Run(fmt.Sprintf("shards=%d", nshards), func(t *testing.T) {
			catalog := genCatalog(rnd, 12, nshards)

			var (
				nested = newTables(t, catalog)
				merged = newTables(t, catalog)
			)
			mustDedup(t, nested, cmn.StrategyNested)
			mustDedup(t, merged, cmn.StrategyMerge)

			checkNoDoubleMembership(t, merged)
			checkGhosts(t, merged)

			// byte-identical across strategies
			a, b := byID(nested), byID(merged)
			for id, h := range a {
				tassert.Errorf(t, slices.Equal(h.PIDs, b[id].PIDs), "halo %d: nested %v, merge %v", id, h.PIDs, b[id].PIDs)
			}

			// same result as a single shard holding everything
			var flat []halo.Halo
			for _, s := range catalog {
				flat = append(flat, s...)
			}
			single := newTables(t, [][]halo.Halo{flat})
			mustDedup(t, single, cmn.StrategyMerge)
			c := byID(single)
			for id, h := range b {
				tassert.Errorf(t, slices.Equal(h.PIDs, c[id].PIDs), "halo %d: sharded %v, single %v", id, h.PIDs, c[id].PIDs)
			}

			// idempotent
			before := make(map[int64][]int32, len(b))
			for id, h := range b {
				before[id] = slices.Clone(h.PIDs)
			}
			res := mustDedup(t, merged, cmn.StrategyMerge)
			for _, r := range res {
				tassert.Errorf(t, r.Masked == 0, "second pass masked %d", r.Masked)
			}
			for id, h := range byID(merged) {
				tassert.Errorf(t, slices.Equal(h.PIDs, before[id]), "halo %d changed on second pass", id)
			}
		})
	}
}
