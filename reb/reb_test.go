// Package reb_test - counts, scatter, and gather
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package reb_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/NVIDIA/tspec/core"
	"github.com/NVIDIA/tspec/reb"
	"github.com/NVIDIA/tspec/transport"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type counters struct {
	m  map[string]int64
	mu sync.Mutex
}

func (c *counters) Add(name string, val int64) {
	c.mu.Lock()
	c.m[name] += val
	c.mu.Unlock()
}

func genParticles(n int) []core.Particle {
	parts := make([]core.Particle, n)
	for i := range parts {
		parts[i] = core.Particle{
			ID:      int32(i + 1),
			Pos:     [3]float32{float32(i), float32(2 * i), float32(3 * i)},
			Density: float32(i) / 7,
			InHalo:  int32(i % 2),
			MVir:    float32(i % 2 * 10),
		}
	}
	return parts
}

// rebalance n particles over w workers, apply fn locally, gather back
func roundTrip(n, w int, fn func(rank int, local []core.Particle)) (locals [][]core.Particle, all []core.Particle, tracker *counters) {
	var (
		g    = transport.NewGroup(w, nil)
		wg   sync.WaitGroup
		errs = make([]error, w)
	)
	tracker = &counters{m: map[string]int64{}}
	locals = make([][]core.Particle, w)
	for r := range w {
		wg.Add(1)
		go func(r int) {
			defer GinkgoRecover()
			defer wg.Done()
			var (
				ctx  = context.Background()
				comm = g.Comm(r)
				in   []core.Particle
			)
			if comm.IsCoord() {
				in = genParticles(n)
			}
			local, err := reb.Rebalance(ctx, comm, in, tracker)
			if err == nil {
				locals[r] = append([]core.Particle(nil), local...)
				if fn != nil {
					fn(r, local)
				}
				var out []core.Particle
				out, err = reb.Gather(ctx, comm, local, tracker)
				if comm.IsCoord() {
					all = out
				}
			}
			if err != nil {
				errs[r] = fmt.Errorf("rank %d: %w", r, err)
				g.Abort(err)
			}
		}(r)
	}
	wg.Wait()
	for _, err := range errs {
		Expect(err).NotTo(HaveOccurred())
	}
	return locals, all, tracker
}

var _ = Describe("Rebalance", func() {
	DescribeTable("counts",
		func(n int64, w int, expected []int64) {
			counts := reb.Counts(n, w)
			Expect(counts).To(Equal(expected))
			displs := reb.Displs(counts)
			Expect(displs[0]).To(BeZero())
			Expect(displs[w-1] + counts[w-1]).To(Equal(n))
		},
		Entry("remainder to the last", int64(7), 3, []int64{2, 2, 3}),
		Entry("even", int64(9), 3, []int64{3, 3, 3}),
		Entry("fewer particles than workers", int64(2), 4, []int64{0, 0, 0, 2}),
		Entry("single worker", int64(5), 1, []int64{5}),
		Entry("empty", int64(0), 2, []int64{0, 0}),
	)

	It("should split 7 particles over 3 workers as 2, 2, 3", func() {
		locals, _, tracker := roundTrip(7, 3, nil)
		Expect(locals[0]).To(HaveLen(2))
		Expect(locals[1]).To(HaveLen(2))
		Expect(locals[2]).To(HaveLen(3))
		Expect(locals[2][0].ID).To(Equal(int32(5)))
		Expect(tracker.m[reb.StatSent]).To(Equal(int64(7)))
	})

	DescribeTable("conservation",
		func(n, w int) {
			expected := genParticles(n)
			locals, all, _ := roundTrip(n, w, nil)

			By("every particle lands on exactly one worker")
			seen := make(map[int32]int, n)
			for r, local := range locals {
				for _, p := range local {
					seen[p.ID]++
					Expect(p).To(Equal(expected[p.ID-1]), "rank %d", r)
				}
			}
			Expect(seen).To(HaveLen(n))
			for id, cnt := range seen {
				Expect(cnt).To(Equal(1), "particle %d", id)
			}

			By("gathering restores the original order")
			Expect(all).To(HaveLen(n))
			Expect(all).To(Equal(expected))
		},
		Entry("7 over 3", 7, 3),
		Entry("1000 over 4", 1000, 4),
		Entry("3 over 5", 3, 5),
		Entry("single worker", 10, 1),
	)

	It("should gather per-worker results in rank order", func() {
		_, all, tracker := roundTrip(11, 4, func(rank int, local []core.Particle) {
			for i := range local {
				local[i].Temp = float32(rank + 1)
			}
		})
		counts := reb.Counts(11, 4)
		displs := reb.Displs(counts)
		for r := range counts {
			for i := displs[r]; i < displs[r]+counts[r]; i++ {
				Expect(all[i].Temp).To(Equal(float32(r + 1)))
				Expect(all[i].ID).To(Equal(int32(i + 1)))
			}
		}
		Expect(tracker.m[reb.StatGathered]).To(Equal(int64(11)))
	})
})
