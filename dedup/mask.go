// Package dedup removes sub-halo particles from their host halos' particle
// lists, across shard boundaries, so that no particle is claimed by both.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package dedup

import (
	"fmt"

	"github.com/NVIDIA/tspec/cmn"
	"github.com/NVIDIA/tspec/halo"
)

// MaskFunc replaces with halo.Sentinel every entry of host that also occurs
// in sub, and returns the number of entries masked. Both lists are sorted
// ascending apart from sentinel slots, which are skipped.
type MaskFunc func(host, sub []int32) int

// MaskNested is the O(host*sub) reference.
func MaskNested(host, sub []int32) (n int) {
	for _, s := range sub {
		if s == halo.Sentinel {
			continue
		}
		for i, h := range host {
			if h == s {
				host[i] = halo.Sentinel
				n++
				break
			}
		}
	}
	return n
}

// MaskMerge walks both sorted lists once, O(host+sub).
func MaskMerge(host, sub []int32) (n int) {
	for i, j := 0, 0; i < len(host) && j < len(sub); {
		h, s := host[i], sub[j]
		switch {
		case h == halo.Sentinel:
			i++
		case s == halo.Sentinel:
			j++
		case h < s:
			i++
		case h > s:
			j++
		default:
			host[i] = halo.Sentinel
			n++
			i++
			j++
		}
	}
	return n
}

func MaskFor(strategy string) (MaskFunc, error) {
	switch strategy {
	case cmn.StrategyNested:
		return MaskNested, nil
	case cmn.StrategyMerge, "":
		return MaskMerge, nil
	default:
		return nil, fmt.Errorf("dedup: unknown strategy %q", strategy)
	}
}
