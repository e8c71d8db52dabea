// Package ahf writes synthetic AHF halo catalogs for tests.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package ahf

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/NVIDIA/tspec/cmn/cos"
	"github.com/NVIDIA/tspec/halo"
)

const ztag = "z0.000"

// Shard is one AHF file set: halos in file order.
type Shard []halo.Halo

// Write creates the three AHF files of every shard under dir and returns the
// common prefix. With a single shard the files carry no shard number.
func Write(dir, name string, shards []Shard) (prefix string, err error) {
	prefix = filepath.Join(dir, name)
	sharded := len(shards) > 1
	for i, shard := range shards {
		base := prefix + "."
		if sharded {
			base += fmt.Sprintf("%04d.", i)
		}
		base += ztag
		if err = writeParticles(base+halo.SuffixParticles, shard); err != nil {
			return
		}
		if err = writeSubstruct(base+halo.SuffixSubstruct, shard); err != nil {
			return
		}
		if err = writeHalos(base+halo.SuffixHalos, shard, i == 0); err != nil {
			return
		}
	}
	return
}

func create(fqn string, fill func(w *bufio.Writer)) error {
	f, err := os.OpenFile(fqn, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, cos.PermRWR)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	fill(w)
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeParticles(fqn string, shard Shard) error {
	return create(fqn, func(w *bufio.Writer) {
		fmt.Fprintf(w, "%d\n", len(shard))
		for i := range shard {
			h := &shard[i]
			fmt.Fprintf(w, "%d %d\n", len(h.PIDs), h.ID)
			// AHF lists particles by binding energy, not id
			for j := len(h.PIDs) - 1; j >= 0; j-- {
				fmt.Fprintf(w, "%d %d\n", h.PIDs[j], 0)
			}
		}
	})
}

func writeSubstruct(fqn string, shard Shard) error {
	return create(fqn, func(w *bufio.Writer) {
		for i := range shard {
			h := &shard[i]
			if len(h.Subs) == 0 {
				continue
			}
			fmt.Fprintf(w, "%d %d\n", h.ID, len(h.Subs))
			for k, sub := range h.Subs {
				if k > 0 {
					w.WriteByte(' ')
				}
				fmt.Fprintf(w, "%d", sub)
			}
			w.WriteByte('\n')
		}
	})
}

func writeHalos(fqn string, shard Shard, header bool) error {
	return create(fqn, func(w *bufio.Writer) {
		if header {
			w.WriteString("#ID(1)\thostHalo(2)\tnumSubStruct(3)\tMvir(4)\tnpart(5)\n")
		}
		for i := range shard {
			h := &shard[i]
			fmt.Fprintf(w, "%d\t%d\t%d\t%g\t%d\n", h.ID, h.Host, len(h.Subs), h.MVir, len(h.PIDs))
		}
	})
}
