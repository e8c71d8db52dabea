// Package halo loads sharded AHF halo catalogs into per-worker halo tables.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package halo

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/NVIDIA/tspec/cmn/cos"
)

// upper bound on any declared count; larger values mean a corrupt file
const maxCount = math.MaxInt32

// tokens reads whitespace-separated fields regardless of line structure.
type tokens struct {
	sc    *bufio.Scanner
	fname string
	n     int
}

func newTokens(r io.Reader, fname string) *tokens {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*cos.KiB), cos.MiB)
	sc.Split(bufio.ScanWords)
	return &tokens{sc: sc, fname: fname}
}

func (t *tokens) next(what string) (string, error) {
	if !t.sc.Scan() {
		if err := t.sc.Err(); err != nil {
			return "", fmt.Errorf("%s: %w", t.fname, err)
		}
		return "", fmt.Errorf("%s: unexpected EOF reading %s (token %d)", t.fname, what, t.n)
	}
	t.n++
	return t.sc.Text(), nil
}

func (t *tokens) int64(what string) (int64, error) {
	s, err := t.next(what)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid %s %q: %w", t.fname, what, s, err)
	}
	return v, nil
}

func (t *tokens) count(what string) (int, error) {
	v, err := t.int64(what)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > maxCount {
		return 0, fmt.Errorf("%s: invalid %s %d", t.fname, what, v)
	}
	return int(v), nil
}

// ReadParticles parses an AHF_particles file: the local halo count, then for
// each halo "npart hid" followed by npart "pid type" pairs. Each particle list
// is returned sorted ascending.
func ReadParticles(r io.Reader, fname string) ([]Halo, error) {
	tk := newTokens(r, fname)
	nhalos, err := tk.count("number of halos")
	if err != nil {
		return nil, err
	}
	halos := make([]Halo, nhalos)
	for i := range halos {
		h := &halos[i]
		npart, err := tk.count("number of particles")
		if err != nil {
			return nil, err
		}
		if h.ID, err = tk.int64("halo id"); err != nil {
			return nil, err
		}
		if h.ID <= 0 {
			return nil, fmt.Errorf("%s: invalid halo id %d", fname, h.ID)
		}
		h.PIDs = make([]int32, npart)
		for j := range h.PIDs {
			pid, err := tk.int64("particle id")
			if err != nil {
				return nil, err
			}
			if pid <= 0 || pid > maxCount {
				return nil, fmt.Errorf("%s: halo %d: invalid particle id %d", fname, h.ID, pid)
			}
			h.PIDs[j] = int32(pid)
			if _, err := tk.next("particle type"); err != nil {
				return nil, err
			}
		}
		slices.Sort(h.PIDs)
		for j := 1; j < len(h.PIDs); j++ {
			if h.PIDs[j] == h.PIDs[j-1] {
				return nil, cos.NewErrMismatch(fname, "halo %d lists particle %d twice", h.ID, h.PIDs[j])
			}
		}
	}
	return halos, nil
}

// ReadSubstruct parses an AHF_substructure file, "hid nsub" followed by nsub
// sub-halo ids, for halos with substructure only. Every listed host must be
// in the table.
func ReadSubstruct(r io.Reader, fname string, t *Table) error {
	tk := newTokens(r, fname)
	for {
		if !tk.sc.Scan() {
			if err := tk.sc.Err(); err != nil {
				return fmt.Errorf("%s: %w", fname, err)
			}
			return nil
		}
		tk.n++
		s := tk.sc.Text()
		hid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid halo id %q: %w", fname, s, err)
		}
		nsub, err := tk.count("number of sub-halos")
		if err != nil {
			return err
		}
		i, ok := t.Find(hid)
		if !ok {
			return cos.NewErrNotFound(fname, "host halo %d", hid)
		}
		h := t.Get(i)
		if h.Subs != nil {
			return cos.NewErrMismatch(fname, "halo %d has substructure listed twice", hid)
		}
		h.Subs = make([]int64, nsub)
		for k := range h.Subs {
			if h.Subs[k], err = tk.int64("sub-halo id"); err != nil {
				return err
			}
		}
	}
}

// ReadProperties parses an AHF_halos file: one row per local halo, in the
// same order as the particles file, with columns "hid host nsub mvir ...".
// Only the first file set (shard 0) carries a header line, skipped whatever
// it contains; comment lines ('#') are skipped everywhere.
func ReadProperties(r io.Reader, fname string, t *Table, header bool) error {
	var (
		sc  = bufio.NewScanner(r)
		i   int
		lno int
	)
	sc.Buffer(make([]byte, 0, 64*cos.KiB), cos.MiB)
	for sc.Scan() {
		lno++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if header {
			header = false
			continue
		}
		if line[0] == '#' {
			continue
		}
		if i >= t.NLocal {
			return cos.NewErrMismatch(fname, "more halos than in the particles file (%d)", t.NLocal)
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return fmt.Errorf("%s:%d: expecting at least 4 columns, got %d", fname, lno, len(fields))
		}
		hid, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return fmt.Errorf("%s:%d: invalid halo id: %w", fname, lno, err)
		}
		host, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("%s:%d: invalid host id: %w", fname, lno, err)
		}
		nsub, err := strconv.Atoi(fields[2])
		if err != nil {
			return fmt.Errorf("%s:%d: invalid number of sub-halos: %w", fname, lno, err)
		}
		mvir, err := strconv.ParseFloat(fields[3], 32)
		if err != nil {
			return fmt.Errorf("%s:%d: invalid virial mass: %w", fname, lno, err)
		}
		h := t.Get(i)
		if hid != h.ID {
			return cos.NewErrMismatch(fname, "line %d: halo id %d, expected %d (particles file order)", lno, hid, h.ID)
		}
		if nsub != len(h.Subs) {
			return cos.NewErrMismatch(fname, "halo %d: %d sub-halos, substructure file lists %d", hid, nsub, len(h.Subs))
		}
		h.Host, h.MVir = host, float32(mvir)
		i++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%s: %w", fname, err)
	}
	if i != t.NLocal {
		return cos.NewErrMismatch(fname, "%d halos, particles file has %d", i, t.NLocal)
	}
	return nil
}
