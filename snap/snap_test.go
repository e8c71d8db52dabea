// Package snap_test - Gadget snapshot codec tests
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package snap_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/NVIDIA/tspec/cmn/cos"
	"github.com/NVIDIA/tspec/core"
	"github.com/NVIDIA/tspec/snap"
	"github.com/NVIDIA/tspec/tools/tassert"
)

func gasParticle(id int32) core.Particle {
	f := float32(id)
	return core.Particle{
		ID: id, Type: snap.TypeGas,
		Pos: [3]float32{f, f + 0.5, f + 0.25}, Vel: [3]float32{-f, 0, f},
		Mass: 0.01 * f, Density: 100 + f, Hsml: 0.1 * f,
	}
}

// one type-0, three gas, one type-2 particle with constant mass
func genFile(ids []int32, first int32, total [snap.NumTypes]int32, nfiles int32) (*snap.Header, []core.Particle) {
	h := &snap.Header{
		Time: 0.25, Redshift: 3, NumFiles: nfiles, BoxSize: 25000,
		Omega0: 0.3, OmegaLambda: 0.7, HubbleParam: 0.7, NPartTotal: total,
	}
	h.Mass[2] = 0.5
	h.NPart = [snap.NumTypes]int32{1, int32(len(ids)), 1}
	parts := []core.Particle{{ID: first, Type: 0, Mass: 9, Pos: [3]float32{1, 1, 1}}}
	for _, id := range ids {
		parts = append(parts, gasParticle(id))
	}
	parts = append(parts, core.Particle{ID: first + 1, Type: 2, Mass: 0.5})
	return h, parts
}

func TestHeaderSize(t *testing.T) {
	tassert.Errorf(t, binary.Size(snap.Header{}) == snap.HeaderSize, "header size %d", binary.Size(snap.Header{}))
}

func TestLoadSingleFile(t *testing.T) {
	fqn := filepath.Join(t.TempDir(), "snap_005")
	h, parts := genFile([]int32{3, 1, 2}, 100, [snap.NumTypes]int32{1, 3, 1}, 1)
	tassert.CheckFatal(t, snap.WriteFile(fqn, h, parts))

	hdr, gas, err := snap.Load(fqn)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, hdr.Redshift == 3 && hdr.HubbleParam == 0.7 && hdr.NumGas() == 3, "header %s", hdr)
	tassert.Fatalf(t, len(gas) == 3, "loaded %d gas particles", len(gas))
	for i, id := range []int32{3, 1, 2} {
		tassert.Errorf(t, gas[i] == gasParticle(id), "particle %d: %+v != %+v", i, gas[i], gasParticle(id))
	}
}

func TestLoadMultiFile(t *testing.T) {
	var (
		snapshot = filepath.Join(t.TempDir(), "snap_005")
		total    = [snap.NumTypes]int32{2, 5, 2}
		ids      = [][]int32{{4, 2}, {1, 5, 3}}
	)
	for i, chunk := range ids {
		h, parts := genFile(chunk, int32(100+10*i), total, 2)
		tassert.CheckFatal(t, snap.WriteFile(snap.FileName(snapshot, i, 2), h, parts))
	}
	hdr, gas, err := snap.Load(snapshot)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, hdr.NumFiles == 2, "header %s", hdr)
	tassert.Fatalf(t, len(gas) == 5, "loaded %d gas particles", len(gas))

	core.SortByID(gas)
	for i := range gas {
		tassert.Errorf(t, gas[i] == gasParticle(int32(i+1)), "particle %d: %+v", i, gas[i])
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, _, err := snap.Load(filepath.Join(dir, "nonexistent"))
	tassert.Errorf(t, cos.IsErrNotFound(err), "expected not-found, got %v", err)

	// second file of a two-file snapshot is missing
	snapshot := filepath.Join(dir, "partial")
	h, parts := genFile([]int32{1}, 10, [snap.NumTypes]int32{1, 2, 1}, 2)
	tassert.CheckFatal(t, snap.WriteFile(snap.FileName(snapshot, 0, 2), h, parts))
	_, _, err = snap.Load(snapshot)
	tassert.Errorf(t, cos.IsErrNotFound(err), "expected not-found, got %v", err)

	// corrupt trailing size marker of the header block
	fqn := filepath.Join(dir, "corrupt")
	h, parts = genFile([]int32{1, 2}, 10, [snap.NumTypes]int32{1, 2, 1}, 1)
	tassert.CheckFatal(t, snap.WriteFile(fqn, h, parts))
	b, err := os.ReadFile(fqn)
	tassert.CheckFatal(t, err)
	b[4+snap.HeaderSize]++
	tassert.CheckFatal(t, os.WriteFile(fqn, b, cos.PermRWR))
	_, _, err = snap.Load(fqn)
	tassert.Errorf(t, cos.IsErrMismatch(err), "expected mismatch, got %v", err)

	// truncated
	tassert.CheckFatal(t, os.WriteFile(fqn, b[:len(b)-10], cos.PermRWR))
	_, _, err = snap.Load(fqn)
	tassert.Errorf(t, err != nil, "expected error on truncated file")
}

func TestWriteOutput(t *testing.T) {
	var (
		dir      = t.TempDir()
		snapshot = filepath.Join(dir, "in", "snap_005")
		master   = &snap.Header{NumFiles: 4, Redshift: 2, HubbleParam: 0.7}
		parts    = []core.Particle{gasParticle(1), gasParticle(2), gasParticle(3)}
	)
	master.NPart = [snap.NumTypes]int32{3, 7, 0, 1}
	master.NPartTotal = [snap.NumTypes]int32{12, 3, 0, 4}
	for i := range parts {
		parts[i].Temp = 1e4 * float32(i+1)
	}
	fqn := snap.OutputName(snapshot, dir)
	tassert.Errorf(t, fqn == filepath.Join(dir, "snap_005-tspec"), "output name %q", fqn)
	tassert.Errorf(t, snap.OutputName(snapshot, "") == snapshot+"-tspec", "output name %q", snap.OutputName(snapshot, ""))

	tassert.CheckFatal(t, snap.WriteOutput(fqn, master, parts))
	hdr, out, err := snap.LoadOutput(fqn)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, hdr.NumFiles == 1 && hdr.NPart[snap.TypeGas] == 3 && hdr.NPartTotal[snap.TypeGas] == 3,
		"header %s", hdr)
	tassert.Errorf(t, hdr.NPart[0] == 0 && hdr.NPartTotal[3] == 0, "non-gas types in output header %s", hdr)
	tassert.Fatalf(t, len(out) == len(parts), "read back %d particles", len(out))
	for i := range parts {
		tassert.Errorf(t, out[i] == parts[i], "particle %d: %+v != %+v", i, out[i], parts[i])
	}
}

func TestDigest(t *testing.T) {
	a := []core.Particle{gasParticle(1), gasParticle(2)}
	b := []core.Particle{gasParticle(1), gasParticle(2)}
	tassert.Errorf(t, snap.Digest(a) == snap.Digest(b), "equal sets, different digests")
	b[1].Temp = 1
	tassert.Errorf(t, snap.Digest(a) != snap.Digest(b), "different sets, same digest")
	tassert.Errorf(t, snap.DigestString(nil) != "", "empty digest")
}
