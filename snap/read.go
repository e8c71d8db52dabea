// Package snap reads and writes Gadget-2 (format 1) snapshots.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package snap

import (
	"bufio"
	"os"
	"strconv"

	"github.com/NVIDIA/tspec/cmn/cos"
	"github.com/NVIDIA/tspec/cmn/nlog"
	"github.com/NVIDIA/tspec/core"
)

const ioBufSize = 256 * cos.KiB

// FileName returns the name of the i-th file of a (possibly) multi-file snapshot.
func FileName(snapshot string, i, numFiles int) string {
	if numFiles <= 1 {
		return snapshot
	}
	return snapshot + "." + strconv.Itoa(i)
}

// ReadHeader reads the header of the first file: <snapshot>, or <snapshot>.0
// for multi-file snapshots.
func ReadHeader(snapshot string) (*Header, error) {
	fh, err := os.Open(snapshot)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if fh, err = os.Open(snapshot + ".0"); err != nil {
			return nil, cos.NewErrNotFound("snapshot", "%q (nor %q)", snapshot, snapshot+".0")
		}
	}
	defer fh.Close()
	return readHeader(bufio.NewReader(fh), fh.Name())
}

// Load reads all files of the snapshot and returns the master header along
// with the gas particles (type TypeGas) in file order.
func Load(snapshot string) (*Header, []core.Particle, error) {
	hdr, err := ReadHeader(snapshot)
	if err != nil {
		return nil, nil, err
	}
	var (
		nfiles = int(hdr.NumFiles)
		all    = make([]core.Particle, 0, hdr.NumGas())
	)
	for i := range nfiles {
		fname := FileName(snapshot, i, nfiles)
		if nfiles > 1 {
			nlog.Infof("loading snapshot file %d of %d: %s", i+1, nfiles, fname)
		}
		if all, err = loadFile(fname, all, false); err != nil {
			return nil, nil, err
		}
	}
	if len(all) != hdr.NumGas() {
		return nil, nil, cos.NewErrMismatch(snapshot, "loaded %d gas particles, header says %d", len(all), hdr.NumGas())
	}
	return hdr, all, nil
}

// LoadOutput reads back a file written by WriteOutput.
func LoadOutput(fqn string) (*Header, []core.Particle, error) {
	hdr, err := ReadHeader(fqn)
	if err != nil {
		return nil, nil, err
	}
	parts, err := loadFile(fqn, nil, true)
	if err != nil {
		return nil, nil, err
	}
	return hdr, parts, nil
}

// loadFile appends the file's gas particles to all.
func loadFile(fname string, all []core.Particle, withTemp bool) ([]core.Particle, error) {
	fh, err := os.Open(fname)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cos.NewErrNotFound("snapshot", "file %q", fname)
		}
		return nil, err
	}
	defer fh.Close()
	r := bufio.NewReaderSize(fh, ioBufSize)

	h, err := readHeader(r, fname)
	if err != nil {
		return nil, err
	}
	var (
		parts = make([]core.Particle, h.NumPart())
		i     int
	)
	for k := range NumTypes {
		for range h.NPart[k] {
			parts[i].Type = int32(k)
			i++
		}
	}

	b, err := readBlock(r, fname, blockPos, h.blockSize(blockPos))
	if err != nil {
		return nil, err
	}
	for i := range parts {
		for j := range 3 {
			parts[i].Pos[j] = getF32(b, 3*i+j)
		}
	}
	if b, err = readBlock(r, fname, blockVel, h.blockSize(blockVel)); err != nil {
		return nil, err
	}
	for i := range parts {
		for j := range 3 {
			parts[i].Vel[j] = getF32(b, 3*i+j)
		}
	}
	if b, err = readBlock(r, fname, blockIDs, h.blockSize(blockIDs)); err != nil {
		return nil, err
	}
	for i := range parts {
		parts[i].ID = getI32(b, i)
	}

	// types with a constant mass have no entries in the mass block
	if h.NumWithMass() > 0 {
		if b, err = readBlock(r, fname, blockMass, h.blockSize(blockMass)); err != nil {
			return nil, err
		}
	}
	var j int
	for i := range parts {
		if m := h.Mass[parts[i].Type]; m != 0 {
			parts[i].Mass = float32(m)
		} else {
			parts[i].Mass = getF32(b, j)
			j++
		}
	}

	gas := parts[h.NPart[0] : h.NPart[0]+h.NPart[TypeGas]]
	if len(gas) > 0 {
		if withTemp {
			if b, err = readBlock(r, fname, blockTemp, h.blockSize(blockTemp)); err != nil {
				return nil, err
			}
			for i := range gas {
				gas[i].Temp = getF32(b, i)
			}
		}
		if b, err = readBlock(r, fname, blockRho, h.blockSize(blockRho)); err != nil {
			return nil, err
		}
		for i := range gas {
			gas[i].Density = getF32(b, i)
		}
		if b, err = readBlock(r, fname, blockHsml, h.blockSize(blockHsml)); err != nil {
			return nil, err
		}
		for i := range gas {
			gas[i].Hsml = getF32(b, i)
		}
	}
	return append(all, gas...), nil
}
