// Package snap reads and writes Gadget-2 (format 1) snapshots.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package snap

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/NVIDIA/tspec/cmn/cos"
	"github.com/NVIDIA/tspec/cmn/nlog"
	"github.com/NVIDIA/tspec/core"
)

const OutputSuffix = "-tspec"

// OutputName is where the annotated snapshot goes: <dir>/<base(snapshot)>-tspec,
// or next to the snapshot when dir is empty.
func OutputName(snapshot, dir string) string {
	if dir == "" {
		return snapshot + OutputSuffix
	}
	return filepath.Join(dir, filepath.Base(snapshot)+OutputSuffix)
}

// WriteOutput writes the gas particles as a single-file snapshot with an
// extra temperature block:
// header, pos, vel, ids, [mass], temp, rho, hsml.
func WriteOutput(fqn string, master *Header, parts []core.Particle) error {
	h := *master
	h.NPart, h.NPartTotal = [NumTypes]int32{}, [NumTypes]int32{}
	h.NPart[TypeGas] = int32(len(parts))
	h.NPartTotal[TypeGas] = int32(len(parts))
	h.NumFiles = 1
	return save(fqn, func(w io.Writer) error {
		if err := writeHeader(w, &h); err != nil {
			return err
		}
		if err := writeCommon(w, &h, parts); err != nil {
			return err
		}
		for _, b := range []block{blockTemp, blockRho, blockHsml} {
			if err := writeBlock(w, gasBlock(parts, b)); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteFile writes one file of an input snapshot. Particles must be ordered
// by type and match h.NPart; only gas particles carry rho and hsml.
func WriteFile(fqn string, h *Header, parts []core.Particle) error {
	cos.Assertf(h.NumPart() == len(parts), "header lists %d particles, have %d", h.NumPart(), len(parts))
	return save(fqn, func(w io.Writer) error {
		if err := writeHeader(w, h); err != nil {
			return err
		}
		if err := writeCommon(w, h, parts); err != nil {
			return err
		}
		gas := parts[h.NPart[0] : h.NPart[0]+h.NPart[TypeGas]]
		if len(gas) == 0 {
			return nil
		}
		if err := writeBlock(w, gasBlock(gas, blockRho)); err != nil {
			return err
		}
		return writeBlock(w, gasBlock(gas, blockHsml))
	})
}

// pos, vel, ids, and (if any type has no constant mass) mass
func writeCommon(w io.Writer, h *Header, parts []core.Particle) error {
	var (
		pos = make([]byte, h.blockSize(blockPos))
		vel = make([]byte, h.blockSize(blockVel))
		ids = make([]byte, h.blockSize(blockIDs))
	)
	for i := range parts {
		for j := range 3 {
			putF32(pos, 3*i+j, parts[i].Pos[j])
			putF32(vel, 3*i+j, parts[i].Vel[j])
		}
		putI32(ids, i, parts[i].ID)
	}
	for _, b := range [][]byte{pos, vel, ids} {
		if err := writeBlock(w, b); err != nil {
			return err
		}
	}
	if h.NumWithMass() == 0 {
		return nil
	}
	var (
		mass = make([]byte, h.blockSize(blockMass))
		j    int
	)
	for i := range parts {
		if h.Mass[parts[i].Type] == 0 {
			putF32(mass, j, parts[i].Mass)
			j++
		}
	}
	return writeBlock(w, mass)
}

func gasBlock(gas []core.Particle, b block) []byte {
	buf := make([]byte, len(gas)*cos.SizeofI32)
	for i := range gas {
		var f float32
		switch b {
		case blockTemp:
			f = gas[i].Temp
		case blockRho:
			f = gas[i].Density
		case blockHsml:
			f = gas[i].Hsml
		default:
			cos.AssertMsg(false, b.String())
		}
		putF32(buf, i, f)
	}
	return buf
}

// save writes via a temp file and renames it into place
func save(fqn string, write func(io.Writer) error) (err error) {
	var (
		file *os.File
		tmp  = fqn + ".tmp." + strconv.Itoa(os.Getpid())
	)
	if err = os.MkdirAll(filepath.Dir(fqn), cos.PermRWXRX); err != nil {
		return
	}
	if file, err = os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, cos.PermRWR); err != nil {
		return
	}
	defer func() {
		if err != nil {
			if errRm := os.Remove(tmp); errRm != nil {
				nlog.Errorf("failed to remove %s: %v", tmp, errRm)
			}
		}
	}()
	bw := bufio.NewWriterSize(file, ioBufSize)
	if err = write(bw); err == nil {
		err = bw.Flush()
	}
	if err != nil {
		file.Close()
		return
	}
	if err = file.Close(); err != nil {
		return
	}
	return os.Rename(tmp, fqn)
}
