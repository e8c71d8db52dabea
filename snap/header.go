// Package snap reads and writes Gadget-2 (format 1) snapshots.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package snap

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/NVIDIA/tspec/cmn/cos"
)

const (
	HeaderSize = 256
	NumTypes   = 6

	// the only particle type tspec processes
	TypeGas = 1
)

var byteOrder = binary.LittleEndian

// Header is the on-disk Gadget-2 header; its binary layout is exactly HeaderSize bytes.
type Header struct {
	NPart        [NumTypes]int32   // in this file
	Mass         [NumTypes]float64 // 0: per-particle masses stored in the mass block
	Time         float64           // scale factor
	Redshift     float64
	FlagSfr      int32
	FlagFeedback int32
	NPartTotal   [NumTypes]int32 // across all files
	FlagCooling  int32
	NumFiles     int32
	BoxSize      float64
	Omega0       float64
	OmegaLambda  float64
	HubbleParam  float64
	Fill         [96]byte
}

type block int

const (
	blockHeader block = iota
	blockPos
	blockVel
	blockIDs
	blockMass
	blockRho
	blockHsml
	blockTemp
)

var blockNames = [...]string{"header", "pos", "vel", "ids", "mass", "rho", "hsml", "temp"}

func (b block) String() string { return blockNames[b] }

// NumPart is the number of particles of all types in the file.
func (h *Header) NumPart() (n int) {
	for _, c := range h.NPart {
		n += int(c)
	}
	return
}

// NumWithMass is the number of entries in the mass block.
func (h *Header) NumWithMass() (n int) {
	for k, c := range h.NPart {
		if h.Mass[k] == 0 {
			n += int(c)
		}
	}
	return
}

func (h *Header) NumGas() int { return int(h.NPartTotal[TypeGas]) }

// MarshalBinary returns the HeaderSize-byte on-disk layout (without framing).
func (h *Header) MarshalBinary() ([]byte, error) {
	return binary.Append(make([]byte, 0, HeaderSize), byteOrder, h)
}

func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) != HeaderSize {
		return fmt.Errorf("invalid header size %d (expecting %d)", len(b), HeaderSize)
	}
	_, err := binary.Decode(b, byteOrder, h)
	return err
}

func (h *Header) String() string {
	return fmt.Sprintf("gadget[z=%.3f, a=%.4f, npart=%v, total=%v, files=%d, box=%g, Om=%g, OL=%g, h=%g]",
		h.Redshift, h.Time, h.NPart, h.NPartTotal, h.NumFiles, h.BoxSize, h.Omega0, h.OmegaLambda, h.HubbleParam)
}

// size of a block's payload, as it must appear in the framing markers
func (h *Header) blockSize(b block) int {
	switch b {
	case blockHeader:
		return HeaderSize
	case blockPos, blockVel:
		return 3 * cos.SizeofI32 * h.NumPart()
	case blockIDs:
		return cos.SizeofI32 * h.NumPart()
	case blockMass:
		return cos.SizeofI32 * h.NumWithMass()
	default:
		return cos.SizeofI32 * int(h.NPart[TypeGas])
	}
}

func (h *Header) validate(fname string) error {
	for k := range NumTypes {
		if h.NPart[k] < 0 || h.NPartTotal[k] < 0 || h.NPart[k] > h.NPartTotal[k] {
			return cos.NewErrMismatch(fname, "particle type %d: %d in file, %d total", k, h.NPart[k], h.NPartTotal[k])
		}
	}
	if h.NumFiles < 1 {
		return cos.NewErrMismatch(fname, "invalid number of files %d", h.NumFiles)
	}
	return nil
}

func readHeader(r io.Reader, fname string) (*Header, error) {
	b, err := readBlock(r, fname, blockHeader, HeaderSize)
	if err != nil {
		return nil, err
	}
	h := &Header{}
	if err := h.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("%s: %w", fname, err)
	}
	return h, h.validate(fname)
}

func writeHeader(w io.Writer, h *Header) error {
	b, err := h.MarshalBinary()
	if err != nil {
		return err
	}
	return writeBlock(w, b)
}

// readBlock reads one framed block (int32 size, payload, int32 size) and
// returns its payload.
func readBlock(r io.Reader, fname string, b block, expected int) ([]byte, error) {
	var pre, post [4]byte
	if _, err := io.ReadFull(r, pre[:]); err != nil {
		return nil, fmt.Errorf("%s: %s block: %w", fname, b, err)
	}
	size := int32(byteOrder.Uint32(pre[:]))
	if int(size) != expected {
		return nil, cos.NewErrMismatch(fname, "%s block: size marker %d, expected %d", b, size, expected)
	}
	buf := make([]byte, expected)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%s: %s block: %w", fname, b, err)
	}
	if _, err := io.ReadFull(r, post[:]); err != nil {
		return nil, fmt.Errorf("%s: %s block: %w", fname, b, err)
	}
	if pre != post {
		return nil, cos.NewErrMismatch(fname, "%s block: size markers %d != %d", b, size, int32(byteOrder.Uint32(post[:])))
	}
	return buf, nil
}

func writeBlock(w io.Writer, payload []byte) error {
	var marker [4]byte
	byteOrder.PutUint32(marker[:], uint32(len(payload)))
	if _, err := w.Write(marker[:]); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err := w.Write(marker[:])
	return err
}

//
// fixed-width field codecs
//

func getF32(b []byte, i int) float32 { return math.Float32frombits(byteOrder.Uint32(b[i*4:])) }
func getI32(b []byte, i int) int32   { return int32(byteOrder.Uint32(b[i*4:])) }

func putF32(b []byte, i int, f float32) { byteOrder.PutUint32(b[i*4:], math.Float32bits(f)) }
func putI32(b []byte, i int, n int32)   { byteOrder.PutUint32(b[i*4:], uint32(n)) }
