// Package cos provides common low-level types and utilities for all tspec packages.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/NVIDIA/tspec/cmn/debug"
)

// Compact binary encoding for everything that travels between workers:
// MIA id lists, halo particle lists, and fixed-layout particle records.
//
// Packing:
//  1. compute the total size (POD sizes via `Sizeof*`, plus `SizeofLen` for every slice)
//  2. cos.NewPacker(nil, size)
//  3. write fields in order; get the result with `packer.Bytes()`
//
// Unpacking reads the fields back in the same order and never panics:
// a short buffer yields ErrBufferUnderrun.

type (
	BytePack struct {
		b   []byte
		off int
	}

	ByteUnpack struct {
		b   []byte
		off int
	}

	Unpacker interface {
		Unpack(unpacker *ByteUnpack) error
	}

	Packer interface {
		Pack(packer *BytePack)
		PackedSize() int
	}
)

// length marker for slices
const SizeofLen = SizeofI32

var ErrBufferUnderrun = errors.New("buffer underrun")

func PackedI32sLen(n int) int { return SizeofLen + n*SizeofI32 }
func PackedI64sLen(n int) int { return SizeofLen + n*SizeofI64 }

func NewUnpacker(buf []byte) *ByteUnpack {
	return &ByteUnpack{b: buf}
}

func NewPacker(buf []byte, bufLen int) *BytePack {
	if buf == nil {
		return &BytePack{b: make([]byte, bufLen)}
	}
	return &BytePack{b: buf}
}

//
// Unpacker
//

func (br *ByteUnpack) Len() int { return len(br.b) - br.off }

func (br *ByteUnpack) ReadByte() (byte, error) {
	if br.off >= len(br.b) {
		return 0, ErrBufferUnderrun
	}
	b := br.b[br.off]
	br.off++
	return b, nil
}

func (br *ByteUnpack) ReadInt64() (int64, error) {
	n, err := br.ReadUint64()
	return int64(n), err
}

func (br *ByteUnpack) ReadUint64() (uint64, error) {
	if len(br.b)-br.off < SizeofI64 {
		return 0, ErrBufferUnderrun
	}
	n := binary.BigEndian.Uint64(br.b[br.off:])
	br.off += SizeofI64
	return n, nil
}

func (br *ByteUnpack) ReadInt32() (int32, error) {
	n, err := br.ReadUint32()
	return int32(n), err
}

func (br *ByteUnpack) ReadUint32() (uint32, error) {
	if len(br.b)-br.off < SizeofI32 {
		return 0, ErrBufferUnderrun
	}
	n := binary.BigEndian.Uint32(br.b[br.off:])
	br.off += SizeofI32
	return n, nil
}

func (br *ByteUnpack) ReadFloat32() (float32, error) {
	n, err := br.ReadUint32()
	return math.Float32frombits(n), err
}

func (br *ByteUnpack) ReadFloat64() (float64, error) {
	n, err := br.ReadUint64()
	return math.Float64frombits(n), err
}

func (br *ByteUnpack) readLen(elsize int) (int, error) {
	l, err := br.ReadUint32()
	if err != nil {
		return 0, err
	}
	if len(br.b)-br.off < int(l)*elsize {
		return 0, ErrBufferUnderrun
	}
	return int(l), nil
}

func (br *ByteUnpack) ReadBytes() ([]byte, error) {
	l, err := br.readLen(1)
	if err != nil {
		return nil, err
	}
	start := br.off
	br.off += l
	return br.b[start:br.off], nil
}

func (br *ByteUnpack) ReadString() (string, error) {
	b, err := br.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadI32s allocates; the result does not alias the packed buffer.
func (br *ByteUnpack) ReadI32s() ([]int32, error) {
	l, err := br.readLen(SizeofI32)
	if err != nil {
		return nil, err
	}
	out := make([]int32, l)
	for i := range out {
		out[i] = int32(binary.BigEndian.Uint32(br.b[br.off:]))
		br.off += SizeofI32
	}
	return out, nil
}

func (br *ByteUnpack) ReadI64s() ([]int64, error) {
	l, err := br.readLen(SizeofI64)
	if err != nil {
		return nil, err
	}
	out := make([]int64, l)
	for i := range out {
		out[i] = int64(binary.BigEndian.Uint64(br.b[br.off:]))
		br.off += SizeofI64
	}
	return out, nil
}

func (br *ByteUnpack) ReadF32s() ([]float32, error) {
	l, err := br.readLen(SizeofI32)
	if err != nil {
		return nil, err
	}
	out := make([]float32, l)
	for i := range out {
		out[i] = math.Float32frombits(binary.BigEndian.Uint32(br.b[br.off:]))
		br.off += SizeofI32
	}
	return out, nil
}

func (br *ByteUnpack) ReadAny(st Unpacker) error {
	return st.Unpack(br)
}

//
// Packer
//

func (bw *BytePack) WriteByte(b byte) {
	bw.b[bw.off] = b
	bw.off++
}

func (bw *BytePack) WriteInt64(i int64) {
	bw.WriteUint64(uint64(i))
}

func (bw *BytePack) WriteUint64(i uint64) {
	binary.BigEndian.PutUint64(bw.b[bw.off:], i)
	bw.off += SizeofI64
}

func (bw *BytePack) WriteInt32(i int32) {
	bw.WriteUint32(uint32(i))
}

func (bw *BytePack) WriteUint32(i uint32) {
	binary.BigEndian.PutUint32(bw.b[bw.off:], i)
	bw.off += SizeofI32
}

func (bw *BytePack) WriteFloat32(f float32) {
	bw.WriteUint32(math.Float32bits(f))
}

func (bw *BytePack) WriteFloat64(f float64) {
	bw.WriteUint64(math.Float64bits(f))
}

func (bw *BytePack) WriteString(s string) {
	bw.WriteUint32(uint32(len(s)))
	written := copy(bw.b[bw.off:], s)
	debug.Assert(written == len(s))
	bw.off += written
}

func (bw *BytePack) WriteI32s(v []int32) {
	bw.WriteUint32(uint32(len(v)))
	for _, n := range v {
		bw.WriteInt32(n)
	}
}

func (bw *BytePack) WriteI64s(v []int64) {
	bw.WriteUint32(uint32(len(v)))
	for _, n := range v {
		bw.WriteInt64(n)
	}
}

func (bw *BytePack) WriteF32s(v []float32) {
	bw.WriteUint32(uint32(len(v)))
	for _, f := range v {
		bw.WriteFloat32(f)
	}
}

func (bw *BytePack) WriteAny(st Packer) {
	prev := bw.off
	st.Pack(bw)
	debug.Assertf(
		bw.off-prev == st.PackedSize(),
		"%T declared %d, saved %d: %+v", st, st.PackedSize(), bw.off-prev, st,
	)
}

func (bw *BytePack) Bytes() []byte {
	return bw.b[:bw.off]
}
