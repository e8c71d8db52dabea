// Package tests_test - byte packing
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package tests_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/NVIDIA/tspec/cmn/cos"
	"github.com/NVIDIA/tspec/tools/tassert"
)

// A structure to test nested binary packing
type pck struct {
	id   int64
	mvir float32
	name string
	pids []int32
	subs []int64
	host *pck
}

func (p *pck) Pack(wr *cos.BytePack) {
	// write POD and variable-length fields in turns
	wr.WriteString(p.name)
	wr.WriteInt64(p.id)
	wr.WriteI32s(p.pids)
	wr.WriteFloat32(p.mvir)
	wr.WriteI64s(p.subs)
	// marker tells the unpacker whether to read the inner struct
	if p.host == nil {
		wr.WriteByte(0)
	} else {
		wr.WriteByte(1)
		wr.WriteAny(p.host)
	}
}

func (p *pck) Unpack(rd *cos.ByteUnpack) (err error) {
	if p.name, err = rd.ReadString(); err != nil {
		return
	}
	if p.id, err = rd.ReadInt64(); err != nil {
		return
	}
	if p.pids, err = rd.ReadI32s(); err != nil {
		return
	}
	if p.mvir, err = rd.ReadFloat32(); err != nil {
		return
	}
	if p.subs, err = rd.ReadI64s(); err != nil {
		return
	}
	var exists byte
	if exists, err = rd.ReadByte(); err != nil {
		return
	}
	if exists != 0 {
		p.host = &pck{}
		err = rd.ReadAny(p.host)
	}
	return
}

func (p *pck) PackedSize() int {
	sz := cos.SizeofLen + len(p.name) + cos.SizeofI64 + cos.PackedI32sLen(len(p.pids)) +
		cos.SizeofI32 + cos.PackedI64sLen(len(p.subs)) + 1
	if p.host != nil {
		sz += p.host.PackedSize()
	}
	return sz
}

func TestBytePackStruct(t *testing.T) {
	first := &pck{
		id:   20,
		mvir: 1.0,
		name: "sub",
		pids: []int32{2, 3},
	}
	second := &pck{
		id:   1<<40 + 7,
		mvir: 5.5e12,
		name: "host",
		pids: []int32{1, -1, -1, 4},
		subs: []int64{20, 1<<40 + 9},
		host: &pck{
			id:   -1,
			mvir: -1,
			name: "ghost",
			pids: []int32{-1},
		},
	}

	packer := cos.NewPacker(nil, first.PackedSize()+second.PackedSize())
	packer.WriteAny(first)
	packer.WriteAny(second)

	readFirst := &pck{}
	readSecond := &pck{}
	unpacker := cos.NewUnpacker(packer.Bytes())
	tassert.CheckFatal(t, unpacker.ReadAny(readFirst))
	tassert.CheckFatal(t, unpacker.ReadAny(readSecond))
	tassert.Errorf(t, unpacker.Len() == 0, "expected fully consumed buffer, %d left", unpacker.Len())

	if first.id != readFirst.id || first.mvir != readFirst.mvir || first.name != readFirst.name ||
		!slices.Equal(first.pids, readFirst.pids) || len(readFirst.subs) != 0 || readFirst.host != nil {
		t.Errorf("First: Read %+v mismatches original %+v", readFirst, first)
	}
	if second.id != readSecond.id || second.mvir != readSecond.mvir ||
		!slices.Equal(second.pids, readSecond.pids) || !slices.Equal(second.subs, readSecond.subs) ||
		readSecond.host == nil {
		t.Fatalf("Second: Read %+v mismatches original %+v", readSecond, second)
	}
	if second.host.id != readSecond.host.id || second.host.name != readSecond.host.name ||
		!slices.Equal(second.host.pids, readSecond.host.pids) {
		t.Errorf("Second inner: Read %+v mismatches original %+v", readSecond.host, second.host)
	}
}

func TestByteUnpackUnderrun(t *testing.T) {
	p := &pck{id: 10, name: "host", pids: []int32{1, 2, 3, 4}}
	packer := cos.NewPacker(nil, p.PackedSize())
	packer.WriteAny(p)
	b := packer.Bytes()

	for _, cut := range []int{0, 3, 9, len(b) / 2, len(b) - 1} {
		err := cos.NewUnpacker(b[:cut]).ReadAny(&pck{})
		tassert.Errorf(t, errors.Is(err, cos.ErrBufferUnderrun), "cut at %d: expected underrun, got %v", cut, err)
	}
}

func BenchmarkPackI32s(b *testing.B) {
	pids := make([]int32, 64*1024)
	for i := range pids {
		pids[i] = int32(i + 1)
	}
	size := cos.PackedI32sLen(len(pids))
	b.ReportAllocs()
	b.ResetTimer()
	for range b.N {
		packer := cos.NewPacker(nil, size)
		packer.WriteI32s(pids)
	}
}
