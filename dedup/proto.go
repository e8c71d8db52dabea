// Package dedup removes sub-halo particles from their host halos' particle
// lists, across shard boundaries, so that no particle is claimed by both.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package dedup

import (
	"github.com/NVIDIA/tspec/cmn/cos"
)

// Round-robin exchange, one round per (halo slot, active rank):
//
//	active -> every peer:  TagMIA   corr=slot  body=[]int64 missing sub-halo ids
//	peer   -> active:      TagReply corr=id    body=reply (one per locally found id)
//	peer   -> active:      TagDone  corr=slot  body=int64 number of halos scanned
//
// A peer's replies precede its done marker (per-pair FIFO), so the active rank
// is finished with the round once it has collected size-1 done markers.
const (
	TagMIA   int32 = 1
	TagReply int32 = 2
	TagDone  int32 = 3
)

type reply struct {
	pids []int32
	host int64
}

func (r *reply) PackedSize() int { return cos.PackedI32sLen(len(r.pids)) + cos.SizeofI64 }

func (r *reply) Pack(wr *cos.BytePack) {
	wr.WriteI32s(r.pids)
	wr.WriteInt64(r.host)
}

func (r *reply) Unpack(rd *cos.ByteUnpack) (err error) {
	if r.pids, err = rd.ReadI32s(); err != nil {
		return
	}
	r.host, err = rd.ReadInt64()
	return
}

func packIDs(ids []int64) []byte {
	packer := cos.NewPacker(nil, cos.PackedI64sLen(len(ids)))
	packer.WriteI64s(ids)
	return packer.Bytes()
}

func packInt64(v int64) []byte {
	packer := cos.NewPacker(nil, cos.SizeofI64)
	packer.WriteInt64(v)
	return packer.Bytes()
}

func packReply(r *reply) []byte {
	packer := cos.NewPacker(nil, r.PackedSize())
	packer.WriteAny(r)
	return packer.Bytes()
}
