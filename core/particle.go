// Package core provides core tspec types: particles and their fixed-layout
// wire records
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package core

import (
	"fmt"

	"github.com/NVIDIA/tspec/cmn/cos"
)

// Particle is a single gas particle of the snapshot.
// It travels between workers as a fixed-size record (see Pack).
type Particle struct {
	Pos     [3]float32
	Vel     [3]float32
	Mass    float32
	Density float32
	Temp    float32
	Hsml    float32
	MVir    float32 // virial mass of the enclosing halo (in-halo particles only)
	Type    int32
	ID      int32 // 1-based, unique within the snapshot
	InHalo  int32 // 0 or 1
}

// pos, vel, 5 float32 and 3 int32
const PackedParticleSize = 14 * cos.SizeofI32

// interface guard
var (
	_ cos.Packer   = (*Particle)(nil)
	_ cos.Unpacker = (*Particle)(nil)
)

func (p *Particle) IsInHalo() bool { return p.InHalo != 0 }

func (p *Particle) String() string {
	return fmt.Sprintf("p[%d, in-halo=%t, mvir=%g, T=%g]", p.ID, p.IsInHalo(), p.MVir, p.Temp)
}

func (*Particle) PackedSize() int { return PackedParticleSize }

func (p *Particle) Pack(wr *cos.BytePack) {
	for _, f := range p.Pos {
		wr.WriteFloat32(f)
	}
	for _, f := range p.Vel {
		wr.WriteFloat32(f)
	}
	wr.WriteFloat32(p.Mass)
	wr.WriteFloat32(p.Density)
	wr.WriteFloat32(p.Temp)
	wr.WriteFloat32(p.Hsml)
	wr.WriteFloat32(p.MVir)
	wr.WriteInt32(p.Type)
	wr.WriteInt32(p.ID)
	wr.WriteInt32(p.InHalo)
}

func (p *Particle) Unpack(rd *cos.ByteUnpack) (err error) {
	if rd.Len() < PackedParticleSize {
		return cos.ErrBufferUnderrun
	}
	for i := range p.Pos {
		p.Pos[i], _ = rd.ReadFloat32()
	}
	for i := range p.Vel {
		p.Vel[i], _ = rd.ReadFloat32()
	}
	p.Mass, _ = rd.ReadFloat32()
	p.Density, _ = rd.ReadFloat32()
	p.Temp, _ = rd.ReadFloat32()
	p.Hsml, _ = rd.ReadFloat32()
	p.MVir, _ = rd.ReadFloat32()
	p.Type, _ = rd.ReadInt32()
	p.ID, _ = rd.ReadInt32()
	p.InHalo, err = rd.ReadInt32()
	return err
}

// PackParticles encodes a contiguous run of particles as fixed-size records.
func PackParticles(parts []Particle) []byte {
	packer := cos.NewPacker(nil, len(parts)*PackedParticleSize)
	for i := range parts {
		packer.WriteAny(&parts[i])
	}
	return packer.Bytes()
}

// UnpackParticles is the inverse of PackParticles; the record count is
// implied by the payload length.
func UnpackParticles(b []byte) ([]Particle, error) {
	if len(b)%PackedParticleSize != 0 {
		return nil, fmt.Errorf("invalid particle payload size %d (record size %d)", len(b), PackedParticleSize)
	}
	var (
		parts    = make([]Particle, len(b)/PackedParticleSize)
		unpacker = cos.NewUnpacker(b)
	)
	for i := range parts {
		if err := unpacker.ReadAny(&parts[i]); err != nil {
			return nil, err
		}
	}
	return parts, nil
}
