// Package cosmo computes particle temperatures from the snapshot's cosmology:
// virial temperatures inside halos, the density-temperature relation elsewhere.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cosmo

import (
	"fmt"
	"math"

	"github.com/NVIDIA/tspec/cmn"
	"github.com/NVIDIA/tspec/core"
)

// exponent of the IGM temperature-density relation, T = T0 (rho/rho_b)^(1/1.7)
const tdrSlope = 1.7

type (
	// Temperaturer assigns temperatures to a worker's share of particles.
	Temperaturer interface {
		Apply(parts []core.Particle)
	}

	// Model is the temperature model at one epoch.
	Model struct {
		params *Params
		units  cmn.UnitsConf
		A      float64 // scale factor
		Z      float64
		T0     float64 // K, at mean density
		ADot   float64
		RhoC   float64 // critical density, g/cm^3
		RhoB   float64 // mean baryon density, g/cm^3
	}
)

// interface guard
var _ Temperaturer = (*Model)(nil)

// NewModel evaluates the background at scale factor a (redshift z).
func NewModel(params *Params, units *cmn.UnitsConf, a, z, t0 float64) (*Model, error) {
	adot, err := params.ADot(a)
	if err != nil {
		return nil, err
	}
	var (
		hubble2 = (adot / a) * (adot / a)
		rhoC    = 3 * hubble2 / (8 * math.Pi * G)
		h0      = params.H0()
		// Omega_m(z) = Omega_m0 (1+z)^3 / E(z)^2
		rhoMean = params.OmegaM * math.Pow(1+z, 3) * h0 * h0 / hubble2 * rhoC
	)
	return &Model{
		params: params,
		units:  *units,
		A:      a,
		Z:      z,
		T0:     t0,
		ADot:   adot,
		RhoC:   rhoC,
		RhoB:   BaryonFrac * rhoMean,
	}, nil
}

// Virial returns the virial temperature (K) of a halo of mass mvir (Msun/h).
func (m *Model) Virial(mvir float64) float64 {
	var (
		h      = m.params.Hubble
		hubble = m.ADot / m.A
		rvir   = math.Cbrt(mvirConv * G * mvir / (100 * h * hubble * hubble)) // km
		vvir2  = mvirConv * G * mvir / (rvir * h)                             // (km/s)^2
	)
	return kms2 * MolWeight * ProtonMass * vvir2 / (2 * Boltzmann)
}

// Diffuse returns the temperature (K) of unbound gas at comoving density rho
// (internal units).
func (m *Model) Diffuse(rho float64) float64 {
	var (
		h       = m.params.Hubble
		rhoPhys = rho / (m.A * m.A * m.A)
		l       = m.units.LengthCm
		ratio   = rhoPhys * BaryonFrac * h * h * m.units.MassG / (m.RhoB * l * l * l)
	)
	return m.T0 * math.Pow(ratio, 1/tdrSlope)
}

func (m *Model) Temperature(p *core.Particle) float32 {
	if p.IsInHalo() {
		return float32(m.Virial(float64(p.MVir)))
	}
	return float32(m.Diffuse(float64(p.Density)))
}

func (m *Model) Apply(parts []core.Particle) {
	for i := range parts {
		parts[i].Temp = m.Temperature(&parts[i])
	}
}

func (m *Model) String() string {
	return fmt.Sprintf("model[z=%.3f, T0=%.1fK, a_dot=%.4e, rho_c=%.4e, rho_b=%.4e, %s]",
		m.Z, m.T0, m.ADot, m.RhoC, m.RhoB, m.params)
}
