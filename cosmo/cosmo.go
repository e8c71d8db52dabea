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
)

// cgs
const (
	BaryonFrac  = 0.155
	ProtonMass  = 1.6726e-24
	MolWeight   = 0.588
	Boltzmann   = 1.3806e-16
	G           = 6.67e-8
	H0PerLittle = 3.2407e-18 // H0 in s^-1 for h = 1

	// solar masses to grams, over km^3 to cm^3
	mvirConv = 1.989e18
	// (km/s)^2 to (cm/s)^2
	kms2 = 1e10
)

// Params are the background cosmology: density parameters today and the dark
// energy model.
type Params struct {
	DE     cmn.DEConf
	Hubble float64 // little h
	OmegaR float64
	OmegaM float64
	OmegaL float64
	OmegaK float64
}

// NewParams takes Omega0, OmegaLambda, and HubbleParam as recorded in the
// snapshot header; radiation is neglected and curvature closes the budget.
func NewParams(omega0, omegaL, hubble float64, de *cmn.DEConf) *Params {
	return &Params{
		DE:     *de,
		Hubble: hubble,
		OmegaM: omega0,
		OmegaL: omegaL,
		OmegaK: 1 - omega0 - omegaL,
	}
}

func (p *Params) H0() float64 { return H0PerLittle * p.Hubble }

// darkFactor is rho_DE(a)/rho_DE(1)
func (p *Params) darkFactor(a float64) float64 {
	if p.DE.Model == cmn.DELinder {
		return math.Pow(a, -3*(1+p.DE.W0+p.DE.WA)) * math.Exp(-3*p.DE.WA*(1-a))
	}
	return 1
}

// ADot returns da/dt (s^-1) at scale factor a.
func (p *Params) ADot(a float64) (float64, error) {
	e2 := p.OmegaR*math.Pow(a, -4) + p.OmegaM*math.Pow(a, -3) + p.OmegaK*math.Pow(a, -2) + p.OmegaL*p.darkFactor(a)
	adot := a * p.H0() * math.Sqrt(e2)
	switch {
	case math.IsNaN(adot):
		return 0, fmt.Errorf("a_dot is NaN at a=%g (E^2=%g, %s)", a, e2, p)
	case math.IsInf(adot, 0):
		return 0, fmt.Errorf("a_dot is infinite at a=%g (%s)", a, p)
	}
	return adot, nil
}

func (p *Params) String() string {
	model := "lambda"
	if p.DE.Model == cmn.DELinder {
		model = fmt.Sprintf("linder(w0=%g, wa=%g)", p.DE.W0, p.DE.WA)
	}
	return fmt.Sprintf("cosmo[h=%g, Om=%g, OL=%g, Ok=%g, %s]", p.Hubble, p.OmegaM, p.OmegaL, p.OmegaK, model)
}
