// Package cosmo computes particle temperatures from the snapshot's cosmology:
// virial temperatures inside halos, the density-temperature relation elsewhere.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cosmo

import (
	"errors"
	"fmt"
	"sort"
)

// Spline is a natural cubic spline through (x[i], y[i]), x strictly increasing.
type Spline struct {
	x, y, m []float64 // m: second derivatives at the knots
}

func NewSpline(x, y []float64) (*Spline, error) {
	n := len(x)
	if n != len(y) {
		return nil, fmt.Errorf("spline: %d x values, %d y values", n, len(y))
	}
	if n < 3 {
		return nil, errors.New("spline: need at least 3 points")
	}
	for i := 1; i < n; i++ {
		if x[i] <= x[i-1] {
			return nil, fmt.Errorf("spline: x not strictly increasing at %d (%g <= %g)", i, x[i], x[i-1])
		}
	}
	s := &Spline{x: x, y: y, m: make([]float64, n)}

	// tridiagonal system for the interior second derivatives; m[0] = m[n-1] = 0
	var (
		c = make([]float64, n)
		d = make([]float64, n)
	)
	for i := 1; i < n-1; i++ {
		h0, h1 := x[i]-x[i-1], x[i+1]-x[i]
		diag := 2 * (h0 + h1)
		rhs := 6 * ((y[i+1]-y[i])/h1 - (y[i]-y[i-1])/h0)
		if i > 1 {
			diag -= h0 * c[i-1]
			rhs -= h0 * d[i-1]
		}
		c[i] = h1 / diag
		d[i] = rhs / diag
	}
	for i := n - 2; i >= 1; i-- {
		s.m[i] = d[i] - c[i]*s.m[i+1]
	}
	return s, nil
}

func (s *Spline) Min() float64 { return s.x[0] }
func (s *Spline) Max() float64 { return s.x[len(s.x)-1] }

// Eval interpolates at x; x outside [Min, Max] is an error.
func (s *Spline) Eval(x float64) (float64, error) {
	if x < s.Min() || x > s.Max() {
		return 0, fmt.Errorf("spline: %g outside interpolation range [%g, %g]", x, s.Min(), s.Max())
	}
	i := sort.SearchFloat64s(s.x, x)
	switch {
	case i == 0:
		i = 1
	case i == len(s.x):
		i = len(s.x) - 1
	}
	var (
		x0, x1 = s.x[i-1], s.x[i]
		h      = x1 - x0
		a      = (x1 - x) / h
		b      = (x - x0) / h
	)
	return a*s.y[i-1] + b*s.y[i] + ((a*a*a-a)*s.m[i-1]+(b*b*b-b)*s.m[i])*h*h/6, nil
}
