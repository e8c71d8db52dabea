// Package cosmo computes particle temperatures from the snapshot's cosmology:
// virial temperatures inside halos, the density-temperature relation elsewhere.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cosmo

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/NVIDIA/tspec/cmn/cos"
)

// highest redshift covered by the photo-heating (T0) table
const MaxRedshift = 9.479

// T0Table is the IGM temperature at mean density as a function of redshift,
// interpolated over scale factor.
type T0Table struct {
	spline *Spline
	name   string
	rows   int
}

// LoadT0Table reads a whitespace-separated table with one header line and
// columns: z nHI/nH nHeI/nH nHeII/nH T0(K).
func LoadT0Table(path string) (*T0Table, error) {
	fh, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cos.NewErrNotFound("T0 table", "%q", path)
		}
		return nil, err
	}
	defer fh.Close()
	return ParseT0Table(fh, path)
}

func ParseT0Table(r io.Reader, name string) (*T0Table, error) {
	type row struct{ a, t0 float64 }
	var (
		rows []row
		sc   = bufio.NewScanner(r)
		line int
	)
	for sc.Scan() {
		line++
		if line == 1 {
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 5 {
			return nil, fmt.Errorf("%s:%d: expected 5 columns, got %d", name, line, len(fields))
		}
		z, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: redshift: %w", name, line, err)
		}
		t0, err := strconv.ParseFloat(fields[4], 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: T0: %w", name, line, err)
		}
		rows = append(rows, row{a: 1 / (1 + z), t0: t0})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	// tables list redshift in decreasing order; the spline wants increasing a
	slices.SortFunc(rows, func(x, y row) int { return cmp.Compare(x.a, y.a) })
	var (
		a  = make([]float64, len(rows))
		t0 = make([]float64, len(rows))
	)
	for i, r := range rows {
		a[i], t0[i] = r.a, r.t0
	}
	spline, err := NewSpline(a, t0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &T0Table{spline: spline, name: name, rows: len(rows)}, nil
}

// At returns T0 (K) at redshift z.
func (t *T0Table) At(z float64) (float64, error) {
	if z > MaxRedshift {
		return 0, fmt.Errorf("redshift %g is beyond the T0 table bound (%g)", z, MaxRedshift)
	}
	t0, err := t.spline.Eval(1 / (1 + z))
	if err != nil {
		return 0, fmt.Errorf("%s: redshift %g: %w", t.name, z, err)
	}
	return t0, nil
}

func (t *T0Table) String() string {
	return fmt.Sprintf("T0-table[%s, %d rows, z=%.3f..%.3f]", t.name, t.rows, 1/t.spline.Max()-1, 1/t.spline.Min()-1)
}
