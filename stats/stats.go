// Package stats provides methods and functionality to register, track, log,
// and export tspec run metrics (counters and sizes).
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"fmt"
	"sort"
	"strings"
	ratomic "sync/atomic"

	"github.com/NVIDIA/tspec/cmn/cos"
	"github.com/NVIDIA/tspec/cmn/debug"
	"github.com/NVIDIA/tspec/cmn/nlog"

	"github.com/prometheus/client_golang/prometheus"
)

// metric kinds
const (
	KindCounter = "counter"
	KindSize    = "size" // bytes
)

const namespace = "tspec"

type (
	statsValue struct {
		prom  prometheus.Counter
		kind  string
		label string // prometheus name
		Value int64
	}

	// Tracker is shared by all workers of a run. Values are run-wide totals.
	Tracker struct {
		reg     *prometheus.Registry
		tracker map[string]*statsValue
		sorted  []string
	}
)

// interface guard
var _ cos.StatsUpdater = (*Tracker)(nil)

func NewTracker() *Tracker {
	t := &Tracker{reg: prometheus.NewRegistry(), tracker: make(map[string]*statsValue, 16)}
	t.regMetrics()
	return t
}

// register adds a metric; must be called before any worker starts.
func (t *Tracker) register(name, kind, help string) {
	_, ok := t.tracker[name]
	debug.Assertf(!ok, "duplicate metric %q", name)

	label := strings.ReplaceAll(name, ".", "_")
	if kind == KindSize && !strings.Contains(label, "bytes") {
		label += "_bytes"
	}
	v := &statsValue{kind: kind, label: label}
	v.prom = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      label + "_total",
		Help:      help,
	})
	t.reg.MustRegister(v.prom)
	t.tracker[name] = v
	t.sorted = append(t.sorted, name)
	sort.Strings(t.sorted)
}

func (t *Tracker) Add(name string, val int64) {
	v, ok := t.tracker[name]
	debug.Assertf(ok, "invalid metric name %q", name)
	if !ok {
		return
	}
	ratomic.AddInt64(&v.Value, val)
	v.prom.Add(float64(val))
}

func (t *Tracker) Inc(name string) { t.Add(name, 1) }

func (t *Tracker) Get(name string) int64 {
	v, ok := t.tracker[name]
	if !ok {
		return 0
	}
	return ratomic.LoadInt64(&v.Value)
}

// Registry is the Prometheus registry all metrics are registered with.
func (t *Tracker) Registry() *prometheus.Registry { return t.reg }

// Snapshot returns all non-zero values by name.
func (t *Tracker) Snapshot() map[string]int64 {
	out := make(map[string]int64, len(t.tracker))
	for name, v := range t.tracker {
		if n := ratomic.LoadInt64(&v.Value); n != 0 {
			out[name] = n
		}
	}
	return out
}

// Log writes all non-zero values, one line, sorted by name.
func (t *Tracker) Log() {
	var sb strings.Builder
	for _, name := range t.sorted {
		v := t.tracker[name]
		n := ratomic.LoadInt64(&v.Value)
		if n == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		if v.kind == KindSize {
			fmt.Fprintf(&sb, "%s=%s", name, cos.ToSizeIEC(n, 2))
		} else {
			fmt.Fprintf(&sb, "%s=%d", name, n)
		}
	}
	if sb.Len() > 0 {
		nlog.Infoln("stats:", sb.String())
	}
}
