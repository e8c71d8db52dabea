// Package xact tracks one tspec run (eXtended action) from start to finish:
// identity, timing, per-stage durations, counters, and abort status.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package xact

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	ratomic "sync/atomic"
	"time"

	"github.com/NVIDIA/tspec/cmn/cos"
	"github.com/NVIDIA/tspec/cmn/debug"
	"github.com/NVIDIA/tspec/cmn/mono"
	"github.com/NVIDIA/tspec/cmn/nlog"
)

// kinds
const (
	KindRun = "tspec-run" // all workers, end-to-end
)

const (
	LeftID  = "["
	RightID = "]"
)

var ErrUserAbort = errors.New("user abort")

type (
	Base struct {
		abort struct {
			ch     chan error
			err    ratomic.Pointer[error]
			done   ratomic.Bool
			closed ratomic.Bool
		}
		id     string
		kind   string
		_nam   string
		err    cos.Errs
		stages struct {
			list []Stage
			mu   sync.Mutex
		}
		stats struct {
			objs    ratomic.Int64 // particles processed locally
			outobjs ratomic.Int64 // transmit
			inobjs  ratomic.Int64 // receive
		}
		sutime ratomic.Int64
		eutime ratomic.Int64
	}

	// Stage is a named step of the run and how long it took on the worker that timed it.
	Stage struct {
		Name    string `json:"name"`
		Rank    int    `json:"rank"`
		Elapsed int64  `json:"elapsed_ns"`
	}

	Snap struct {
		StartTime time.Time `json:"start_time"`
		EndTime   time.Time `json:"end_time"`
		ID        string    `json:"id"`
		Kind      string    `json:"kind"`
		AbortErr  string    `json:"abort_err,omitempty"`
		Stages    []Stage   `json:"stages"`
		Objs      int64     `json:"objs"`
		OutObjs   int64     `json:"out_objs"`
		InObjs    int64     `json:"in_objs"`
		Aborted   bool      `json:"aborted"`
	}
)

//////////
// Base //
//////////

func (xctn *Base) InitBase(id, kind string) {
	debug.Assert(id != "" && kind != "")
	xctn.id, xctn.kind = id, kind
	xctn.abort.ch = make(chan error, 1)
	xctn.err = cos.NewErrs()
	xctn.setStartTime(time.Now())

	// name never changes
	xctn._nam = "x-" + xctn.Kind() + LeftID + xctn.ID() + RightID
}

func (xctn *Base) ID() string   { return xctn.id }
func (xctn *Base) Kind() string { return xctn.kind }
func (xctn *Base) Name() string { return xctn._nam }

func (xctn *Base) Finished() bool { return xctn.eutime.Load() != 0 }

func (xctn *Base) Running() bool {
	return xctn.sutime.Load() != 0 && !xctn.Finished() && !xctn.IsAborted()
}

//
// aborting
//

func (xctn *Base) ChanAbort() <-chan error { return xctn.abort.ch }

func (xctn *Base) IsAborted() bool { return xctn.abort.done.Load() }

func (xctn *Base) AbortErr() error {
	if perr := xctn.abort.err.Load(); perr != nil {
		return *perr
	}
	return nil
}

// Abort records the first error only; it returns false if already aborted or finished.
func (xctn *Base) Abort(err error) bool {
	if xctn.Finished() || !xctn.abort.done.CompareAndSwap(false, true) {
		return false
	}
	if err == nil {
		err = ErrUserAbort
	}
	perr := xctn.abort.err.Swap(&err)
	debug.Assert(perr == nil, xctn.String())

	xctn.abort.ch <- err
	if xctn.abort.closed.CompareAndSwap(false, true) {
		close(xctn.abort.ch)
	}
	nlog.InfoDepth(1, xctn.Name(), "abort:", err)
	return true
}

// Finish atomically sets the end time and logs the outcome.
func (xctn *Base) Finish() {
	if !xctn.eutime.CompareAndSwap(0, 1) {
		return
	}
	xctn.eutime.Store(time.Now().UnixNano())
	if xctn.abort.closed.CompareAndSwap(false, true) {
		close(xctn.abort.ch)
	}
	var (
		err     = xctn.AbortErr()
		aborted = xctn.IsAborted()
		info    string
	)
	if xctn.ErrCnt() > 0 {
		if err == nil {
			err = xctn.Err()
		} else {
			// abort takes precedence
			info = "(" + xctn.Err().Error() + ")"
		}
	}
	switch {
	case err == nil:
		nlog.Infoln(xctn.String(), "finished")
	case aborted:
		nlog.Warningln(xctn.String(), "aborted:", err, info)
	default:
		nlog.Warningln(xctn.String(), "finished w/err:", err)
	}
}

//
// multi-error
//

func (xctn *Base) AddErr(err error) {
	if xctn.IsAborted() { // no more errors once aborted
		return
	}
	debug.Assert(err != nil)
	xctn.err.Add(err)
}

func (xctn *Base) Err() error {
	if xctn.ErrCnt() == 0 {
		return nil
	}
	return &xctn.err
}

func (xctn *Base) JoinErr() (int, error) { return xctn.err.JoinErr() }
func (xctn *Base) ErrCnt() int           { return xctn.err.Cnt() }

//
// stages and counters
//

// BeginStage returns the callback that ends it; the coordinator logs both.
func (xctn *Base) BeginStage(name string, rank int) (end func()) {
	started := mono.NanoTime()
	if rank == 0 {
		nlog.Infoln(name + "...")
	}
	return func() {
		st := Stage{Name: name, Rank: rank, Elapsed: mono.SinceNano(started)}
		xctn.stages.mu.Lock()
		xctn.stages.list = append(xctn.stages.list, st)
		xctn.stages.mu.Unlock()
		if rank == 0 {
			nlog.Infof("%s done (%s)", name, cos.FormatNanoTime(st.Elapsed))
		}
	}
}

func (xctn *Base) Stages() []Stage {
	xctn.stages.mu.Lock()
	defer xctn.stages.mu.Unlock()
	out := make([]Stage, len(xctn.stages.list))
	copy(out, xctn.stages.list)
	return out
}

func (xctn *Base) ObjsAdd(n int64)    { xctn.stats.objs.Add(n) }
func (xctn *Base) OutObjsAdd(n int64) { xctn.stats.outobjs.Add(n) }
func (xctn *Base) InObjsAdd(n int64)  { xctn.stats.inobjs.Add(n) }
func (xctn *Base) Objs() int64        { return xctn.stats.objs.Load() }

//
// timing and reporting
//

func (xctn *Base) StartTime() time.Time {
	if u := xctn.sutime.Load(); u != 0 {
		return time.Unix(0, u)
	}
	return time.Time{}
}

func (xctn *Base) EndTime() time.Time {
	if u := xctn.eutime.Load(); u > 1 {
		return time.Unix(0, u)
	}
	return time.Time{}
}

func (xctn *Base) setStartTime(s time.Time) { xctn.sutime.Store(s.UnixNano()) }

func (xctn *Base) Snap() *Snap {
	snap := &Snap{
		ID:        xctn.ID(),
		Kind:      xctn.Kind(),
		StartTime: xctn.StartTime(),
		EndTime:   xctn.EndTime(),
		Stages:    xctn.Stages(),
		Objs:      xctn.stats.objs.Load(),
		OutObjs:   xctn.stats.outobjs.Load(),
		InObjs:    xctn.stats.inobjs.Load(),
		Aborted:   xctn.IsAborted(),
	}
	if err := xctn.AbortErr(); err != nil {
		snap.AbortErr = err.Error()
	}
	return snap
}

func (xctn *Base) String() string {
	var sb strings.Builder
	sb.Grow(128)
	sb.WriteString(xctn._nam)
	sb.WriteByte('-')
	sb.WriteString(xctn.StartTime().Format(time.StampMicro))
	if !xctn.Finished() {
		return sb.String()
	}
	if xctn.IsAborted() {
		sb.WriteString(fmt.Sprintf("-[abrt: %v]", xctn.AbortErr()))
	}
	sb.WriteByte('-')
	sb.WriteString(xctn.EndTime().Format(time.StampMicro))
	return sb.String()
}
