// Package cos provides common low-level types and utilities for all tspec packages.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	ratomic "sync/atomic"

	"github.com/NVIDIA/tspec/cmn/debug"
)

// All errors below are fatal for the job: there is no retry anywhere in tspec.
// Typed errors exist so that callers (and tests) can tell the taxonomy apart.
type (
	// missing file, halo, or particle
	ErrNotFound struct {
		where string
		what  string
	}
	// the three per-shard halo files disagree (ids, sub-halo counts)
	ErrMismatch struct {
		where string
		what  string
	}
	// cross-shard protocol integrity: unexpected or duplicate reply, bad payload
	ErrIntegrity struct {
		where string
		what  string
	}
	// bounded search exhausted (declared sub-halo never found)
	ErrMaxIters struct {
		what  string
		iters int
	}
	// Errs is a thread-safe collection of errors
	Errs struct {
		errs []error
		cnt  int64
		cap  int
		mu   sync.Mutex
	}
)

// ErrNotFound

func NewErrNotFound(where, format string, a ...any) *ErrNotFound {
	return &ErrNotFound{where: where, what: fmt.Sprintf(format, a...)}
}

func (e *ErrNotFound) Error() string {
	s := e.what
	if !strings.Contains(s, "not exist") && !strings.Contains(s, "not found") {
		s += " not found"
	}
	if e.where == "" {
		return s
	}
	return e.where + ": " + s
}

func IsErrNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}

// IsNotExist covers both tspec lookups and the filesystem.
func IsNotExist(err error) bool {
	return IsErrNotFound(err) || errors.Is(err, os.ErrNotExist)
}

// ErrMismatch

func NewErrMismatch(where, format string, a ...any) *ErrMismatch {
	return &ErrMismatch{where: where, what: fmt.Sprintf(format, a...)}
}

func (e *ErrMismatch) Error() string { return e.where + ": mismatch: " + e.what }

func IsErrMismatch(err error) bool {
	var e *ErrMismatch
	return errors.As(err, &e)
}

// ErrIntegrity

func NewErrIntegrity(where, format string, a ...any) *ErrIntegrity {
	return &ErrIntegrity{where: where, what: fmt.Sprintf(format, a...)}
}

func (e *ErrIntegrity) Error() string { return e.where + ": integrity violation: " + e.what }

func IsErrIntegrity(err error) bool {
	var e *ErrIntegrity
	return errors.As(err, &e)
}

// ErrMaxIters

func NewErrMaxIters(iters int, format string, a ...any) *ErrMaxIters {
	return &ErrMaxIters{iters: iters, what: fmt.Sprintf(format, a...)}
}

func (e *ErrMaxIters) Error() string {
	return fmt.Sprintf("maximum number of iterations (%d) reached: %s", e.iters, e.what)
}

func IsErrMaxIters(err error) bool {
	var e *ErrMaxIters
	return errors.As(err, &e)
}

//
// Errs
//

const defaultMaxErrs = 8

func NewErrs(maxErrs ...int) Errs {
	capacity := defaultMaxErrs
	if len(maxErrs) > 0 && maxErrs[0] > 0 {
		capacity = maxErrs[0]
	}
	return Errs{
		errs: make([]error, 0, capacity),
		cap:  capacity,
	}
}

func (e *Errs) Add(err error) {
	debug.Assert(err != nil)
	e.mu.Lock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			e.mu.Unlock()
			return
		}
	}
	if len(e.errs) < e.cap {
		e.errs = append(e.errs, err)
		ratomic.StoreInt64(&e.cnt, int64(len(e.errs)))
	}
	e.mu.Unlock()
}

func (e *Errs) Cnt() int { return int(ratomic.LoadInt64(&e.cnt)) }

func (e *Errs) JoinErr() (cnt int, err error) {
	if cnt = e.Cnt(); cnt > 0 {
		e.mu.Lock()
		err = errors.Join(e.errs...)
		e.mu.Unlock()
	}
	return
}

func (e *Errs) Error() string {
	cnt := e.Cnt()
	if cnt == 0 {
		return ""
	}
	e.mu.Lock()
	err := e.errs[0]
	e.mu.Unlock()
	if cnt > 1 {
		err = fmt.Errorf("%v (and %d more error%s)", err, cnt-1, Plural(cnt-1))
	}
	return err.Error()
}

func (e *Errs) Unwrap() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.errs)
}
