// Package cos provides common low-level types and utilities for all tspec packages.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"fmt"
	"os"
	"strconv"
	"time"
	"unsafe"

	"github.com/NVIDIA/tspec/cmn/nlog"
)

const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB

	SizeofI64 = int(unsafe.Sizeof(uint64(0)))
	SizeofI32 = int(unsafe.Sizeof(uint32(0)))
	SizeofI16 = int(unsafe.Sizeof(uint16(0)))

	PermRWR   os.FileMode = 0o640 // POSIX perms
	PermRWXRX os.FileMode = 0o750
)

const assertMsg = "assertion failed"

// StatsUpdater is implemented by the stats tracker (see package stats).
type StatsUpdater interface {
	Add(name string, val int64)
}

func Plural(num int) (s string) {
	if num != 1 {
		s = "s"
	}
	return
}

// ToSizeIEC formats a byte count the way logs and summaries print it.
func ToSizeIEC(b int64, digits int) string {
	switch {
	case b >= GiB:
		return strconv.FormatFloat(float64(b)/GiB, 'f', digits, 64) + "GiB"
	case b >= MiB:
		return strconv.FormatFloat(float64(b)/MiB, 'f', digits, 64) + "MiB"
	case b >= KiB:
		return strconv.FormatFloat(float64(b)/KiB, 'f', digits, 64) + "KiB"
	default:
		return strconv.FormatInt(b, 10) + "B"
	}
}

// FormatNanoTime renders a monotonic duration (in nanoseconds) with millisecond precision.
func FormatNanoTime(ns int64) string {
	return time.Duration(ns).Round(time.Millisecond).String()
}

////////////////
// assertions //
////////////////

// NOTE: Not to be used in the datapath - consider instead one of the flavors below.
func Assertf(cond bool, f string, a ...any) {
	if !cond {
		AssertMsg(cond, fmt.Sprintf(f, a...))
	}
}

func Assert(cond bool) {
	if !cond {
		nlog.Flush(true)
		panic(assertMsg)
	}
}

func AssertMsg(cond bool, msg string) {
	if !cond {
		nlog.Flush(true)
		panic(assertMsg + ": " + msg)
	}
}

func AssertNoErr(err error) {
	if err != nil {
		nlog.Flush(true)
		panic(err)
	}
}

//////////////////////////
// Abnormal Termination //
//////////////////////////

// Exitf writes formatted message to STDERR and exits with non-zero status code.
func Exitf(f string, a ...any) {
	fmt.Fprintf(os.Stderr, f, a...)
	fmt.Fprintln(os.Stderr)
	os.Exit(1)
}

// ExitLogf is `Exitf` with logging; use it once nlog has been initialized.
func ExitLogf(f string, a ...any) {
	nlog.Errorf("FATAL ERROR: "+f, a...)
	nlog.Flush(true)
	Exitf(f, a...)
}
