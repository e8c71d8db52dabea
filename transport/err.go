// Package transport provides in-process, rank-addressed message passing
// between the workers of one tspec run: point-to-point send/receive with
// selective (source, tag) matching plus the collectives built on top of it.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"errors"
	"fmt"
)

type (
	ErrAborted struct {
		cause error
	}
	ErrRank struct {
		op   string
		rank int
		size int
	}
)

func (e *ErrAborted) Error() string {
	if e.cause == nil {
		return "transport: group aborted"
	}
	return "transport: group aborted: " + e.cause.Error()
}

func (e *ErrAborted) Unwrap() error { return e.cause }

func IsErrAborted(err error) bool {
	var e *ErrAborted
	return errors.As(err, &e)
}

func (e *ErrRank) Error() string {
	return fmt.Sprintf("transport: %s: invalid rank %d (group size %d)", e.op, e.rank, e.size)
}
