// Package transport provides in-process, rank-addressed message passing
// between the workers of one tspec run: point-to-point send/receive with
// selective (source, tag) matching plus the collectives built on top of it.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"
)

func compress(b []byte) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, len(b)/2))
	zw := lz4.NewWriter(buf)
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(b []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(b)))
}
