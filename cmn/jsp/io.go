// Package jsp (JSON persistence) provides utilities to store and load arbitrary
// JSON-encoded structures with optional checksumming and compression.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package jsp

import (
	"bytes"
	"encoding/binary"
	"hash"
	"io"

	"github.com/NVIDIA/tspec/cmn/cos"
	"github.com/NVIDIA/tspec/cmn/debug"

	"github.com/OneOfOne/xxhash"
	jsoniter "github.com/json-iterator/go"
	"github.com/pierrec/lz4/v4"
)

const (
	sizeXXHash64 = cos.SizeofI64

	flagCompress = 1 << 0
	flagChecksum = 1 << 1
)

func EncodeBuf(v any, opts Options) []byte {
	buf := &bytes.Buffer{}
	err := Encode(buf, v, opts)
	cos.AssertNoErr(err)
	return buf.Bytes()
}

func Encode(ws io.Writer, v any, opts Options) (err error) {
	var (
		h      hash.Hash
		w      io.Writer = ws
		zw     *lz4.Writer
		buf    *bytes.Buffer
		prefix [prefLen]byte
	)
	if opts.Signature {
		copy(prefix[:], signature)
		l := len(signature)
		debug.Assert(l < cos.SizeofI64)
		prefix[l] = version
		binary.BigEndian.PutUint32(prefix[cos.SizeofI64:], opts.Metaver)
		var packingInfo uint32
		if opts.Compress {
			packingInfo |= flagCompress
		}
		if opts.Checksum {
			packingInfo |= flagChecksum
		}
		binary.BigEndian.PutUint32(prefix[cos.SizeofI64+cos.SizeofI32:], packingInfo)
		if _, err = w.Write(prefix[:]); err != nil {
			return
		}
	}
	if opts.Checksum {
		// checksum precedes the payload: encode into a buffer first
		h = xxhash.New64()
		buf = &bytes.Buffer{}
		w = io.MultiWriter(h, buf)
	}
	if opts.Compress {
		zw = lz4.NewWriter(w)
		w = zw
	}
	encoder := jsoniter.NewEncoder(w)
	if opts.Indent {
		encoder.SetIndent("", "  ")
	}
	if err = encoder.Encode(v); err != nil {
		return
	}
	if opts.Compress {
		if err = zw.Close(); err != nil {
			return
		}
	}
	if opts.Checksum {
		if _, err = ws.Write(h.Sum(nil)); err != nil {
			return
		}
		_, err = ws.Write(buf.Bytes())
	}
	return
}

func Decode(reader io.ReadCloser, v any, opts Options, tag string) error {
	var (
		r      io.Reader = reader
		prefix [prefLen]byte
	)
	defer reader.Close()
	if opts.Signature {
		if _, err := io.ReadFull(reader, prefix[:]); err != nil {
			return err
		}
		l := len(signature)
		if signature != string(prefix[:l]) {
			return &ErrBadSignature{tag, string(prefix[:l]), signature}
		}
		if metaver := binary.BigEndian.Uint32(prefix[cos.SizeofI64:]); opts.Metaver != 0 && metaver != opts.Metaver {
			return &ErrUnsupportedMetaVersion{tag: tag, got: metaver, expected: opts.Metaver}
		}
		packingInfo := binary.BigEndian.Uint32(prefix[cos.SizeofI64+cos.SizeofI32:])
		opts.Compress = packingInfo&flagCompress != 0
		opts.Checksum = packingInfo&flagChecksum != 0
	}
	if opts.Checksum {
		var hsum [sizeXXHash64]byte
		if _, err := io.ReadFull(reader, hsum[:]); err != nil {
			return err
		}
		h := xxhash.New64()
		buf := &bytes.Buffer{}
		if _, err := io.Copy(io.MultiWriter(h, buf), reader); err != nil {
			return err
		}
		expected, actual := binary.BigEndian.Uint64(hsum[:]), binary.BigEndian.Uint64(h.Sum(nil))
		if expected != actual {
			return &ErrBadCksum{tag: tag, got: actual, expected: expected}
		}
		r = buf
	}
	if opts.Compress {
		r = lz4.NewReader(r)
	}
	return jsoniter.NewDecoder(r).Decode(v)
}
