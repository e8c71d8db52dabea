// Package jsp (JSON persistence) provides utilities to store and load arbitrary
// JSON-encoded structures with optional checksumming and compression.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package jsp

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/NVIDIA/tspec/cmn/cos"
	"github.com/NVIDIA/tspec/cmn/nlog"
)

const (
	signature = "tspec" // file signature
	version   = 1
	//                              0 --------------- 63  64 ------ 95 | 96 ------ 127
	prefLen = 2 * cos.SizeofI64 // [ signature | jsp ver | meta version |   bit flags  ]
)

// Save writes v to a temp file in the same directory and renames it into place.
func Save(fqn string, v any, opts Options) (err error) {
	var (
		file *os.File
		tmp  = fqn + ".tmp." + strconv.Itoa(os.Getpid())
	)
	if err = os.MkdirAll(filepath.Dir(fqn), cos.PermRWXRX); err != nil {
		return
	}
	if file, err = os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, cos.PermRWR); err != nil {
		return
	}
	defer func() {
		if err != nil {
			if errRm := os.Remove(tmp); errRm != nil {
				nlog.Errorf("failed to remove %s: %v", tmp, errRm)
			}
		}
	}()
	if err = Encode(file, v, opts); err != nil {
		file.Close()
		return
	}
	if err = file.Close(); err != nil {
		return
	}
	return os.Rename(tmp, fqn)
}

func SaveMeta(fqn string, meta Opts) error { return Save(fqn, meta, meta.JspOpts()) }

func Load(fqn string, v any, opts Options) error {
	file, err := os.Open(fqn)
	if err != nil {
		return err
	}
	err = Decode(file, v, opts, fqn)
	if IsErrBadCksum(err) {
		nlog.Errorf("%v: removing %s", err, fqn)
		if errRm := os.Remove(fqn); errRm != nil {
			nlog.Errorf("failed to remove %s: %v", fqn, errRm)
		}
	}
	return err
}

func LoadMeta(fqn string, meta Opts) error { return Load(fqn, meta, meta.JspOpts()) }
