// Package node runs the tspec pipeline: one worker per rank of an in-process
// transport group, from halo catalogs and snapshot to the annotated output.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package node

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"

	"github.com/NVIDIA/tspec/cmn/cos"
	"github.com/NVIDIA/tspec/cmn/jsp"
	"github.com/NVIDIA/tspec/core"
	"github.com/NVIDIA/tspec/xact"
)

const (
	summaryVer  = 1
	flaggedFile = "flaggedparts.txt"
)

// Summary describes a completed run; the coordinator saves it next to the output.
type Summary struct {
	Stats     map[string]int64 `json:"stats"`
	Xact      *xact.Snap       `json:"xaction"`
	RunID     string           `json:"run_id"`
	Snapshot  string           `json:"snapshot"`
	Output    string           `json:"output"`
	Digest    string           `json:"digest"` // xxhash of the output particle records
	Strategy  string           `json:"dedup_strategy"`
	Redshift  float64          `json:"redshift"`
	T0        float64          `json:"t0"`
	WallTime  float64          `json:"wall_time_s"` // max across workers
	NHalos    int64            `json:"nhalos"`
	NGas      int64            `json:"ngas"`
	Flagged   int64            `json:"flagged"`
	Workers   int              `json:"workers"`
	HaloFiles int              `json:"halo_files"`
}

// interface guard
var _ jsp.Opts = (*Summary)(nil)

func (*Summary) JspOpts() jsp.Options { return jsp.CksumSign(summaryVer) }

func SaveSummary(fqn string, s *Summary) error { return jsp.SaveMeta(fqn, s) }

func LoadSummary(fqn string) (*Summary, error) {
	s := &Summary{}
	if err := jsp.LoadMeta(fqn, s); err != nil {
		return nil, err
	}
	return s, nil
}

func flaggedName(dir string) string { return filepath.Join(dir, flaggedFile) }

// dumpFlagged writes the ids of in-halo particles, one per line.
func dumpFlagged(fqn string, parts []core.Particle) error {
	fh, err := os.OpenFile(fqn, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, cos.PermRWR)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(fh)
	for i := range parts {
		if !parts[i].IsInHalo() {
			continue
		}
		bw.WriteString(strconv.Itoa(int(parts[i].ID)))
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}
