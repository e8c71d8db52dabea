// Package halo loads sharded AHF halo catalogs into per-worker halo tables.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package halo

import (
	"fmt"
	"path/filepath"

	"github.com/NVIDIA/tspec/cmn"
	"github.com/NVIDIA/tspec/cmn/cos"

	"github.com/karrick/godirwalk"
)

// AHF file suffixes
const (
	SuffixParticles = ".AHF_particles"
	SuffixSubstruct = ".AHF_substructure"
	SuffixHalos     = ".AHF_halos"
)

// Files is one shard's AHF file set.
type Files struct {
	Parts   string
	Subs    string
	Halos   string
	Shard   int
	Sharded bool
}

// AHF appends a run-dependent redshift tag to every file name, e.g.
// "snap_005.0003.z0.000.AHF_halos", so the actual name is found by matching
// "<prefix>.<shard>*<suffix>" (sharded) or "<prefix>.*<suffix>" (single set).
func FindShardFile(prefix, suffix string, shard int, sharded bool) (string, error) {
	var (
		dir     = filepath.Dir(prefix)
		pattern = filepath.Base(prefix)
	)
	if sharded {
		pattern += fmt.Sprintf(".%04d*", shard) + suffix
	} else {
		pattern += ".*" + suffix
	}
	names, err := godirwalk.ReadDirnames(dir, nil)
	if err != nil {
		if cos.IsNotExist(err) {
			return "", cos.NewErrNotFound("AHF", "directory %q", dir)
		}
		return "", err
	}
	var found []string
	for _, name := range names {
		if ok, _ := filepath.Match(pattern, name); ok {
			found = append(found, name)
		}
	}
	switch len(found) {
	case 0:
		return "", cos.NewErrNotFound("AHF", "%q", filepath.Join(dir, pattern))
	case 1:
		return filepath.Join(dir, found[0]), nil
	default:
		return "", fmt.Errorf("AHF: %q is ambiguous: %v", filepath.Join(dir, pattern), found)
	}
}

// FindShardFiles resolves all three AHF files of the given shard.
func FindShardFiles(config *cmn.HaloConf, shard int) (*Files, error) {
	var (
		err   error
		files = &Files{Shard: shard, Sharded: config.NFiles > 1}
	)
	if files.Parts, err = FindShardFile(config.PartsPrefix, SuffixParticles, shard, files.Sharded); err != nil {
		return nil, err
	}
	if files.Subs, err = FindShardFile(config.SubsPrefix, SuffixSubstruct, shard, files.Sharded); err != nil {
		return nil, err
	}
	if files.Halos, err = FindShardFile(config.HalosPrefix, SuffixHalos, shard, files.Sharded); err != nil {
		return nil, err
	}
	return files, nil
}
