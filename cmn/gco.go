// Package cmn provides common constants, types, and utilities for tspec workers
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	ratomic "sync/atomic"
)

// GCO (Global Config Owner) holds the run configuration. It is loaded
// once at startup (and possibly overridden by command-line flags) and
// is read-only for the duration of the run.

type gco struct {
	c ratomic.Pointer[Config]
}

var GCO *gco

func init() {
	GCO = &gco{}
	GCO.c.Store(&Config{})
}

func (gco *gco) Get() *Config { return gco.c.Load() }

func (gco *gco) Put(config *Config) { gco.c.Store(config) }

// Clone is a shallow copy: Config has no reference-type fields.
func (gco *gco) Clone() *Config {
	config := *gco.Get()
	return &config
}
