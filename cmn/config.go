// Package cmn provides common constants, types, and utilities for tspec workers
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/NVIDIA/tspec/cmn/cos"

	"gopkg.in/yaml.v3"
)

// dedup strategies
const (
	StrategyNested = "nested" // O(host*sub) reference scan
	StrategyMerge  = "merge"  // O(host+sub) over sorted lists
)

// transport compression
const (
	CompressNone = ""
	CompressLZ4  = "lz4"
)

// dark energy models
const (
	DELambda = 0 // cosmological constant
	DELinder = 1 // w(a) = w0 + wa*(1-a)
)

const (
	dfltT0Table     = "./temp_S3.dat"
	dfltCompressMin = 64 * cos.KiB
	dfltSummary     = "summary.json"
)

type (
	Config struct {
		Snapshot   string        `json:"snapshot" yaml:"snapshot"`
		Halo       HaloConf      `json:"halo" yaml:"halo"`
		Units      UnitsConf     `json:"units" yaml:"units"`
		DarkEnergy DEConf        `json:"dark_energy" yaml:"dark_energy"`
		T0Table    string        `json:"t0_table" yaml:"t0_table"`
		Workers    int           `json:"workers" yaml:"workers"`
		Dedup      DedupConf     `json:"dedup" yaml:"dedup"`
		Transport  TransportConf `json:"transport" yaml:"transport"`
		Output     OutputConf    `json:"output" yaml:"output"`
		Log        LogConf       `json:"log" yaml:"log"`
	}
	// AHF output: each prefix expands to one file per shard (see halo.FindShardFiles)
	HaloConf struct {
		PartsPrefix string `json:"parts_prefix" yaml:"parts_prefix"`
		HalosPrefix string `json:"halos_prefix" yaml:"halos_prefix"`
		SubsPrefix  string `json:"subs_prefix" yaml:"subs_prefix"`
		// number of AHF file sets; 1 or the number of workers
		NFiles int `json:"nfiles" yaml:"nfiles"`
	}
	// simulation (Gadget) internal units
	UnitsConf struct {
		LengthCm       float64 `json:"length_cm" yaml:"length_cm"`
		VelocityCmPerS float64 `json:"velocity_cm_per_s" yaml:"velocity_cm_per_s"`
		MassG          float64 `json:"mass_g" yaml:"mass_g"`
	}
	DEConf struct {
		Model int     `json:"model" yaml:"model"`
		W0    float64 `json:"w0" yaml:"w0"`
		WA    float64 `json:"wa" yaml:"wa"`
	}
	DedupConf struct {
		Strategy string `json:"strategy" yaml:"strategy"`
	}
	TransportConf struct {
		Compression string `json:"compression" yaml:"compression"`
		// payloads smaller than this are sent as is
		CompressMin int64 `json:"compress_min" yaml:"compress_min"`
	}
	OutputConf struct {
		// defaults to the snapshot's directory
		Dir         string `json:"dir" yaml:"dir"`
		Summary     string `json:"summary" yaml:"summary"`
		DumpFlagged bool   `json:"dump_flagged" yaml:"dump_flagged"`
	}
	LogConf struct {
		Dir      string `json:"dir" yaml:"dir"`
		ToStderr bool   `json:"to_stderr" yaml:"to_stderr"`
	}
)

// LoadConfig reads JSON (.json), YAML (.yaml, .yml), or the legacy "Key value"
// parameter file (anything else), applies defaults, and validates.
func LoadConfig(path string) (*Config, error) {
	var (
		config = &Config{}
		err    error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var b []byte
		if b, err = os.ReadFile(path); err == nil {
			err = cos.JSON.Unmarshal(b, config)
		}
	case ".yaml", ".yml":
		var b []byte
		if b, err = os.ReadFile(path); err == nil {
			err = yaml.Unmarshal(b, config)
		}
	default:
		err = loadParams(path, config)
	}
	if err != nil {
		if cos.IsNotExist(err) {
			return nil, cos.NewErrNotFound("config", "%q", path)
		}
		return nil, fmt.Errorf("failed to load config %q: %w", path, err)
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) SetDefaults() {
	if c.T0Table == "" {
		c.T0Table = dfltT0Table
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.Halo.NFiles == 0 {
		c.Halo.NFiles = 1
	}
	if c.Dedup.Strategy == "" {
		c.Dedup.Strategy = StrategyMerge
	}
	if c.Transport.CompressMin == 0 {
		c.Transport.CompressMin = dfltCompressMin
	}
	if c.Output.Dir == "" {
		c.Output.Dir = filepath.Dir(c.Snapshot)
	}
	if c.Output.Summary == "" {
		c.Output.Summary = dfltSummary
	}
}

func (c *Config) Validate() error {
	if c.Snapshot == "" {
		return errors.New("invalid config: snapshot is required")
	}
	if err := c.Halo.Validate(c.Workers); err != nil {
		return err
	}
	if err := c.Units.Validate(); err != nil {
		return err
	}
	if err := c.DarkEnergy.Validate(); err != nil {
		return err
	}
	if c.Workers < 1 {
		return fmt.Errorf("invalid config: number of workers %d", c.Workers)
	}
	if err := c.Dedup.Validate(); err != nil {
		return err
	}
	return c.Transport.Validate()
}

func (c *HaloConf) Validate(workers int) error {
	if c.PartsPrefix == "" || c.HalosPrefix == "" || c.SubsPrefix == "" {
		return fmt.Errorf("invalid halo config: missing file prefix (%+v)", *c)
	}
	if c.NFiles != 1 && c.NFiles != workers {
		return fmt.Errorf("invalid halo config: number of AHF file sets (%d) must be 1 or equal the number of workers (%d)",
			c.NFiles, workers)
	}
	return nil
}

func (c *UnitsConf) Validate() error {
	if c.LengthCm <= 0 || c.VelocityCmPerS <= 0 || c.MassG <= 0 {
		return fmt.Errorf("invalid units config: %+v", *c)
	}
	return nil
}

func (c *DEConf) Validate() error {
	if c.Model != DELambda && c.Model != DELinder {
		return fmt.Errorf("invalid dark energy model %d (expecting %d or %d)", c.Model, DELambda, DELinder)
	}
	return nil
}

func (c *DedupConf) Validate() error {
	if c.Strategy != StrategyNested && c.Strategy != StrategyMerge {
		return fmt.Errorf("invalid dedup strategy %q (expecting %q or %q)", c.Strategy, StrategyNested, StrategyMerge)
	}
	return nil
}

func (c *TransportConf) Validate() error {
	if c.Compression != CompressNone && c.Compression != CompressLZ4 {
		return fmt.Errorf("invalid transport compression %q", c.Compression)
	}
	if c.CompressMin < 0 {
		return fmt.Errorf("invalid transport compress_min %d", c.CompressMin)
	}
	return nil
}

//
// legacy parameter file
//

var paramKeys = []string{
	"Snapshot", "HaloPartsFile", "HaloFile", "HaloSubFile",
	"GUL_IN_CM", "GUV_IN_CM_PER_S", "GUM_IN_G",
	"DE", "DE_W0", "DE_WA", "N_Halo_Files",
}

func loadParams(path string, config *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	kvs := make(map[string]string, len(paramKeys))
	scanner := bufio.NewScanner(f)
	for lno := 1; scanner.Scan(); lno++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '%' || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return fmt.Errorf("%s:%d: expecting \"Key value\", got %q", path, lno, line)
		}
		kvs[fields[0]] = fields[1]
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	for _, key := range paramKeys {
		if _, ok := kvs[key]; !ok {
			return fmt.Errorf("%s: missing parameter %q", path, key)
		}
	}

	config.Snapshot = kvs["Snapshot"]
	config.Halo.PartsPrefix = kvs["HaloPartsFile"]
	config.Halo.HalosPrefix = kvs["HaloFile"]
	config.Halo.SubsPrefix = kvs["HaloSubFile"]

	var errs []error
	parseF := func(key string) float64 {
		v, err := strconv.ParseFloat(kvs[key], 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid %s: %w", path, key, err))
		}
		return v
	}
	parseI := func(key string) int {
		v, err := strconv.Atoi(kvs[key])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid %s: %w", path, key, err))
		}
		return v
	}
	config.Units.LengthCm = parseF("GUL_IN_CM")
	config.Units.VelocityCmPerS = parseF("GUV_IN_CM_PER_S")
	config.Units.MassG = parseF("GUM_IN_G")
	config.DarkEnergy.Model = parseI("DE")
	config.DarkEnergy.W0 = parseF("DE_W0")
	config.DarkEnergy.WA = parseF("DE_WA")
	config.Halo.NFiles = parseI("N_Halo_Files")

	// the legacy format has no notion of workers: one per AHF file set
	if config.Workers == 0 {
		config.Workers = config.Halo.NFiles
	}
	return errors.Join(errs...)
}
