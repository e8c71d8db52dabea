// Package main - tspec command-line tests
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/NVIDIA/tspec/cmn"
	"github.com/NVIDIA/tspec/cmn/cos"
	"github.com/NVIDIA/tspec/tools/tassert"
)

const configFmt = `snapshot: %s
halo:
  parts_prefix: %s
  halos_prefix: %s
  subs_prefix: %s
  nfiles: 2
units:
  length_cm: 3.085678e21
  velocity_cm_per_s: 1e5
  mass_g: 1.989e43
workers: 2
log:
  to_stderr: true
`

func writeConfig(t *testing.T) string {
	var (
		dir    = t.TempDir()
		prefix = filepath.Join(dir, "ahf", "snap_005")
		fqn    = filepath.Join(dir, "tspec.yaml")
	)
	content := fmt.Sprintf(configFmt, filepath.Join(dir, "snap_005"), prefix, prefix, prefix)
	tassert.CheckFatal(t, os.WriteFile(fqn, []byte(content), cos.PermRWR))
	return fqn
}

// run reports fatal errors through its return code, never by exiting the process
func TestRunExitCode(t *testing.T) {
	t.Cleanup(func() { cmn.GCO.Put(&cmn.Config{}) })

	ecode := run(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	tassert.Errorf(t, ecode == ecodeFatal, "missing config: exit code %d", ecode)

	flags.workers = 3 // does not match nfiles
	ecode = run(writeConfig(t))
	flags.workers = 0
	tassert.Errorf(t, ecode == ecodeFatal, "invalid override: exit code %d", ecode)

	// valid config, missing AHF files: the run itself fails
	path := writeConfig(t)
	ecode = run(path)
	tassert.Errorf(t, ecode == ecodeFatal, "missing inputs: exit code %d", ecode)

	config := cmn.GCO.Get()
	tassert.Errorf(t, config.Workers == 2 && filepath.Dir(config.Snapshot) == filepath.Dir(path),
		"global config not updated: %+v", config)
}
