// Package node runs the tspec pipeline: one worker per rank of an in-process
// transport group, from halo catalogs and snapshot to the annotated output.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package node

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/NVIDIA/tspec/cmn"
	"github.com/NVIDIA/tspec/cmn/cos"
	"github.com/NVIDIA/tspec/cmn/nlog"
	"github.com/NVIDIA/tspec/stats"
	"github.com/NVIDIA/tspec/sys"
	"github.com/NVIDIA/tspec/transport"
	"github.com/NVIDIA/tspec/xact"

	"golang.org/x/sync/errgroup"
)

// Runner is one tspec run shared by all its workers.
type Runner struct {
	xact.Base
	config  *cmn.Config
	tracker *stats.Tracker
	summary Summary // filled in by the coordinator
}

func NewRunner(config *cmn.Config, tracker *stats.Tracker) *Runner {
	if tracker == nil {
		tracker = stats.NewTracker()
	}
	r := &Runner{config: config, tracker: tracker}
	r.InitBase(cmn.GenUUID(), xact.KindRun)
	return r
}

func (r *Runner) Config() *cmn.Config     { return r.config }
func (r *Runner) Tracker() *stats.Tracker { return r.tracker }
func (r *Runner) Summary() *Summary       { return &r.summary }

// RunCluster starts config.Workers workers and waits for all of them. The
// first error aborts the run: every other worker unblocks and returns.
// A nil config means the global one (cmn.GCO).
func RunCluster(ctx context.Context, config *cmn.Config, tracker *stats.Tracker) (*Summary, error) {
	if config == nil {
		config = cmn.GCO.Get()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	var (
		r         = NewRunner(config, tracker)
		group     = transport.NewGroupFromConfig(config.Workers, config, r.tracker)
		eg, egctx = errgroup.WithContext(ctx)
	)
	sys.CheckWorkers(config.Workers)
	nlog.Infof("%s: %d worker%s, %d AHF file set%s, dedup %q", r.Name(), config.Workers, cos.Plural(config.Workers),
		config.Halo.NFiles, cos.Plural(config.Halo.NFiles), config.Dedup.Strategy)
	for rank := range config.Workers {
		comm := group.Comm(rank)
		eg.Go(func() error {
			if err := Run(egctx, comm, r); err != nil {
				err = fmt.Errorf("worker %d: %w", comm.Rank(), err)
				if r.Abort(err) {
					group.Abort(err)
				}
				return err
			}
			return nil
		})
	}
	err := eg.Wait()
	if aerr := r.AbortErr(); aerr != nil {
		err = aerr // root cause, not the unblocked workers' ErrAborted
	}
	r.Finish()
	if err != nil {
		return nil, err
	}

	r.summary.Xact = r.Snap()
	r.summary.Stats = r.tracker.Snapshot()
	r.tracker.Log()
	if name := config.Output.Summary; name != "" {
		fqn := name
		if !filepath.IsAbs(fqn) {
			fqn = filepath.Join(config.Output.Dir, name)
		}
		if err := SaveSummary(fqn, &r.summary); err != nil {
			return nil, err
		}
		nlog.Infoln("summary:", fqn)
	}
	return &r.summary, nil
}
