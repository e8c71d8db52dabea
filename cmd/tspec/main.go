// Package main for the tspec executable: computes gas temperatures of a
// Gadget snapshot from its AHF halo catalog.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/NVIDIA/tspec/cmn"
	"github.com/NVIDIA/tspec/cmn/nlog"
	"github.com/NVIDIA/tspec/node"
	"github.com/NVIDIA/tspec/stats"
	"github.com/NVIDIA/tspec/sys"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	build string

	flags struct {
		strategy    string
		compression string
		metrics     string
		workers     int
		dumpFlagged bool
		version     bool
	}
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] CONFIG\n\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "CONFIG is a .json, .yaml, or legacy \"Key value\" parameter file.")
	fmt.Fprintln(os.Stderr)
	flag.PrintDefaults()
}

func main() {
	flag.IntVar(&flags.workers, "workers", 0, "number of workers (overrides config)")
	flag.StringVar(&flags.strategy, "strategy", "", "duplicate removal: \"nested\" or \"merge\" (overrides config)")
	flag.StringVar(&flags.compression, "compression", "", "transport compression: \"lz4\" (overrides config)")
	flag.StringVar(&flags.metrics, "metrics", "", "write Prometheus text-format metrics to this file upon completion")
	flag.BoolVar(&flags.dumpFlagged, "dump-flagged", false, "write ids of in-halo particles to flaggedparts.txt")
	flag.BoolVar(&flags.version, "version", false, "show version and exit")
	nlog.InitFlags(flag.CommandLine)
	flag.Usage = usage
	flag.Parse()

	if flags.version {
		fmt.Println("tspec", cmn.Version, build)
		return
	}
	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	ecode := run(flag.Arg(0))
	nlog.Flush(true)
	os.Exit(ecode)
}

const (
	ecodeOK = iota
	ecodeFatal
)

// run returns the exit code; main exits only after deferred cleanup and log flush.
func run(path string) int {
	config, err := cmn.LoadConfig(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return ecodeFatal
	}
	if flags.workers > 0 {
		config.Workers = flags.workers
	}
	if flags.strategy != "" {
		config.Dedup.Strategy = flags.strategy
	}
	if flags.compression != "" {
		config.Transport.Compression = flags.compression
	}
	if flags.dumpFlagged {
		config.Output.DumpFlagged = true
	}
	if err := config.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return ecodeFatal
	}
	cmn.GCO.Put(config)

	nlog.SetLogDirRole(config.Log.Dir, "run")
	if config.Log.ToStderr {
		nlog.SetToStderr(true)
	}
	nlog.SetTitle(fmt.Sprintf("tspec %s, config %q", cmn.Version, path))
	sys.GoEnvMaxprocs()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := stats.NewTracker()
	summary, err := node.RunCluster(ctx, nil /*cmn.GCO*/, tracker)
	if flags.metrics != "" {
		if werr := prometheus.WriteToTextfile(flags.metrics, tracker.Registry()); werr != nil {
			nlog.Errorln("failed to write metrics:", werr)
		}
	}
	if err != nil {
		nlog.Errorf("FATAL ERROR: %v", err)
		fmt.Fprintln(os.Stderr, err)
		return ecodeFatal
	}
	fmt.Printf("%s: %d gas particles (%d in halos), digest %s, %.3fs\n",
		summary.Output, summary.NGas, summary.Flagged, summary.Digest, summary.WallTime)
	return ecodeOK
}
