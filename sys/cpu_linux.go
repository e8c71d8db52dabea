// Package sys provides methods to read system information
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package sys

import (
	"bufio"
	"errors"
	"os"
	"runtime"
	"strconv"
	"strings"
)

const (
	rootProcess = "/proc/1/cgroup"

	// cgroup v1
	contCPULimit  = "/sys/fs/cgroup/cpu/cpu.cfs_quota_us"
	contCPUPeriod = "/sys/fs/cgroup/cpu/cpu.cfs_period_us"
	// cgroup v2: "<quota> <period>" or "max <period>"
	contCPUMax = "/sys/fs/cgroup/cpu.max"
)

func isContainerized() (yes bool) {
	f, err := os.Open(rootProcess)
	if err != nil {
		return false
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "docker") || strings.Contains(line, "lxc") || strings.Contains(line, "kube") {
			return true
		}
	}
	return false
}

// Returns an approximate number of CPUs allocated for the container,
// rounded up. A negative (or "max") quota means no limit.
func containerNumCPU() (int, error) {
	if line, err := readOneLine(contCPUMax); err == nil {
		return parseCPUMax(line)
	}
	quota, err := readOneInt64(contCPULimit)
	if err != nil {
		return 0, err
	}
	period, err := readOneInt64(contCPUPeriod)
	if err != nil {
		return 0, err
	}
	return quotaCPUs(quota, period)
}

func parseCPUMax(line string) (int, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return 0, errors.New("failed to parse container CPU limit: " + strconv.Quote(line))
	}
	if fields[0] == "max" {
		return runtime.NumCPU(), nil
	}
	quota, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, err
	}
	period, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, err
	}
	return quotaCPUs(quota, period)
}

func quotaCPUs(quota, period int64) (int, error) {
	if quota <= 0 {
		return runtime.NumCPU(), nil
	}
	if period <= 0 {
		return 0, errors.New("failed to read container CPU info")
	}
	approx := (quota + period - 1) / period
	return int(max(approx, 1)), nil
}

func readOneLine(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(b), "\n")
	return strings.TrimSpace(line), nil
}

func readOneInt64(path string) (int64, error) {
	line, err := readOneLine(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(line, 10, 64)
}
