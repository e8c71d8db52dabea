// Package nlog - tspec logger, provides buffering, timestamping, writing, and
// flushing/rotating
/*
 * Copyright (c) 2023-2025, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/NVIDIA/tspec/cmn/mono"
)

const (
	nlogBufSize   = 64 * 1024
	flushInterval = 10 * time.Second
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

type nlog struct {
	file    *os.File
	w       *bufio.Writer
	written int64
	last    int64 // mono time of the last flush
	sev     severity
	mw      sync.Mutex
}

var (
	nlogs [3]*nlog

	toStderr     bool
	alsoToStderr bool

	logDir string
	arg0   string
	tsrole string
	title  string
	host   = "unknown"
	pid    int

	onceInitFiles sync.Once
	errInitFiles  error
)

func init() {
	pid = os.Getpid()
	arg0 = filepath.Base(os.Args[0])
	if h, err := os.Hostname(); err == nil {
		if before, _, ok := strings.Cut(h, "."); ok {
			h = before
		}
		host = h
	}
}

func initFiles() {
	if logDir == "" {
		logDir = filepath.Join(os.TempDir(), "tspeclogs")
	}
	now := time.Now()
	for _, sev := range []severity{sevInfo, sevErr} {
		nl := &nlog{sev: sev}
		if err := nl.rotate(now); err != nil {
			errInitFiles = err
			return
		}
		nlogs[sev] = nl
	}
}

func sname() string {
	if tsrole != "" {
		return arg0 + "-" + tsrole
	}
	return arg0
}

func logfname(tag string, t time.Time) (name, link string) {
	s := sname()
	name = fmt.Sprintf("%s.%s.%s.%02d%02d-%02d%02d%02d.%d",
		s, host, tag, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), pid)
	return name, s + "." + tag
}

// main function
func log(sev severity, depth int, format string, args ...any) {
	line := sprintf(sev, depth+1, format, args...)
	switch {
	case !flag.Parsed():
		os.Stderr.WriteString("Error: logging before flag.Parse: ")
		fallthrough
	case toStderr:
		os.Stderr.WriteString(line)
		return
	case alsoToStderr || sev >= sevErr:
		os.Stderr.WriteString(line)
	}
	onceInitFiles.Do(initFiles)
	if errInitFiles != nil {
		os.Stderr.WriteString(line)
		return
	}
	if sev >= sevWarn {
		nlogs[sevErr].write(line, true)
	}
	nlogs[sevInfo].write(line, sev >= sevWarn)
}

func sprintf(sev severity, depth int, format string, args ...any) string {
	const char = "IWE"
	var sb strings.Builder
	sb.WriteByte(char[sev])
	sb.WriteByte(' ')
	sb.WriteString(time.Now().Format("15:04:05.000000"))
	sb.WriteByte(' ')
	if _, fn, ln, ok := runtime.Caller(3 + depth); ok {
		if idx := strings.LastIndexByte(fn, filepath.Separator); idx > 0 {
			fn = fn[idx+1:]
		}
		sb.WriteString(strings.TrimSuffix(fn, ".go"))
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(ln))
		sb.WriteByte(' ')
	}
	if format == "" {
		fmt.Fprint(&sb, args...)
	} else {
		fmt.Fprintf(&sb, format, args...)
	}
	if s := sb.String(); s == "" || s[len(s)-1] != '\n' {
		sb.WriteByte('\n')
	}
	return sb.String()
}

//
// nlog
//

func (nl *nlog) write(line string, flush bool) {
	nl.mw.Lock()
	n, _ := nl.w.WriteString(line)
	nl.written += int64(n)
	if flush || mono.Since(nl.last) > flushInterval {
		nl.w.Flush()
		nl.last = mono.NanoTime()
	}
	if nl.written >= MaxSize {
		nl.w.Flush()
		nl.file.Close()
		if err := nl.rotate(time.Now()); err != nil {
			os.Stderr.WriteString("nlog: failed to rotate: " + err.Error() + "\n")
			toStderr = true
		}
	}
	nl.mw.Unlock()
}

func (nl *nlog) flush(exit bool) {
	nl.mw.Lock()
	if nl.w != nil {
		nl.w.Flush()
		nl.last = mono.NanoTime()
		if exit {
			nl.file.Sync()
		}
	}
	nl.mw.Unlock()
}

func (nl *nlog) rotate(now time.Time) error {
	const tags = "IWE"
	if err := os.MkdirAll(logDir, os.ModePerm); err != nil {
		return err
	}
	tag := "INFO"
	if tags[nl.sev] == 'E' {
		tag = "ERROR"
	}
	name, link := logfname(tag, now)
	fname := filepath.Join(logDir, name)
	f, err := os.OpenFile(fname, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	symlink := filepath.Join(logDir, link)
	os.Remove(symlink)
	os.Symlink(name, symlink)

	nl.file, nl.written = f, 0
	if nl.w == nil {
		nl.w = bufio.NewWriterSize(f, nlogBufSize)
	} else {
		nl.w.Reset(f)
	}
	hdr := fmt.Sprintf("Started up at %s, host %s, %s for %s/%s\n",
		now.Format("2006/01/02 15:04:05"), host, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if title != "" {
		hdr = title + "\n" + hdr
	}
	n, _ := nl.w.WriteString(hdr)
	nl.written += int64(n)
	return nil
}
