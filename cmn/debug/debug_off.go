//go:build !debug

// Package debug provides build-tag gated assertions and debug logging
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package debug

const Enabled = false

func Infof(string, ...any) {}
func Func(func())          {}

func Assert(bool, ...any)            {}
func AssertFunc(func() bool, ...any) {}
func AssertNoErr(error)              {}
func Assertf(bool, string, ...any)   {}
