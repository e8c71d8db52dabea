// Package cos provides common low-level types and utilities for all tspec packages.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	jsoniter "github.com/json-iterator/go"
)

// JSON is used to marshal/unmarshal configuration and run summaries.
var JSON jsoniter.API

func init() {
	jsonConf := jsoniter.Config{
		EscapeHTML:             false,
		ValidateJsonRawMessage: false,
		DisallowUnknownFields:  true, // a typo in the config is an error, not a silent default
		SortMapKeys:            true,
	}
	JSON = jsonConf.Froze()
}

// MustMarshal marshals v and panics if error occurs.
func MustMarshal(v any) []byte {
	b, err := JSON.Marshal(v)
	AssertNoErr(err)
	return b
}

func MustMarshalToString(v any) string {
	s, err := JSON.MarshalToString(v)
	AssertNoErr(err)
	return s
}
