// Package cmn provides common constants, types, and utilities for tspec workers
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

const Version = "1.1"
