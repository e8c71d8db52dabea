// Package tests_test - cmn test suite
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package tests_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestCmn(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Cmn Suite")
}
