// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build tools

// Package main pins the test runners used by `go run` in CI so that their
// versions come from go.mod.
package main

import (
	// go run github.com/onsi/ginkgo/v2/ginkgo -tags integration ./...
	_ "github.com/onsi/ginkgo/v2/ginkgo"
	// runtime dependency of the mockery output in internal/auth/mocks
	_ "github.com/stretchr/testify/mock"
)
