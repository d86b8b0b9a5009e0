// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pipeline

import (
	"fmt"
	"math"
)

// EstimateUsage converts a raw input size into a projected peak disk
// footprint for a processing stage, using the stage-specific
// expansion ratio from configuration. Zero raw bytes projects zero
// usage, and the result never goes negative: a projection that would
// overflow int64 saturates at MaxInt64, so it is rejected by any
// finite budget instead of wrapping around. A negative raw size is a
// caller bug, not a recoverable condition.
func EstimateUsage(rawTotal int64, ratio float64) int64 {
	if rawTotal < 0 {
		panic(fmt.Sprintf("EstimateUsage called with negative raw size %d", rawTotal))
	}
	projected := float64(rawTotal) * ratio
	if projected >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(projected)
}
