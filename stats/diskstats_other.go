//go:build !darwin

/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import "github.com/prometheus/client_golang/prometheus"

// startDiskGauge is a no-op outside darwin; lufia/iostat has no
// implementation for other platforms.
func startDiskGauge(_ prometheus.Counter) func() {
	return func() {}
}
