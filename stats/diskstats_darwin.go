//go:build darwin

/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"time"

	"github.com/lufia/iostat"
	"github.com/prometheus/client_golang/prometheus"
)

// startDiskGauge polls host drive write counters every 10s and adds
// the delta to counter. lufia/iostat only supports darwin; see
// diskstats_other.go for every other GOOS.
func startDiskGauge(counter prometheus.Counter) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		var lastBytes int64
		for {
			select {
			case <-ticker.C:
				drives, err := iostat.ReadDriveStats()
				if err != nil {
					continue
				}
				var total int64
				for _, d := range drives {
					total += d.BytesWritten
				}
				if lastBytes != 0 && total > lastBytes {
					counter.Add(float64(total - lastBytes))
				}
				lastBytes = total
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}
