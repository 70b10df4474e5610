package utils

import (
	"context"
	"log"
	"runtime"
	"time"
)

// MonitorResources logs goroutine count and heap usage every interval until
// ctx is done.
func MonitorResources(ctx context.Context, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	var memStats runtime.MemStats
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			runtime.ReadMemStats(&memStats)
			log.Printf("[monitor] goroutines: %d | heap alloc: %.2f KB | heap objects: %d",
				runtime.NumGoroutine(),
				float64(memStats.HeapAlloc)/1024,
				memStats.HeapObjects,
			)
		}
	}
}
