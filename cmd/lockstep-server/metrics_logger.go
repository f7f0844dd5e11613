package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lockstep/nbody-server/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"ticks", snap.Ticks,
					"datagrams_rx", snap.DatagramsRx,
					"datagrams_tx", snap.DatagramsTx,
					"hub_drops", snap.HubDrops,
					"hub_kicks", snap.HubKicks,
					"hub_clients", snap.HubClients,
					"malformed", snap.Malformed,
					"hash_mismatch", snap.HashMismatch,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
