package broker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// reaperTicker abstracts time.Ticker so tests can drive reaper ticks
// directly.
type reaperTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.ticker.C }
func (t timeTicker) Stop()               { t.ticker.Stop() }

type tickerFactory func(time.Duration) reaperTicker

// StartReaper launches the background worker that evicts idle sessions and
// sweeps sessions whose child has exited. Every interval it calls
// registry.ReapIdle with the configured threshold; onReaped (optional)
// receives the count of removed sessions. The returned stop func cancels the
// worker, waits for it to finish, and is safe to call more than once.
func StartReaper(ctx context.Context, reg *Registry, threshold, interval time.Duration, log *slog.Logger, onReaped func(int)) func() {
	return startReaperWithTicker(ctx, reg, threshold, interval, log, onReaped, func(d time.Duration) reaperTicker {
		return timeTicker{ticker: time.NewTicker(d)}
	})
}

func startReaperWithTicker(
	ctx context.Context,
	reg *Registry,
	threshold, interval time.Duration,
	log *slog.Logger,
	onReaped func(int),
	newTicker tickerFactory,
) func() {
	workerCtx, cancel := context.WithCancel(ctx)
	ticker := newTicker(interval)
	done := make(chan struct{})

	go func() {
		defer func() {
			ticker.Stop()
			close(done)
		}()
		log.Info("reaper started",
			slog.Duration("interval", interval),
			slog.Duration("idle_threshold", threshold),
		)
		for {
			select {
			case <-workerCtx.Done():
				log.Info("reaper stopped")
				return
			case <-ticker.C():
				if n := reg.ReapIdle(threshold, time.Now()); n > 0 && onReaped != nil {
					onReaped(n)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
