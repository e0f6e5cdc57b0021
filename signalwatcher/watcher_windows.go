//go:build windows

package signalwatcher

import (
	"context"
	"os"
	"os/signal"
)

// Watch calls the callback (on a new goroutine) every time the process
// receives an interrupt signal, until ctx is cancelled.
func Watch(ctx context.Context, callback func(Signal)) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt)

	go func() {
		defer signal.Stop(signals)
		for {
			select {
			case <-signals:
				go callback(QUIT)
			case <-ctx.Done():
				return
			}
		}
	}()
}
