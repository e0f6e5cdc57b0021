//go:build !windows

package signalwatcher

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Watch calls the callback (on a new goroutine) every time the process
// receives an interrupt or termination signal, until ctx is cancelled.
func Watch(ctx context.Context, callback func(Signal)) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
		syscall.SIGQUIT)

	go func() {
		defer signal.Stop(signals)
		for {
			select {
			case sig := <-signals:
				if sig == syscall.SIGHUP {
					go callback(HUP)
				} else {
					go callback(QUIT)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
