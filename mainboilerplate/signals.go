package mainboilerplate

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// InterruptContext returns a Context which is cancelled upon the first
// SIGINT or SIGTERM delivered to the process. Signal handling then stops,
// so that a second signal terminates the process as usual. The returned
// CancelFunc also stops signal handling and releases the Context.
func InterruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	var signalCh = make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)

	return cancelOnSignal(parent, signalCh, func() { signal.Stop(signalCh) })
}

func cancelOnSignal(parent context.Context, signalCh <-chan os.Signal, stop func()) (context.Context, context.CancelFunc) {
	var ctx, cancel = context.WithCancel(parent)
	go func() {
		select {
		case sig := <-signalCh:
			stop()
			log.WithField("signal", sig).Warn("caught signal; stopping after the current block (signal again to exit now)")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		stop()
		cancel()
	}
}
