//go:build windows

package daemon

import (
	"os"
	"os/signal"
)

// Windows has no SIGHUP equivalent delivered as an os.Signal, so reload is
// only reachable via the Control Server's POST /reload on this platform.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt)
}

func isReloadSignal(sig os.Signal) bool {
	return false
}

func hangupSignalForTest() os.Signal {
	return os.Interrupt
}
