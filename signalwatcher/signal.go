// Package signalwatcher notifies a callback when the process receives a
// termination-style signal.
package signalwatcher

// Signal is the watcher's platform-neutral view of an OS signal.
type Signal string

func (s Signal) String() string {
	return string(s)
}

const (
	HUP  = Signal("HUP")
	QUIT = Signal("QUIT")
)
