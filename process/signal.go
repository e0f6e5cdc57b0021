package process

import (
	"fmt"
	"strings"
)

// Signal represents a process signal by number. The values mirror the
// portable POSIX signal numbers, so a Signal can be converted directly to a
// syscall.Signal on unix.
type Signal int

const (
	SIGHUP  Signal = 1
	SIGINT  Signal = 2
	SIGQUIT Signal = 3
	SIGUSR1 Signal = 10
	SIGUSR2 Signal = 12
	SIGTERM Signal = 15
)

var signalMap = map[string]Signal{
	"SIGHUP":  SIGHUP,
	"SIGINT":  SIGINT,
	"SIGQUIT": SIGQUIT,
	"SIGUSR1": SIGUSR1,
	"SIGUSR2": SIGUSR2,
	"SIGTERM": SIGTERM,
}

func (s Signal) String() string {
	for name, sig := range signalMap {
		if sig == s {
			return name
		}
	}
	return fmt.Sprintf("SIG(%d)", int(s))
}

// ParseSignal converts a signal name like "SIGTERM" (or "term") into a
// Signal.
func ParseSignal(sig string) (Signal, error) {
	name := strings.ToUpper(strings.TrimSpace(sig))
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	s, ok := signalMap[name]
	if !ok {
		return Signal(0), fmt.Errorf("unknown signal %q", sig)
	}
	return s, nil
}
