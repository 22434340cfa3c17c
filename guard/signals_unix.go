//go:build !windows

package guard

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

var uncatchable = map[syscall.Signal]bool{
	unix.SIGKILL: true,
	unix.SIGSTOP: true,
	// the runtime preempts goroutines with SIGURG and profiles with SIGPROF
	unix.SIGURG:  true,
	unix.SIGPROF: true,
}

// Interceptable lists every signal number the process may rebind.
func Interceptable() []os.Signal {
	var sigs []os.Signal
	for n := 1; n <= maxSignal; n++ {
		sig := syscall.Signal(n)
		if uncatchable[sig] || libcReserved[sig] {
			continue
		}
		sigs = append(sigs, sig)
	}
	return sigs
}

// TerminalSignals are owned by a full screen terminal UI while it runs.
func TerminalSignals() []os.Signal {
	return []os.Signal{unix.SIGWINCH}
}

func SignalName(sig os.Signal) string {
	if s, ok := sig.(syscall.Signal); ok {
		if name := unix.SignalName(s); name != "" {
			return name
		}
		return fmt.Sprintf("signal %d", int(s))
	}
	return sig.String()
}

func signalByName(name string) (os.Signal, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	if sig := unix.SignalNum(name); sig != 0 {
		return sig, true
	}
	return nil, false
}
