//go:build windows

package guard

import (
	"os"
	"strings"
	"syscall"
)

// Interceptable lists the console events the Go runtime turns into signals:
// Ctrl+C and Ctrl+Break arrive as os.Interrupt, console close, logoff and
// shutdown as SIGTERM.
func Interceptable() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}

func TerminalSignals() []os.Signal {
	return nil
}

func SignalName(sig os.Signal) string {
	return sig.String()
}

func signalByName(name string) (os.Signal, bool) {
	switch strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "SIG") {
	case "INT":
		return os.Interrupt, true
	case "TERM":
		return syscall.SIGTERM, true
	}
	return nil, false
}
