//go:build !linux && !windows

package guard

import "syscall"

const maxSignal = 31

var libcReserved = map[syscall.Signal]bool{}
