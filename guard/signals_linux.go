package guard

import "syscall"

const maxSignal = 64

// glibc keeps 32 and 33 for thread cancellation and setxid broadcasts.
var libcReserved = map[syscall.Signal]bool{32: true, 33: true}
