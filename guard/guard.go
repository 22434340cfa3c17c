// Package guard keeps the transmitter from outliving its process. A Guard
// owns an ordered list of teardown steps and runs them exactly once, whether
// the process is stopping because the baseband ran dry, because of a fatal
// error or panic, or because any interceptable signal was delivered.
package guard

import (
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"

	"github.com/charmbracelet/log"
)

// Notifier abstracts signal registration so tests can deliver signals by hand.
type Notifier interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

type osNotifier struct{}

func (osNotifier) Notify(c chan<- os.Signal, sig ...os.Signal) { signal.Notify(c, sig...) }
func (osNotifier) Stop(c chan<- os.Signal)                      { signal.Stop(c) }

type step struct {
	name string
	fn   func() error
}

type Guard struct {
	exit     func(int)
	notifier Notifier
	ignored  map[os.Signal]bool

	mu    sync.Mutex
	steps []step

	armOnce  sync.Once
	sigCh    chan os.Signal
	bound    []os.Signal
	stopOnce sync.Once

	once sync.Once
	code int
}

type Option func(*Guard)

// WithExit replaces os.Exit.
func WithExit(exit func(int)) Option {
	return func(g *Guard) { g.exit = exit }
}

func WithNotifier(n Notifier) Option {
	return func(g *Guard) { g.notifier = n }
}

// WithIgnored leaves the given signals to their default handling.
func WithIgnored(sigs ...os.Signal) Option {
	return func(g *Guard) {
		for _, sig := range sigs {
			g.ignored[sig] = true
		}
	}
}

func New(opts ...Option) *Guard {
	g := &Guard{
		exit:     os.Exit,
		notifier: osNotifier{},
		ignored:  make(map[os.Signal]bool),
		sigCh:    make(chan os.Signal, 1),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Add appends a teardown step. Steps run in the order they were added, so the
// hardware release must be added first.
func (g *Guard) Add(name string, fn func() error) {
	g.mu.Lock()
	g.steps = append(g.steps, step{name: name, fn: fn})
	g.mu.Unlock()
}

// Arm routes every interceptable signal to Teardown. Signals the platform
// will not let us catch are skipped without complaint. It returns the
// signals that were bound.
func (g *Guard) Arm() []os.Signal {
	g.armOnce.Do(func() {
		for _, sig := range Interceptable() {
			if g.ignored[sig] {
				continue
			}
			g.bound = append(g.bound, sig)
		}
		g.notifier.Notify(g.sigCh, g.bound...)
		log.Debugf("[guard] Intercepting %d signals", len(g.bound))
		go g.watch()
	})
	return g.bound
}

// Disarm stops signal delivery. Steps are left in place.
func (g *Guard) Disarm() {
	g.stopOnce.Do(func() {
		g.notifier.Stop(g.sigCh)
		close(g.sigCh)
	})
}

func (g *Guard) watch() {
	defer g.Recover()
	sig, ok := <-g.sigCh
	if !ok {
		return
	}
	log.Warnf("Caught %s, shutting down the transmitter", SignalName(sig))
	g.Teardown(ExitCode(sig))
}

// Teardown runs every step once and terminates the process with code. A
// second caller, including a signal arriving mid-teardown, waits for the
// first run to complete and exits with the first caller's code.
func (g *Guard) Teardown(code int) {
	g.once.Do(func() {
		g.code = code
		g.mu.Lock()
		steps := append([]step(nil), g.steps...)
		g.mu.Unlock()

		for _, s := range steps {
			g.run(s)
		}
		log.Infof("Teardown complete, exiting with status %d", code)
	})
	g.exit(g.code)
}

func (g *Guard) run(s step) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[guard] %s panicked during teardown: %v", s.name, r)
		}
	}()
	log.Debugf("[guard] Releasing %s", s.name)
	if err := s.fn(); err != nil {
		log.Errorf("[guard] Could not release %s: %v", s.name, err)
	}
}

// Fatalf reports an unrecoverable error and tears down with status 1.
func (g *Guard) Fatalf(format string, args ...any) {
	log.Errorf(format, args...)
	g.Teardown(1)
}

// Recover must be deferred directly. A panic becomes a teardown with status 2.
func (g *Guard) Recover() {
	if r := recover(); r != nil {
		log.Errorf("panic: %v\n%s", r, debug.Stack())
		g.Teardown(2)
	}
}

// ExitCode follows the shell convention of 128 plus the signal number.
func ExitCode(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return 1
}

// ParseSignals resolves names such as "SIGWINCH" or "winch".
func ParseSignals(names []string) ([]os.Signal, error) {
	sigs := make([]os.Signal, 0, len(names))
	for _, name := range names {
		sig, ok := signalByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown signal %q", name)
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}
