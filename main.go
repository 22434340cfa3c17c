package main

import (
	"errors"
	"io"
	"math"
	"os"
	"runtime/pprof"
	"sync"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/nbfmtx/config"
	"github.com/jrwynneiii/nbfmtx/dryrun"
	"github.com/jrwynneiii/nbfmtx/guard"
	"github.com/jrwynneiii/nbfmtx/modulate"
	"github.com/jrwynneiii/nbfmtx/mpx"
	"github.com/jrwynneiii/nbfmtx/radio"
	"github.com/jrwynneiii/nbfmtx/radio/driver"
	"github.com/jrwynneiii/nbfmtx/tui"
	"github.com/jrwynneiii/nbfmtx/tx"
	"gopkg.in/natefinch/lumberjack.v2"
	"hz.tools/rf"
)

// sink is what the transmit loop writes to: the SDR or the
// dry-run clock.
type sink interface {
	tx.Sink
	Release() error
}

// handles are published by main as they are created and released by
// whichever goroutine runs the teardown.
type handles struct {
	mu        sync.Mutex
	out       sink
	generator *mpx.Generator
	ui        *tui.UI
}

func (h *handles) releaseRadio() error {
	h.mu.Lock()
	out := h.out
	h.mu.Unlock()
	if out == nil {
		return nil
	}
	return out.Release()
}

func (h *handles) closeSource() error {
	h.mu.Lock()
	generator := h.generator
	h.mu.Unlock()
	if generator == nil {
		return nil
	}
	return generator.Close()
}

func (h *handles) stopUI() error {
	h.mu.Lock()
	ui := h.ui
	h.mu.Unlock()
	if ui == nil {
		return nil
	}
	return ui.Stop()
}

func loadConfig() config.Conf {
	path := cli.Config
	if path == "" {
		var err error
		if path, err = config.FindConfigPath(config.SearchPaths); err != nil {
			log.Info("Config file not found!")
		}
	}

	conf, err := config.Load(path)
	if err != nil {
		log.Fatalf("Could not read config: %v", err)
	}

	if cli.Tx.Freq > 0 {
		conf.Radio.Frequency = float64(rf.Hz(cli.Tx.Freq) * rf.MHz)
	}
	if cli.Tx.Audio != "" {
		conf.Tx.Audio = cli.Tx.Audio
	}
	if !math.IsNaN(cli.Tx.Dev) {
		conf.Tx.Deviation = cli.Tx.Dev
	}
	if cli.Tx.Tui {
		conf.Tui.Enabled = true
	}
	if cli.Tx.DryRun {
		conf.Radio.Driver = "dryrun"
	}
	return conf
}

func setupLogging(conf config.LogConf) (io.Writer, *lumberjack.Logger) {
	if conf.Level != "" {
		level, err := log.ParseLevel(conf.Level)
		if err != nil {
			log.Fatalf("Could not parse log level %q: %v", conf.Level, err)
		}
		log.SetLevel(level)
	}
	if cli.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	if conf.File == "" {
		return os.Stderr, nil
	}
	rotator := &lumberjack.Logger{
		Filename:   conf.File,
		MaxSize:    conf.MaxSizeMB,
		MaxBackups: conf.MaxBackups,
	}
	out := io.MultiWriter(os.Stderr, rotator)
	log.SetOutput(out)
	return out, rotator
}

func main() {
	log.Info("Starting nbfmtx")
	flags := kong.Parse(&cli)
	if cli.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	switch flags.Command() {
	case "probe":
		driver.LogAllDevices()
	case "tx":
		transmit()
	default:
		log.Info("Command not recognized")
	}
}

func transmit() {
	conf := loadConfig()
	if err := conf.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logOut, rotator := setupLogging(conf.Log)

	scale := tx.ScaleFactor(conf.Tx.Deviation, mpx.Amplitude)
	if conf.Tx.Deviation <= 0 {
		log.Warnf("Deviation is %v Hz, the carrier will not be modulated as expected", conf.Tx.Deviation)
	}
	carrier := rf.Hz(conf.Radio.Frequency)
	log.Infof("Transmitting on %v, deviation %v Hz (scale factor %g), occupied bandwidth about %v",
		carrier, conf.Tx.Deviation, scale,
		modulate.Bandwidth(rf.Hz(math.Abs(conf.Tx.Deviation)), rf.Hz(conf.Mpx.CutoffHz)))

	ignored, err := guard.ParseSignals(conf.Guard.IgnoreSignals)
	if err != nil {
		log.Fatalf("Invalid guard.ignore_signals: %v", err)
	}
	if conf.Tui.Enabled {
		ignored = append(ignored, guard.TerminalSignals()...)
	}
	g := guard.New(guard.WithIgnored(ignored...))

	// Steps run in the order they are added: the transmitter goes silent
	// before anything else is touched.
	h := &handles{}
	g.Add("radio", h.releaseRadio)
	g.Add("baseband source", h.closeSource)
	g.Add("monitor", h.stopUI)
	if cli.Profile {
		prof, err := os.Create("./cpu.pprof")
		if err != nil {
			log.Fatalf("Could not create profile: %v", err)
		}
		if err := pprof.StartCPUProfile(prof); err != nil {
			log.Fatalf("Could not start profile: %v", err)
		}
		g.Add("profile", func() error {
			pprof.StopCPUProfile()
			return prof.Close()
		})
	}
	if rotator != nil {
		g.Add("log file", rotator.Close)
	}

	g.Arm()
	defer g.Recover()

	generator, err := mpx.Open(conf.Tx.Audio, conf.Tx.BlockSize, conf.Mpx)
	if err != nil {
		g.Fatalf("Could not open baseband source: %v", err)
	}
	h.mu.Lock()
	h.generator = generator
	h.mu.Unlock()

	var (
		out        sink
		deviceRate float64
	)
	switch conf.Radio.Driver {
	case "dryrun":
		log.Info("Dry run, no hardware will be keyed")
		out = dryrun.New(conf.Radio.SampleRate, conf.Radio.Oversampling, conf.Tx.BlockSize)
		h.mu.Lock()
		h.out = out
		h.mu.Unlock()
		deviceRate = conf.Radio.SampleRate * float64(max(conf.Radio.Oversampling, 1))
	default:
		r := radio.New(conf.Radio, driver.Open, carrier, conf.Radio.SampleRate, conf.Radio.Oversampling, conf.Tx.BlockSize)
		out = r
		// published before Connect so a signal mid-connect still unkeys it
		h.mu.Lock()
		h.out = out
		h.mu.Unlock()
		if err := r.Connect(); err != nil {
			g.Fatalf("Could not connect to %s: %v", conf.Radio.Driver, err)
		}
		deviceRate = r.DeviceRate()
	}

	t := tx.New(generator, out, scale, conf.Tx.BlockSize, g)

	if !conf.Tui.Enabled {
		t.Run()
		return
	}

	ui := tui.New(t, tui.Info{
		Frequency:  carrier,
		Deviation:  conf.Tx.Deviation,
		Scale:      scale,
		Source:     conf.Tx.Audio,
		Driver:     conf.Radio.Driver,
		SampleRate: conf.Radio.SampleRate,
		DeviceRate: deviceRate,
		BlockSize:  conf.Tx.BlockSize,
	}, conf.Tui, logOut, g.Recover)
	h.mu.Lock()
	h.ui = ui
	h.mu.Unlock()

	go func() {
		defer g.Recover()
		t.Run()
	}()

	if err := ui.Run(); err != nil && !errors.Is(err, io.EOF) {
		g.Fatalf("Could not start UI: %v", err)
	}
	log.Info("Monitor closed, stopping the transmitter")
	g.Teardown(0)
}
