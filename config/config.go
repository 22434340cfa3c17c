package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/knadh/koanf/parsers/hcl"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var ErrNoConfig = errors.New("config file not found")

type RadioConf struct {
	Driver       string  `koanf:"driver"`
	Address      string  `koanf:"address"`
	Gain         float64 `koanf:"gain"`
	Frequency    float64 `koanf:"frequency"`
	SampleRate   float64 `koanf:"sample_rate"`
	Oversampling int     `koanf:"oversampling"`
}

type MpxConf struct {
	InputRate  float64 `koanf:"input_rate"`
	OutputRate float64 `koanf:"output_rate"`
	CutoffHz   float64 `koanf:"cutoff_hz"`
	Transition float64 `koanf:"transition_width"`
	AudioLevel float64 `koanf:"audio_level"`
	CTCSSHz    float64 `koanf:"ctcss_hz"`
	CTCSSLevel float64 `koanf:"ctcss_level"`
	Loop       bool    `koanf:"loop"`
}

type TxConf struct {
	Deviation float64 `koanf:"deviation"`
	Audio     string  `koanf:"audio"`
	BlockSize int     `koanf:"block_size"`
}

type GuardConf struct {
	IgnoreSignals []string `koanf:"ignore_signals"`
}

type TuiConf struct {
	Enabled         bool    `koanf:"enabled"`
	RefreshMs       int     `koanf:"refresh_ms"`
	DevWarnPct      float64 `koanf:"deviation_warn_pct"`
	DevCritPct      float64 `koanf:"deviation_crit_pct"`
	DoFFT           bool    `koanf:"do_fft"`
	EnableLogOutput bool    `koanf:"enable_log_output"`
}

type LogConf struct {
	Level      string `koanf:"level"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
}

type Conf struct {
	Radio RadioConf `koanf:"radio"`
	Mpx   MpxConf   `koanf:"mpx"`
	Tx    TxConf    `koanf:"tx"`
	Guard GuardConf `koanf:"guard"`
	Tui   TuiConf   `koanf:"tui"`
	Log   LogConf   `koanf:"log"`
}

// Default returns the configuration used when neither a config file nor the
// environment provide a value: 144.5 MHz, 6.25 kHz deviation, 5000 sample
// blocks at 228 kHz.
func Default() Conf {
	return Conf{
		Radio: RadioConf{
			Driver:       "hackrf",
			Frequency:    144.5e6,
			SampleRate:   228000,
			Oversampling: 10,
		},
		Mpx: MpxConf{
			InputRate:  48000,
			OutputRate: 228000,
			CutoffHz:   3000,
			Transition: 500,
			AudioLevel: 0.9,
			CTCSSLevel: 0.1,
			Loop:       true,
		},
		Tx: TxConf{
			Deviation: 6250,
			BlockSize: 5000,
		},
		Tui: TuiConf{
			RefreshMs:       250,
			DevWarnPct:      90,
			DevCritPct:      100,
			EnableLogOutput: true,
		},
		Log: LogConf{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

var SearchPaths = []string{"/etc/nbfmtx/config.hcl", "~/.config/nbfmtx/config.hcl", "./config.hcl"}

// FindConfigPath returns the first existing path in paths.
func FindConfigPath(paths []string) (string, error) {
	for _, path := range paths {
		path = expandHome(path)
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			log.Infof("Found config file: %s", path)
			return path, nil
		}
	}
	return "", ErrNoConfig
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// Load reads the HCL file at path on top of the defaults. If path is empty
// or unreadable, NBFMTX_ environment variables are used instead.
func Load(path string) (Conf, error) {
	k := koanf.New(".")
	conf := Default()

	var fileErr error
	if path == "" {
		fileErr = ErrNoConfig
	} else {
		fileErr = k.Load(file.Provider(path), hcl.Parser(true))
	}
	if fileErr != nil {
		log.Errorf("Could not read config file: %v", fileErr)
		log.Error("Attempting to use environment variables")
		if err := k.Load(env.Provider(".", env.Opt{
			Prefix:        "NBFMTX_",
			TransformFunc: transformEnv,
		}), nil); err != nil {
			return conf, fmt.Errorf("loading environment: %w", err)
		}
	}

	if err := k.Unmarshal("", &conf); err != nil {
		return conf, fmt.Errorf("decoding config: %w", err)
	}
	return conf, nil
}

// transformEnv maps NBFMTX_RADIO_SAMPLE_RATE to radio.sample_rate. Only the
// first underscore separates the section from the key.
func transformEnv(k, v string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(k, "NBFMTX_"))
	key = strings.Replace(key, "_", ".", 1)
	log.Debugf("Found config env var: %s=%v", key, v)
	if key == "guard.ignore_signals" {
		return key, strings.Fields(strings.ReplaceAll(v, ",", " "))
	}
	return key, v
}

// Validate rejects values that cannot describe a working transmitter.
// Deviation is only checked for being a finite number.
func (c Conf) Validate() error {
	switch {
	case c.Tx.BlockSize <= 0:
		return fmt.Errorf("tx.block_size must be positive, got %d", c.Tx.BlockSize)
	case math.IsNaN(c.Tx.Deviation) || math.IsInf(c.Tx.Deviation, 0):
		return fmt.Errorf("tx.deviation must be finite, got %v", c.Tx.Deviation)
	case c.Radio.SampleRate <= 0:
		return fmt.Errorf("radio.sample_rate must be positive, got %v", c.Radio.SampleRate)
	case c.Radio.Oversampling < 1:
		return fmt.Errorf("radio.oversampling must be at least 1, got %d", c.Radio.Oversampling)
	case c.Radio.Frequency <= 0:
		return fmt.Errorf("radio.frequency must be positive, got %v", c.Radio.Frequency)
	case c.Mpx.OutputRate <= 0 || c.Mpx.InputRate <= 0:
		return fmt.Errorf("mpx rates must be positive, got input %v output %v", c.Mpx.InputRate, c.Mpx.OutputRate)
	case c.Mpx.OutputRate != c.Radio.SampleRate:
		return fmt.Errorf("mpx.output_rate (%v) must match radio.sample_rate (%v)", c.Mpx.OutputRate, c.Radio.SampleRate)
	}
	return nil
}
