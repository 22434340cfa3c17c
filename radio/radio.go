// Package radio keys an SDR and streams frequency deviation blocks to it. The
// device is reached through the hz.tools/sdr Transmitter interface; opening
// concrete hardware is left to an Opener so this package stays free of cgo.
package radio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/nbfmtx/config"
	"github.com/jrwynneiii/nbfmtx/modulate"
	"hz.tools/rf"
	"hz.tools/sdr"
)

var (
	ErrReleased     = errors.New("radio: transmitter released")
	ErrNotConnected = errors.New("radio: transmitter not connected")
)

// Opener opens the device named by conf.Driver.
type Opener func(conf config.RadioConf) (sdr.Transmitter, error)

// Transmitter streams frequency deviation blocks to an SDR. The device emits
// them at the carrier, paced by its own sample clock.
type Transmitter struct {
	Driver     string
	Frequency  rf.Hz
	SampleRate float64
	Gain       float64
	//Private:
	conf config.RadioConf
	open Opener
	mod  *modulate.FM

	// set when the device does not take complex64
	format sdr.SampleFormat
	conv   sdr.Samples

	// mu keeps Release from tearing the stream down under an in-flight write
	mu       sync.Mutex
	device   sdr.Transmitter
	writer   sdr.WriteCloser
	released atomic.Bool

	releaseOnce sync.Once
	releaseErr  error
}

// New describes a transmitter on carrier fed with deviation samples at
// sampleRate. The device runs at sampleRate*oversampling. bufferSize is the
// largest block Submit will see without reallocating.
func New(conf config.RadioConf, open Opener, carrier rf.Hz, sampleRate float64, oversampling int, bufferSize int) *Transmitter {
	return &Transmitter{
		Driver:     conf.Driver,
		Frequency:  carrier,
		SampleRate: sampleRate,
		Gain:       conf.Gain,
		conf:       conf,
		open:       open,
		mod:        modulate.NewFM(sampleRate, oversampling, bufferSize),
	}
}

// Connect opens the device, tunes it and starts transmitting. From here on
// the hardware is live and Release must be called.
func (r *Transmitter) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released.Load() {
		return ErrReleased
	}

	log.Debugf("Opening %s", r.Driver)
	dev, err := r.open(r.conf)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", r.Driver, err)
	}
	r.device = dev
	log.Debugf("Initialized device: %v", dev.HardwareInfo())

	rate := r.mod.DeviceRate()
	log.Debugf("Setting TX sample rate to %f", rate)
	if err := dev.SetSampleRate(uint(rate)); err != nil {
		return fmt.Errorf("could not set sample rate: %w", err)
	}

	log.Debugf("Setting TX frequency to %v", r.Frequency)
	if err := dev.SetCenterFrequency(r.Frequency); err != nil {
		return fmt.Errorf("could not set frequency: %w", err)
	}

	if err := r.setGain(dev); err != nil {
		return err
	}

	log.Debug("Starting TX...")
	if r.writer, err = dev.StartTx(); err != nil {
		return fmt.Errorf("could not start transmitting: %w", err)
	}

	r.format = r.writer.SampleFormat()
	if r.format != sdr.SampleFormatC64 {
		log.Debugf("Device takes %s samples, converting", r.format)
		if _, err := sdr.MakeSamples(r.format, 0); err != nil {
			return fmt.Errorf("unsupported device sample format %s: %w", r.format, err)
		}
	}
	return nil
}

// setGain applies the configured gain to the baseband TX stage, or the first
// TX stage if the device has no baseband one. Devices without gain control
// are left alone.
func (r *Transmitter) setGain(dev sdr.Transmitter) error {
	stages, err := dev.GetGainStages()
	if errors.Is(err, sdr.ErrNotSupported) {
		log.Debugf("%s has no gain control", r.Driver)
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not list gain stages: %w", err)
	}

	stage := stages.First(sdr.GainStageTypeTransmit | sdr.GainStageTypeBB)
	if stage == nil {
		stage = stages.First(sdr.GainStageTypeTransmit)
	}
	if stage == nil {
		log.Warnf("%s has no TX gain stage, ignoring radio.gain", r.Driver)
		return nil
	}

	log.Debugf("Setting %s gain to %f", stage, r.Gain)
	if err := dev.SetGain(stage, float32(r.Gain)); err != nil {
		return fmt.Errorf("could not set %s gain: %w", stage, err)
	}
	return nil
}

// DeviceRate is the IQ rate the device is configured with.
func (r *Transmitter) DeviceRate() float64 {
	return r.mod.DeviceRate()
}

// Submit modulates block and blocks until the device has accepted all of it.
func (r *Transmitter) Submit(block []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released.Load() {
		return ErrReleased
	}
	if r.writer == nil {
		return ErrNotConnected
	}

	var iq sdr.Samples = r.mod.Modulate(block)
	if r.format != sdr.SampleFormatC64 {
		if r.conv == nil || r.conv.Length() < iq.Length() {
			var err error
			if r.conv, err = sdr.MakeSamples(r.format, iq.Length()); err != nil {
				return err
			}
		}
		n, err := sdr.ConvertBuffer(r.conv, iq)
		if err != nil {
			return fmt.Errorf("could not convert samples: %w", err)
		}
		iq = r.conv.Slice(0, n)
	}

	n, err := r.writer.Write(iq)
	if err != nil {
		return fmt.Errorf("could not write to the TX stream: %w", err)
	}
	if n != iq.Length() {
		return sdr.ErrShortWrite
	}
	return nil
}

// Release stops transmitting and closes the device. Only the first call does
// anything; later calls return the first result. A write in flight is
// allowed to finish first.
func (r *Transmitter) Release() error {
	r.releaseOnce.Do(func() {
		r.released.Store(true)

		r.mu.Lock()
		defer r.mu.Unlock()
		r.releaseErr = errors.Join(r.stopTx(), r.closeDevice())
	})
	return r.releaseErr
}

func (r *Transmitter) stopTx() error {
	if r.writer == nil {
		return nil
	}
	log.Debug("Stopping TX...")
	err := r.writer.Close()
	r.writer = nil
	if err != nil {
		return fmt.Errorf("could not stop the TX stream: %w", err)
	}
	return nil
}

func (r *Transmitter) closeDevice() error {
	if r.device == nil {
		return nil
	}
	log.Debugf("Closing %s...", r.Driver)
	err := r.device.Close()
	r.device = nil
	if err != nil {
		return fmt.Errorf("could not close the device: %w", err)
	}
	return nil
}
