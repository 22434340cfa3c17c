// Package driver opens the SDRs nbfmtx can transmit with and lists the
// hardware attached to the host. Everything here needs the vendor C
// libraries.
package driver

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/nbfmtx/config"
	"hz.tools/sdr"
	"hz.tools/sdr/hackrf"
	"hz.tools/sdr/pluto"
)

var ErrUnknownDriver = errors.New("unknown radio driver")

// hackrfTx releases libhackrf along with the device.
type hackrfTx struct {
	*hackrf.Sdr
}

func (h hackrfTx) Close() error {
	return errors.Join(h.Sdr.Close(), hackrf.Exit())
}

// Open opens the transmitter named by conf.Driver:
//
//	hackrf  the first HackRF on the USB bus
//	pluto   a PlutoSDR at conf.Address (default ip:192.168.2.1)
func Open(conf config.RadioConf) (sdr.Transmitter, error) {
	switch conf.Driver {
	case "hackrf":
		if conf.Address != "" {
			log.Warnf("hackrf opens the first device found, ignoring radio.address %q", conf.Address)
		}
		if err := hackrf.Init(); err != nil {
			return nil, err
		}
		dev, err := hackrf.Open()
		if err != nil {
			return nil, errors.Join(err, hackrf.Exit())
		}
		return hackrfTx{dev}, nil
	case "pluto":
		endpoint := conf.Address
		if endpoint == "" {
			endpoint = "ip:192.168.2.1"
		}
		dev, err := pluto.Open(endpoint)
		if err != nil {
			return nil, err
		}
		return dev, nil
	}
	return nil, fmt.Errorf("%q: %w (supported: hackrf, pluto, dryrun)", conf.Driver, ErrUnknownDriver)
}
