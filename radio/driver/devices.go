package driver

import (
	"github.com/charmbracelet/log"
	"hz.tools/sdr/hackrf"

	"github.com/pothosware/go-soapy-sdr/pkg/device"
	"github.com/pothosware/go-soapy-sdr/pkg/modules"
	"github.com/pothosware/go-soapy-sdr/pkg/sdrlogger"
	"github.com/pothosware/go-soapy-sdr/pkg/version"
)

// LogAllDevices lists the HackRFs on the bus and everything SoapySDR can
// see, with their TX capabilities.
func LogAllDevices() {
	logHackRFs()
	LogAllSoapySDRDevices()
}

func logHackRFs() {
	if err := hackrf.Init(); err != nil {
		log.Errorf("Could not init libhackrf: %v", err)
		return
	}
	defer hackrf.Exit()

	lib, release := hackrf.Version()
	log.Infof("Using libhackrf %s (%s)", lib, release)
	devices, err := hackrf.List()
	if err != nil {
		log.Errorf("Could not list HackRF devices: %v", err)
		return
	}
	log.Infof("Found %d HackRF devices", len(devices))
	for _, info := range devices {
		log.Infof("\t- %s %s, serial %s", info.Manufacturer, info.Product, info.Serial)
	}
}

func LogAllSoapySDRDevices() {
	log.Infof("Using SoapySDR versions: ABI: %s API: %s Lib: %s", version.GetABIVersion(), version.GetAPIVersion(), version.GetLibVersion())
	log.Infof("SoapySDR modules root path: %v", modules.GetRootPath())

	for _, module := range modules.ListModules() {
		moduleVersion := modules.GetModuleVersion(module)
		if len(moduleVersion) == 0 {
			moduleVersion = "[None]"
		}
		log.Infof("Found SoapySDR module: %v, version: %v", module, moduleVersion)
	}
	sdrlogger.SetLogLevel(sdrlogger.Error)

	devices := device.Enumerate(nil)
	log.Infof("Found %d SoapySDR devices", len(devices))
	for _, found := range devices {
		args := map[string]string{"driver": found["driver"]}
		dev, err := device.Make(args)
		if err != nil {
			log.Errorf("Could not open %s: %v", found["driver"], err)
			continue
		}
		log.Infof("Driver: %s", found["driver"])
		LogAvailSettings(dev)
		if err := dev.Unmake(); err != nil {
			log.Errorf("Could not close %s: %v", found["driver"], err)
		}
	}
}

func LogAvailSettings(dev *device.SDRDevice) {
	log.Infof("Current settings:")
	for _, setting := range dev.GetSettingInfo() {
		log.Infof("\t- %s: %v", setting.Key, setting.Value)
	}

	numChannels := dev.GetNumChannels(device.DirectionTX)
	log.Info("TX channel info:")
	for channel := uint(0); channel < numChannels; channel++ {
		log.Infof("Channel %d:", channel)
		log.Infof("\tAvailable sample rates:")
		for _, sampleRateRange := range dev.GetSampleRateRange(device.DirectionTX, channel) {
			log.Infof("\t\t- %v", sampleRateRange.ToString())
		}
		log.Infof("\tIQ Sample Types: %v", dev.GetStreamFormats(device.DirectionTX, channel))
	}
}
