package main

var cli struct {
	Verbose bool   `help:"Prints debug output by default"`
	Profile bool   `help:"Output a pprof profile"`
	Config  string `help:"Path to an HCL config file" type:"path"`
	Probe   struct {
	} `cmd:"" help:"List the available radios and SoapySDR configuration"`
	Tx struct {
		Freq   float64 `help:"Carrier frequency in MHz"`
		Audio  string  `help:"Audio source: a WAV file, '-' for s16le PCM on stdin, or tone:<hz>"`
		Dev    float64 `help:"Peak deviation in Hz" default:"NaN"`
		Tui    bool    `help:"Show the transmitter monitor"`
		DryRun bool    `help:"Modulate without hardware, paced by the wall clock"`
	} `cmd:"" help:"Connects to the SDR and starts transmitting"`
}
