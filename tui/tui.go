package tui

import (
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gdamore/tcell/v2"
	"github.com/jrwynneiii/nbfmtx/config"
	"github.com/jrwynneiii/nbfmtx/tx"
	"github.com/navidys/tvxwidgets"
	"github.com/rivo/tview"
	"gonum.org/v1/gonum/dsp/fourier"
)

const plotPoints = 256

var LogOut *tview.TextView

type UI struct {
	app       *tview.Application
	restore   io.Writer
	recoverFn func()

	stop     chan struct{}
	stopOnce sync.Once
}

// New lays out the monitor for t. Log output is sent to the UI while it runs
// and back to restore once it stops. recoverFn is deferred by the refresh
// goroutine so a panic there still tears the transmitter down.
func New(t *tx.Transmitter, info Info, tuiConf config.TuiConf, restore io.Writer, recoverFn func()) *UI {
	u := &UI{
		app:       tview.NewApplication(),
		restore:   restore,
		recoverFn: recoverFn,
		stop:      make(chan struct{}),
	}
	app := u.app

	LogOut = tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true)

	paramTable := tview.NewTable().SetContent(&ParamTableData{info: info})
	statusTable := tview.NewTable().SetContent(&StatusTableData{tx: t})

	signalPlot := tvxwidgets.NewPlot()
	signalPlot.SetLineColor([]tcell.Color{tcell.ColorLightSkyBlue})
	signalPlot.SetMarker(tvxwidgets.PlotMarkerBraille)

	deviationGauge := tvxwidgets.NewUtilModeGauge()
	deviationGauge.SetLabel("Peak Deviation:    ")
	deviationGauge.SetLabelColor(tcell.ColorLightSkyBlue)
	deviationGauge.SetWarnPercentage(tuiConf.DevWarnPct)
	deviationGauge.SetCritPercentage(tuiConf.DevCritPct)
	deviationGauge.SetEmptyColor(tcell.ColorBlack)
	deviationGauge.SetBorder(false)

	gaugeBox := tview.NewFlex()
	gaugeBox.SetDirection(tview.FlexRow)
	gaugeBox.AddItem(deviationGauge, 0, 1, false)
	gaugeBox.SetTitle("Modulation")
	gaugeBox.SetBorder(true)

	LogOut.SetChangedFunc(func() {
		LogOut.ScrollToEnd()
		app.Draw()
	})

	LogOut.SetBorder(true).SetTitle("Log Output")
	if tuiConf.EnableLogOutput {
		log.SetOutput(LogOut)
	}
	paramTable.SetSelectable(false, false).SetBorder(true).SetTitle("Transmitter")
	statusTable.SetSelectable(false, false).SetBorder(false)

	txStatus := tview.NewFlex().SetDirection(tview.FlexRow)
	txStatus.AddItem(tview.NewBox(), 0, 1, false)
	txStatus.AddItem(statusTable, 0, 1, false)
	txStatus.AddItem(tview.NewBox(), 0, 1, false)
	txStatus.SetBorder(true)
	txStatus.SetTitle("Status")

	signalPlot.SetBorder(true)
	if tuiConf.DoFFT {
		signalPlot.SetTitle("Deviation Spectrum (dB)")
	} else {
		signalPlot.SetTitle("Deviation (Hz)")
	}

	page := tview.NewFlex().SetDirection(tview.FlexColumn)

	leftCol := tview.NewFlex().SetDirection(tview.FlexRow)
	leftCol.AddItem(paramTable, 0, 3, false)
	leftCol.AddItem(txStatus, 0, 2, false)

	rightCol := tview.NewFlex().SetDirection(tview.FlexRow)
	rightCol.AddItem(gaugeBox, 3, 0, false)
	rightCol.AddItem(signalPlot, 0, 3, false)
	if tuiConf.EnableLogOutput {
		rightCol.AddItem(LogOut, 0, 2, false)
	}

	page.AddItem(leftCol, 0, 2, false)
	page.AddItem(rightCol, 0, 5, false)
	app.SetRoot(page, true).EnableMouse(true)

	t.EnableSnapshots()
	refresh := time.Duration(tuiConf.RefreshMs) * time.Millisecond
	if refresh <= 0 {
		refresh = 250 * time.Millisecond
	}

	block := make([]float64, t.BlockSize())
	var fft *fourier.FFT
	if tuiConf.DoFFT && len(block) > 0 {
		fft = fourier.NewFFT(len(block))
	}

	//Update stats
	ticker := time.NewTicker(refresh)
	go func() {
		defer ticker.Stop()
		u.watch(ticker.C, func() {
			deviationGauge.SetValue(deviationPercent(t.Peak(), info.Deviation))

			if n := t.Snapshot(block); n > 0 {
				var points []float64
				if fft != nil && n == len(block) {
					points = spectrum(fft, block, plotPoints)
				} else {
					points = decimate(block[:n], plotPoints)
				}
				signalPlot.SetData([][]float64{points})
			}

			app.Draw()
		})
	}()

	return u
}

// watch calls update on every tick until Stop.
func (u *UI) watch(tick <-chan time.Time, update func()) {
	if u.recoverFn != nil {
		defer u.recoverFn()
	}
	for {
		select {
		case <-u.stop:
			return
		case <-tick:
		}
		update()
	}
}

// Run blocks until the operator quits or Stop is called.
func (u *UI) Run() error {
	return u.app.Run()
}

// Stop closes the UI and hands logging back. It is safe to call more than
// once and from any goroutine.
func (u *UI) Stop() error {
	u.stopOnce.Do(func() {
		close(u.stop)
		u.app.Stop()
		if u.restore != nil {
			log.SetOutput(u.restore)
		}
	})
	return nil
}
