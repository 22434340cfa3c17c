package tui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/jrwynneiii/nbfmtx/tx"
	"github.com/rivo/tview"
	"hz.tools/rf"
)

// Info is the static description of the running transmitter.
type Info struct {
	Frequency  rf.Hz
	Deviation  float64
	Scale      float64
	Source     string
	Driver     string
	SampleRate float64
	DeviceRate float64
	BlockSize  int
}

type ParamTableData struct {
	tview.TableContentReadOnly
	info Info
}

type StatusTableData struct {
	tview.TableContentReadOnly
	tx *tx.Transmitter
}

func (p *ParamTableData) rows() [][2]string {
	source := p.info.Source
	if source == "" {
		source = "(none)"
	}
	return [][2]string{
		{"Carrier:", fmt.Sprintf("%.4f MHz", float64(p.info.Frequency/rf.MHz))},
		{"Deviation:", fmt.Sprintf("%.0f Hz", p.info.Deviation)},
		{"Scale factor:", fmt.Sprintf("%g Hz/unit", p.info.Scale)},
		{"Source:", source},
		{"Driver:", p.info.Driver},
		{"Baseband rate:", fmt.Sprintf("%.0f S/s", p.info.SampleRate)},
		{"Device rate:", fmt.Sprintf("%.0f S/s", p.info.DeviceRate)},
		{"Block size:", fmt.Sprintf("%d", p.info.BlockSize)},
	}
}

func (p *ParamTableData) GetRowCount() int {
	return len(p.rows())
}

func (p *ParamTableData) GetColumnCount() int {
	return 2
}

func (p *ParamTableData) GetCell(row, column int) *tview.TableCell {
	rows := p.rows()
	if row < 0 || row >= len(rows) || column < 0 || column > 1 {
		return tview.NewTableCell("ERROR")
	}
	if column == 0 {
		return tview.NewTableCell("[lightskyblue]" + rows[row][0])
	}
	return tview.NewTableCell("[white]" + rows[row][1])
}

func (s *StatusTableData) GetRowCount() int {
	return 3
}

func (s *StatusTableData) GetColumnCount() int {
	return 2
}

func (s *StatusTableData) GetCell(row, column int) *tview.TableCell {
	switch row {
	case 0:
		if column == 0 {
			return tview.NewTableCell("State:")
		}
		return tview.NewTableCell(s.tx.State().String()).SetTextColor(stateColor(s.tx.State()))
	case 1:
		if column == 0 {
			return tview.NewTableCell("Blocks sent:")
		}
		return tview.NewTableCell(fmt.Sprintf("%d", s.tx.Blocks()))
	case 2:
		if column == 0 {
			return tview.NewTableCell("Peak deviation:")
		}
		return tview.NewTableCell(fmt.Sprintf("%.0f Hz", s.tx.Peak()))
	}
	return tview.NewTableCell("ERROR")
}

func stateColor(state tx.State) tcell.Color {
	switch state {
	case tx.Streaming:
		return tcell.ColorGreen
	case tx.Armed:
		return tcell.ColorYellow
	}
	return tcell.ColorRed
}
