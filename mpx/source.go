package mpx

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var errNotSeekable = errors.New("source cannot be rewound")

// stdin is where "-" reads raw PCM from.
var stdin io.Reader = os.Stdin

// audioReader yields mono samples in [-1, 1].
type audioReader interface {
	Read(buf []float64) (int, error)
	Rate() float64
	Rewind() error
	Close() error
}

type wavReader struct {
	file     *os.File
	dec      *wav.Decoder
	buf      *audio.IntBuffer
	channels int
	scale    float64
	offset   float64
	rate     float64
}

func openWAV(path string) (*wavReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open audio file: %w", err)
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%s: %w: not a PCM WAV file", path, ErrUnsupportedSource)
	}

	format := dec.Format()
	channels := int(dec.NumChans)
	if channels < 1 {
		channels = 1
	}
	bits := int(dec.BitDepth)
	if bits < 8 {
		f.Close()
		return nil, fmt.Errorf("%s: %w: %d bit samples", path, ErrUnsupportedSource, bits)
	}

	r := &wavReader{
		file:     f,
		dec:      dec,
		channels: channels,
		scale:    float64(int64(1) << (bits - 1)),
		rate:     float64(dec.SampleRate),
		buf: &audio.IntBuffer{
			Format:         format,
			SourceBitDepth: bits,
		},
	}
	// 8 bit WAV is unsigned
	if bits == 8 {
		r.offset = 128
	}
	return r, nil
}

func (r *wavReader) Rate() float64 { return r.rate }

func (r *wavReader) Read(out []float64) (int, error) {
	want := len(out) * r.channels
	if cap(r.buf.Data) < want {
		r.buf.Data = make([]int, want)
	}
	r.buf.Data = r.buf.Data[:want]

	n, err := r.dec.PCMBuffer(r.buf)
	frames := n / r.channels
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < r.channels; c++ {
			sum += float64(r.buf.Data[i*r.channels+c]) - r.offset
		}
		out[i] = sum / float64(r.channels) / r.scale
	}

	// a file cut off mid sample ends like any other
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	if frames == 0 && err == nil {
		err = io.EOF
	}
	return frames, err
}

func (r *wavReader) Rewind() error {
	return r.dec.Rewind()
}

func (r *wavReader) Close() error {
	return r.file.Close()
}

// pcmReader reads signed 16 bit little endian mono samples.
type pcmReader struct {
	r    *bufio.Reader
	raw  []byte
	rate float64
}

func newPCMReader(r io.Reader, rate float64) *pcmReader {
	return &pcmReader{r: bufio.NewReaderSize(r, 1<<16), rate: rate}
}

func (p *pcmReader) Rate() float64 { return p.rate }

func (p *pcmReader) Read(out []float64) (int, error) {
	need := len(out) * 2
	if cap(p.raw) < need {
		p.raw = make([]byte, need)
	}
	raw := p.raw[:need]

	n, err := io.ReadFull(p.r, raw)
	frames := n / 2
	for i := 0; i < frames; i++ {
		out[i] = float64(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		if frames > 0 {
			return frames, nil
		}
		return 0, io.EOF
	}
	return frames, err
}

func (p *pcmReader) Rewind() error { return errNotSeekable }

func (p *pcmReader) Close() error { return nil }

type toneReader struct {
	freq  float64
	rate  float64
	phase float64
}

func (t *toneReader) Rate() float64 { return t.rate }

func (t *toneReader) Read(out []float64) (int, error) {
	step := 2 * math.Pi * t.freq / t.rate
	for i := range out {
		out[i] = math.Sin(t.phase)
		t.phase = math.Mod(t.phase+step, 2*math.Pi)
	}
	return len(out), nil
}

func (t *toneReader) Rewind() error { return nil }

func (t *toneReader) Close() error { return nil }
