package offline

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/eqroute/internal/errors"
)

// Source produces input blocks for the offline device.
type Source interface {
	// Read fills frames samples of every non-nil channel. It returns
	// io.EOF once no samples remain; a short final block is zero padded.
	Read(chans [][]float32, frames int) error
	// Close releases the source.
	Close() error
}

// Sink consumes output blocks from the offline device.
type Sink interface {
	// Write consumes frames samples of every channel.
	Write(chans [][]float32, frames int) error
	// Close flushes and releases the sink.
	Close() error
}

// ToneSource generates a sine wave on every channel.
type ToneSource struct {
	step  float64
	phase float64
	level float32
}

// NewToneSource creates a sine generator at freq Hz and peak level.
func NewToneSource(freq, level, sampleRate float64) *ToneSource {
	return &ToneSource{
		step:  2 * math.Pi * freq / sampleRate,
		level: float32(level),
	}
}

// Read implements Source. It never returns io.EOF.
func (t *ToneSource) Read(chans [][]float32, frames int) error {
	phase := t.phase
	for i := range frames {
		v := t.level * float32(math.Sin(phase))
		for _, ch := range chans {
			if ch != nil {
				ch[i] = v
			}
		}
		phase += t.step
	}
	t.phase = math.Mod(phase, 2*math.Pi)
	return nil
}

// Close implements Source.
func (t *ToneSource) Close() error { return nil }

// WAVSource plays a PCM WAV file once. The file is decoded on open.
type WAVSource struct {
	data       []int
	channels   int
	sampleRate int
	divisor    float32
	pos        int // frame index
}

// OpenWAVSource decodes path fully into memory.
func OpenWAVSource(path string) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentOffline).
			Category(errors.CategoryFileIO).
			Context("path", path).
			Context("operation", "open_wav").
			Build()
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.Newf("%s is not a valid WAV file", path).
			Component(ComponentOffline).
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}

	divisor, err := divisorFor(int(decoder.BitDepth))
	if err != nil {
		return nil, err
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentOffline).
			Category(errors.CategoryFileIO).
			Context("path", path).
			Context("operation", "decode_wav").
			Build()
	}

	return &WAVSource{
		data:       buf.Data,
		channels:   max(int(decoder.NumChans), 1),
		sampleRate: int(decoder.SampleRate),
		divisor:    divisor,
	}, nil
}

func divisorFor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 8, 16, 24, 32:
		return float32(int64(1) << (bitDepth - 1)), nil
	default:
		return 0, errors.Newf("unsupported bit depth: %d", bitDepth).
			Component(ComponentOffline).
			Category(errors.CategoryUnsupported).
			Context("bit_depth", bitDepth).
			Build()
	}
}

// Channels returns the channel count of the file.
func (w *WAVSource) Channels() int { return w.channels }

// SampleRate returns the sample rate of the file.
func (w *WAVSource) SampleRate() int { return w.sampleRate }

// Read implements Source. File channel c feeds channel c; extra channels are
// silent.
func (w *WAVSource) Read(chans [][]float32, frames int) error {
	total := len(w.data) / w.channels
	if w.pos >= total {
		for _, ch := range chans {
			clear(ch[:min(frames, len(ch))])
		}
		return io.EOF
	}

	n := min(frames, total-w.pos)
	for c, ch := range chans {
		if ch == nil {
			continue
		}
		if c >= w.channels {
			clear(ch[:frames])
			continue
		}
		for i := range n {
			ch[i] = float32(w.data[(w.pos+i)*w.channels+c]) / w.divisor
		}
		clear(ch[n:frames])
	}
	w.pos += n
	return nil
}

// Close implements Source.
func (w *WAVSource) Close() error {
	w.data = nil
	return nil
}

// NullSink discards output.
type NullSink struct{}

// Write implements Sink.
func (NullSink) Write([][]float32, int) error { return nil }

// Close implements Sink.
func (NullSink) Close() error { return nil }

// WAVSink writes 16-bit PCM WAV.
type WAVSink struct {
	path    string
	file    *os.File
	encoder *wav.Encoder
	buf     *audio.IntBuffer
}

const sinkBitDepth = 16

// CreateWAVSink prepares an encoder for blocks of up to maxFrames frames. The
// audio is written to a temporary file next to path and moved into place by
// Close, so reopening the same path while a previous sink is open is safe.
func CreateWAVSink(path string, sampleRate, channels, maxFrames int) (*WAVSink, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentOffline).
			Category(errors.CategoryFileIO).
			Context("path", path).
			Context("operation", "create_wav").
			Build()
	}

	format := &audio.Format{SampleRate: sampleRate, NumChannels: channels}
	return &WAVSink{
		path:    path,
		file:    f,
		encoder: wav.NewEncoder(f, sampleRate, sinkBitDepth, channels, 1),
		buf: &audio.IntBuffer{
			Format:         format,
			Data:           make([]int, 0, maxFrames*channels),
			SourceBitDepth: sinkBitDepth,
		},
	}, nil
}

// Write implements Sink. Samples outside [-1, 1] are clipped.
func (s *WAVSink) Write(chans [][]float32, frames int) error {
	channels := s.buf.Format.NumChannels
	data := s.buf.Data[:0]
	for i := range frames {
		for c := range channels {
			var v float32
			if c < len(chans) && chans[c] != nil {
				v = chans[c][i]
			}
			data = append(data, toPCM16(v))
		}
	}
	s.buf.Data = data
	if err := s.encoder.Write(s.buf); err != nil {
		return fmt.Errorf("failed to write to WAV encoder: %w", err)
	}
	return nil
}

func toPCM16(v float32) int {
	v = max(-1, min(1, v))
	return int(v * math.MaxInt16)
}

// Close finalizes the WAV header and moves the file to its final path.
func (s *WAVSink) Close() error {
	encErr := s.encoder.Close()
	fileErr := s.file.Close()
	if err := errors.Join(encErr, fileErr); err != nil {
		_ = os.Remove(s.file.Name())
		return err
	}
	if err := os.Rename(s.file.Name(), s.path); err != nil {
		_ = os.Remove(s.file.Name())
		return errors.New(err).
			Component(ComponentOffline).
			Category(errors.CategoryFileIO).
			Context("path", s.path).
			Context("operation", "finalize_wav").
			Build()
	}
	return nil
}
