// Package offline is a device binding that runs without audio hardware. Input
// comes from a tone generator, a WAV file, or a loopback of the output, and
// output goes to a WAV file, the loopback, or nowhere. Blocks are driven by
// Step for deterministic tests or by Run on a block-rate clock.
package offline

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/eqroute/internal/audiocore"
	"github.com/tphakala/eqroute/internal/catalog"
	"github.com/tphakala/eqroute/internal/errors"
	"github.com/tphakala/eqroute/internal/logger"
)

// ComponentOffline identifies errors from this package.
const ComponentOffline = "offline-device"

// Device names exposed by the offline catalog
const (
	ToneInputName  = "Tone Generator"
	FileInputName  = "WAV File Input"
	NullOutputName = "Null Output"
	FileOutputName = "WAV File Output"
	LoopbackName   = "Offline Loopback"
)

// Defaults applied when the setup leaves a parameter at zero
const (
	DefaultSampleRate = 48000.0
	DefaultBufferSize = 512
	DefaultToneHz     = 440.0
	DefaultToneLevel  = 0.5
)

const maxChannels = 2

// Config selects the offline inputs and outputs.
type Config struct {
	InputFile  string  // WAV file offered as FileInputName, empty to omit
	OutputFile string  // WAV file offered as FileOutputName, empty to omit
	ToneHz     float64 // tone generator frequency
	ToneLevel  float64 // tone generator peak level
	SampleRate float64 // stream rate used when the setup asks for the default
	BufferSize int     // block size used when the setup asks for the default
	Realtime   bool    // Run paces blocks at the stream rate
}

// Device implements audiocore.DeviceManager without hardware.
type Device struct {
	cfg     Config
	catalog *catalog.Static
	logger  logger.Logger
	slot    audiocore.CallbackSlot

	mu      sync.Mutex
	open    bool
	setup   audiocore.DeviceSetup
	params  audiocore.DeviceParams
	source  Source
	sink    Sink
	inBufs  [][]float32
	outBufs [][]float32
	loop    [][]float32 // last block written to the loopback output

	blocks atomic.Uint64
}

// New creates a closed offline device.
func New(cfg Config, log logger.Logger) *Device {
	if cfg.ToneHz <= 0 {
		cfg.ToneHz = DefaultToneHz
	}
	if cfg.ToneLevel <= 0 {
		cfg.ToneLevel = DefaultToneLevel
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if log == nil {
		log = logger.Global().Module("audio")
	}

	d := &Device{
		cfg:    cfg,
		logger: log.Module("offline"),
	}
	d.catalog = d.buildCatalog()
	return d
}

func (d *Device) buildCatalog() *catalog.Static {
	defaultIn, defaultOut := ToneInputName, NullOutputName
	if d.cfg.InputFile != "" {
		defaultIn = FileInputName
	}
	if d.cfg.OutputFile != "" {
		defaultOut = FileOutputName
	}

	devices := []catalog.DeviceInfo{
		{Name: ToneInputName, InputChannels: maxChannels, Transport: catalog.TransportBuiltIn},
		{Name: NullOutputName, OutputChannels: maxChannels, Transport: catalog.TransportBuiltIn},
		{Name: LoopbackName, InputChannels: maxChannels, OutputChannels: maxChannels, Transport: catalog.TransportVirtual},
	}
	if d.cfg.InputFile != "" {
		devices = append(devices, catalog.DeviceInfo{Name: FileInputName, ID: d.cfg.InputFile, InputChannels: maxChannels})
	}
	if d.cfg.OutputFile != "" {
		devices = append(devices, catalog.DeviceInfo{Name: FileOutputName, ID: d.cfg.OutputFile, OutputChannels: maxChannels})
	}
	for i := range devices {
		devices[i].SampleRate = d.cfg.SampleRate
		devices[i].DefaultInput = devices[i].Name == defaultIn
		devices[i].DefaultOutput = devices[i].Name == defaultOut
	}
	return catalog.NewStatic(devices...)
}

// Catalog returns the devices this binding can open.
func (d *Device) Catalog() *catalog.Static {
	return d.catalog
}

// OpenDefault implements audiocore.DeviceManager
func (d *Device) OpenDefault(inputChannels, outputChannels int) error {
	return d.ApplySetup(audiocore.DeviceSetup{
		InputChannels:  inputChannels,
		OutputChannels: outputChannels,
	})
}

// IsOpen implements audiocore.DeviceManager
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Setup implements audiocore.DeviceManager
func (d *Device) Setup() audiocore.DeviceSetup {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return audiocore.DeviceSetup{}
	}
	return d.setup
}

// Params implements audiocore.DeviceManager
func (d *Device) Params() audiocore.DeviceParams {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.params
}

// ApplySetup implements audiocore.DeviceManager. The new source and sink are
// opened before the current stream is touched, so a failure leaves it running.
func (d *Device) ApplySetup(setup audiocore.DeviceSetup) error {
	setup, err := d.resolve(setup)
	if err != nil {
		return err
	}

	source, err := d.openSource(setup)
	if err != nil {
		return err
	}
	sink, err := d.openSink(setup)
	if err != nil {
		_ = source.Close()
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.closeLocked(); err != nil {
		d.logger.Warn("error closing previous offline stream", logger.Error(err))
	}
	d.setup = setup
	d.source = source
	d.sink = sink
	d.inBufs = makeChannels(setup.InputChannels, setup.BufferSize)
	d.outBufs = makeChannels(setup.OutputChannels, setup.BufferSize)
	d.loop = nil
	if setup.InputDevice == LoopbackName || setup.OutputDevice == LoopbackName {
		d.loop = makeChannels(maxChannels, setup.BufferSize)
	}
	d.params = audiocore.DeviceParams{
		SampleRate:     setup.SampleRate,
		BufferSize:     setup.BufferSize,
		InputChannels:  setup.InputChannels,
		OutputChannels: setup.OutputChannels,
		InputDevice:    setup.InputDevice,
		OutputDevice:   setup.OutputDevice,
	}
	d.open = true

	d.logger.Info("offline device opened",
		logger.String("input_device", setup.InputDevice),
		logger.String("output_device", setup.OutputDevice),
		logger.Float64("sample_rate", setup.SampleRate),
		logger.Int("buffer_size", setup.BufferSize))

	if cb := d.slot.Get(); cb != nil {
		cb.DeviceAboutToStart(d.params)
	}
	return nil
}

// resolve fills in defaults and checks device names against the catalog.
func (d *Device) resolve(setup audiocore.DeviceSetup) (audiocore.DeviceSetup, error) {
	if setup.SampleRate <= 0 {
		setup.SampleRate = d.cfg.SampleRate
	}
	if setup.BufferSize <= 0 {
		setup.BufferSize = d.cfg.BufferSize
	}
	if setup.InputChannels < 0 || setup.InputChannels > maxChannels ||
		setup.OutputChannels < 0 || setup.OutputChannels > maxChannels {
		return setup, errors.Newf("channel request %d in / %d out exceeds %d", setup.InputChannels, setup.OutputChannels, maxChannels).
			Component(ComponentOffline).
			Category(errors.CategoryDeviceConfig).
			Build()
	}

	var err error
	if setup.InputChannels > 0 {
		if setup.InputDevice, err = d.resolveName(catalog.Input, setup.InputDevice); err != nil {
			return setup, err
		}
	} else {
		setup.InputDevice = ""
	}
	if setup.OutputChannels > 0 {
		if setup.OutputDevice, err = d.resolveName(catalog.Output, setup.OutputDevice); err != nil {
			return setup, err
		}
	} else {
		setup.OutputDevice = ""
	}
	return setup, nil
}

func (d *Device) resolveName(dir catalog.Direction, name string) (string, error) {
	if name == "" {
		info, err := d.catalog.SystemDefault(dir)
		if err != nil {
			return "", err
		}
		return info.Name, nil
	}
	devices, _ := d.catalog.ListDevices(dir)
	info, ok := catalog.FindDevice(devices, name)
	if !ok {
		return "", errors.Newf("no %s device named %q: %w", dir, name, catalog.ErrDeviceNotFound).
			Component(ComponentOffline).
			Category(errors.CategoryNotFound).
			Build()
	}
	return info.Name, nil
}

func (d *Device) openSource(setup audiocore.DeviceSetup) (Source, error) {
	switch setup.InputDevice {
	case FileInputName:
		src, err := OpenWAVSource(d.cfg.InputFile)
		if err != nil {
			return nil, err
		}
		if float64(src.SampleRate()) != setup.SampleRate {
			d.logger.Warn("input file sample rate differs from stream rate",
				logger.Int("file_rate", src.SampleRate()),
				logger.Float64("stream_rate", setup.SampleRate))
		}
		return src, nil
	case ToneInputName:
		return NewToneSource(d.cfg.ToneHz, d.cfg.ToneLevel, setup.SampleRate), nil
	default:
		// loopback input reads d.loop in Step
		return nil, nil //nolint:nilnil // no source for loopback or no input
	}
}

func (d *Device) openSink(setup audiocore.DeviceSetup) (Sink, error) {
	if setup.OutputDevice == FileOutputName {
		return CreateWAVSink(d.cfg.OutputFile, int(setup.SampleRate), setup.OutputChannels, setup.BufferSize)
	}
	return NullSink{}, nil
}

// AddCallback implements audiocore.DeviceManager
func (d *Device) AddCallback(cb audiocore.Callback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		cb.DeviceAboutToStart(d.params)
	}
	d.slot.Set(cb)
}

// RemoveCallback implements audiocore.DeviceManager
func (d *Device) RemoveCallback(cb audiocore.Callback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb == nil || d.slot.Get() != cb {
		return
	}
	d.slot.Clear()
	if d.open {
		cb.DeviceStopped()
	}
}

// Close implements audiocore.DeviceManager
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeLocked()
}

func (d *Device) closeLocked() error {
	if !d.open {
		return nil
	}
	if cb := d.slot.Get(); cb != nil {
		cb.DeviceStopped()
	}

	var errs []error
	if d.source != nil {
		errs = append(errs, d.source.Close())
	}
	if d.sink != nil {
		errs = append(errs, d.sink.Close())
	}
	d.source, d.sink = nil, nil
	d.open = false
	d.logger.Info("offline device closed", logger.Uint64("blocks", d.blocks.Load()))
	return errors.Join(errs...)
}

// Step runs one block through the installed callback. It returns io.EOF when
// the input source is exhausted; that block is still delivered, zero padded.
// Step on a closed device does nothing.
func (d *Device) Step() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil
	}

	frames := d.params.BufferSize
	var srcErr error
	switch {
	case d.source != nil:
		srcErr = d.source.Read(d.inBufs, frames)
	case d.loop != nil:
		for c, ch := range d.inBufs {
			copy(ch, d.loop[c%len(d.loop)])
		}
	}
	if srcErr != nil && !errors.Is(srcErr, io.EOF) {
		return srcErr
	}

	in := audiocore.NewChannelData(d.inBufs, frames)
	out := audiocore.NewChannelData(d.outBufs, frames)
	if !d.slot.Dispatch(in, out) {
		for _, ch := range d.outBufs {
			clear(ch)
		}
	}

	if d.setup.OutputDevice == LoopbackName {
		for c, ch := range d.loop {
			if c < len(d.outBufs) {
				copy(ch, d.outBufs[c])
			} else {
				clear(ch)
			}
		}
	}
	if err := d.sink.Write(d.outBufs, frames); err != nil {
		return err
	}
	d.blocks.Add(1)
	return srcErr
}

// Pump runs up to n blocks, stopping early at the end of the input.
func (d *Device) Pump(n int) error {
	for range n {
		if err := d.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Blocks returns the number of blocks delivered since creation.
func (d *Device) Blocks() uint64 {
	return d.blocks.Load()
}

// Output returns a copy of output channel ch from the most recent block.
func (d *Device) Output(ch int) []float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch < 0 || ch >= len(d.outBufs) {
		return nil
	}
	return append([]float32(nil), d.outBufs[ch]...)
}

// Run steps the device until ctx is done or the input is exhausted. With
// Realtime set blocks are paced at the stream rate; otherwise they run as
// fast as possible. A closed device is polled at the block interval.
func (d *Device) Run(ctx context.Context) error {
	interval := time.Duration(float64(d.cfg.BufferSize) / d.cfg.SampleRate * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if d.cfg.Realtime || !d.IsOpen() {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		if err := d.Step(); err != nil {
			if errors.Is(err, io.EOF) {
				d.logger.Info("offline input exhausted", logger.Uint64("blocks", d.Blocks()))
				return nil
			}
			return err
		}
	}
}

func makeChannels(n, frames int) [][]float32 {
	chans := make([][]float32, n)
	for i := range chans {
		chans[i] = make([]float32, frames)
	}
	return chans
}
