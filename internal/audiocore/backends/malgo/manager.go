// Package malgo binds the audio engine to platform audio devices through
// miniaudio (gen2brain/malgo): ALSA on Linux, WASAPI on Windows and Core Audio
// on macOS.
package malgo

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/eqroute/internal/audiocore"
	"github.com/tphakala/eqroute/internal/catalog"
	"github.com/tphakala/eqroute/internal/errors"
	"github.com/tphakala/eqroute/internal/logger"
)

// ComponentMalgo identifies errors from this package.
const ComponentMalgo = "malgo-device"

// DefaultBufferSize is the period size requested when the setup leaves it at zero.
const DefaultBufferSize = 512

// Config holds the stream preferences applied when a setup leaves them at zero.
type Config struct {
	SampleRate float64       // 0 lets the device choose
	BufferSize int           // frames per period, 0 for DefaultBufferSize
	CatalogTTL time.Duration // enumeration cache lifetime
}

// Manager implements audiocore.DeviceManager over one malgo duplex device.
type Manager struct {
	cfg     Config
	ctx     *malgo.AllocatedContext
	catalog *Catalog
	logger  logger.Logger
	slot    audiocore.CallbackSlot

	mu         sync.Mutex
	device     *malgo.Device
	stream     *stream
	setup      audiocore.DeviceSetup
	params     audiocore.DeviceParams
	captureID  *malgo.DeviceID
	playbackID *malgo.DeviceID
	generation uint64
	stopping   atomic.Bool
}

// stream holds the planar buffers one open device converts through.
type stream struct {
	in          [][]float32
	out         [][]float32
	inChannels  int
	outChannels int
	maxFrames   int
}

// New initializes a malgo context for the platform backend.
func New(cfg Config, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.Global().Module("audio")
	}
	log = log.Module("malgo")
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}

	backend, err := backendForPlatform()
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, func(message string) {
		log.Debug("malgo", logger.String("message", message))
	})
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentMalgo).
			Category(errors.CategoryDeviceUnavailable).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}

	m := &Manager{
		cfg:    cfg,
		ctx:    ctx,
		logger: log,
	}
	m.catalog = newCatalog(&contextEnumerator{ctx: ctx, log: log}, cfg.CatalogTTL, log)
	return m, nil
}

// backendForPlatform returns the malgo backend for the current platform
func backendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("unsupported operating system %s: %w", runtime.GOOS, catalog.ErrUnsupported).
			Component(ComponentMalgo).
			Category(errors.CategoryUnsupported).
			Context("os", runtime.GOOS).
			Build()
	}
}

// Catalog returns the device catalog sharing this manager's context.
func (m *Manager) Catalog() *Catalog {
	return m.catalog
}

// Release closes the device and frees the malgo context. The manager cannot
// be used afterwards.
func (m *Manager) Release() error {
	closeErr := m.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return closeErr
	}
	uninitErr := m.ctx.Uninit()
	m.ctx.Free()
	m.ctx = nil
	return errors.Join(closeErr, uninitErr)
}

// OpenDefault implements audiocore.DeviceManager
func (m *Manager) OpenDefault(inputChannels, outputChannels int) error {
	return m.ApplySetup(audiocore.DeviceSetup{
		InputChannels:  inputChannels,
		OutputChannels: outputChannels,
	})
}

// IsOpen implements audiocore.DeviceManager
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.device != nil
}

// Setup implements audiocore.DeviceManager
func (m *Manager) Setup() audiocore.DeviceSetup {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return audiocore.DeviceSetup{}
	}
	return m.setup
}

// Params implements audiocore.DeviceManager
func (m *Manager) Params() audiocore.DeviceParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params
}

// ApplySetup implements audiocore.DeviceManager. The running device is closed
// before the new one opens; if the new setup fails the previous one is
// reopened.
func (m *Manager) ApplySetup(setup audiocore.DeviceSetup) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil {
		return errors.Newf("malgo context released").
			Component(ComponentMalgo).
			Category(errors.CategoryState).
			Build()
	}

	prev, wasOpen := m.setup, m.device != nil
	m.closeLocked()

	err := m.openLocked(setup)
	if err == nil {
		return nil
	}
	if wasOpen {
		if restoreErr := m.openLocked(prev); restoreErr != nil {
			m.logger.Error("failed to restore previous device setup",
				logger.String("input_device", prev.InputDevice),
				logger.String("output_device", prev.OutputDevice),
				logger.Error(restoreErr))
		}
	}
	return err
}

func (m *Manager) openLocked(setup audiocore.DeviceSetup) error {
	kind, err := deviceKind(setup)
	if err != nil {
		return err
	}
	if setup.BufferSize <= 0 {
		setup.BufferSize = m.cfg.BufferSize
	}
	if setup.SampleRate <= 0 {
		setup.SampleRate = m.cfg.SampleRate
	}

	cfg := malgo.DefaultDeviceConfig(kind)
	cfg.SampleRate = uint32(setup.SampleRate)
	cfg.PeriodSizeInFrames = uint32(setup.BufferSize)
	cfg.Alsa.NoMMap = 1

	m.captureID, m.playbackID = nil, nil
	if setup.InputChannels > 0 {
		e, err := m.catalog.lookup(catalog.Input, setup.InputDevice)
		if err != nil {
			return err
		}
		setup.InputDevice = e.info.Name
		m.captureID = e.captureID
		cfg.Capture.Format = malgo.FormatF32
		cfg.Capture.Channels = uint32(setup.InputChannels)
		cfg.Capture.DeviceID = m.captureID.Pointer()
	} else {
		setup.InputDevice = ""
	}
	if setup.OutputChannels > 0 {
		e, err := m.catalog.lookup(catalog.Output, setup.OutputDevice)
		if err != nil {
			return err
		}
		setup.OutputDevice = e.info.Name
		m.playbackID = e.playbackID
		cfg.Playback.Format = malgo.FormatF32
		cfg.Playback.Channels = uint32(setup.OutputChannels)
		cfg.Playback.DeviceID = m.playbackID.Pointer()
	} else {
		setup.OutputDevice = ""
	}

	st := &stream{
		inChannels:  setup.InputChannels,
		outChannels: setup.OutputChannels,
		maxFrames:   setup.BufferSize,
	}
	st.in = makeChannels(st.inChannels, st.maxFrames)
	st.out = makeChannels(st.outChannels, st.maxFrames)

	m.generation++
	gen := m.generation
	device, err := malgo.InitDevice(m.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			st.process(&m.slot, pOutput, pInput, frameCount)
		},
		Stop: func() {
			if !m.stopping.Load() {
				go m.deviceLost(gen)
			}
		},
	})
	if err != nil {
		return errors.New(err).
			Component(ComponentMalgo).
			Category(errors.CategoryDeviceUnavailable).
			Context("operation", "init_device").
			Context("input_device", setup.InputDevice).
			Context("output_device", setup.OutputDevice).
			Build()
	}

	setup.SampleRate = float64(device.SampleRate())
	m.device = device
	m.stream = st
	m.setup = setup
	m.params = audiocore.DeviceParams{
		SampleRate:     setup.SampleRate,
		BufferSize:     setup.BufferSize,
		InputChannels:  setup.InputChannels,
		OutputChannels: setup.OutputChannels,
		InputDevice:    setup.InputDevice,
		OutputDevice:   setup.OutputDevice,
	}

	if cb := m.slot.Get(); cb != nil {
		cb.DeviceAboutToStart(m.params)
	}
	if err := device.Start(); err != nil {
		m.closeLocked()
		return errors.New(err).
			Component(ComponentMalgo).
			Category(errors.CategoryDeviceUnavailable).
			Context("operation", "start_device").
			Build()
	}

	m.logger.Info("audio device opened",
		logger.String("input_device", setup.InputDevice),
		logger.String("output_device", setup.OutputDevice),
		logger.Float64("sample_rate", setup.SampleRate),
		logger.Int("buffer_size", setup.BufferSize),
		logger.Int("input_channels", setup.InputChannels),
		logger.Int("output_channels", setup.OutputChannels),
		logger.String("format", formatName(malgo.FormatF32)))
	return nil
}

func deviceKind(setup audiocore.DeviceSetup) (malgo.DeviceType, error) {
	switch {
	case setup.InputChannels > 0 && setup.OutputChannels > 0:
		return malgo.Duplex, nil
	case setup.InputChannels > 0:
		return malgo.Capture, nil
	case setup.OutputChannels > 0:
		return malgo.Playback, nil
	default:
		return malgo.Duplex, errors.Newf("setup requests no input or output channels").
			Component(ComponentMalgo).
			Category(errors.CategoryDeviceConfig).
			Build()
	}
}

// deviceLost handles a device that stopped without being asked to.
func (m *Manager) deviceLost(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation || m.device == nil {
		return
	}
	m.logger.Warn("audio device stopped unexpectedly",
		logger.String("input_device", m.setup.InputDevice),
		logger.String("output_device", m.setup.OutputDevice))
	m.closeLocked()
	m.catalog.Refresh()
}

// AddCallback implements audiocore.DeviceManager
func (m *Manager) AddCallback(cb audiocore.Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		cb.DeviceAboutToStart(m.params)
	}
	m.slot.Set(cb)
}

// RemoveCallback implements audiocore.DeviceManager
func (m *Manager) RemoveCallback(cb audiocore.Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cb == nil || m.slot.Get() != cb {
		return
	}
	m.slot.Clear()
	if m.device != nil {
		cb.DeviceStopped()
	}
}

// Close implements audiocore.DeviceManager
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
	return nil
}

func (m *Manager) closeLocked() {
	if m.device == nil {
		return
	}
	m.stopping.Store(true)
	if err := m.device.Stop(); err != nil {
		m.logger.Warn("failed to stop audio device", logger.Error(err))
	}
	if cb := m.slot.Get(); cb != nil {
		cb.DeviceStopped()
	}
	m.device.Uninit()
	m.stopping.Store(false)

	m.device = nil
	m.stream = nil
	m.logger.Info("audio device closed",
		logger.String("input_device", m.setup.InputDevice),
		logger.String("output_device", m.setup.OutputDevice))
}

// process converts one malgo period through the installed callback. Periods
// longer than the prepared block are split.
func (s *stream) process(slot *audiocore.CallbackSlot, pOutput, pInput []byte, frameCount uint32) {
	frames := int(frameCount)
	for offset := 0; offset < frames; offset += s.maxFrames {
		n := min(s.maxFrames, frames-offset)
		deinterleaveF32(pInput, s.in, s.inChannels, offset, n)

		in := audiocore.NewChannelData(s.in, n)
		out := audiocore.NewChannelData(s.out, n)
		if !slot.Dispatch(in, out) {
			for _, ch := range s.out {
				clear(ch[:n])
			}
		}
		interleaveF32(s.out, pOutput, s.outChannels, offset, n)
	}
}

func makeChannels(n, frames int) [][]float32 {
	chans := make([][]float32, n)
	for i := range chans {
		chans[i] = make([]float32, frames)
	}
	return chans
}
