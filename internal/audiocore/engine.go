package audiocore

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/eqroute/internal/catalog"
	"github.com/tphakala/eqroute/internal/errors"
	"github.com/tphakala/eqroute/internal/logger"
)

// Operation names reported to an Observer
const (
	OpInitialize      = "initialize"
	OpStart           = "start"
	OpStop            = "stop"
	OpShutdown        = "shutdown"
	OpSetInputDevice  = "set_input_device"
	OpSetOutputDevice = "set_output_device"
)

// Observer receives engine events from control goroutines. It is never called
// from ProcessBlock.
type Observer interface {
	// OperationCompleted is called after every control operation with its
	// duration and result
	OperationCompleted(op string, took time.Duration, err error)
	// StreamStarted is called with the parameters of each starting stream
	StreamStarted(params DeviceParams)
	// RunningChanged is called when processing starts or stops
	RunningChanged(running bool)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.logger = log
		}
	}
}

// WithObserver registers an observer for control events.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithChannels sets the channel counts requested when opening default devices.
func WithChannels(input, output int) Option {
	return func(e *Engine) {
		e.inputRequest = max(input, 0)
		e.outputRequest = max(output, 0)
	}
}

// WithMeterPolicy sets what happens to the level meters on stop.
func WithMeterPolicy(p MeterPolicy) Option {
	return func(e *Engine) { e.meterPolicy = p }
}

// Engine routes an input device through a ProcessingChain to an output device
// and meters both sides. Control methods may be called from any goroutine;
// they serialize on an internal lock that the audio callback never takes.
type Engine struct {
	mu          sync.Mutex
	devices     DeviceManager
	catalog     catalog.Catalog
	chain       *ProcessingChain
	logger      logger.Logger
	observer    Observer
	initialized bool
	sessionID   string

	inputRequest  int
	outputRequest int
	meterPolicy   MeterPolicy

	running        atomic.Bool
	sampleRate     atomic.Uint64 // float64 bits
	bufferSize     atomic.Int32
	inputChannels  atomic.Int32
	outputChannels atomic.Int32

	// owned by the audio callback once a stream has started
	buffer AudioBuffer

	inputMeters  MeterBank
	outputMeters MeterBank
}

// NewEngine creates a stopped engine over a device binding and catalog.
func NewEngine(devices DeviceManager, cat catalog.Catalog, opts ...Option) *Engine {
	e := &Engine{
		devices:       devices,
		catalog:       cat,
		inputRequest:  DefaultChannels,
		outputRequest: DefaultChannels,
		meterPolicy:   MeterPolicyHold,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Global().Module("audio")
	}
	e.chain = NewProcessingChain(e.logger)
	e.logger = e.logger.Module("engine")

	spec := e.chain.Spec()
	e.sampleRate.Store(math.Float64bits(spec.SampleRate))
	e.bufferSize.Store(int32(spec.BlockSize))
	e.buffer.SetSize(spec.Channels, spec.BlockSize)
	return e
}

// Initialize opens the system default devices with the requested channel
// counts. Calling it again before Shutdown fails with ErrAlreadyInitialized.
func (e *Engine) Initialize() (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.report(OpInitialize, time.Now(), &err)

	if e.initialized {
		return newError(ErrAlreadyInitialized, errors.CategoryState, OpInitialize, "initialize")
	}

	if !e.devices.IsOpen() {
		if openErr := e.devices.OpenDefault(e.inputRequest, e.outputRequest); openErr != nil {
			e.logger.Error("failed to open default audio devices",
				logger.Error(openErr),
				logger.Int("input_channels", e.inputRequest),
				logger.Int("output_channels", e.outputRequest))
			return newError(ErrDeviceUnavailable, errors.CategoryDeviceUnavailable, OpInitialize,
				"open default devices: %w", openErr)
		}
	}

	e.initialized = true
	setup := e.devices.Setup()
	e.logger.Info("audio engine initialized",
		logger.String("input_device", setup.InputDevice),
		logger.String("output_device", setup.OutputDevice))
	return nil
}

// Shutdown stops processing and closes the device connection. It is idempotent.
func (e *Engine) Shutdown() {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()
	if err := e.devices.Close(); err != nil {
		e.logger.Warn("error closing audio device", logger.Error(err))
	}
	if e.initialized {
		e.logger.Info("audio engine shut down")
	}
	e.initialized = false
	e.report(OpShutdown, start, nil)
}

// StartAudioProcessing registers the engine with the device, opening the
// default devices if none is open. Starting a running engine is a no-op.
func (e *Engine) StartAudioProcessing() (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running.Load() {
		return nil
	}
	defer e.report(OpStart, time.Now(), &err)

	e.devices.AddCallback(e)
	if !e.devices.IsOpen() {
		if openErr := e.devices.OpenDefault(e.inputRequest, e.outputRequest); openErr != nil {
			e.devices.RemoveCallback(e)
			e.logger.Error("failed to start audio processing", logger.Error(openErr))
			return newError(ErrDeviceUnavailable, errors.CategoryDeviceUnavailable, OpStart,
				"open default devices: %w", openErr)
		}
	}

	e.sessionID = uuid.NewString()
	e.running.Store(true)
	if e.observer != nil {
		e.observer.RunningChanged(true)
	}
	e.logger.Info("audio processing started",
		logger.String("session_id", e.sessionID),
		logger.Float64("sample_rate", e.SampleRate()),
		logger.Int("buffer_size", e.BufferSize()))
	return nil
}

// StopAudioProcessing deregisters the engine from the device. When it returns
// no further audio callback runs on this engine. Stopping a stopped engine is
// a no-op.
func (e *Engine) StopAudioProcessing() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if !e.running.Load() {
		return
	}
	start := time.Now()

	e.devices.RemoveCallback(e)
	e.running.Store(false)
	if e.meterPolicy == MeterPolicyReset {
		e.inputMeters.Reset()
		e.outputMeters.Reset()
	}
	if e.observer != nil {
		e.observer.RunningChanged(false)
	}
	e.logger.Info("audio processing stopped", logger.String("session_id", e.sessionID))
	e.report(OpStop, start, nil)
}

// IsRunning reports whether the engine is registered with a device.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// SessionID identifies the current or last processing session.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// AvailableInputDevices returns the names of the devices that can capture.
// Catalog failures yield an empty list.
func (e *Engine) AvailableInputDevices() []string {
	return e.deviceNames(catalog.Input)
}

// AvailableOutputDevices returns the names of the devices that can play.
// Catalog failures yield an empty list.
func (e *Engine) AvailableOutputDevices() []string {
	return e.deviceNames(catalog.Output)
}

func (e *Engine) deviceNames(dir catalog.Direction) []string {
	devices, err := e.catalog.ListDevices(dir)
	if err != nil {
		e.logger.Warn("failed to list audio devices",
			logger.String("direction", dir.String()),
			logger.Error(err))
		return []string{}
	}
	return catalog.Names(devices)
}

// SetInputDevice switches the input to the named device, keeping the output.
// On failure the previous selection stays in effect. It may be called while
// running; the binding restarts the stream, so stop first for a clean switch.
func (e *Engine) SetInputDevice(name string) error {
	return e.setDevice(catalog.Input, name)
}

// SetOutputDevice switches the output to the named device, keeping the input.
// On failure the previous selection stays in effect.
func (e *Engine) SetOutputDevice(name string) error {
	return e.setDevice(catalog.Output, name)
}

func (e *Engine) setDevice(dir catalog.Direction, name string) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	op := OpSetInputDevice
	if dir == catalog.Output {
		op = OpSetOutputDevice
	}
	defer e.report(op, time.Now(), &err)

	devices, listErr := e.catalog.ListDevices(dir)
	if listErr != nil {
		return newError(ErrDeviceNotFound, errors.CategoryDeviceCatalog, op,
			"list %s devices: %w", dir, listErr)
	}
	info, ok := catalog.FindDevice(devices, name)
	if !ok {
		e.logger.Warn("audio device not found",
			logger.String("direction", dir.String()),
			logger.String("device", name))
		return newError(ErrDeviceNotFound, errors.CategoryNotFound, op, "%s device %q", dir, name)
	}

	prev := e.devices.Setup()
	wasOpen := e.devices.IsOpen()
	next := prev
	if !wasOpen {
		next.InputChannels = e.inputRequest
		next.OutputChannels = e.outputRequest
	}
	if dir == catalog.Input {
		next.InputDevice = info.Name
		if next.InputChannels == 0 {
			next.InputChannels = e.inputRequest
		}
	} else {
		next.OutputDevice = info.Name
		if next.OutputChannels == 0 {
			next.OutputChannels = e.outputRequest
		}
	}

	if applyErr := e.devices.ApplySetup(next); applyErr != nil {
		e.logger.Error("device reconfiguration rejected",
			logger.String("direction", dir.String()),
			logger.String("device", info.Name),
			logger.Error(applyErr))
		if wasOpen && !e.devices.IsOpen() {
			if restoreErr := e.devices.ApplySetup(prev); restoreErr != nil {
				e.logger.Error("failed to restore previous device setup", logger.Error(restoreErr))
			}
		}
		return newError(ErrReconfigurationRejected, errors.CategoryDeviceConfig, op,
			"%s device %q: %w", dir, info.Name, applyErr)
	}

	e.logger.Info("audio device changed",
		logger.String("direction", dir.String()),
		logger.String("device", info.Name),
		logger.Bool("virtual", info.IsVirtual))
	return nil
}

// CurrentInputDevice returns the name of the open input device, or "".
func (e *Engine) CurrentInputDevice() string {
	if !e.devices.IsOpen() {
		return ""
	}
	return e.devices.Setup().InputDevice
}

// CurrentOutputDevice returns the name of the open output device, or "".
func (e *Engine) CurrentOutputDevice() string {
	if !e.devices.IsOpen() {
		return ""
	}
	return e.devices.Setup().OutputDevice
}

// InputLevel returns the peak level of input channel 0 or 1 in the most
// recent block, clamped to [0, 1]. Other channels return 0. A channel the
// device did not deliver in a block (nil or absent) keeps its previous level,
// while its output is silenced.
func (e *Engine) InputLevel(ch int) float32 {
	return e.inputMeters.Level(ch)
}

// OutputLevel returns the peak level of output channel 0 or 1 in the most
// recent block, clamped to [0, 1]. Other channels return 0.
func (e *Engine) OutputLevel(ch int) float32 {
	return e.outputMeters.Level(ch)
}

// SampleRate returns the rate of the current or last stream.
func (e *Engine) SampleRate() float64 {
	return math.Float64frombits(e.sampleRate.Load())
}

// BufferSize returns the block size of the current or last stream.
func (e *Engine) BufferSize() int {
	return int(e.bufferSize.Load())
}

// InputChannels returns the input channel count of the current or last stream.
func (e *Engine) InputChannels() int {
	return int(e.inputChannels.Load())
}

// OutputChannels returns the output channel count of the current or last stream.
func (e *Engine) OutputChannels() int {
	return int(e.outputChannels.Load())
}

// ProcessingChain returns the chain applied between input and output.
func (e *Engine) ProcessingChain() *ProcessingChain {
	return e.chain
}

// DeviceAboutToStart implements Callback. It prepares the chain and sizes the
// working buffer; this is the only place the buffer grows.
func (e *Engine) DeviceAboutToStart(params DeviceParams) {
	blockSize := params.BufferSize
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	e.sampleRate.Store(math.Float64bits(params.SampleRate))
	e.bufferSize.Store(int32(blockSize))
	e.inputChannels.Store(int32(params.InputChannels))
	e.outputChannels.Store(int32(params.OutputChannels))

	e.chain.Prepare(ProcessSpec{
		SampleRate: params.SampleRate,
		BlockSize:  blockSize,
		Channels:   max(params.InputChannels, params.OutputChannels),
	})

	if e.buffer.ChannelCapacity() < params.OutputChannels || e.buffer.FrameCapacity() < blockSize {
		e.buffer.SetSize(params.OutputChannels, blockSize)
	} else {
		e.buffer.Fit(params.OutputChannels, blockSize)
		e.buffer.Clear()
	}

	e.logger.Debug("audio device about to start",
		logger.String("input_device", params.InputDevice),
		logger.String("output_device", params.OutputDevice),
		logger.Float64("sample_rate", params.SampleRate),
		logger.Int("buffer_size", blockSize),
		logger.Int("input_channels", params.InputChannels),
		logger.Int("output_channels", params.OutputChannels))

	if e.observer != nil {
		e.observer.StreamStarted(params)
	}
}

// ProcessBlock implements Callback. Input channel c feeds output channel c;
// output channels without an input are silent. The block runs through the
// chain and both sides are metered. It does not allocate, lock, or log.
func (e *Engine) ProcessBlock(in, out ChannelData) {
	buf := &e.buffer
	numOut := out.NumChannels()
	chans := min(numOut, buf.ChannelCapacity())
	frames := min(out.Frames(), buf.FrameCapacity())
	buf.Fit(chans, frames)

	for c := range chans {
		dst := buf.Channel(c)
		src := in.Channel(c)
		n := copy(dst, src)
		clear(dst[n:])
	}

	e.chain.Process(buf)

	for c := range numOut {
		dst := out.Channel(c)
		if dst == nil {
			continue
		}
		n := 0
		if c < chans {
			n = copy(dst, buf.Channel(c))
		}
		clear(dst[n:])
	}

	for c := range min(in.NumChannels(), MeteredChannels) {
		if src := in.Channel(c); src != nil {
			e.inputMeters[c].Store(PeakLevel(src))
		}
	}
	for c := range min(numOut, MeteredChannels) {
		if dst := out.Channel(c); dst != nil {
			e.outputMeters[c].Store(PeakLevel(dst))
		}
	}
}

// DeviceStopped implements Callback. It resets the chain; the buffer is kept
// for the next stream.
func (e *Engine) DeviceStopped() {
	e.chain.Reset()
}

// report notifies the observer; errp may be nil.
func (e *Engine) report(op string, start time.Time, errp *error) {
	if e.observer == nil {
		return
	}
	var err error
	if errp != nil {
		err = *errp
	}
	e.observer.OperationCompleted(op, time.Since(start), err)
}
