// Package router assembles the routing engine from settings and runs it until
// shutdown: device binding, processing chain, level monitor and metrics.
package router

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/eqroute/internal/audiocore"
	"github.com/tphakala/eqroute/internal/audiocore/processors"
	"github.com/tphakala/eqroute/internal/conf"
	"github.com/tphakala/eqroute/internal/errors"
	"github.com/tphakala/eqroute/internal/logger"
	"github.com/tphakala/eqroute/internal/monitor"
	"github.com/tphakala/eqroute/internal/observability"
)

// GainStageID is the chain ID of the configured gain stage.
const GainStageID = "gain"

// Router owns one engine and the services around it.
type Router struct {
	settings *conf.Settings
	backend  *Backend
	engine   *audiocore.Engine
	gain     *processors.GainStage
	metrics  *observability.Metrics
	monitor  *monitor.LevelMonitor
	console  io.Writer
	log      logger.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithConsole sets where the meter line is printed when monitor.console is on.
func WithConsole(w io.Writer) Option {
	return func(r *Router) { r.console = w }
}

// WithMetrics uses m instead of creating metrics when telemetry is enabled.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// New builds an engine over backend configured from settings.
func New(settings *conf.Settings, backend *Backend, opts ...Option) (*Router, error) {
	r := &Router{
		settings: settings,
		backend:  backend,
		log:      logger.Global().Module("router"),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.metrics == nil && settings.Telemetry.Enabled {
		m, err := observability.NewMetrics()
		if err != nil {
			return nil, fmt.Errorf("error initializing metrics: %w", err)
		}
		r.metrics = m
	}

	audio := settings.Audio
	engineOpts := []audiocore.Option{
		audiocore.WithChannels(audio.InputChannels, audio.OutputChannels),
		audiocore.WithMeterPolicy(audiocore.ParseMeterPolicy(audio.MeterPolicy)),
	}
	if r.metrics != nil {
		engineOpts = append(engineOpts, audiocore.WithObserver(observability.NewEngineObserver(r.metrics.Engine)))
	}
	r.engine = audiocore.NewEngine(backend.Devices, backend.Catalog, engineOpts...)

	chain := r.engine.ProcessingChain()
	if audio.GainDB != 0 {
		gain, err := processors.NewGainStage(GainStageID, audio.GainDB)
		if err != nil {
			return nil, err
		}
		if err := chain.AddStage(gain); err != nil {
			return nil, err
		}
		r.gain = gain
	}
	chain.SetBypassed(audio.Bypass)

	monitorCfg := monitor.Config{
		Interval:  settings.Monitor.Interval,
		SampleCPU: true,
	}
	if settings.Monitor.Console {
		monitorCfg.Console = r.console
	}
	if r.metrics != nil {
		monitorCfg.Metrics = r.metrics.Engine
	}
	r.monitor = monitor.NewLevelMonitor(r.engine, monitorCfg)

	return r, nil
}

// Engine returns the routing engine.
func (r *Router) Engine() *audiocore.Engine {
	return r.engine
}

// Monitor returns the level monitor.
func (r *Router) Monitor() *monitor.LevelMonitor {
	return r.monitor
}

// Gain returns the configured gain stage, nil when the chain is empty.
func (r *Router) Gain() *processors.GainStage {
	return r.gain
}

// Metrics returns the metrics, nil when telemetry is off.
func (r *Router) Metrics() *observability.Metrics {
	return r.metrics
}

// Start initializes the engine, applies the configured devices and starts
// processing and level polling. On failure the engine is shut down again.
func (r *Router) Start() error {
	if err := r.engine.Initialize(); err != nil {
		return err
	}

	if name := r.settings.Audio.Input; name != "" {
		if err := r.engine.SetInputDevice(name); err != nil {
			r.engine.Shutdown()
			return err
		}
	}
	if name := r.settings.Audio.Output; name != "" {
		if err := r.engine.SetOutputDevice(name); err != nil {
			r.engine.Shutdown()
			return err
		}
	}

	if err := r.engine.StartAudioProcessing(); err != nil {
		r.engine.Shutdown()
		return err
	}

	r.log.Info("routing started",
		logger.String("backend", r.backend.Name),
		logger.String("input", r.engine.CurrentInputDevice()),
		logger.String("output", r.engine.CurrentOutputDevice()),
		logger.Float64("sample_rate", r.engine.SampleRate()),
		logger.Int("buffer_size", r.engine.BufferSize()),
		logger.Int("input_channels", r.engine.InputChannels()),
		logger.Int("output_channels", r.engine.OutputChannels()),
		logger.Bool("bypassed", r.engine.ProcessingChain().IsBypassed()),
		logger.String("session_id", r.engine.SessionID()))

	r.monitor.Start()
	return nil
}

// Stop stops polling, shuts the engine down and releases the binding.
func (r *Router) Stop() error {
	r.monitor.Stop()
	if r.settings.Monitor.Console && r.console != nil {
		fmt.Fprintln(r.console)
	}

	r.engine.Shutdown()
	if err := r.backend.Release(); err != nil {
		r.log.Warn("failed to release audio backend", logger.Error(err))
		return err
	}

	r.log.Info("routing stopped", logger.Uint64("clips", r.monitor.Clips()))
	return nil
}

// Run starts routing and blocks until ctx is done or the binding finishes,
// serving metrics meanwhile when telemetry is enabled.
func (r *Router) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		return r.backend.Run(gctx)
	})

	if r.settings.Telemetry.Enabled && r.metrics != nil {
		endpoint, err := observability.NewEndpoint(r.settings, r.metrics)
		if err != nil {
			cancel()
			_ = g.Wait()
			return errors.Join(err, r.Stop())
		}
		g.Go(func() error {
			return endpoint.Run(gctx)
		})
	}

	runErr := g.Wait()
	return errors.Join(runErr, r.Stop())
}
