package router

import (
	"context"
	"time"

	"github.com/tphakala/eqroute/internal/audiocore"
	malgobackend "github.com/tphakala/eqroute/internal/audiocore/backends/malgo"
	"github.com/tphakala/eqroute/internal/audiocore/backends/offline"
	"github.com/tphakala/eqroute/internal/catalog"
	"github.com/tphakala/eqroute/internal/conf"
	"github.com/tphakala/eqroute/internal/errors"
	"github.com/tphakala/eqroute/internal/logger"
)

// catalogTTL is how long the native device list is cached between queries.
const catalogTTL = 5 * time.Second

// Backend bundles a device binding with its catalog.
type Backend struct {
	Name    string
	Devices audiocore.DeviceManager
	Catalog catalog.Catalog

	run     func(ctx context.Context) error
	release func() error
}

// NewBackend creates the device binding selected by settings.Audio.Backend.
func NewBackend(settings *conf.Settings, log logger.Logger) (*Backend, error) {
	audio := settings.Audio
	switch audio.Backend {
	case conf.BackendOffline:
		return NewOfflineBackend(offline.New(offline.Config{
			InputFile:  audio.Offline.InputFile,
			OutputFile: audio.Offline.OutputFile,
			ToneHz:     audio.Offline.ToneHz,
			ToneLevel:  audio.Offline.ToneLevel,
			SampleRate: float64(audio.SampleRate),
			BufferSize: audio.BufferSize,
			Realtime:   true,
		}, log)), nil

	case conf.BackendMalgo, "":
		m, err := malgobackend.New(malgobackend.Config{
			SampleRate: float64(audio.SampleRate),
			BufferSize: audio.BufferSize,
			CatalogTTL: catalogTTL,
		}, log)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Name:    conf.BackendMalgo,
			Devices: m,
			Catalog: m.Catalog(),
			release: m.Release,
		}, nil

	default:
		return nil, errors.Newf("unknown audio backend %q", audio.Backend).
			Component("router").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// NewOfflineBackend wraps an offline device; Run clocks it.
func NewOfflineBackend(d *offline.Device) *Backend {
	return &Backend{
		Name:    conf.BackendOffline,
		Devices: d,
		Catalog: d.Catalog(),
		run:     d.Run,
		release: d.Close,
	}
}

// Run drives the binding until ctx is done. Hardware bindings are clocked by
// the device, so Run only waits. A clocked binding may return early when its
// input is exhausted.
func (b *Backend) Run(ctx context.Context) error {
	if b.run == nil {
		<-ctx.Done()
		return nil
	}
	return b.run(ctx)
}

// Release frees the binding's platform resources.
func (b *Backend) Release() error {
	if b.release == nil {
		return nil
	}
	return b.release()
}
