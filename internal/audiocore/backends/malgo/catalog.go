package malgo

import (
	"encoding/hex"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/eqroute/internal/catalog"
	"github.com/tphakala/eqroute/internal/errors"
	"github.com/tphakala/eqroute/internal/logger"
)

// DefaultCatalogTTL is how long an enumeration result is reused.
const DefaultCatalogTTL = 2 * time.Second

const devicesCacheKey = "devices"

// fallbackChannels is assumed when the backend reports no native formats.
const fallbackChannels = 2

// rawDevice is one capture or playback endpoint as the backend reports it.
type rawDevice struct {
	id         malgo.DeviceID
	idString   string
	name       string
	isDefault  bool
	channels   int
	sampleRate float64
}

// enumerator lists endpoints of one kind.
type enumerator interface {
	Devices(kind malgo.DeviceType) ([]rawDevice, error)
}

// entry is a catalog device with the backend IDs needed to open it.
type entry struct {
	info       catalog.DeviceInfo
	captureID  *malgo.DeviceID
	playbackID *malgo.DeviceID
}

// Catalog implements catalog.Catalog over a malgo context. Capture and
// playback endpoints with the same name are merged into one device.
type Catalog struct {
	enum   enumerator
	cache  *cache.Cache
	logger logger.Logger
}

func newCatalog(enum enumerator, ttl time.Duration, log logger.Logger) *Catalog {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	// no janitor: expired entries are dropped on read
	return &Catalog{
		enum:   enum,
		cache:  cache.New(ttl, 0),
		logger: log.Module("catalog"),
	}
}

// Refresh drops the cached enumeration so the next call queries the backend.
func (c *Catalog) Refresh() {
	c.cache.Flush()
}

func (c *Catalog) entries() ([]entry, error) {
	if cached, ok := c.cache.Get(devicesCacheKey); ok {
		if entries, ok := cached.([]entry); ok {
			return entries, nil
		}
	}

	start := time.Now()
	capture, err := c.enum.Devices(malgo.Capture)
	if err != nil {
		return nil, enumerationError(err, malgo.Capture)
	}
	playback, err := c.enum.Devices(malgo.Playback)
	if err != nil {
		return nil, enumerationError(err, malgo.Playback)
	}

	entries := mergeDevices(capture, playback)
	c.cache.SetDefault(devicesCacheKey, entries)
	c.logger.Debug("audio devices enumerated",
		logger.Int("capture", len(capture)),
		logger.Int("playback", len(playback)),
		logger.Int("devices", len(entries)),
		logger.Duration("took", time.Since(start)))
	return entries, nil
}

func enumerationError(err error, kind malgo.DeviceType) error {
	return errors.New(err).
		Component(catalog.ComponentCatalog).
		Category(errors.CategoryDeviceCatalog).
		Context("operation", "enumerate_devices").
		Context("kind", kindName(kind)).
		Build()
}

func kindName(kind malgo.DeviceType) string {
	if kind == malgo.Playback {
		return "playback"
	}
	return "capture"
}

// mergeDevices joins capture and playback endpoints by name, keeping the
// backend order with capture endpoints first.
func mergeDevices(capture, playback []rawDevice) []entry {
	entries := make([]entry, 0, len(capture)+len(playback))
	index := make(map[string]int, len(capture)+len(playback))

	add := func(d *rawDevice, input bool) {
		if isNullDevice(d.name) {
			return
		}
		i, ok := index[d.name]
		if !ok {
			entries = append(entries, entry{info: catalog.DeviceInfo{
				ID:        d.idString,
				Name:      d.name,
				Transport: transportFromName(d.name),
			}})
			i = len(entries) - 1
			index[d.name] = i
		}
		e := &entries[i]
		id := d.id
		if input {
			e.captureID = &id
			e.info.InputChannels = d.channels
			e.info.DefaultInput = d.isDefault
		} else {
			e.playbackID = &id
			e.info.OutputChannels = d.channels
			e.info.DefaultOutput = d.isDefault
		}
		if e.info.SampleRate == 0 {
			e.info.SampleRate = d.sampleRate
		}
	}
	for i := range capture {
		add(&capture[i], true)
	}
	for i := range playback {
		add(&playback[i], false)
	}

	for i := range entries {
		entries[i].info.IsVirtual = catalog.ClassifyVirtual(entries[i].info)
	}
	return entries
}

// isNullDevice matches the backend's discard endpoint.
func isNullDevice(name string) bool {
	return strings.Contains(name, "Discard all samples")
}

// transportFromName guesses the attachment type from a device name; malgo
// does not report it.
func transportFromName(name string) catalog.TransportType {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "usb"):
		return catalog.TransportUSB
	case strings.Contains(lower, "bluetooth"), strings.Contains(lower, "bluez"), strings.Contains(lower, "airpods"):
		return catalog.TransportBluetooth
	case strings.Contains(lower, "hdmi"), strings.Contains(lower, "displayport"):
		return catalog.TransportHDMI
	case strings.Contains(lower, "airplay"), strings.Contains(lower, "dante"):
		return catalog.TransportNetwork
	case strings.Contains(lower, "aggregate"), strings.Contains(lower, "multi-output"):
		return catalog.TransportAggregate
	case strings.Contains(lower, "built-in"), strings.Contains(lower, "internal"), strings.Contains(lower, "macbook"):
		return catalog.TransportBuiltIn
	default:
		return catalog.TransportUnknown
	}
}

// Devices implements catalog.Catalog
func (c *Catalog) Devices() ([]catalog.DeviceInfo, error) {
	entries, err := c.entries()
	if err != nil {
		return nil, err
	}
	devices := make([]catalog.DeviceInfo, len(entries))
	for i := range entries {
		devices[i] = entries[i].info
	}
	return devices, nil
}

// ListDevices implements catalog.Catalog
func (c *Catalog) ListDevices(dir catalog.Direction) ([]catalog.DeviceInfo, error) {
	devices, err := c.Devices()
	if err != nil {
		return nil, err
	}
	return catalog.FilterDirection(devices, dir), nil
}

// SystemDefault implements catalog.Catalog
func (c *Catalog) SystemDefault(dir catalog.Direction) (catalog.DeviceInfo, error) {
	devices, err := c.Devices()
	if err != nil {
		return catalog.DeviceInfo{}, err
	}
	return catalog.DefaultOf(devices, dir)
}

// SetSystemDefault implements catalog.Catalog. malgo cannot change the system
// default, so this always fails with catalog.ErrUnsupported.
func (c *Catalog) SetSystemDefault(dir catalog.Direction, id string) error {
	return errors.Newf("set default %s device: %w", dir, catalog.ErrUnsupported).
		Component(catalog.ComponentCatalog).
		Category(errors.CategoryUnsupported).
		Context("device_id", id).
		Build()
}

// lookup resolves a device name for dir to its catalog entry. An empty name
// resolves to the system default, or to the first device if none is marked.
func (c *Catalog) lookup(dir catalog.Direction, name string) (entry, error) {
	entries, err := c.entries()
	if err != nil {
		return entry{}, err
	}

	candidates := slices.DeleteFunc(slices.Clone(entries), func(e entry) bool {
		return !e.info.Supports(dir)
	})
	if name == "" {
		for i := range candidates {
			if candidates[i].info.IsDefault(dir) {
				return candidates[i], nil
			}
		}
		if len(candidates) > 0 {
			return candidates[0], nil
		}
	} else {
		infos := make([]catalog.DeviceInfo, len(candidates))
		for i := range candidates {
			infos[i] = candidates[i].info
		}
		if found, ok := catalog.FindDevice(infos, name); ok {
			i := slices.IndexFunc(candidates, func(e entry) bool { return e.info.Name == found.Name })
			return candidates[i], nil
		}
	}

	return entry{}, errors.Newf("no %s device named %q: %w", dir, name, catalog.ErrDeviceNotFound).
		Component(catalog.ComponentCatalog).
		Category(errors.CategoryNotFound).
		Context("available_devices", len(candidates)).
		Build()
}

// contextEnumerator queries a malgo context.
type contextEnumerator struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
	log logger.Logger
}

// Devices implements enumerator
func (e *contextEnumerator) Devices(kind malgo.DeviceType) ([]rawDevice, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	infos, err := e.ctx.Devices(kind)
	if err != nil {
		return nil, err
	}

	devices := make([]rawDevice, 0, len(infos))
	for i := range infos {
		d := rawDevice{
			id:        infos[i].ID,
			idString:  decodeID(infos[i].ID.String()),
			name:      infos[i].Name(),
			isDefault: infos[i].IsDefault == 1,
			channels:  fallbackChannels,
		}

		full, err := e.ctx.DeviceInfo(kind, infos[i].ID, malgo.Shared)
		if err != nil {
			e.log.Debug("device format query failed",
				logger.String("device", d.name),
				logger.Error(err))
		} else {
			d.channels, d.sampleRate = nativeFormat(&full)
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// nativeFormat returns the widest channel count and the first concrete rate
// among the formats a device reports.
func nativeFormat(info *malgo.DeviceInfo) (channels int, sampleRate float64) {
	count := min(int(info.FormatCount), len(info.Formats))
	for i := range count {
		f := info.Formats[i]
		channels = max(channels, int(f.Channels))
		if sampleRate == 0 && f.SampleRate > 0 {
			sampleRate = float64(f.SampleRate)
		}
	}
	if channels == 0 {
		channels = fallbackChannels
	}
	return channels, sampleRate
}

// decodeID turns a hex encoded backend ID into text, falling back to the hex.
func decodeID(hexStr string) string {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return hexStr
	}
	return strings.TrimRight(string(b), "\x00")
}
