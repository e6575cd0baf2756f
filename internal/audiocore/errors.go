package audiocore

import (
	"github.com/tphakala/eqroute/internal/errors"
)

// Component identifier for audiocore errors
const ComponentAudioCore = "audiocore"

// Sentinel errors. Errors returned by the engine and chain wrap one of these,
// so callers can test with errors.Is and read the category with errors.IsCategory.
var (
	// ErrDeviceUnavailable is returned when no usable device connection could be opened
	ErrDeviceUnavailable = errors.NewStd("audio device unavailable")

	// ErrDeviceNotFound is returned when a device name is not in the catalog
	ErrDeviceNotFound = errors.NewStd("audio device not found")

	// ErrReconfigurationRejected is returned when the platform refused a new device setup
	ErrReconfigurationRejected = errors.NewStd("device reconfiguration rejected")

	// ErrAlreadyInitialized is returned by a second Initialize without Shutdown
	ErrAlreadyInitialized = errors.NewStd("engine already initialized")

	// ErrStageNotFound is returned when removing a stage that is not in the chain
	ErrStageNotFound = errors.NewStd("processing stage not found")

	// ErrStageExists is returned when adding a stage whose ID is already in the chain
	ErrStageExists = errors.NewStd("processing stage already exists")

	// ErrInvalidStage is returned when adding a nil stage or one without an ID
	ErrInvalidStage = errors.NewStd("invalid processing stage")
)

// newError builds an audiocore error wrapping sentinel with an operation context.
func newError(sentinel error, category errors.ErrorCategory, operation, format string, args ...any) *errors.EnhancedError {
	return errors.Newf(format+": %w", append(args, sentinel)...).
		Component(ComponentAudioCore).
		Category(category).
		Context("operation", operation).
		Build()
}
