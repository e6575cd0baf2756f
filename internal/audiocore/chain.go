package audiocore

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/tphakala/eqroute/internal/errors"
	"github.com/tphakala/eqroute/internal/logger"
)

// Default session parameters used until the first Prepare.
const (
	DefaultSampleRate = 44100.0
	DefaultBlockSize  = 512
	DefaultChannels   = 2
)

// ProcessSpec describes the stream a chain is prepared for.
type ProcessSpec struct {
	SampleRate float64 // frames per second
	BlockSize  int     // maximum frames per Process call
	Channels   int     // channels in the buffer passed to Process
}

// DefaultProcessSpec returns the parameters a chain uses before Prepare.
func DefaultProcessSpec() ProcessSpec {
	return ProcessSpec{
		SampleRate: DefaultSampleRate,
		BlockSize:  DefaultBlockSize,
		Channels:   DefaultChannels,
	}
}

// Stage is one in-place transformation in a ProcessingChain.
//
// Process runs on the audio thread and must not allocate, block, or make
// syscalls. Prepare and Reset run on a control goroutine or at stream start
// and may allocate.
type Stage interface {
	// ID returns a unique identifier for this stage within its chain
	ID() string
	// Prepare (re)initializes the stage for spec
	Prepare(spec ProcessSpec)
	// Process transforms buf in place
	Process(buf *AudioBuffer)
	// Reset clears internal state such as filter history
	Reset()
}

// ProcessingChain runs an ordered list of stages over a buffer in place. An
// empty chain is the identity.
//
// The audio thread reads an immutable snapshot of the stage list and the bypass
// flag through atomics; AddStage, RemoveStage and SetStages publish a new
// snapshot. A stage removed while a block is in flight may see that one block.
type ProcessingChain struct {
	stages   atomic.Pointer[[]Stage]
	bypassed atomic.Bool
	spec     atomic.Pointer[ProcessSpec]
	mu       sync.Mutex // serializes writers only
	logger   logger.Logger
}

// NewProcessingChain creates an empty chain with default parameters.
func NewProcessingChain(log logger.Logger) *ProcessingChain {
	if log == nil {
		log = logger.Global().Module("audio")
	}
	pc := &ProcessingChain{logger: log.Module("chain")}
	empty := []Stage{}
	pc.stages.Store(&empty)
	spec := DefaultProcessSpec()
	pc.spec.Store(&spec)
	return pc
}

// Prepare records spec and prepares every stage for it.
func (pc *ProcessingChain) Prepare(spec ProcessSpec) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pc.spec.Store(&spec)
	for _, s := range *pc.stages.Load() {
		s.Prepare(spec)
	}
}

// Process runs every stage over buf in order, unless the chain is bypassed.
func (pc *ProcessingChain) Process(buf *AudioBuffer) {
	if pc.bypassed.Load() {
		return
	}
	for _, s := range *pc.stages.Load() {
		s.Process(buf)
	}
}

// Reset clears the state of every stage.
func (pc *ProcessingChain) Reset() {
	for _, s := range *pc.stages.Load() {
		s.Reset()
	}
}

// IsBypassed reports whether Process passes audio through untouched.
func (pc *ProcessingChain) IsBypassed() bool {
	return pc.bypassed.Load()
}

// SetBypassed switches the bypass flag. It takes effect at the next block.
func (pc *ProcessingChain) SetBypassed(bypassed bool) {
	if pc.bypassed.Swap(bypassed) != bypassed {
		pc.logger.Info("processing chain bypass changed", logger.Bool("bypassed", bypassed))
	}
}

// Spec returns the parameters of the last Prepare, or the defaults.
func (pc *ProcessingChain) Spec() ProcessSpec {
	return *pc.spec.Load()
}

// AddStage prepares stage with the current parameters and appends it.
func (pc *ProcessingChain) AddStage(stage Stage) error {
	if stage == nil || stage.ID() == "" {
		return newError(ErrInvalidStage, errors.CategoryValidation, "add_stage", "stage must be non-nil with an ID")
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	current := *pc.stages.Load()
	if slices.ContainsFunc(current, func(s Stage) bool { return s.ID() == stage.ID() }) {
		pc.logger.Warn("stage already exists in chain", logger.String("stage_id", stage.ID()))
		return newError(ErrStageExists, errors.CategoryConflict, "add_stage", "stage %q", stage.ID())
	}

	stage.Prepare(*pc.spec.Load())
	next := append(slices.Clone(current), stage)
	pc.stages.Store(&next)

	pc.logger.Info("stage added to chain",
		logger.String("stage_id", stage.ID()),
		logger.Int("chain_length", len(next)))
	return nil
}

// RemoveStage removes the stage with the given ID, keeping the order of the rest.
func (pc *ProcessingChain) RemoveStage(id string) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	current := *pc.stages.Load()
	i := slices.IndexFunc(current, func(s Stage) bool { return s.ID() == id })
	if i < 0 {
		return newError(ErrStageNotFound, errors.CategoryNotFound, "remove_stage", "stage %q", id)
	}

	next := slices.Delete(slices.Clone(current), i, i+1)
	pc.stages.Store(&next)

	pc.logger.Info("stage removed from chain",
		logger.String("stage_id", id),
		logger.Int("chain_length", len(next)))
	return nil
}

// SetStages replaces the whole stage list. Stages are prepared first.
func (pc *ProcessingChain) SetStages(stages ...Stage) error {
	seen := make(map[string]struct{}, len(stages))
	for _, s := range stages {
		if s == nil || s.ID() == "" {
			return newError(ErrInvalidStage, errors.CategoryValidation, "set_stages", "stage must be non-nil with an ID")
		}
		if _, dup := seen[s.ID()]; dup {
			return newError(ErrStageExists, errors.CategoryConflict, "set_stages", "stage %q", s.ID())
		}
		seen[s.ID()] = struct{}{}
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	spec := *pc.spec.Load()
	for _, s := range stages {
		s.Prepare(spec)
	}
	next := slices.Clone(stages)
	if next == nil {
		next = []Stage{}
	}
	pc.stages.Store(&next)
	return nil
}

// Stages returns a copy of the current stage list in processing order.
func (pc *ProcessingChain) Stages() []Stage {
	return slices.Clone(*pc.stages.Load())
}

// Len returns the number of stages.
func (pc *ProcessingChain) Len() int {
	return len(*pc.stages.Load())
}
