// Package audiocore routes audio from an input device through an insertable
// processing chain to an output device in real time, and meters both sides
// for a control surface.
//
// # Architecture Overview
//
// The package consists of a few small components:
//
//   - Engine: owns the device connection, the chain, the working buffer and
//     the level meters; it is the Callback installed on the device
//   - DeviceManager: the platform binding contract (see backends/malgo and
//     backends/offline) that opens devices and clocks the stream
//   - ProcessingChain: an ordered list of Stage values run in place over the
//     buffer, empty by default, with a bypass flag
//   - LevelMeter / MeterBank: single-word atomic peak levels
//   - CallbackSlot: installs and removes the callback with a synchronous
//     handshake
//
// # Threads
//
// ProcessBlock runs on the platform's audio thread. It reads only atomics and
// immutable snapshots, never takes a lock, never allocates and never logs.
// Every other Engine and ProcessingChain method is a control operation; those
// serialize on a mutex the audio thread never touches.
//
// StopAudioProcessing is synchronous: when it returns no ProcessBlock is
// running and none will run until the next StartAudioProcessing.
//
// # Lifecycle
//
//	engine := audiocore.NewEngine(devices, catalog)
//	if err := engine.Initialize(); err != nil { ... }
//	if err := engine.StartAudioProcessing(); err != nil { ... }
//	level := engine.InputLevel(0)
//	engine.StopAudioProcessing()
//	engine.Shutdown()
//
// # Buffer Lifecycle
//
// The working buffer is sized in DeviceAboutToStart to the output channel
// count and the block size, and only grows there. ProcessBlock copies input
// channel c to buffer channel c, silences buffer channels without an input,
// runs the chain and copies the result to the outputs.
package audiocore
