package malgo

import (
	"encoding/binary"
	"math"

	"github.com/gen2brain/malgo"
)

const bytesPerF32 = 4

// deinterleaveF32 copies frames [offset, offset+n) of interleaved F32 samples
// into the planar channels dst. Channels beyond the source are left alone and
// a short source is zero filled.
func deinterleaveF32(src []byte, dst [][]float32, channels, offset, n int) {
	if channels == 0 {
		return
	}
	for i := range n {
		base := (offset + i) * channels * bytesPerF32
		for c := range min(channels, len(dst)) {
			pos := base + c*bytesPerF32
			if pos+bytesPerF32 > len(src) {
				dst[c][i] = 0
				continue
			}
			dst[c][i] = math.Float32frombits(binary.LittleEndian.Uint32(src[pos : pos+bytesPerF32]))
		}
	}
}

// interleaveF32 writes the planar channels src as interleaved F32 samples into
// frames [offset, offset+n) of dst. Missing channels are written as silence.
func interleaveF32(src [][]float32, dst []byte, channels, offset, n int) {
	for i := range n {
		base := (offset + i) * channels * bytesPerF32
		for c := range channels {
			pos := base + c*bytesPerF32
			if pos+bytesPerF32 > len(dst) {
				return
			}
			var v float32
			if c < len(src) && src[c] != nil {
				v = src[c][i]
			}
			binary.LittleEndian.PutUint32(dst[pos:pos+bytesPerF32], math.Float32bits(v))
		}
	}
}

// formatName returns a short name for a malgo sample format, for logs.
func formatName(format malgo.FormatType) string {
	switch format {
	case malgo.FormatU8:
		return "U8"
	case malgo.FormatS16:
		return "S16"
	case malgo.FormatS24:
		return "S24"
	case malgo.FormatS32:
		return "S32"
	case malgo.FormatF32:
		return "F32"
	default:
		return "Unknown"
	}
}
