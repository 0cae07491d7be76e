package audio

import (
	"encoding/binary"

	"github.com/muurk/carlink/internal/protocol"
)

// Output format of the playback device
const (
	OutputSampleRate = 48000
	OutputChannels   = 2
)

// ToOutput converts interleaved 16-bit little-endian PCM in format f to
// 48 kHz stereo using linear interpolation. Mono is duplicated to both
// channels; more than two channels keep the first two. An untagged format
// is assumed to already match the output.
func ToOutput(pcm []byte, f protocol.AudioFormat) []byte {
	if f.SampleRate == 0 || f.Channels == 0 {
		f = protocol.AudioFormat{SampleRate: OutputSampleRate, Channels: OutputChannels}
	}
	frameBytes := 2 * f.Channels
	in := len(pcm) / frameBytes
	if in == 0 {
		return nil
	}
	if f.SampleRate == OutputSampleRate && f.Channels == OutputChannels {
		out := make([]byte, in*frameBytes)
		copy(out, pcm)
		return out
	}

	sample := func(i, ch int) int32 {
		if ch >= f.Channels {
			ch = f.Channels - 1
		}
		off := i*frameBytes + ch*2
		return int32(int16(binary.LittleEndian.Uint16(pcm[off : off+2])))
	}

	outFrames := int(int64(in) * OutputSampleRate / int64(f.SampleRate))
	if outFrames == 0 {
		outFrames = 1
	}
	out := make([]byte, outFrames*OutputChannels*2)

	for o := 0; o < outFrames; o++ {
		// Position in input frames, in 1/OutputSampleRate units
		pos := int64(o) * int64(f.SampleRate)
		i := int(pos / OutputSampleRate)
		frac := int32(pos % OutputSampleRate)
		next := i + 1
		if next >= in {
			next = in - 1
		}
		for ch := 0; ch < OutputChannels; ch++ {
			a, b := sample(i, ch), sample(next, ch)
			v := a + int32(int64(b-a)*int64(frac)/OutputSampleRate)
			off := (o*OutputChannels + ch) * 2
			binary.LittleEndian.PutUint16(out[off:off+2], uint16(int16(v)))
		}
	}
	return out
}
