package audio

import (
	"encoding/binary"
	"testing"

	"github.com/muurk/carlink/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samples(v ...int16) []byte {
	b := make([]byte, 2*len(v))
	for i, s := range v {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(s))
	}
	return b
}

func decode(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

func TestToOutput(t *testing.T) {
	tests := []struct {
		name   string
		in     []byte
		format protocol.AudioFormat
		want   []int16
	}{
		{
			name:   "16 kHz mono triples and duplicates",
			in:     samples(0, 300),
			format: protocol.AudioFormat{SampleRate: 16000, Channels: 1},
			want:   []int16{0, 0, 100, 100, 200, 200, 300, 300, 300, 300, 300, 300},
		},
		{
			name:   "48 kHz stereo passes through",
			in:     samples(1, -1, 2, -2),
			format: protocol.AudioFormat{SampleRate: 48000, Channels: 2},
			want:   []int16{1, -1, 2, -2},
		},
		{
			name:   "untagged treated as output format",
			in:     samples(5, 6),
			format: protocol.AudioFormat{},
			want:   []int16{5, 6},
		},
		{
			name:   "24 kHz stereo doubles",
			in:     samples(0, 0, 100, -100),
			format: protocol.AudioFormat{SampleRate: 24000, Channels: 2},
			want:   []int16{0, 0, 50, -50, 100, -100, 100, -100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decode(ToOutput(tt.in, tt.format)))
		})
	}
}

func TestToOutputLength(t *testing.T) {
	in := make([]byte, 441*2*2) // 10 ms of 44.1 kHz stereo
	out := ToOutput(in, protocol.AudioFormat{SampleRate: 44100, Channels: 2})
	assert.Len(t, out, 480*2*2)
	assert.Nil(t, ToOutput([]byte{1}, protocol.AudioFormat{SampleRate: 8000, Channels: 1}))
}

func TestPCMBuffer(t *testing.T) {
	b := newPCMBuffer(8)
	assert.Zero(t, b.Write([]byte{1, 2, 3, 4}))
	dropped := b.Write([]byte{5, 6, 7, 8, 9, 10, 11, 12})
	assert.Equal(t, 4, dropped)
	require.Equal(t, 8, b.Len())

	p := make([]byte, 12)
	n, err := b.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, []byte{5, 6, 7, 8, 9, 10, 11, 12, 0, 0, 0, 0}, p)

	b.Write([]byte{1, 1})
	b.Reset()
	assert.Zero(t, b.Len())
}
