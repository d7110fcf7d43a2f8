package llm

import (
	"bytes"
	"encoding/binary"
	"math"
)

const wavHeaderSize = 44

// EncodeWAV writes samples in [-1, 1] as a canonical 16-bit PCM mono RIFF file.
// Out-of-range samples are clipped.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	dataSize := len(samples) * 2
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + dataSize)

	le := binary.LittleEndian
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, le, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, le, uint32(16))           // chunk size
	_ = binary.Write(&buf, le, uint16(1))            // PCM
	_ = binary.Write(&buf, le, uint16(1))            // mono
	_ = binary.Write(&buf, le, uint32(sampleRate))   // sample rate
	_ = binary.Write(&buf, le, uint32(sampleRate*2)) // byte rate
	_ = binary.Write(&buf, le, uint16(2))            // block align
	_ = binary.Write(&buf, le, uint16(16))           // bits per sample

	buf.WriteString("data")
	_ = binary.Write(&buf, le, uint32(dataSize))

	pcm := make([]byte, dataSize)
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		le.PutUint16(pcm[i*2:], uint16(int16(math.Round(v*math.MaxInt16))))
	}
	buf.Write(pcm)
	return buf.Bytes()
}
