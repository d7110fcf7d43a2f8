// Package audio captures 16-bit mono PCM frames and hands them to the transcription path.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Stream format: signed 16-bit little-endian, mono.
const (
	BytesPerSample     = 2
	DefaultSampleRate  = 16000
	DefaultFrameLength = 2500 // samples per frame, ~156ms at 16kHz
)

// int16 full scale used for normalization.
const fullScale = 32768.0

// Frame is one fixed-size block of captured audio. Data must not be modified once queued.
type Frame struct {
	Seq        uint64
	Data       []byte // s16le
	CapturedAt time.Time
}

// Samples returns the frame's sample count.
func (f Frame) Samples() int { return len(f.Data) / BytesPerSample }

// EncodePCM16 packs samples as little-endian bytes.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(s))
	}
	return out
}

// AppendNormalized decodes s16le bytes, appending each sample divided by 32768 to dst.
// A trailing odd byte is ignored.
func AppendNormalized(dst []float32, data []byte) []float32 {
	for i := 0; i+1 < len(data); i += BytesPerSample {
		s := int16(binary.LittleEndian.Uint16(data[i:]))
		dst = append(dst, float32(float64(s)/fullScale))
	}
	return dst
}

// MeanAbs returns the mean absolute amplitude of samples, or 0 when empty.
func MeanAbs(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}
	return sum / float64(len(samples))
}

// FrameDuration is the wall-clock length of a frame of n samples at rate.
func FrameDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}
