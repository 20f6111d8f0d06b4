package media

import (
	"encoding/binary"
	"math"
)

// SampleFormat describes interleaved PCM bytes coming from a capture device.
type SampleFormat int

const (
	FormatF32LE SampleFormat = iota
	FormatS16LE
	FormatS24LE
)

func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatS16LE:
		return 2
	case FormatS24LE:
		return 3
	default:
		return 4
	}
}

// Downmix averages interleaved channels into mono. Trailing samples that do
// not form a whole frame are ignored.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		base := i * channels
		for ch := 0; ch < channels; ch++ {
			sum += samples[base+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// DecodeInterleaved converts raw interleaved little-endian PCM into mono
// float samples in [-1, 1] by averaging all channels.
func DecodeInterleaved(data []byte, channels int, format SampleFormat) []float32 {
	if channels <= 0 {
		return nil
	}
	bps := format.BytesPerSample()
	frameSize := channels * bps
	frames := len(data) / frameSize
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			off := i*frameSize + ch*bps
			sum += decodeSample(data[off:off+bps], format)
		}
		out[i] = sum / float32(channels)
	}
	return out
}

func decodeSample(b []byte, format SampleFormat) float32 {
	switch format {
	case FormatS16LE:
		return float32(int16(binary.LittleEndian.Uint16(b))) / 32768.0
	case FormatS24LE:
		raw := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		if raw&0x800000 != 0 {
			raw |= ^0xFFFFFF
		}
		return float32(raw) / 8388608.0
	default:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	}
}

// EncodeF32LE serializes mono samples for a playback device.
func EncodeF32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// Silence is the level reported for an empty or all-zero frame.
const Silence uint8 = 127

// AudioLevel returns the frame loudness in -dBov, 0 being the loudest and
// 127 silence, as carried in the RTP audio-level header extension.
func AudioLevel(pcm []float32) uint8 {
	if len(pcm) == 0 {
		return Silence
	}
	var sum float64
	for _, s := range pcm {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(pcm)))
	if rms < 1e-10 {
		return Silence
	}
	db := -20 * math.Log10(rms)
	return uint8(math.Round(math.Min(math.Max(db, 0), 127)))
}

// Activity maps a -dBov level onto [0, 1] for speaking events.
func Activity(level uint8) float64 {
	if level >= Silence {
		return 0
	}
	return 1 - float64(level)/float64(Silence)
}

const mixGain = 0.75

// MixInto adds overlay into primary with headroom and clamps the result.
// A stereo overlay of twice the length is downmixed first; a mismatched
// overlay is truncated or zero-extended.
func MixInto(primary, overlay []float32) {
	if len(primary) == 0 || len(overlay) == 0 {
		return
	}
	src := overlay
	if len(overlay) == 2*len(primary) {
		src = Downmix(overlay, 2)
	}
	for i := range primary {
		var o float32
		if i < len(src) {
			o = src[i]
		}
		v := primary[i]*mixGain + o*mixGain
		primary[i] = clamp(v)
	}
}

// AddInto sums src into dst sample by sample with clamping; extra samples in
// src are ignored.
func AddInto(dst, src []float32) {
	for i := range dst {
		if i >= len(src) {
			return
		}
		dst[i] = clamp(dst[i] + src[i])
	}
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// Resample converts mono samples between rates with linear interpolation.
func Resample(samples []float32, from, to int) []float32 {
	if from <= 0 || to <= 0 || from == to || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]float32, n)
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		frac := float32(pos - float64(idx))
		a := samples[idx]
		b := a
		if idx+1 < len(samples) {
			b = samples[idx+1]
		}
		out[i] = a + (b-a)*frac
	}
	return out
}
