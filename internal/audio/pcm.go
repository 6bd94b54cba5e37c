// Package audio implements the PCM transforms used on the relay's binary
// ingest path: downmixing, linear resampling, 16-bit quantization and the
// base64 wire form used by the realtime API's audio payloads.
package audio

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	// BytesPerSample is the width of one 16-bit PCM sample.
	BytesPerSample = 2
)

// DownmixToMono averages interleaved multi-channel float32 samples into a
// single mono channel. A mono input is returned unchanged.
func DownmixToMono(samples []float32, channels int) ([]float32, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	if channels == 1 {
		return samples, nil
	}
	if len(samples)%channels != 0 {
		return nil, fmt.Errorf("sample count %d not divisible by %d channels", len(samples), channels)
	}

	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono, nil
}

// Resample converts mono samples from one sample rate to another using
// linear interpolation. Equal rates return the input unchanged.
func Resample(samples []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", fromRate, toRate)
	}
	if fromRate == toRate || len(samples) == 0 {
		return samples, nil
	}

	ratio := float64(fromRate) / float64(toRate)
	outLen := int(float64(len(samples)) / ratio)
	if outLen == 0 {
		outLen = 1
	}

	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out, nil
}

// QuantizeS16LE converts float32 samples in [-1, 1] to 16-bit little-endian
// PCM bytes. Out-of-range samples are clamped.
func QuantizeS16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// DecodeS16LE converts 16-bit little-endian PCM bytes back to float32
// samples in [-1, 1]. A trailing odd byte is dropped.
func DecodeS16LE(pcm []byte) []float32 {
	n := len(pcm) / BytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(v) / 32767
	}
	return out
}

// ResamplePCM16 resamples raw 16-bit mono PCM between sample rates. It is
// the byte-level convenience over DecodeS16LE, Resample and QuantizeS16LE.
func ResamplePCM16(pcm []byte, fromRate, toRate int) ([]byte, error) {
	if fromRate == toRate {
		return pcm, nil
	}
	resampled, err := Resample(DecodeS16LE(pcm), fromRate, toRate)
	if err != nil {
		return nil, err
	}
	return QuantizeS16LE(resampled), nil
}

// Duration reports the playback duration of raw 16-bit mono PCM at the
// given sample rate.
func Duration(byteLen, sampleRate int) time.Duration {
	if sampleRate <= 0 || byteLen <= 0 {
		return 0
	}
	samples := byteLen / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// DurationMs reports the playback duration of raw 16-bit mono PCM in
// fractional milliseconds.
func DurationMs(byteLen, sampleRate int) float64 {
	if sampleRate <= 0 || byteLen <= 0 {
		return 0
	}
	return float64(byteLen/BytesPerSample) / float64(sampleRate) * 1000
}

// EncodePayload produces the base64 wire form of a PCM payload, as carried
// in the realtime API's "audio" and "delta" fields.
func EncodePayload(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodePayload reverses EncodePayload.
func DecodePayload(payload string) ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio payload: %w", err)
	}
	return pcm, nil
}
