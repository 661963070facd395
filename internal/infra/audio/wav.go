package audio

import (
	"bytes"
	"encoding/binary"
	"time"

	"voznote/internal/application"
)

const (
	wavHeaderSize = 44
	channels      = 1

	// Below this the voice band (up to ~3.4 kHz) is lost.
	minSampleRate = 8000
)

// pcmFormat picks the sample rate and sample width that come closest to the
// requested bitrate without dropping under minSampleRate. 16-bit samples are
// kept while the budget allows them at minSampleRate; below that samples are
// 8-bit.
func pcmFormat(opts application.CaptureOptions) (sampleRate, bitsPerSample int) {
	maxRate := opts.SampleRate
	if maxRate <= 0 {
		maxRate = 16000
	}
	target := opts.BitsPerSecond
	if target <= 0 || target >= maxRate*16 {
		return maxRate, 16
	}

	bits := 16
	if target < minSampleRate*16 {
		bits = 8
	}
	rate := target / bits
	if rate < minSampleRate {
		rate = minSampleRate
	}
	if rate > maxRate {
		rate = maxRate
	}
	return rate, bits
}

// encodeWAV prefixes mono PCM with a RIFF header. 16-bit data is signed
// little-endian, 8-bit data is unsigned.
func encodeWAV(pcm []byte, sampleRate, bitsPerSample int) []byte {
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))

	dataSize := len(pcm)
	byteRate := sampleRate * channels * bitsPerSample / 8

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, int32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, int32(16))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int16(channels))
	binary.Write(&buf, binary.LittleEndian, int32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, int32(byteRate))
	binary.Write(&buf, binary.LittleEndian, int16(channels*bitsPerSample/8))
	binary.Write(&buf, binary.LittleEndian, int16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, int32(dataSize))
	buf.Write(pcm)

	return buf.Bytes()
}

// wavDuration reads the play length from a canonical PCM WAV header.
// It returns zero for anything it cannot parse.
func wavDuration(data []byte) time.Duration {
	if len(data) < wavHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return 0
	}
	byteRate := binary.LittleEndian.Uint32(data[28:32])
	dataSize := binary.LittleEndian.Uint32(data[40:44])
	if byteRate == 0 {
		return 0
	}
	return time.Duration(float64(dataSize) / float64(byteRate) * float64(time.Second))
}

// samplesToPCM packs samples at the given width.
func samplesToPCM(samples []int16, bitsPerSample int) []byte {
	if bitsPerSample == 8 {
		out := make([]byte, len(samples))
		for i, s := range samples {
			out[i] = uint8(int(s)>>8 + 128)
		}
		return out
	}
	return samplesToBytes(samples)
}

func samplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
