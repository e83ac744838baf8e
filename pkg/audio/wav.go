package audio

import "encoding/binary"

// WAV container constants for the fixed 44-byte canonical header written by
// [EncodeWAV]: RIFF container, PCM format tag, mono, 16-bit.
const (
	wavHeaderSize    = 44
	wavFormatPCM     = 1
	wavChannels      = 1
	wavBitsPerSample = 16
)

// EncodeWAV packages mono float32 samples into a self-contained WAV byte
// buffer: a 44-byte header followed by the samples clipped to [-1, 1] and
// scaled to little-endian signed 16-bit PCM.
//
// The encoding is deterministic and allocation is a single buffer of
// 44 + 2*len(samples) bytes. Decoding the result with any standard PCM WAV
// reader reproduces each sample within 1/32768 of the clipped original.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	dataLen := len(samples) * 2
	buf := make([]byte, wavHeaderSize+dataLen)

	byteRate := sampleRate * wavChannels * wavBitsPerSample / 8
	blockAlign := wavChannels * wavBitsPerSample / 8

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], wavChannels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], wavBitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))

	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[wavHeaderSize+i*2:], uint16(Float32ToInt16(s)))
	}
	return buf
}

// Float32ToInt16 clips s to [-1, 1] and scales it to a signed 16-bit
// sample. The scale factor is 32768, mirroring the /32768 on the decode
// side, so -1.0 maps to -32768 and +1.0 saturates at 32767.
func Float32ToInt16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	v := int32(s * 32768)
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return int16(v)
}
