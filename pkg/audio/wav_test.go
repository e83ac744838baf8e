package audio_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/voxtide/voxtide/pkg/audio"
)

// decodeWAV parses the 44-byte canonical header and PCM payload produced by
// EncodeWAV. It is intentionally strict: any deviation from the expected
// layout fails the calling test.
func decodeWAV(t *testing.T, wav []byte) (sampleRate, channels, bits int, samples []float32) {
	t.Helper()
	if len(wav) < 44 {
		t.Fatalf("container too short: %d bytes", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("bad container tags: %q %q", wav[0:4], wav[8:12])
	}
	if got := binary.LittleEndian.Uint16(wav[20:22]); got != 1 {
		t.Fatalf("format tag: got %d, want 1 (PCM)", got)
	}
	channels = int(binary.LittleEndian.Uint16(wav[22:24]))
	sampleRate = int(binary.LittleEndian.Uint32(wav[24:28]))
	bits = int(binary.LittleEndian.Uint16(wav[34:36]))
	dataLen := int(binary.LittleEndian.Uint32(wav[40:44]))
	if dataLen != len(wav)-44 {
		t.Fatalf("declared payload %d bytes, actual %d", dataLen, len(wav)-44)
	}
	samples = make([]float32, dataLen/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(wav[44+i*2:]))
		samples[i] = float32(s) / 32768
	}
	return sampleRate, channels, bits, samples
}

func TestEncodeWAV_RoundTrip(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 0.999, -0.999, 0.3, -0.0001, 1, -1}
	wav := audio.EncodeWAV(in, 16000)

	_, _, _, out := decodeWAV(t, wav)
	if len(out) != len(in) {
		t.Fatalf("sample count: got %d, want %d", len(out), len(in))
	}
	const lsb = 1.0 / 32768
	for i := range in {
		if diff := math.Abs(float64(out[i] - in[i])); diff > lsb {
			t.Errorf("sample %d: got %f, want %f (±%f)", i, out[i], in[i], lsb)
		}
	}
}

func TestEncodeWAV_ClipsOutOfRange(t *testing.T) {
	wav := audio.EncodeWAV([]float32{2.0, -3.0}, 16000)
	payload := wav[44:]
	if got := int16(binary.LittleEndian.Uint16(payload[0:2])); got != 32767 {
		t.Errorf("positive clip: got %d, want 32767", got)
	}
	if got := int16(binary.LittleEndian.Uint16(payload[2:4])); got != -32768 {
		t.Errorf("negative clip: got %d, want -32768", got)
	}
}

func TestFloat32ToInt16_FullScale(t *testing.T) {
	if got := audio.Float32ToInt16(-1); got != -32768 {
		t.Errorf("-1.0: got %d, want -32768", got)
	}
	if got := audio.Float32ToInt16(1); got != 32767 {
		t.Errorf("+1.0: got %d, want 32767", got)
	}
	if got := audio.Float32ToInt16(0); got != 0 {
		t.Errorf("0.0: got %d, want 0", got)
	}
}

func TestEncodeWAV_Header260msUtterance(t *testing.T) {
	// 260 ms at 16 kHz = 4160 samples of steady 0.3 amplitude.
	const rate = 16000
	n := rate * 260 / 1000
	in := make([]float32, n)
	for i := range in {
		in[i] = 0.3
	}

	wav := audio.EncodeWAV(in, rate)
	sampleRate, channels, bits, _ := decodeWAV(t, wav)
	if sampleRate != 16000 {
		t.Errorf("sample rate: got %d, want 16000", sampleRate)
	}
	if channels != 1 {
		t.Errorf("channels: got %d, want 1", channels)
	}
	if bits != 16 {
		t.Errorf("bits per sample: got %d, want 16", bits)
	}
	if got, want := len(wav)-44, 2*n; got != want {
		t.Errorf("payload length: got %d, want %d", got, want)
	}
}

func TestEncodeWAV_Empty(t *testing.T) {
	wav := audio.EncodeWAV(nil, 16000)
	if len(wav) != 44 {
		t.Fatalf("expected bare header, got %d bytes", len(wav))
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != 0 {
		t.Errorf("declared payload: got %d, want 0", got)
	}
}
