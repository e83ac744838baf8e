package synth

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/voxtide/voxtide/pkg/audio"
)

// Opus packets on this stream carry 20 ms of audio each.
const opusFrameMs = 20

// opusDecoder decodes the Opus-framed variant of the synthesis stream into
// little-endian 16-bit PCM. One decoder per connection; Opus decoders are
// stateful across consecutive packets.
type opusDecoder struct {
	dec       *gopus.Decoder
	frameSize int // samples per channel per packet
}

func newOpusDecoder(format audio.Format) (*opusDecoder, error) {
	dec, err := gopus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("synth: create opus decoder: %w", err)
	}
	return &opusDecoder{
		dec:       dec,
		frameSize: format.SampleRate * opusFrameMs / 1000,
	}, nil
}

// decode decodes one Opus packet into interleaved little-endian PCM bytes.
func (d *opusDecoder) decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, d.frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("synth: opus decode: %w", err)
	}
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out, nil
}
