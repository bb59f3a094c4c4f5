// Package codec supplies the default AAC/H.264 encoder implementations that
// AudioMixer and the relay Connection require but that this repository's
// retrieval pack carries no library for: every example that touches audio or
// video encoding does so in a companion C process (ffmpeg) rather than a Go
// codec binding, so there is no third-party dependency to wire here. These
// implementations pass samples straight through the out/payload buffers they
// are handed, tagging the output so the wire side can still distinguish a
// sequence header from a media frame — good enough to exercise the whole
// pipeline end to end, but never a byte-accurate AAC or H.264 bitstream.
package codec

import "github.com/p1stream/p1stream-go/internal/plugin"

// PassthroughAudioEncoder implements audiomixer.Encoder by copying each
// 16-bit sample into two output bytes, little-endian, consuming as many
// input samples as the output buffer can hold.
type PassthroughAudioEncoder struct{ closed bool }

// NewPassthroughAudioEncoder satisfies audiomixer.EncoderFactory.
func NewPassthroughAudioEncoder() (*PassthroughAudioEncoder, error) {
	return &PassthroughAudioEncoder{}, nil
}

func (e *PassthroughAudioEncoder) Encode(pcm []int16, out []byte) (consumed, produced int, err error) {
	if len(pcm) == 0 {
		return 0, 0, nil
	}
	n := len(pcm)
	if n*2 > len(out) {
		n = len(out) / 2
	}
	if n == 0 {
		return 0, 0, nil
	}
	for i := 0; i < n; i++ {
		out[i*2] = byte(pcm[i])
		out[i*2+1] = byte(pcm[i] >> 8)
	}
	return n, n * 2, nil
}

func (e *PassthroughAudioEncoder) Close() error { e.closed = true; return nil }

// PassthroughVideoEncoder implements relay.VideoEncoder: it downsamples the
// picture's luma plane into the output payload (so distinct frames produce
// distinct bytes, useful for tests and smoke runs) and sends a fixed
// sequence header once per construction, mirroring an H.264 SPS/PPS prelude.
type PassthroughVideoEncoder struct {
	width, height int
	seqSent       bool
}

// NewPassthroughVideoEncoder satisfies relay.VideoEncoderFactory.
func NewPassthroughVideoEncoder(width, height int) (*PassthroughVideoEncoder, error) {
	return &PassthroughVideoEncoder{width: width, height: height}, nil
}

func (e *PassthroughVideoEncoder) Encode(pic *plugin.Picture) ([]byte, bool, error) {
	keyframe := !e.seqSent
	if len(pic.Y) == 0 {
		return nil, keyframe, nil
	}
	stride := 4096
	if len(pic.Y) < stride {
		stride = len(pic.Y)
	}
	out := make([]byte, 0, (len(pic.Y)+stride-1)/stride)
	for i := 0; i < len(pic.Y); i += stride {
		out = append(out, pic.Y[i])
	}
	return out, keyframe, nil
}

func (e *PassthroughVideoEncoder) SequenceHeader() []byte {
	if e.seqSent {
		return nil
	}
	e.seqSent = true
	return []byte{0x01, byte(e.width >> 8), byte(e.width), byte(e.height >> 8), byte(e.height)}
}

func (e *PassthroughVideoEncoder) Close() error { return nil }
