package media

import "github.com/p1stream/p1stream-go/internal/bufpool"

// Build* functions are the inverse of Parse*Message: they wrap already
// encoded access units into the FLV/RTMP tag byte layout the parsers read,
// so the egress Connection can hand AAC/H.264 output to the wire without
// hand-rolling the header bits at every call site. The returned slice comes
// from bufpool rather than a fresh make(), since a tag is built and sent
// once per media tick on a hot path; callers return it with bufpool.Put
// once the send has completed.

// BuildAudioTag wraps an AAC access unit (or the AudioSpecificConfig, when
// sequenceHeader is true) into an RTMP audio message payload: SoundFormat
// AAC (10), 44 kHz/16-bit/stereo flags (the only rate this pipeline ever
// produces, per the AudioMixer's fixed parameters), followed by the AAC
// packet type byte and the payload itself.
func BuildAudioTag(aac []byte, sequenceHeader bool) []byte {
	const soundFormatAAC = 10
	header := byte(soundFormatAAC<<4) | 0x0F // SoundRate=3 (44kHz), SoundSize=1 (16-bit), SoundType=1 (stereo)
	packetType := byte(0x01)
	if sequenceHeader {
		packetType = 0x00
	}
	out := bufpool.Get(2 + len(aac))
	out[0] = header
	out[1] = packetType
	copy(out[2:], aac)
	return out
}

// BuildVideoTag wraps an H.264 access unit (or an AVCDecoderConfigurationRecord,
// when sequenceHeader is true) into an RTMP video message payload: FrameType
// (1=key, 2=inter) in the high nibble, CodecID AVC (7) in the low nibble,
// the AVCPacketType byte, a zero composition time (this pipeline never
// reorders frames), then the payload.
func BuildVideoTag(h264 []byte, keyframe, sequenceHeader bool) []byte {
	const codecIDAVC = 7
	frameType := byte(2)
	if keyframe {
		frameType = 1
	}
	header := (frameType << 4) | codecIDAVC
	packetType := byte(0x01)
	if sequenceHeader {
		packetType = 0x00
	}
	out := bufpool.Get(5 + len(h264))
	out[0] = header
	out[1] = packetType
	// out[2:5] is CompositionTime, left zero.
	copy(out[5:], h264)
	return out
}
