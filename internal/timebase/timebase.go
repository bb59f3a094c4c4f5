// Package timebase converts between host clock ticks and wall-clock
// durations. The original engine timestamped everything in mach_absolute_time
// ticks and carried a numerator/denominator pair (from mach_timebase_info) to
// convert them to nanoseconds; this is that same rational conversion,
// generalized so a host clock that isn't 1:1 with nanoseconds (or a fake
// clock in a test) can still be plugged in without touching the mixers.
package timebase

import "time"

// Timebase maps host ticks to nanoseconds: ns = ticks * Numer / Denom.
// The zero value is invalid; use Identity() for a clock whose ticks already
// are nanoseconds (the common case on a Go host, since time.Duration is
// itself int64 nanoseconds).
type Timebase struct {
	Numer uint64
	Denom uint64
}

// Identity returns a Timebase where ticks and nanoseconds coincide.
func Identity() Timebase { return Timebase{Numer: 1, Denom: 1} }

// ToDuration converts a tick count to a time.Duration.
func (tb Timebase) ToDuration(ticks int64) time.Duration {
	return time.Duration(ticks * int64(tb.Numer) / int64(tb.Denom))
}

// FromDuration converts a time.Duration to a tick count.
func (tb Timebase) FromDuration(d time.Duration) int64 {
	return int64(d) * int64(tb.Denom) / int64(tb.Numer)
}

// SamplesToTicks converts a sample count (interleaved across channels) at
// sampleRate into host ticks, mirroring the original's
// p1_audio_samples_to_mach_time.
func (tb Timebase) SamplesToTicks(samples, channels, sampleRate int) int64 {
	frames := samples / channels
	d := time.Duration(frames) * time.Second / time.Duration(sampleRate)
	return tb.FromDuration(d)
}
