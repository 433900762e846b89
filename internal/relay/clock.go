package relay

// AudioClock derives audio-relative timestamps from cumulative byte counts.
// Only bytes actually sent advance it, so gaps in delivery do not distort
// estimated audio timing. It is owned exclusively by one UpstreamSession
// and touched only by the client-to-upstream pump, so it needs no locking.
type AudioClock struct {
	audioTimeS float64
}

// Advance computes the interval covered by a PCM16 chunk of the given byte
// length at the given sample rate, advances the cursor, and returns the
// interval. A zero byte length yields a zero-duration interval at the
// current cursor (used for heartbeat chunks).
func (c *AudioClock) Advance(byteLength, sampleRateHz int) (startS, endS float64) {
	samples := float64(byteLength) / 2.0 // 2 bytes per 16-bit sample
	durS := samples / float64(sampleRateHz)
	startS = c.audioTimeS
	endS = startS + durS
	c.audioTimeS = endS
	return startS, endS
}

// Reset sets the cursor back to zero
func (c *AudioClock) Reset() {
	c.audioTimeS = 0
}
