package audio

// PCM16ToFloat32 reinterprets little-endian signed 16-bit PCM bytes as mono
// float32 samples in [-1, 1) via s/32768. The byte slice must have even
// length; a trailing odd byte is the caller's responsibility (see the
// playback scheduler's pending-byte handling).
func PCM16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(s) / 32768
	}
	return out
}

// Float32ToPCM16 converts mono float32 samples to little-endian signed
// 16-bit PCM bytes, clipping each sample to [-1, 1].
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := Float32ToInt16(s)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// ResampleMonoFloat32 resamples mono float32 samples from srcRate to dstRate
// using linear interpolation. If srcRate == dstRate (or either rate is
// non-positive) the input is returned unchanged. Used when the capture
// device's native rate differs from the VAD model's required rate.
func ResampleMonoFloat32(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range out {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}
