// SPDX-License-Identifier: MIT

// Package testsupport provides signal generators shared by the DSP and
// throttling test suites. It is the float32-block equivalent of the
// teacher's pkg/utils test helpers, adjusted to the mono float32 blocks
// AudioSource produces instead of the teacher's int32 PCM buffers.
package testsupport

import "math"

// GenerateSineWave returns size mono float32 samples of a pure tone at
// frequency Hz, sampled at sampleRate Hz, amplitude-scaled by amp (0,1].
func GenerateSineWave(size int, sampleRate, frequency, amp float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(math.Sin(2*math.Pi*frequency*t) * amp)
	}
	return buffer
}

// GenerateComplexWave returns a fundamental plus two harmonics, useful for
// exercising peak-detection against a signal with more than one component.
func GenerateComplexWave(size int, sampleRate, fundamental float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*fundamental*t)*0.5 +
			math.Sin(2*math.Pi*fundamental*2*t)*0.3 +
			math.Sin(2*math.Pi*fundamental*3*t)*0.2
		buffer[i] = float32(signal)
	}
	return buffer
}

// Silence returns size zero-valued samples.
func Silence(size int) []float32 {
	return make([]float32, size)
}
