// ABOUTME: Streaming linear resampler for converting audio sample rates
// ABOUTME: Carries the last input frame across calls so chunk boundaries are seamless
package resample

// Resampler performs linear interpolation to convert between sample rates.
//
// Input is treated as one continuous stream: the last frame of each call and
// the fractional read position are kept, so feeding the same samples in
// different chunk sizes produces the same output.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64 // read position in the virtual input [lastSample, input...]
	lastSample []int32 // one sample per channel
	primed     bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		lastSample: make([]int32, channels),
	}
}

// Resample converts input samples to output sample rate using linear interpolation
// input: interleaved samples at inputRate
// output: interleaved samples at outputRate, sized with OutputSamplesNeeded
// Returns the number of samples (not frames) written.
func (r *Resampler) Resample(input []int32, output []int32) int {
	ch := r.channels
	inputFrames := len(input) / ch
	if inputFrames == 0 {
		return 0
	}

	if !r.primed {
		// Virtual frame 0 duplicates the first input frame and reading starts at 1,
		// so the very first output frame is the first input frame.
		copy(r.lastSample, input[:ch])
		r.position = 1
		r.primed = true
	}

	frameAt := func(i int) []int32 {
		if i == 0 {
			return r.lastSample
		}
		return input[(i-1)*ch : i*ch]
	}

	outputFrames := len(output) / ch
	outIdx := 0

	for outIdx < outputFrames {
		idx := int(r.position)
		frac := r.position - float64(idx)
		// Interpolating needs virtual frames idx and idx+1; the last frame
		// can only be emitted when the position lands exactly on it
		if idx > inputFrames || (idx == inputFrames && frac != 0) {
			break
		}

		a := frameAt(idx)
		if frac == 0 {
			copy(output[outIdx*ch:(outIdx+1)*ch], a)
		} else {
			b := frameAt(idx + 1)
			for c := 0; c < ch; c++ {
				interpolated := float64(a[c])*(1.0-frac) + float64(b[c])*frac
				output[outIdx*ch+c] = int32(interpolated)
			}
		}

		outIdx++
		r.position += r.ratio
	}

	// The last input frame becomes virtual frame 0 of the next call
	copy(r.lastSample, input[(inputFrames-1)*ch:inputFrames*ch])
	r.position -= float64(inputFrames)
	if r.position < 0 {
		// Output buffer filled before the input was consumed
		r.position = 0
	}

	return outIdx * ch
}

// OutputSamplesNeeded returns an upper bound on the samples produced from inputSamples
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames)/r.ratio) + 2
	return outputFrames * r.channels
}
