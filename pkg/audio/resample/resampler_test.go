// ABOUTME: Tests for audio resampler
// ABOUTME: Tests linear interpolation and chunk-boundary continuity
package resample

import (
	"testing"
)

func TestNew(t *testing.T) {
	r := New(44100, 48000, 2)

	if r == nil {
		t.Fatal("expected resampler to be created")
	}

	if r.inputRate != 44100 {
		t.Errorf("expected inputRate 44100, got %d", r.inputRate)
	}

	if r.outputRate != 48000 {
		t.Errorf("expected outputRate 48000, got %d", r.outputRate)
	}

	if r.channels != 2 {
		t.Errorf("expected channels 2, got %d", r.channels)
	}
}

func TestResampleUpsampling(t *testing.T) {
	// 44100 -> 48000 (upsampling by factor of ~1.088)
	r := New(44100, 48000, 2)

	// Input: 100 stereo frames (200 values)
	input := make([]int32, 200)
	for i := range input {
		input[i] = int32(i * 100) // Ramp signal
	}

	output := make([]int32, r.OutputSamplesNeeded(len(input)))
	n := r.Resample(input, output)

	if n == 0 {
		t.Fatal("resampler produced no output")
	}

	expectedSize := int(float64(len(input)) * float64(48000) / float64(44100))
	if n < expectedSize-10 || n > expectedSize+10 {
		t.Errorf("expected ~%d samples, got %d", expectedSize, n)
	}
}

func TestResampleDownsampling(t *testing.T) {
	// 48000 -> 44100 (downsampling by factor of ~0.91875)
	r := New(48000, 44100, 2)

	input := make([]int32, 200)
	for i := range input {
		input[i] = int32(i * 100)
	}

	output := make([]int32, r.OutputSamplesNeeded(len(input)))
	n := r.Resample(input, output)

	if n == 0 {
		t.Fatal("resampler produced no output")
	}

	expectedSize := int(float64(len(input)) * float64(44100) / float64(48000))
	if n < expectedSize-10 || n > expectedSize+10 {
		t.Errorf("expected ~%d samples, got %d", expectedSize, n)
	}
}

func TestResampleSameRateIsIdentity(t *testing.T) {
	r := New(48000, 48000, 2)

	input := make([]int32, 200)
	for i := range input {
		input[i] = int32(i * 100)
	}

	output := make([]int32, r.OutputSamplesNeeded(len(input)))
	n := r.Resample(input, output)

	if n != len(input) {
		t.Fatalf("expected %d samples, got %d", len(input), n)
	}

	for i := 0; i < n; i++ {
		if output[i] != input[i] {
			t.Errorf("sample %d: expected %d, got %d", i, input[i], output[i])
		}
	}
}

func TestResampleFirstFrameExact(t *testing.T) {
	r := New(44100, 48000, 2)

	input := []int32{1000, -1000, 2000, -2000, 3000, -3000}
	output := make([]int32, r.OutputSamplesNeeded(len(input)))
	n := r.Resample(input, output)

	if n < 2 {
		t.Fatal("resampler produced no output")
	}
	if output[0] != 1000 || output[1] != -1000 {
		t.Errorf("first frame should equal first input frame, got %d,%d", output[0], output[1])
	}
}

func TestResampleStereo(t *testing.T) {
	// Test that stereo channels are handled correctly
	r := New(44100, 48000, 2)

	input := make([]int32, 20) // 10 stereo frames
	for i := 0; i < 10; i++ {
		input[i*2] = 1000    // Left channel
		input[i*2+1] = -1000 // Right channel
	}

	output := make([]int32, r.OutputSamplesNeeded(len(input)))
	n := r.Resample(input, output)

	if n == 0 {
		t.Fatal("resampler produced no output")
	}

	for i := 0; i < n/2; i++ {
		if output[i*2] != 1000 {
			t.Errorf("frame %d: left channel expected 1000, got %d", i, output[i*2])
		}
		if output[i*2+1] != -1000 {
			t.Errorf("frame %d: right channel expected -1000, got %d", i, output[i*2+1])
		}
	}
}

func TestResampleChunkedMatchesContiguous(t *testing.T) {
	// Ratios that are exact in binary floating point
	rates := [][2]int{{44100, 22050}, {22050, 44100}, {48000, 32000}}

	for _, rate := range rates {
		input := make([]int32, 2*997)
		for i := range input {
			input[i] = int32((i * 7919) % 20000)
		}

		whole := New(rate[0], rate[1], 2)
		want := make([]int32, whole.OutputSamplesNeeded(len(input)))
		want = want[:whole.Resample(input, want)]

		chunked := New(rate[0], rate[1], 2)
		var got []int32
		for off := 0; off < len(input); {
			size := 2 * (1 + (off/2)%37)
			end := min(off+size, len(input))
			chunk := input[off:end]
			out := make([]int32, chunked.OutputSamplesNeeded(len(chunk)))
			got = append(got, out[:chunked.Resample(chunk, out)]...)
			off = end
		}

		if len(got) != len(want) {
			t.Fatalf("%d->%d: expected %d samples, got %d", rate[0], rate[1], len(want), len(got))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%d->%d: sample %d differs: expected %d, got %d", rate[0], rate[1], i, want[i], got[i])
			}
		}
	}
}

func TestResampleLargeRatioUp(t *testing.T) {
	// Test large upsampling ratio (44.1k -> 192k)
	r := New(44100, 192000, 2)

	input := make([]int32, 200)
	for i := range input {
		input[i] = int32(i * 10)
	}

	output := make([]int32, r.OutputSamplesNeeded(len(input)))
	n := r.Resample(input, output)

	if n < len(input)*3 {
		t.Errorf("expected at least 3x upsampling, got %d from %d", n, len(input))
	}
}

func TestResampleLargeRatioDown(t *testing.T) {
	// Test large downsampling ratio (192k -> 48k)
	r := New(192000, 48000, 2)

	input := make([]int32, 200)
	for i := range input {
		input[i] = int32(i * 10)
	}

	output := make([]int32, r.OutputSamplesNeeded(len(input)))
	n := r.Resample(input, output)

	if n == 0 {
		t.Fatal("resampler produced no output")
	}

	if n > len(input)/2 {
		t.Errorf("expected at most 1/2 samples after downsampling, got %d from %d", n, len(input))
	}
}

func TestResampleEmptyInput(t *testing.T) {
	r := New(44100, 48000, 2)

	n := r.Resample([]int32{}, make([]int32, 100))

	if n != 0 {
		t.Errorf("expected 0 samples from empty input, got %d", n)
	}
}
