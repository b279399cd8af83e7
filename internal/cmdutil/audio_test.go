package cmdutil

import (
	"path/filepath"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		bitDepth int
	}{
		{"8bit", 8},
		{"16bit", 16},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			lo, hi := -(1 << (test.bitDepth - 1)), 1<<(test.bitDepth-1)-1
			in := &Waveform{BitDepth: test.bitDepth, SampleRate: 44100}
			for i := 0; i < 600; i++ {
				in.Samples = append(in.Samples, lo+(i*97)%(hi-lo+1))
			}
			in.Samples = append(in.Samples, lo, hi, 0)

			file := filepath.Join(t.TempDir(), "wave.wav")
			if err := WriteWAV(file, in); err != nil {
				t.Fatal(err)
			}
			out, err := ReadWaveform(file)
			if err != nil {
				t.Fatal(err)
			}
			if out.BitDepth != test.bitDepth {
				t.Errorf("BitDepth = %d, want %d", out.BitDepth, test.bitDepth)
			}
			if out.SampleRate != 44100 {
				t.Errorf("SampleRate = %d, want 44100", out.SampleRate)
			}
			if len(out.Samples) != len(in.Samples) {
				t.Fatalf("got %d samples, want %d", len(out.Samples), len(in.Samples))
			}
			for i := range in.Samples {
				if out.Samples[i] != in.Samples[i] {
					t.Fatalf("sample %d = %d, want %d", i, out.Samples[i], in.Samples[i])
				}
			}
		})
	}
}

func TestWAVOddBitDepth(t *testing.T) {
	t.Parallel()

	in := &Waveform{BitDepth: 12, SampleRate: 32000, Samples: []int{-2048, -1, 0, 1, 2047}}
	file := filepath.Join(t.TempDir(), "wave12.wav")
	if err := WriteWAV(file, in); err != nil {
		t.Fatal(err)
	}
	out, err := ReadWaveform(file)
	if err != nil {
		t.Fatal(err)
	}
	if out.BitDepth != 16 {
		t.Fatalf("BitDepth = %d, want 16", out.BitDepth)
	}
	for i, s := range in.Samples {
		if out.Samples[i] != s<<4 {
			t.Fatalf("sample %d = %d, want %d", i, out.Samples[i], s<<4)
		}
	}
}

func TestReadWaveformInvalid(t *testing.T) {
	t.Parallel()

	if _, err := ReadWaveform(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := ReadWaveform("audio.go"); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestIsAudioFile(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"a.wav":      true,
		"B.WAV":      true,
		"c.aif":      true,
		"d.aiff":     true,
		"e.sds":      false,
		"f":          false,
		"dir.wav/ff": false,
	}
	for name, want := range tests {
		if got := IsAudioFile(name); got != want {
			t.Errorf("IsAudioFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestPeriod(t *testing.T) {
	t.Parallel()

	for _, rate := range []int{8000, 22050, 31250, 44100, 48000} {
		p := SampleRateToPeriod(rate)
		if got := PeriodToSampleRate(p); got < rate-1 || got > rate+1 {
			t.Errorf("rate %d -> period %d -> rate %d", rate, p, got)
		}
	}
	if PeriodToSampleRate(0) != 0 {
		t.Error("PeriodToSampleRate(0) != 0")
	}
	for _, rate := range []int{0, -1} {
		if p := SampleRateToPeriod(rate); p != 0 {
			t.Errorf("SampleRateToPeriod(%d) = %d, want 0", rate, p)
		}
	}
}
