package cmdutil

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fjl/midisds/sds"
	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
	"github.com/go-audio/transforms"
	"github.com/go-audio/wav"
)

var (
	ErrNotWavFile  = errors.New("not a valid WAV file")
	ErrNotAiffFile = errors.New("not a valid AIFF file")
)

// Waveform is mono PCM sample data.
type Waveform struct {
	Samples    []int
	BitDepth   int
	SampleRate int
}

// IsAudioFile reports whether name has an extension handled by ReadWaveform.
func IsAudioFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".aif", ".aiff":
		return true
	}
	return false
}

// ReadWaveform decodes a .wav or .aiff file. Multi-channel audio is mixed
// down to mono, and bit depths above 28 are reduced to 28.
func ReadWaveform(file string) (*Waveform, error) {
	fd, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	var buffer *audio.IntBuffer
	switch strings.ToLower(filepath.Ext(file)) {
	case ".wav":
		buffer, err = readWAV(fd)
	case ".aif", ".aiff":
		buffer, err = readAIFF(fd)
	default:
		err = fmt.Errorf("unsupported audio file type %q", filepath.Ext(file))
	}
	if err != nil {
		return nil, err
	}

	if buffer.Format.NumChannels > 1 {
		slog.Info("converting to mono", "channels", buffer.Format.NumChannels)
		buffer = mixToMono(buffer)
	}
	w := &Waveform{
		Samples:    buffer.Data,
		BitDepth:   buffer.SourceBitDepth,
		SampleRate: buffer.Format.SampleRate,
	}
	if w.BitDepth > sds.MaxBitDepth {
		shift := w.BitDepth - sds.MaxBitDepth
		for i := range w.Samples {
			w.Samples[i] >>= shift
		}
		w.BitDepth = sds.MaxBitDepth
	}
	return w, nil
}

func readWAV(r io.ReadSeeker) (*audio.IntBuffer, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, ErrNotWavFile
	}
	decoder.ReadInfo()
	if err := decoder.Err(); err != nil {
		return nil, err
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	buf.SourceBitDepth = int(decoder.BitDepth)

	// 8-bit WAV is unsigned.
	if decoder.BitDepth == 8 {
		for i := range buf.Data {
			buf.Data[i] -= 128
		}
	}
	return buf, nil
}

func readAIFF(r io.ReadSeeker) (*audio.IntBuffer, error) {
	decoder := aiff.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, ErrNotAiffFile
	}
	decoder.ReadInfo()
	format := decoder.Format()
	if format == nil {
		return nil, ErrNotAiffFile
	}

	out := &audio.IntBuffer{Format: format, SourceBitDepth: int(decoder.BitDepth)}
	buf := &audio.IntBuffer{Data: make([]int, 4096), Format: format}
	for {
		n, err := decoder.PCMBuffer(buf)
		out.Data = append(out.Data, buf.Data[:n]...)
		if err == io.EOF || (err == nil && n == 0) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func mixToMono(inputBuffer *audio.IntBuffer) *audio.IntBuffer {
	bitDepth := inputBuffer.SourceBitDepth
	fb := inputBuffer.AsFloatBuffer()
	transforms.MonoDownmix(fb)
	mono := fb.AsIntBuffer()
	mono.SourceBitDepth = bitDepth
	return mono
}

// WriteWAV writes mono samples of the given bit depth to a WAV file. The
// samples are left-justified in the smallest WAV sample size that fits.
func WriteWAV(file string, w *Waveform) error {
	wavDepth := (w.BitDepth + 7) / 8 * 8
	shift := wavDepth - w.BitDepth
	data := make([]int, len(w.Samples))
	for i, s := range w.Samples {
		data[i] = s << shift
		if wavDepth == 8 {
			data[i] += 128
		}
	}

	fd, err := os.Create(file)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(fd, w.SampleRate, wavDepth, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: w.SampleRate},
		Data:           data,
		SourceBitDepth: wavDepth,
	}
	if err := enc.Write(buf); err != nil {
		fd.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		fd.Close()
		return err
	}
	return fd.Close()
}

func SampleRateToPeriod(rate int) uint {
	if rate <= 0 {
		return 0
	}
	return uint(1000000000 / rate)
}

func PeriodToSampleRate(period uint) int {
	if period == 0 {
		return 0
	}
	return int((1000000000 + period/2) / period)
}
