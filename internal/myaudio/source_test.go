package myaudio

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elan-lab/ultravox-elan/internal/errors"
)

// writeTestWAV writes interleaved 16-bit samples to a new WAV file.
func writeTestWAV(t *testing.T, path string, sampleRate, channels int, data []int) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: channels},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func readAll(t *testing.T, src Source) []float64 {
	t.Helper()

	var out []float64
	buf := make([]float64, 1000)
	for {
		n, err := src.Read(context.Background(), buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
	}
}

func TestWAVSourceSelectsChannel(t *testing.T) {
	t.Parallel()

	const frames = 20000
	data := make([]int, 0, frames*2)
	for range frames {
		data = append(data, 1000, -2000)
	}
	path := filepath.Join(t.TempDir(), "stereo.wav")
	writeTestWAV(t, path, 48000, 2, data)

	testCases := []struct {
		name    string
		channel int
		want    float64
	}{
		{name: "left", channel: 0, want: 1000.0 / 32768.0},
		{name: "right", channel: 1, want: -2000.0 / 32768.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			src, err := OpenFile(path, tc.channel, 1)
			require.NoError(t, err)
			defer src.Close()

			assert.Equal(t, 48000, src.SampleRate())
			assert.Equal(t, "stereo.wav", src.Name())

			samples := readAll(t, src)
			require.Len(t, samples, frames)
			assert.InDelta(t, tc.want, samples[0], 1e-9)
			assert.InDelta(t, tc.want, samples[frames-1], 1e-9)
		})
	}
}

func TestWAVSourceAppliesGainWithClamp(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mono.wav")
	writeTestWAV(t, path, 22050, 1, []int{8192, -8192, 30000})

	src, err := NewWAVSource(path, 0, 4)
	require.NoError(t, err)
	defer src.Close()

	samples := readAll(t, src)
	require.Len(t, samples, 3)
	assert.InDelta(t, 1.0, samples[0], 1e-9)
	assert.InDelta(t, -1.0, samples[1], 1e-9)
	assert.InDelta(t, 1.0, samples[2], 1e-9)
}

func TestWAVSourceHonoursContext(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mono.wav")
	writeTestWAV(t, path, 8000, 1, make([]int, 100))

	src, err := NewWAVSource(path, 0, 1)
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Read(ctx, make([]float64, 10))
	require.ErrorIs(t, err, context.Canceled)
}

func TestOpenFileErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mono := filepath.Join(dir, "mono.wav")
	writeTestWAV(t, mono, 8000, 1, make([]int, 10))

	garbage := filepath.Join(dir, "garbage.wav")
	require.NoError(t, os.WriteFile(garbage, []byte("not a riff file at all"), 0o600))

	notFLAC := filepath.Join(dir, "fake.flac")
	require.NoError(t, os.WriteFile(notFLAC, []byte("definitely not flac"), 0o600))

	testCases := []struct {
		name     string
		path     string
		channel  int
		category errors.ErrorCategory
	}{
		{name: "unsupported extension", path: filepath.Join(dir, "a.mp3"), category: errors.CategoryValidation},
		{name: "missing file", path: filepath.Join(dir, "missing.wav"), category: errors.CategoryFileIO},
		{name: "invalid wav", path: garbage, category: errors.CategoryFileParsing},
		{name: "channel out of range", path: mono, channel: 1, category: errors.CategoryValidation},
		{name: "invalid flac", path: notFLAC, category: errors.CategoryFileParsing},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := OpenFile(tc.path, tc.channel, 1)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, tc.category), "got %v", err)
		})
	}
}

func TestDecodeSample(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int32(-2), decodeSample([]byte{0xfe, 0xff}, 16))
	assert.Equal(t, int32(-1), decodeSample([]byte{0xff, 0xff, 0xff}, 24))
	assert.Equal(t, int32(8388607), decodeSample([]byte{0xff, 0xff, 0x7f}, 24))
	assert.Equal(t, int32(-8388608), decodeSample([]byte{0x00, 0x00, 0x80}, 24))
	assert.Equal(t, int32(1), decodeSample([]byte{0x01, 0x00, 0x00, 0x00}, 32))
}

func TestGetAudioDivisor(t *testing.T) {
	t.Parallel()

	for bits, want := range map[int]float64{16: 32768, 24: 8388608, 32: 2147483648} {
		got, err := getAudioDivisor(bits)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 0)
	}
	_, err := getAudioDivisor(8)
	require.Error(t, err)
}

func TestLevelDBFS(t *testing.T) {
	t.Parallel()

	sine := make([]float64, 4800)
	for i := range sine {
		sine[i] = math.Sin(2 * math.Pi * 1000 * float64(i) / 48000)
	}
	assert.InDelta(t, -3.01, LevelDBFS(sine), 0.05)
	assert.InDelta(t, silenceFloorDBFS, LevelDBFS(make([]float64, 10)), 0)
	assert.InDelta(t, silenceFloorDBFS, LevelDBFS(nil), 0)
}
