package logger_test

import (
	"bytes"
	"errors"
	"io"
	"net"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elan-lab/ultravox-elan/internal/logger"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestCentral(t *testing.T, cfg *logger.Config) (*logger.CentralLogger, *syncBuffer) {
	t.Helper()
	buf := &syncBuffer{}
	cfg.Console = buf
	cl, err := logger.NewCentralLogger(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })
	return cl, buf
}

func TestConsoleLineFormat(t *testing.T) {
	t.Parallel()

	cl, buf := newTestCentral(t, &logger.Config{DefaultLevel: "info", Timezone: "UTC"})
	cl.Module("audio").Info("capture started",
		logger.String("device", "hw:1,0"),
		logger.Int("sample_rate", 250000),
		logger.String("note", "two words"))

	line := buf.String()
	pattern := regexp.MustCompile(
		`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3}\] \[audio\] \[INFO\] capture started device=hw:1,0 sample_rate=250000 note="two words"\n$`)
	assert.Regexp(t, pattern, line)
}

func TestModuleLevels(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		levels    map[string]string
		module    string
		log       func(l logger.Logger)
		wantLabel string
		wantEmpty bool
	}{
		{
			name:      "trace enabled for module",
			levels:    map[string]string{"ultravox": "trace"},
			module:    "ultravox",
			log:       func(l logger.Logger) { l.Trace("frame analysed") },
			wantLabel: "[TRACE]",
		},
		{
			name:      "trace suppressed at info",
			levels:    map[string]string{},
			module:    "ultravox",
			log:       func(l logger.Logger) { l.Trace("frame analysed") },
			wantEmpty: true,
		},
		{
			name:      "debug enabled for audio",
			levels:    map[string]string{"audio": "debug"},
			module:    "audio",
			log:       func(l logger.Logger) { l.Debug("buffer stats") },
			wantLabel: "[DEBUG]",
		},
		{
			name:      "debug suppressed for other module",
			levels:    map[string]string{"audio": "debug"},
			module:    "analysis",
			log:       func(l logger.Logger) { l.Debug("buffer stats") },
			wantEmpty: true,
		},
		{
			name:      "sub-module inherits top-level level",
			levels:    map[string]string{"audio": "debug"},
			module:    "audio.capture",
			log:       func(l logger.Logger) { l.Debug("buffer stats") },
			wantLabel: "[DEBUG]",
		},
		{
			name:      "explicit warn level",
			levels:    map[string]string{},
			module:    "audio",
			log:       func(l logger.Logger) { l.Log(logger.LogLevelWarn, "overrun") },
			wantLabel: "[WARN]",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cl, buf := newTestCentral(t, &logger.Config{DefaultLevel: "info", ModuleLevels: tc.levels})
			tc.log(cl.Module(tc.module))

			if tc.wantEmpty {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), tc.wantLabel)
			assert.Contains(t, buf.String(), "["+tc.module+"]")
		})
	}
}

func TestSubModuleAndFields(t *testing.T) {
	t.Parallel()

	cl, buf := newTestCentral(t, &logger.Config{})
	log := cl.Module("audio").Module("wav").With(logger.String("device", "Cage1"))
	log.Error("decode failed", logger.Error(errors.New("short read")), logger.Float64("level", 1.23456))

	out := buf.String()
	assert.Contains(t, out, "[audio.wav] [ERROR] decode failed")
	assert.Contains(t, out, "device=Cage1")
	assert.Contains(t, out, `error="short read"`)
	assert.Contains(t, out, "level=1.235")
}

func TestSinksReceiveConsoleLines(t *testing.T) {
	t.Parallel()

	sink := &syncBuffer{}
	cl, console := newTestCentral(t, &logger.Config{Sinks: []io.Writer{sink}})
	cl.Module("analysis").Info("session started")

	assert.Equal(t, console.String(), sink.String())
	assert.Equal(t, 1, strings.Count(sink.String(), "\n"))
}

func TestRawLogger(t *testing.T) {
	t.Parallel()

	a, b := &syncBuffer{}, &syncBuffer{}
	raw := logger.NewRawLogger(a, nil, b)

	raw.Info("Call;Device;Name;Start (s);End (s);Freq (Hz);Amp", logger.String("ignored", "x"))
	raw.Debug("not emitted")
	raw.Info("1;Cage1;USV;0.120;0.180;62000;18.4")

	want := "Call;Device;Name;Start (s);End (s);Freq (Hz);Amp\n1;Cage1;USV;0.120;0.180;62000;18.4\n"
	assert.Equal(t, want, a.String())
	assert.Equal(t, want, b.String())
}

func TestUDPWriterSendsOneDatagramPerWrite(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	w, err := logger.NewUDPWriter(pc.LocalAddr().String())
	require.NoError(t, err)
	assert.Equal(t, pc.LocalAddr().String(), w.Target())

	raw := logger.NewRawLogger(w)
	raw.Info("Call;Device;Name;Start (s);End (s);Freq (Hz);Amp")
	raw.Info("1;Cage1;USV;0.120;0.180;62000;18.4")

	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 2048)

	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "Call;Device;Name;Start (s);End (s);Freq (Hz);Amp\n", string(buf[:n]))

	n, _, err = pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "1;Cage1;USV;0.120;0.180;62000;18.4\n", string(buf[:n]))

	require.NoError(t, w.Close())
	_, err = w.Write([]byte("late"))
	require.ErrorIs(t, err, net.ErrClosed)
}

func TestNewUDPWriterRejectsBadTarget(t *testing.T) {
	t.Parallel()

	_, err := logger.NewUDPWriter("no-port-here")
	require.Error(t, err)
}

func TestNewCentralLoggerValidation(t *testing.T) {
	t.Parallel()

	_, err := logger.NewCentralLogger(nil)
	require.Error(t, err)

	_, err = logger.NewCentralLogger(&logger.Config{Timezone: "Not/AZone"})
	require.Error(t, err)
}
