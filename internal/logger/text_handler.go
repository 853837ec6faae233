package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// consoleTimeFormat matches the detector's historical console layout
	consoleTimeFormat = "2006-01-02 15:04:05.000"

	moduleKey = "module"
)

// textHandler renders records as single text lines:
//
//	[2006-01-02 15:04:05.000] [module] [level] message key=value
//
// Each record is written with exactly one Write call so datagram sinks
// receive one record per packet.
type textHandler struct {
	w        io.Writer
	mu       *sync.Mutex
	level    slog.Leveler
	timezone *time.Location
	module   string
	prefix   string // group prefix for attribute keys
	attrs    []byte // preformatted attributes from WithAttrs
}

func newTextHandler(w io.Writer, level slog.Leveler, tz *time.Location) *textHandler {
	if tz == nil {
		tz = time.Local
	}
	return &textHandler{w: w, mu: &sync.Mutex{}, level: level, timezone: tz}
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

//nolint:gocritic // slog.Handler interface requires record by value, not pointer
func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	buf.WriteByte('[')
	buf.WriteString(ts.In(h.timezone).Format(consoleTimeFormat))
	buf.WriteString("] ")

	module := h.module
	var rest []byte
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == moduleKey && h.prefix == "" {
			module = a.Value.String()
			return true
		}
		rest = appendAttr(rest, h.prefix, a)
		return true
	})

	if module != "" {
		buf.WriteByte('[')
		buf.WriteString(module)
		buf.WriteString("] ")
	}
	buf.WriteByte('[')
	buf.WriteString(levelName(r.Level))
	buf.WriteString("] ")
	buf.WriteString(r.Message)
	buf.Write(h.attrs)
	buf.Write(rest)
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]byte(nil), h.attrs...)
	for _, a := range attrs {
		if a.Key == moduleKey && h.prefix == "" {
			next.module = a.Value.String()
			continue
		}
		next.attrs = appendAttr(next.attrs, h.prefix, a)
	}
	return &next
}

func (h *textHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// appendAttr renders " key=value", expanding groups into dotted keys.
func appendAttr(dst []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return dst
	}
	if a.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if a.Key != "" {
			groupPrefix = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			dst = appendAttr(dst, groupPrefix, ga)
		}
		return dst
	}

	dst = append(dst, ' ')
	dst = append(dst, prefix...)
	dst = append(dst, a.Key...)
	dst = append(dst, '=')

	switch a.Value.Kind() {
	case slog.KindString:
		dst = appendQuoted(dst, a.Value.String())
	case slog.KindTime:
		dst = append(dst, a.Value.Time().Format(time.RFC3339)...)
	case slog.KindDuration:
		dst = append(dst, a.Value.Duration().String()...)
	case slog.KindFloat64:
		dst = strconv.AppendFloat(dst, a.Value.Float64(), 'f', -1, 64)
	case slog.KindAny:
		dst = appendQuoted(dst, fmt.Sprint(a.Value.Any()))
	default:
		dst = append(dst, a.Value.String()...)
	}
	return dst
}

func appendQuoted(dst []byte, s string) []byte {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.AppendQuote(dst, s)
	}
	return append(dst, s...)
}

// levelName returns the upper-case level label, including TRACE.
func levelName(level slog.Level) string {
	switch {
	case level <= traceLevelValue:
		return "TRACE"
	case level < slog.LevelInfo:
		return "DEBUG"
	case level < slog.LevelWarn:
		return "INFO"
	case level < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}
