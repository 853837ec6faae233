package logger

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// rawHandler writes only the record message followed by a newline.
// Attributes, timestamps and levels are dropped.
type rawHandler struct {
	w     io.Writer
	mu    *sync.Mutex
	level slog.Level
}

func (h *rawHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

//nolint:gocritic // slog.Handler interface requires record by value, not pointer
func (h *rawHandler) Handle(_ context.Context, r slog.Record) error {
	line := make([]byte, 0, len(r.Message)+1)
	line = append(line, r.Message...)
	line = append(line, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(line)
	return err
}

func (h *rawHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *rawHandler) WithGroup(string) slog.Handler      { return h }

// NewRawLogger returns an info-level logger that writes each message verbatim,
// one line per call, to every writer. Records below info are discarded.
func NewRawLogger(writers ...io.Writer) Logger {
	handlers := make([]slog.Handler, 0, len(writers))
	for _, w := range writers {
		if w == nil {
			continue
		}
		handlers = append(handlers, &rawHandler{w: w, mu: &sync.Mutex{}, level: slog.LevelInfo})
	}
	var handler slog.Handler
	if len(handlers) == 0 {
		handler = &rawHandler{w: io.Discard, mu: &sync.Mutex{}, level: slog.LevelInfo}
	} else {
		handler = newMultiWriterHandler(handlers...)
	}
	return &moduleLogger{
		logger:   slog.New(handler),
		level:    slog.LevelInfo,
		timezone: time.Local,
	}
}
