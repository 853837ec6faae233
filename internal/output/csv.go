// Package output renders detected calls as the detector's CSV stream.
package output

import (
	"fmt"
	"sync"

	"github.com/elan-lab/ultravox-elan/internal/logger"
	"github.com/elan-lab/ultravox-elan/internal/ultravox"
)

// CSV headers for the two row layouts.
const (
	Header             = "Call;Device;Name;Start (s);End (s);Freq (Hz);Amp"
	HeaderWithDuration = "Call;Device;Name;Duration (ms);Start (s);End (s);Freq (Hz);Amp"
)

// HeaderFor returns the header line for the chosen layout.
func HeaderFor(withDuration bool) string {
	if withDuration {
		return HeaderWithDuration
	}
	return Header
}

// FormatRow renders call number n.
func FormatRow(n int, c ultravox.Call, withDuration bool) string {
	if withDuration {
		return fmt.Sprintf("%d;%s;%s;%.1f;%.3f;%.3f;%.0f;%.1f",
			n, c.Device, c.Name, c.Duration()*1000, c.Start, c.End, c.Frequency, c.Amplitude)
	}
	return fmt.Sprintf("%d;%s;%s;%.3f;%.3f;%.0f;%.1f",
		n, c.Device, c.Name, c.Start, c.End, c.Frequency, c.Amplitude)
}

// CSVWriter numbers calls and writes them through a raw logger, one line per
// record. It is safe for concurrent use.
type CSVWriter struct {
	mu           sync.Mutex
	log          logger.Logger
	withDuration bool
	count        int
}

// NewCSVWriter returns a writer that emits rows through log, which should be
// a raw logger so lines carry no decoration.
func NewCSVWriter(log logger.Logger, withDuration bool) *CSVWriter {
	return &CSVWriter{log: log, withDuration: withDuration}
}

// WriteHeader writes the header line.
func (w *CSVWriter) WriteHeader() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.log.Info(HeaderFor(w.withDuration))
}

// WriteCall numbers the call, writes its row and returns the number used.
func (w *CSVWriter) WriteCall(c ultravox.Call) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.count++
	w.log.Info(FormatRow(w.count, c, w.withDuration))
	return w.count
}

// Count returns the number of rows written so far.
func (w *CSVWriter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
