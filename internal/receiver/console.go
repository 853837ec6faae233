package receiver

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/elan-lab/ultravox-elan/internal/logger"
)

// SummaryHeader is the first line of a summary file.
const SummaryHeader = "Date,Time,Cage,Label,Duration (ms)"

// Console prints every line tagged as CSV or LOG and optionally copies CSV
// lines to a file.
type Console struct {
	out io.Writer
	csv io.Writer // may be nil
	now func() time.Time
	mu  sync.Mutex
}

// NewConsole returns a console printer writing to out. csv may be nil.
func NewConsole(out, csv io.Writer) *Console {
	return &Console{out: out, csv: csv, now: time.Now}
}

// Handle prints groups[0]. Register it for AnyLine.
func (c *Console) Handle(groups []string) {
	line := groups[0]

	c.mu.Lock()
	defer c.mu.Unlock()

	stamp := c.now().Format(time.TimeOnly)
	if !IsCSV(line) {
		fmt.Fprintf(c.out, "[%s] LOG | %s\n", stamp, line)
		return
	}

	fmt.Fprintf(c.out, "[%s] CSV | %s\n", stamp, line)
	if c.csv == nil {
		return
	}
	if _, err := io.WriteString(c.csv, line+"\n"); err != nil {
		GetLogger().Warn("failed to write CSV line", logger.Error(err))
		return
	}
	if s, ok := c.csv.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}
}

// Summary writes one dated row per detected call.
type Summary struct {
	w   io.Writer
	now func() time.Time
	mu  sync.Mutex
}

// NewSummary returns a summary writer. Call WriteHeader before the first row.
func NewSummary(w io.Writer) *Summary {
	return &Summary{w: w, now: time.Now}
}

// WriteHeader writes the column names.
func (s *Summary) WriteHeader() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.w, SummaryHeader)
	return err
}

// Handle writes a row for a call line. Register it for CallPattern.
func (s *Summary) Handle(groups []string) {
	if len(groups) != 8 {
		return
	}
	cage, label := groups[2], groups[3]
	start, err1 := strconv.ParseFloat(groups[4], 64)
	end, err2 := strconv.ParseFloat(groups[5], 64)
	if err1 != nil || err2 != nil {
		GetLogger().Warn("skipping call row with invalid times", logger.String("line", groups[0]))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if _, err := fmt.Fprintf(s.w, "%s,%s,%s,%s,%.2f\n",
		now.Format(time.DateOnly), now.Format(time.TimeOnly), cage, label, (end-start)*1000); err != nil {
		GetLogger().Warn("failed to write summary row", logger.Error(err))
	}
}
