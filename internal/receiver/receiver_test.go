package receiver

import (
	"bytes"
	"context"
	"net"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func fixedClock() time.Time {
	return time.Date(2026, 2, 12, 14, 23, 5, 0, time.Local)
}

func TestIsCSV(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		line string
		want bool
	}{
		{"Call;Device;Name;Start (s);End (s);Freq (Hz);Amp", true},
		{"1;Cage1;40-120kHz;1.234;1.246;52000;8.5", true},
		{"123;x", true},
		{"[2026-02-12 14:23:01.234] [audio] [DEBUG] opening device", false},
		{"Calls;x", false},
		{"12a;x", false},
		{"", false},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, IsCSV(tc.line), tc.line)
	}
}

func TestConsoleClassifiesLines(t *testing.T) {
	t.Parallel()

	var out, csv bytes.Buffer
	c := NewConsole(&out, &csv)
	c.now = fixedClock

	r := New(nopConn{})
	r.On(AnyLine, c.Handle)
	r.Dispatch("Call;Device;Name;Start (s);End (s);Freq (Hz);Amp\n")
	r.Dispatch("[2026-02-12 14:23:01.234] [audio] [DEBUG] opening device\n")
	r.Dispatch("\n")
	r.Dispatch("1;Cage1;40-120kHz;1.234;1.246;52000;8.5\n")

	assert.Equal(t,
		"[14:23:05] CSV | Call;Device;Name;Start (s);End (s);Freq (Hz);Amp\n"+
			"[14:23:05] LOG | [2026-02-12 14:23:01.234] [audio] [DEBUG] opening device\n"+
			"[14:23:05] CSV | 1;Cage1;40-120kHz;1.234;1.246;52000;8.5\n",
		out.String())
	assert.Equal(t,
		"Call;Device;Name;Start (s);End (s);Freq (Hz);Amp\n"+
			"1;Cage1;40-120kHz;1.234;1.246;52000;8.5\n",
		csv.String())
}

func TestSummaryRows(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := NewSummary(&buf)
	s.now = fixedClock
	require.NoError(t, s.WriteHeader())

	r := New(nopConn{})
	r.On(CallPattern, s.Handle)
	r.Dispatch("Call;Device;Name;Start (s);End (s);Freq (Hz);Amp")
	r.Dispatch("1;Cage1;40-120kHz;1.234;1.246;52000;8.5")
	r.Dispatch("2;Cage2;22kHz;10.5;10.5625;22000;12.0")
	r.Dispatch("3;Cage1;USV;12.3;1.234;1.246;52000;8.5") // duration layout is not summarised
	r.Dispatch("[log] 1;2;3;4;5;6;7")

	assert.Equal(t,
		"Date,Time,Cage,Label,Duration (ms)\n"+
			"2026-02-12,14:23:05,Cage1,40-120kHz,12.00\n"+
			"2026-02-12,14:23:05,Cage2,22kHz,62.50\n",
		buf.String())
}

func TestSummarySkipsInvalidTimes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := NewSummary(&buf)
	s.Handle(CallPattern.FindStringSubmatch("1;Cage1;USV;abc;1.2;52000;8.5"))
	assert.Empty(t, buf.String())
}

func TestEveryMatchingHandlerIsCalled(t *testing.T) {
	t.Parallel()

	r := New(nopConn{})
	var got [][]string
	record := func(groups []string) { got = append(got, groups) }

	r.On(regexp.MustCompile(`^(\d+);(\w+)`), record)
	r.On(regexp.MustCompile(`Cage(\d)`), record)
	r.On(regexp.MustCompile(`^never$`), record)

	r.Dispatch("7;Cage3;USV\n")

	require.Len(t, got, 2)
	assert.Equal(t, []string{"7;Cage3", "7", "Cage3"}, got[0])
	assert.Equal(t, []string{"Cage3", "3"}, got[1])
}

func TestAnyLineKeepsMultiLineDatagrams(t *testing.T) {
	t.Parallel()

	r := New(nopConn{})
	var got []string
	r.On(AnyLine, func(groups []string) { got = append(got, groups[0]) })

	r.Dispatch("[2026-02-12 14:23:01.234] [analysis] [ERROR] detection failed\ngoroutine 1 [running]:\n")
	r.Dispatch("single line\n")

	assert.Equal(t, []string{
		"[2026-02-12 14:23:01.234] [analysis] [ERROR] detection failed\ngoroutine 1 [running]:",
		"single line",
	}, got)
}

func TestRunReceivesDatagramsUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, err := Listen("127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var lines []string
	r.On(AnyLine, func(groups []string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, groups[0])
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	conn, err := net.Dial("udp", r.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	for _, msg := range []string{"Call;Device\n", "1;Cage1;USV\n", "hello\n"} {
		_, err := conn.Write([]byte(msg))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(lines) == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Call;Device,1;Cage1;USV,hello", strings.Join(lines, ","))
}

func TestListenRejectsBadAddress(t *testing.T) {
	t.Parallel()

	_, err := Listen("127.0.0.1:notaport")
	require.Error(t, err)
}

// nopConn satisfies net.PacketConn for receivers that are only dispatched to.
type nopConn struct{ net.PacketConn }
