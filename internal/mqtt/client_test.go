package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/elan-lab/ultravox-elan/internal/errors"
	"github.com/elan-lab/ultravox-elan/internal/observability/metrics"
	"github.com/elan-lab/ultravox-elan/internal/ultravox"
)

type published struct {
	topic   string
	payload []byte
}

// fakeClient records publishes. When gate is non-nil every Publish waits on it.
type fakeClient struct {
	mu       sync.Mutex
	messages []published
	gate     chan struct{}
	err      error
}

func (f *fakeClient) Connect(context.Context) error { return nil }
func (f *fakeClient) IsConnected() bool             { return true }
func (f *fakeClient) Disconnect()                   {}

func (f *fakeClient) Publish(ctx context.Context, topic string, payload []byte) error {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, published{topic: topic, payload: payload})
	return nil
}

func (f *fakeClient) snapshot() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.messages...)
}

func testCall(device string) ultravox.Call {
	return ultravox.Call{Device: device, Name: "USV", Start: 1.25, End: 1.275, Frequency: 61000, Amplitude: 22.5}
}

func TestTopicFor(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		pattern, device, want string
	}{
		{"ultravox/{device}/calls", "Cage1", "ultravox/Cage1/calls"},
		{"ultravox/{device}/calls", "rack/a+#", "ultravox/rack_a__/calls"},
		{"lab/calls", "Cage1", "lab/calls"},
		{"{device}/{device}", "x", "x/x"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, TopicFor(tc.pattern, tc.device))
	}
}

func TestNewCallMessage(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("CET", 3600))
	msg := NewCallMessage("session-1", 7, testCall("Cage1"), at)

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "session-1", decoded["session"])
	assert.InDelta(t, 7, decoded["call"], 0)
	assert.Equal(t, "Cage1", decoded["device"])
	assert.Equal(t, "USV", decoded["name"])
	assert.InDelta(t, 25, decoded["duration_ms"], 1e-9)
	assert.InDelta(t, 61000, decoded["frequency_hz"], 0)
	assert.InDelta(t, 22.5, decoded["amplitude"], 0)
	assert.Equal(t, "2026-03-04T04:06:07Z", decoded["detected_at"])
	assert.Len(t, decoded, 10)
}

func TestPublisherDeliversInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	fc := &fakeClient{}
	p := NewPublisher(fc, PublisherConfig{Topic: "ultravox/{device}/calls", QueueSize: 16}, nil)
	p.Start()

	for i := 1; i <= 5; i++ {
		require.True(t, p.Enqueue(i, testCall("Cage1")))
	}
	p.Close(context.Background())

	msgs := fc.snapshot()
	require.Len(t, msgs, 5)
	for i, m := range msgs {
		assert.Equal(t, "ultravox/Cage1/calls", m.topic)
		var cm CallMessage
		require.NoError(t, json.Unmarshal(m.payload, &cm))
		assert.Equal(t, i+1, cm.Call)
		assert.Equal(t, p.Session(), cm.Session)
	}

	assert.False(t, p.Enqueue(6, testCall("Cage1")), "closed publisher must reject messages")
}

func TestPublisherDropsWhenQueueFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	registry := prometheus.NewRegistry()
	m, err := metrics.NewMQTTMetrics(registry)
	require.NoError(t, err)

	fc := &fakeClient{gate: make(chan struct{})}
	p := NewPublisher(fc, PublisherConfig{Topic: "t/{device}", QueueSize: 2}, m)

	// The worker is not started yet, so the queue holds exactly two messages.
	assert.True(t, p.Enqueue(1, testCall("a")))
	assert.True(t, p.Enqueue(2, testCall("a")))
	assert.False(t, p.Enqueue(3, testCall("a")))
	assert.False(t, p.Enqueue(4, testCall("a")))

	assert.Equal(t, 2, p.Dropped())
	assert.InDelta(t, 2, testutil.ToFloat64(m.MessagesDropped.WithLabelValues(dropReasonQueueFull)), 0)

	p.Start()
	close(fc.gate)
	p.Close(context.Background())
	assert.Len(t, fc.snapshot(), 2)
}

func TestPublisherCountsFailedPublishes(t *testing.T) {
	defer goleak.VerifyNone(t)

	fc := &fakeClient{err: errors.NewStd("broker said no")}
	p := NewPublisher(fc, PublisherConfig{Topic: "t", QueueSize: 4}, nil)
	p.Start()
	p.Enqueue(1, testCall("a"))
	p.Enqueue(2, testCall("a"))
	p.Close(context.Background())

	assert.Equal(t, 2, p.Dropped())
}

func TestPublisherCloseHonoursDeadline(t *testing.T) {
	defer goleak.VerifyNone(t)

	registry := prometheus.NewRegistry()
	m, err := metrics.NewMQTTMetrics(registry)
	require.NoError(t, err)

	// The broker never acknowledges, so nothing is delivered before the deadline.
	fc := &fakeClient{gate: make(chan struct{})}
	p := NewPublisher(fc, PublisherConfig{Topic: "t", QueueSize: 4, PublishTimeout: time.Minute}, m)
	p.Start()
	for i := 1; i <= 4; i++ {
		require.True(t, p.Enqueue(i, testCall("a")))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	p.Close(ctx)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	select {
	case <-p.done:
	default:
		t.Fatal("worker still running after Close returned")
	}

	shutdown := testutil.ToFloat64(m.MessagesDropped.WithLabelValues(dropReasonShutdown))
	failed := testutil.ToFloat64(m.MessagesDropped.WithLabelValues(dropReasonPublish))
	assert.InDelta(t, 4, shutdown, 0)
	assert.InDelta(t, 0, failed, 0)
	assert.Equal(t, 4, p.Dropped())
	assert.Empty(t, fc.snapshot())

	// A second Close neither blocks nor counts again.
	p.Close(context.Background())
	assert.Equal(t, 4, p.Dropped())
}

func TestPublisherCloseWithoutStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewPublisher(&fakeClient{}, PublisherConfig{Topic: "t", QueueSize: 4}, nil)
	p.Enqueue(1, testCall("a"))
	p.Enqueue(2, testCall("a"))
	p.Close(context.Background())

	assert.Equal(t, 2, p.Dropped())
}

func TestNewClientRejectsInvalidBroker(t *testing.T) {
	t.Parallel()

	for _, broker := range []string{"", "not a url", "://missing-scheme"} {
		_, err := NewClient(Config{Broker: broker}, nil)
		require.Error(t, err, broker)
		assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration), broker)
	}
}

func TestConnectUnresolvableHost(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{Broker: "tcp://unresolvable.invalid:1883", ClientID: "test"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = c.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnect))
	assert.False(t, c.IsConnected())
}

func TestPublishWhileDisconnected(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{Broker: "tcp://127.0.0.1:1883"}, nil)
	require.NoError(t, err)

	err = c.Publish(context.Background(), "t", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))
	c.Disconnect()
}
