package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/elan-lab/ultravox-elan/internal/logger"
	"github.com/elan-lab/ultravox-elan/internal/observability/metrics"
	"github.com/elan-lab/ultravox-elan/internal/ultravox"
)

// DevicePlaceholder is replaced with the device name in topic patterns.
const DevicePlaceholder = "{device}"

const (
	dropReasonQueueFull = "queue_full"
	dropReasonPublish   = "publish_failed"
	dropReasonShutdown  = "shutdown"

	dropWarningInterval = 5 * time.Second
)

// topicReplacer strips MQTT wildcard and level characters from device names.
var topicReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// TopicFor expands the topic pattern for a device.
func TopicFor(pattern, device string) string {
	return strings.ReplaceAll(pattern, DevicePlaceholder, topicReplacer.Replace(device))
}

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	Topic          string // pattern, may contain {device}
	QueueSize      int
	PublishTimeout time.Duration
}

type outgoing struct {
	topic   string
	payload []byte
}

// Publisher queues call messages and publishes them from a single worker so a
// slow broker never blocks detection. When the queue is full, messages are
// dropped with a rate-limited warning.
type Publisher struct {
	client  Client
	cfg     PublisherConfig
	session string
	queue   chan outgoing
	metrics *metrics.MQTTMetrics
	limiter *rate.Limiter
	log     logger.Logger
	now     func() time.Time

	ctx    context.Context // parent of every publish, cancelled when Close gives up
	cancel context.CancelFunc

	mu       sync.RWMutex // guards closed against sends on a closed queue
	closed   bool
	started  atomic.Bool
	dropped  atomic.Int64
	shutdown atomic.Int64
	done     chan struct{}
}

// NewPublisher returns a publisher that sends through client. m may be nil.
func NewPublisher(client Client, cfg PublisherConfig, m *metrics.MQTTMetrics) *Publisher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultConfig().PublishTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		ctx:     ctx,
		cancel:  cancel,
		client:  client,
		cfg:     cfg,
		session: uuid.NewString(),
		queue:   make(chan outgoing, cfg.QueueSize),
		metrics: m,
		limiter: rate.NewLimiter(rate.Every(dropWarningInterval), 1),
		log:     GetLogger(),
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// Session returns the UUID stamped on every message of this run.
func (p *Publisher) Session() string { return p.session }

// Start runs the publishing worker until Close is called.
func (p *Publisher) Start() {
	if p.started.CompareAndSwap(false, true) {
		go p.run()
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		if p.ctx.Err() != nil {
			p.countShutdownDrop()
			continue
		}
		ctx, cancel := context.WithTimeout(p.ctx, p.cfg.PublishTimeout)
		err := p.client.Publish(ctx, msg.topic, msg.payload)
		cancel()
		switch {
		case err == nil:
		case p.ctx.Err() != nil:
			p.countShutdownDrop()
		default:
			p.drop(dropReasonPublish, logger.String("topic", msg.topic), logger.Error(err))
		}
	}
}

// Enqueue queues call number n for publishing. It never blocks and reports
// whether the message was accepted.
func (p *Publisher) Enqueue(n int, c ultravox.Call) bool {
	payload, err := json.Marshal(NewCallMessage(p.session, n, c, p.now()))
	if err != nil {
		p.log.Error("failed to encode call message", logger.Error(err))
		return false
	}
	msg := outgoing{topic: TopicFor(p.cfg.Topic, c.Device), payload: payload}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.queue <- msg:
		return true
	default:
		p.drop(dropReasonQueueFull, logger.String("topic", msg.topic), logger.Int("call", n))
		return false
	}
}

// Close stops accepting messages and waits for queued ones to be published
// until ctx is done. The publish in flight is then aborted and messages still
// queued are dropped. The worker has exited when Close returns.
func (p *Publisher) Close(ctx context.Context) {
	p.mu.Lock()
	first := !p.closed
	if first {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	if !p.started.Load() {
		p.cancel()
		for range p.queue {
			p.countShutdownDrop()
		}
	} else {
		select {
		case <-p.done:
		case <-ctx.Done():
			p.cancel()
			<-p.done
		}
	}
	p.cancel()

	if n := p.shutdown.Load(); first && n > 0 {
		p.log.Warn("dropped unpublished call messages at shutdown",
			logger.Int64("count", n),
			logger.Int64("total_dropped", p.dropped.Load()))
	}
}

// Dropped returns the number of messages dropped so far, including those
// abandoned by Close.
func (p *Publisher) Dropped() int {
	return int(p.dropped.Load())
}

func (p *Publisher) drop(reason string, fields ...logger.Field) {
	total := p.dropped.Add(1)

	if p.metrics != nil {
		p.metrics.IncrementMessagesDropped(reason)
	}
	if p.limiter.Allow() {
		fields = append(fields, logger.String("reason", reason), logger.Int64("total_dropped", total))
		p.log.Warn("call message dropped", fields...)
	}
}

// countShutdownDrop records a message abandoned by Close. Close logs these
// once, so there is no per-message warning.
func (p *Publisher) countShutdownDrop() {
	p.dropped.Add(1)
	p.shutdown.Add(1)
	if p.metrics != nil {
		p.metrics.IncrementMessagesDropped(dropReasonShutdown)
	}
}
