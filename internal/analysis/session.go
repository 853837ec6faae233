// Package analysis runs one detection session: it wires logging, the CSV
// stream, metrics and MQTT publishing around an ultravox.Detector.
package analysis

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/elan-lab/ultravox-elan/internal/buildinfo"
	"github.com/elan-lab/ultravox-elan/internal/conf"
	"github.com/elan-lab/ultravox-elan/internal/errors"
	"github.com/elan-lab/ultravox-elan/internal/logger"
	"github.com/elan-lab/ultravox-elan/internal/mqtt"
	"github.com/elan-lab/ultravox-elan/internal/myaudio"
	"github.com/elan-lab/ultravox-elan/internal/observability"
	"github.com/elan-lab/ultravox-elan/internal/observability/metrics"
	"github.com/elan-lab/ultravox-elan/internal/output"
	"github.com/elan-lab/ultravox-elan/internal/ultravox"
)

const (
	// mqttDrainTimeout bounds how long queued call messages may take to publish at shutdown.
	mqttDrainTimeout = 5 * time.Second
	// sentryFlushTimeout bounds the final Sentry flush.
	sentryFlushTimeout = 2 * time.Second
)

// MQTTClientFactory creates the MQTT client used for publishing.
type MQTTClientFactory func(cfg mqtt.Config, m *observability.Metrics) (mqtt.Client, error)

// Option customises a session.
type Option func(*options)

type options struct {
	stdout       io.Writer
	stderr       io.Writer
	detectorOpts []ultravox.Option
	newMQTT      MQTTClientFactory
}

// WithStdout redirects the CSV stream.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithStderr redirects console logging.
func WithStderr(w io.Writer) Option {
	return func(o *options) { o.stderr = w }
}

// WithDetectorOptions passes extra options to the detector.
func WithDetectorOptions(opts ...ultravox.Option) Option {
	return func(o *options) { o.detectorOpts = append(o.detectorOpts, opts...) }
}

// WithMQTTClientFactory replaces the paho-backed client.
func WithMQTTClientFactory(f MQTTClientFactory) Option {
	return func(o *options) { o.newMQTT = f }
}

func defaultMQTTClient(cfg mqtt.Config, m *observability.Metrics) (mqtt.Client, error) {
	return mqtt.NewClient(cfg, mqttMetrics(m))
}

func mqttMetrics(m *observability.Metrics) *metrics.MQTTMetrics {
	if m == nil {
		return nil
	}
	return m.MQTT
}

// Run loads the UVL file named in settings and detects calls until the audio
// is exhausted or ctx is cancelled. Every call is written as a CSV row and,
// when configured, counted in metrics and published over MQTT.
func Run(ctx context.Context, settings *conf.Settings, opts ...Option) (err error) {
	o := &options{stdout: os.Stdout, stderr: os.Stderr, newMQTT: defaultMQTTClient}
	for _, opt := range opts {
		opt(o)
	}

	central, sink, err := setupLogging(settings, o.stderr)
	if err != nil {
		return err
	}
	prevGlobal := logger.Global()
	logger.SetGlobal(central)
	defer func() {
		if cerr := central.Close(); cerr != nil && err == nil {
			err = cerr
		}
		logger.SetGlobal(prevGlobal)
	}()

	log := GetLogger()
	log.Info("starting detection session",
		logger.String("version", buildinfo.Current().GetVersion()),
		logger.String("config", settings.ConfigPath),
		logger.Bool("debug", settings.Debug))
	if sink != nil {
		log.Info("forwarding logs and CSV rows", logger.String("target", sink.Target()))
	}

	if _, serr := errors.InitSentry(settings.Sentry.DSN, buildinfo.Current().GetVersion()); serr != nil {
		log.Warn("error telemetry disabled", logger.Error(serr))
	}
	defer errors.FlushSentry(sentryFlushTimeout)

	// Services started below stop when the session ends, even without a signal.
	sessionCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	var obs *observability.Metrics
	if settings.Metrics.Listen != "" {
		obs, err = startMetrics(sessionCtx, &wg, settings.Metrics.Listen)
		if err != nil {
			log.Error("failed to start metrics endpoint", logger.Error(err))
			return err
		}
	}

	detectorOpts := []ultravox.Option{}
	if obs != nil {
		detectorOpts = append(detectorOpts,
			ultravox.WithLevelObserver(obs),
			ultravox.WithCaptureOptions(myaudio.WithObserver(obs)))
	}
	detectorOpts = append(detectorOpts, o.detectorOpts...)

	detector, err := ultravox.LoadLiveDetection(settings.ConfigPath, detectorOpts...)
	if err != nil {
		log.Error("failed to load detection config", logger.String("path", settings.ConfigPath), logger.Error(err))
		return err
	}

	var publisher *mqtt.Publisher
	stopMQTT := func() {}
	if settings.MQTT.Enabled() {
		var client mqtt.Client
		publisher, client, err = startMQTT(sessionCtx, &settings.MQTT, obs, o.newMQTT)
		if err != nil {
			log.Error("failed to set up MQTT publishing", logger.Error(err))
			return err
		}
		var once sync.Once
		stopMQTT = func() {
			once.Do(func() {
				drainCtx, drainCancel := context.WithTimeout(context.Background(), mqttDrainTimeout)
				defer drainCancel()
				publisher.Close(drainCtx)
				client.Disconnect()
			})
		}
		defer stopMQTT()
	}

	var csvSinks []io.Writer
	csvSinks = append(csvSinks, o.stdout)
	if sink != nil {
		csvSinks = append(csvSinks, sink)
	}
	csv := output.NewCSVWriter(logger.NewRawLogger(csvSinks...), settings.CSV.Duration)
	csv.WriteHeader()

	started := time.Now()
	err = detector.DetectCalls(ctx, func(c ultravox.Call) {
		n := csv.WriteCall(c)
		if obs != nil {
			obs.RecordCall(c)
		}
		if publisher != nil {
			publisher.Enqueue(n, c)
		}
	})
	// Drain before reporting so the drop count is final.
	stopMQTT()

	fields := []logger.Field{
		logger.Int("calls", csv.Count()),
		logger.Duration("elapsed", time.Since(started)),
	}
	if publisher != nil {
		fields = append(fields, logger.Int("mqtt_dropped", publisher.Dropped()))
	}
	if err != nil {
		log.Error("detection failed", append(fields, logger.Error(err))...)
		return err
	}
	log.Info("detection session finished", fields...)
	return nil
}

// setupLogging builds the central logger. --debug raises the audio module to
// debug and the detection module to trace.
func setupLogging(settings *conf.Settings, console io.Writer) (*logger.CentralLogger, *logger.UDPWriter, error) {
	levels := map[string]string{
		"audio":    string(logger.LogLevelInfo),
		"ultravox": string(logger.LogLevelInfo),
	}
	if settings.Debug {
		levels["audio"] = string(logger.LogLevelDebug)
		levels["ultravox"] = string(logger.LogLevelTrace)
	}

	cfg := &logger.Config{
		DefaultLevel: string(logger.LogLevelInfo),
		ModuleLevels: levels,
		Timezone:     settings.Log.Timezone,
		Console:      console,
	}

	var sink *logger.UDPWriter
	if settings.LogTarget != "" {
		target, err := conf.ParseLogTarget(settings.LogTarget)
		if err != nil {
			return nil, nil, err
		}
		sink, err = logger.NewUDPWriter(target.String())
		if err != nil {
			return nil, nil, errors.New(err).
				Component("analysis").
				Category(errors.CategoryNetwork).
				Context("target", settings.LogTarget).
				Build()
		}
		cfg.Sinks = []io.Writer{sink}
	}

	central, err := logger.NewCentralLogger(cfg)
	if err != nil {
		if sink != nil {
			_ = sink.Close()
		}
		return nil, nil, errors.New(err).
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return central, sink, nil
}

func startMetrics(ctx context.Context, wg *sync.WaitGroup, listen string) (*observability.Metrics, error) {
	obs, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}
	endpoint, err := observability.NewEndpoint(listen, obs)
	if err != nil {
		return nil, err
	}
	if err := endpoint.Start(ctx, wg); err != nil {
		return nil, errors.New(err).
			Component("analysis").
			Category(errors.CategoryNetwork).
			Context("listen", listen).
			Build()
	}
	return obs, nil
}

// startMQTT connects the client and starts the publisher. A broker that is
// unreachable at startup is logged and does not stop detection.
func startMQTT(ctx context.Context, s *conf.MQTTSettings, obs *observability.Metrics, factory MQTTClientFactory) (*mqtt.Publisher, mqtt.Client, error) {
	cfg := mqtt.DefaultConfig()
	cfg.Broker = s.Broker
	cfg.ClientID = s.ClientID
	if cfg.ClientID == "" {
		host, _ := os.Hostname()
		cfg.ClientID = fmt.Sprintf("ultravox-elan-%s-%d", host, os.Getpid())
	}
	cfg.Username = s.Username
	cfg.Password = s.Password
	cfg.QoS = s.QoS
	cfg.Retain = s.Retain
	if s.Timeout > 0 {
		cfg.ConnectTimeout = s.Timeout
		cfg.PublishTimeout = s.Timeout
	}

	client, err := factory(cfg, obs)
	if err != nil {
		return nil, nil, err
	}

	log := GetLogger()
	if err := client.Connect(ctx); err != nil {
		log.Warn("MQTT broker not reachable, call messages will be dropped",
			logger.String("broker", s.Broker), logger.Error(err))
	}

	publisher := mqtt.NewPublisher(client, mqtt.PublisherConfig{
		Topic:          s.Topic,
		QueueSize:      s.QueueSize,
		PublishTimeout: cfg.PublishTimeout,
	}, mqttMetrics(obs))
	publisher.Start()

	log.Info("publishing calls over MQTT",
		logger.String("broker", s.Broker),
		logger.String("topic", s.Topic),
		logger.String("session", publisher.Session()))
	return publisher, client, nil
}
