package observability

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/elan-lab/ultravox-elan/internal/logger"
	metricspkg "github.com/elan-lab/ultravox-elan/internal/observability/metrics"
)

const readHeaderTimeout = 10 * time.Second

// Endpoint serves the Prometheus /metrics page.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	listener      net.Listener
	metrics       *Metrics
}

// NewEndpoint creates a new metrics Endpoint listening on listenAddress.
//
// The function does not create new metrics but uses the provided Metrics instance.
func NewEndpoint(listenAddress string, metrics *Metrics) (*Endpoint, error) {
	if listenAddress == "" {
		return nil, fmt.Errorf("metrics listen address is empty")
	}
	if metrics == nil {
		return nil, fmt.Errorf("metrics instance is nil")
	}

	return &Endpoint{
		listenAddress: listenAddress,
		metrics:       metrics,
	}, nil
}

// Start binds the listen address and serves in the background until ctx is
// done, then shuts the server down gracefully. Bind errors are returned
// immediately.
func (e *Endpoint) Start(ctx context.Context, wg *sync.WaitGroup) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return fmt.Errorf("metrics endpoint listen on %s: %w", e.listenAddress, err)
	}
	e.listener = ln

	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	log := GetLogger()
	wg.Go(func() {
		log.Info("metrics endpoint starting", logger.String("address", ln.Addr().String()))
		if err := e.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error("metrics HTTP server error", logger.Error(err))
		}
	})

	wg.Go(func() {
		e.gracefulShutdown(ctx)
	})
	return nil
}

// gracefulShutdown waits for ctx and shuts down the server gracefully.
func (e *Endpoint) gracefulShutdown(ctx context.Context) {
	<-ctx.Done()
	log := GetLogger()
	log.Info("stopping metrics endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics server shutdown error", logger.Error(err))
	}
}

// Addr returns the bound address, or the configured one before Start.
func (e *Endpoint) Addr() string {
	if e.listener != nil {
		return e.listener.Addr().String()
	}
	return e.listenAddress
}
