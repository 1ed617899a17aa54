package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "omniarb"

// SystemMonitor samples runtime statistics of the scanner process into
// gauges on a fixed interval.
type SystemMonitor struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
	interval time.Duration
	metrics  struct {
		goroutines  prometheus.Gauge
		heapObjects prometheus.Gauge
		heapAlloc   prometheus.Gauge
		gcPause     prometheus.Gauge
		memUsage    prometheus.Gauge
	}
	wg sync.WaitGroup
}

// NewSystemMonitor registers the runtime gauges with reg and starts sampling.
func NewSystemMonitor(ctx context.Context, reg prometheus.Registerer, interval time.Duration, logger *zap.Logger) (*SystemMonitor, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sample interval must be positive, got %s", interval)
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	ctx, cancel := context.WithCancel(ctx)
	m := &SystemMonitor{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		interval: interval,
	}

	factory := promauto.With(reg)
	m.metrics.goroutines = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_goroutines",
		Help:      "Current number of goroutines",
	})
	m.metrics.heapObjects = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_heap_objects",
		Help:      "Current number of heap objects",
	})
	m.metrics.heapAlloc = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_heap_alloc_bytes",
		Help:      "Current heap allocation in bytes",
	})
	m.metrics.gcPause = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_gc_pause_milliseconds",
		Help:      "Duration of the most recent GC pause",
	})
	m.metrics.memUsage = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_memory_usage_percent",
		Help:      "Allocated heap as a share of memory obtained from the OS",
	})

	m.collectMetrics()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.monitor()
	}()

	return m, nil
}

func (m *SystemMonitor) monitor() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.collectMetrics()
		}
	}
}

func (m *SystemMonitor) collectMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.metrics.goroutines.Set(float64(runtime.NumGoroutine()))
	m.metrics.heapObjects.Set(float64(memStats.HeapObjects))
	m.metrics.heapAlloc.Set(float64(memStats.HeapAlloc))
	m.metrics.gcPause.Set(lastPause(&memStats))
	m.metrics.memUsage.Set(memoryUsage(&memStats))
}

// GetMetrics returns a point-in-time snapshot of the sampled values.
func (m *SystemMonitor) GetMetrics() map[string]float64 {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]float64{
		"goroutines":   float64(runtime.NumGoroutine()),
		"heap_objects": float64(memStats.HeapObjects),
		"heap_alloc":   float64(memStats.HeapAlloc),
		"gc_pause_ms":  lastPause(&memStats),
		"mem_usage":    memoryUsage(&memStats),
	}
}

// Cleanup stops sampling.
func (m *SystemMonitor) Cleanup() error {
	m.cancel()
	m.wg.Wait()
	return nil
}

func lastPause(s *runtime.MemStats) float64 {
	return float64(s.PauseNs[(s.NumGC+255)%256]) / float64(time.Millisecond)
}

func memoryUsage(s *runtime.MemStats) float64 {
	if s.Sys == 0 {
		return 0
	}
	return float64(s.Alloc) / float64(s.Sys) * 100
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes g on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("Metrics server shutting down")
	return srv.Shutdown(shutCtx)
}
