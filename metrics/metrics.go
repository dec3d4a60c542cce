// Package metrics exposes the Prometheus collectors of the renderer, the profiler and the CPU emulator.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "oxy"

// Metrics groups every collector of the process on one registry.
type Metrics struct {
	Registry *prometheus.Registry

	// FramesTotal counts submitted frames.
	FramesTotal prometheus.Counter
	// StageSeconds observes the host-side time spent recording or executing each frame stage.
	StageSeconds *prometheus.HistogramVec
	// FPS is the last frames-per-second sample of the profiler.
	FPS prometheus.Gauge
	// HeapBytes is the last heap allocation sample of the profiler.
	HeapBytes prometheus.Gauge
	// GCCycles is the last GC cycle count sample of the profiler.
	GCCycles prometheus.Gauge
	// ParticleCapacity is the configured ring buffer size.
	ParticleCapacity prometheus.Gauge
	// JobCapacity is the current append job queue size, which follows the surface size.
	JobCapacity prometheus.Gauge
	// EmittedTotal counts particles emitted by the CPU emulator. The GPU path never reads counts back.
	EmittedTotal prometheus.Counter
	// DroppedTotal counts emission attempts rejected by the job queue clamp in the CPU emulator.
	DroppedTotal prometheus.Counter
	// RenderCount is the particle count drawn in the last emulated frame.
	RenderCount prometheus.Gauge
}

// New creates the collectors and registers them, together with the Go runtime collectors, on a fresh registry.
//
// Returns:
//   - *Metrics: the registered collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		FramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Number of frames submitted.",
		}),
		StageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_stage_seconds",
			Help:      "Host time spent per frame stage.",
			Buckets:   []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
		}, []string{"stage"}),
		FPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fps",
			Help:      "Frames per second over the last profiler window.",
		}),
		HeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heap_alloc_bytes",
			Help:      "Heap bytes allocated at the last profiler sample.",
		}),
		GCCycles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gc_cycles",
			Help:      "Completed GC cycles at the last profiler sample.",
		}),
		ParticleCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "particle_capacity",
			Help:      "Size of the particle ring buffer.",
		}),
		JobCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_queue_capacity",
			Help:      "Size of the append job queue.",
		}),
		EmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "emulator",
			Name:      "emitted_total",
			Help:      "Particles emitted by the CPU emulator.",
		}),
		DroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "emulator",
			Name:      "dropped_total",
			Help:      "Emission attempts beyond the job queue capacity.",
		}),
		RenderCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "emulator",
			Name:      "render_count",
			Help:      "Particles drawn in the last emulated frame.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.FramesTotal,
		m.StageSeconds,
		m.FPS,
		m.HeapBytes,
		m.GCCycles,
		m.ParticleCapacity,
		m.JobCapacity,
		m.EmittedTotal,
		m.DroppedTotal,
		m.RenderCount,
	)
	return m
}

// ObserveStage records the duration of one frame stage.
//
// Parameters:
//   - stage: the stage name
//   - d: the elapsed time
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// Handler returns the HTTP handler serving the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Serve exposes /metrics on addr until ctx is done.
//
// Parameters:
//   - ctx: controls the server lifetime
//   - addr: the listen address
//   - logger: logger for server lifecycle events
//
// Returns:
//   - error: the listen error, or nil after a clean shutdown
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}()

	logger.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
