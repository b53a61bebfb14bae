package diagnostic

import (
	"runtime"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/console/domain/video"
	"github.com/open-teleop/console/pkg/bridge"
	customlog "github.com/open-teleop/console/pkg/log"
)

// ConnectionSource is the part of the bridge manager the health report reads.
type ConnectionSource interface {
	Status() bridge.Status
	Stats() bridge.Stats
}

// SystemMetrics is one health snapshot of the console.
type SystemMetrics struct {
	Timestamp     time.Time          `json:"timestamp"`
	UptimeSeconds float64            `json:"uptime_seconds"`
	Goroutines    int                `json:"goroutines"`
	Connection    bridge.Status      `json:"connection"`
	Traffic       bridge.Stats       `json:"traffic"`
	RelayFailures int64              `json:"relay_failures"`
	Cameras       []video.CameraInfo `json:"cameras"`
}

// DiagnosticService collects connection health and traffic counters
type DiagnosticService struct {
	mu      sync.RWMutex
	metrics SystemMetrics

	source        ConnectionSource
	relayFailures func() int64
	cameras       func() []video.CameraInfo
	started       time.Time
	logger        customlog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// Option configures optional report sections.
type Option func(*DiagnosticService)

// WithRelayFailures adds the relay failure counter to the report.
func WithRelayFailures(failures func() int64) Option {
	return func(s *DiagnosticService) { s.relayFailures = failures }
}

// WithCameras adds the camera feed list to the report.
func WithCameras(cameras func() []video.CameraInfo) Option {
	return func(s *DiagnosticService) { s.cameras = cameras }
}

// NewDiagnosticService creates a new diagnostic service instance
func NewDiagnosticService(source ConnectionSource, logger customlog.Logger, opts ...Option) *DiagnosticService {
	if source == nil {
		panic("ConnectionSource cannot be nil in NewDiagnosticService")
	}
	s := &DiagnosticService{
		source:  source,
		started: time.Now(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.UpdateMetrics()
	return s
}

// UpdateMetrics takes a fresh snapshot and returns it.
func (s *DiagnosticService) UpdateMetrics() SystemMetrics {
	now := time.Now()
	m := SystemMetrics{
		Timestamp:     now,
		UptimeSeconds: now.Sub(s.started).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		Connection:    s.source.Status(),
		Traffic:       s.source.Stats(),
		Cameras:       []video.CameraInfo{},
	}
	if s.relayFailures != nil {
		m.RelayFailures = s.relayFailures()
	}
	if s.cameras != nil {
		m.Cameras = s.cameras()
	}

	s.mu.Lock()
	s.metrics = m
	s.mu.Unlock()
	return m
}

// GetMetrics returns the last snapshot
func (s *DiagnosticService) GetMetrics() SystemMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.metrics
}

// GetMetricsHandler handles API requests for the full health report
func (s *DiagnosticService) GetMetricsHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "success",
		"metrics": s.UpdateMetrics(),
	})
}

// HealthHandler reports liveness plus the bridge connection state.
func (s *DiagnosticService) HealthHandler(c *fiber.Ctx) error {
	st := s.source.Status()
	return c.JSON(fiber.Map{
		"status":     "healthy",
		"connection": st.State,
	})
}

// Start refreshes the snapshot every interval and logs a summary line.
func (s *DiagnosticService) Start(interval time.Duration) {
	if interval <= 0 || s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				m := s.UpdateMetrics()
				if s.logger != nil {
					s.logger.Debugf("Health: connection=%s sent=%d dropped=%d suppressed=%d relay_failures=%d",
						m.Connection.State, m.Traffic.MessagesSent, m.Traffic.Dropped, m.Traffic.Suppressed, m.RelayFailures)
				}
			}
		}
	}()
}

// Stop ends the sampling loop started by Start.
func (s *DiagnosticService) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	s.wg.Wait()
	s.stop = nil
}
