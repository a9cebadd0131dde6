package alert

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"newsriver/internal/infra/notifier"
	"newsriver/internal/observability/logging"

	"github.com/google/uuid"
)

const (
	circuitBreakerThreshold = 5                // Consecutive failures before a channel's breaker opens
	circuitBreakerTimeout   = 5 * time.Minute  // How long an open breaker rejects deliveries
	workerPoolTimeout       = 5 * time.Second  // Wait for a worker slot before dropping the alert
	deliveryTimeout         = 30 * time.Second // Budget for one channel delivery including retries
)

// Service fans operational alerts out to the configured channels. Dispatch
// is asynchronous so a webhook outage can never stall the pipeline that
// raised the alert; delivery failures are logged and counted, never
// propagated to the caller.
type Service interface {
	// Notify dispatches an alert to every enabled channel and returns
	// immediately. Deliveries run in background goroutines.
	Notify(ctx context.Context, alert *notifier.Alert) error

	// GetChannelHealth reports each channel's circuit breaker state for the
	// health endpoint and monitoring. Safe for concurrent use.
	GetChannelHealth() []ChannelHealthStatus

	// Shutdown blocks until in-flight deliveries finish or ctx ends.
	Shutdown(ctx context.Context) error
}

// ChannelHealthStatus is one channel's entry in the health report.
type ChannelHealthStatus struct {
	Name               string     // Channel identifier, e.g. "discord"
	Enabled            bool       // Whether the channel is enabled
	CircuitBreakerOpen bool       // Whether the breaker currently rejects deliveries
	DisabledUntil      *time.Time // When an open breaker closes again, nil if closed
}

type service struct {
	channels       []Channel
	workerPool     chan struct{} // Semaphore bounding concurrent deliveries
	channelHealth  map[string]*channelHealth
	healthMu       sync.RWMutex // Protects the channelHealth map
	wg             sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// channelHealth tracks one channel's circuit breaker state.
type channelHealth struct {
	consecutiveFailures int
	disabledUntil       time.Time
	mu                  sync.Mutex
}

// NewService builds the alert service. maxConcurrent bounds how many channel
// deliveries may run at once across all alerts.
func NewService(channels []Channel, maxConcurrent int) Service {
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	svc := &service{
		channels:       channels,
		workerPool:     make(chan struct{}, maxConcurrent),
		channelHealth:  make(map[string]*channelHealth),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}

	for _, ch := range channels {
		svc.channelHealth[ch.Name()] = &channelHealth{}
	}

	return svc
}

// Notify implements Service.Notify.
func (s *service) Notify(ctx context.Context, alert *notifier.Alert) error {
	if alert == nil {
		logging.FromContext(ctx).Warn("dropping nil alert")
		return nil
	}

	// One delivery_id groups the per-channel attempts for this alert. The
	// context logger keeps whatever correlation the caller already carries,
	// so a dead-letter alert raised under a dispatched job keeps its job_id.
	logger := logging.FromContext(ctx).With(slog.String("delivery_id", uuid.NewString()))

	enabledCount := 0
	for _, ch := range s.channels {
		if ch.IsEnabled() {
			enabledCount++
		}
	}
	SetChannelsEnabled(float64(enabledCount))

	if enabledCount == 0 {
		logger.Debug("no alert channels enabled",
			slog.String("component", alert.Component),
			slog.String("title", alert.Title))
		return nil
	}

	logger.Info("dispatching alert",
		slog.String("component", alert.Component),
		slog.String("severity", string(alert.Severity)),
		slog.String("title", alert.Title),
		slog.Int("enabled_channels", enabledCount))

	for _, ch := range s.channels {
		if ch.IsEnabled() {
			s.wg.Add(1)
			go s.deliverToChannel(logger.With(slog.String("channel", ch.Name())), ch, alert)
		}
	}

	return nil
}

// deliverToChannel runs one channel delivery in the background. The logger
// already carries the delivery_id and channel name; it is reattached to the
// delivery context so the notifier's attempt logs correlate with ours.
func (s *service) deliverToChannel(logger *slog.Logger, channel Channel, alert *notifier.Alert) {
	defer s.wg.Done()

	IncrementActiveGoroutines()
	defer DecrementActiveGoroutines()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("alert channel panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	select {
	case s.workerPool <- struct{}{}:
		defer func() { <-s.workerPool }()
	case <-time.After(workerPoolTimeout):
		logger.Warn("alert dropped, worker pool full")
		RecordDropped(channel.Name(), "pool_full")
		return
	}

	health := s.getChannelHealth(channel.Name())
	health.mu.Lock()
	if until := health.disabledUntil; time.Now().Before(until) {
		health.mu.Unlock()
		logger.Warn("alert dropped, circuit breaker open",
			slog.Time("disabled_until", until))
		RecordDropped(channel.Name(), "circuit_open")
		return
	}
	health.mu.Unlock()

	// Deliveries outlive the caller, so the timeout derives from the
	// shutdown context rather than the caller's.
	ctx, cancel := context.WithTimeout(s.shutdownCtx, deliveryTimeout)
	defer cancel()
	ctx = logging.WithLogger(ctx, logger)

	startTime := time.Now()
	RecordDispatch(channel.Name())

	err := channel.Send(ctx, alert)
	duration := time.Since(startTime)

	health.mu.Lock()
	if err != nil {
		health.consecutiveFailures++
		if health.consecutiveFailures >= circuitBreakerThreshold {
			health.disabledUntil = time.Now().Add(circuitBreakerTimeout)
			logger.Error("circuit breaker opened for channel",
				slog.Int("consecutive_failures", health.consecutiveFailures))
			RecordCircuitBreakerOpen(channel.Name())
		}
	} else {
		health.consecutiveFailures = 0
	}
	health.mu.Unlock()

	if err != nil {
		RecordFailure(channel.Name(), duration)
		logger.Warn("channel delivery failed",
			slog.String("component", alert.Component),
			slog.String("title", alert.Title),
			slog.Duration("send_duration", duration),
			slog.Any("error", err))
		return
	}

	RecordSuccess(channel.Name(), duration)
	logger.Info("channel delivery succeeded",
		slog.String("component", alert.Component),
		slog.String("title", alert.Title),
		slog.Duration("send_duration", duration))
}

// getChannelHealth returns the circuit breaker state for a channel.
func (s *service) getChannelHealth(channelName string) *channelHealth {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.channelHealth[channelName]
}

// GetChannelHealth implements Service.GetChannelHealth.
func (s *service) GetChannelHealth() []ChannelHealthStatus {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()

	statuses := make([]ChannelHealthStatus, 0, len(s.channels))

	for _, ch := range s.channels {
		health := s.channelHealth[ch.Name()]

		health.mu.Lock()
		var disabledUntil *time.Time
		open := false
		if until := health.disabledUntil; time.Now().Before(until) {
			open = true
			disabledUntil = &until
		}
		health.mu.Unlock()

		statuses = append(statuses, ChannelHealthStatus{
			Name:               ch.Name(),
			Enabled:            ch.IsEnabled(),
			CircuitBreakerOpen: open,
			DisabledUntil:      disabledUntil,
		})
	}

	return statuses
}

// Shutdown implements Service.Shutdown.
func (s *service) Shutdown(ctx context.Context) error {
	slog.Info("shutting down alert service")

	s.shutdownCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("alert service shutdown complete")
		return nil
	case <-ctx.Done():
		slog.Warn("alert service shutdown timeout")
		return ctx.Err()
	}
}
