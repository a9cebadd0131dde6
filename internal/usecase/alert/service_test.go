package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"newsriver/internal/infra/notifier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAlert() *notifier.Alert {
	return &notifier.Alert{
		Severity:  notifier.SeverityCritical,
		Component: "dispatcher",
		Title:     "article enrichment failed",
		Message:   "article 42: scrape fetch: connection refused",
		At:        time.Now(),
	}
}

// TestNotify_NoChannelsEnabled verifies no-op when all channels are disabled
func TestNotify_NoChannelsEnabled(t *testing.T) {
	// Arrange
	channels := []Channel{
		&mockChannel{name: "discord", enabled: false},
		&mockChannel{name: "slack", enabled: false},
	}
	svc := NewService(channels, 10)

	// Act
	err := svc.Notify(context.Background(), testAlert())

	// Assert
	assert.NoError(t, err)

	// Wait for potential goroutines
	time.Sleep(100 * time.Millisecond)

	// Verify Send() was never called
	for _, ch := range channels {
		mock := ch.(*mockChannel)
		assert.Equal(t, 0, mock.getSendCalledCount(), "Send should not be called for disabled channel")
	}
}

// TestNotify_SingleChannel verifies alert sent to single enabled channel
func TestNotify_SingleChannel(t *testing.T) {
	// Arrange
	mock := &mockChannel{name: "discord", enabled: true}
	channels := []Channel{mock}
	svc := NewService(channels, 10)

	// Act
	err := svc.Notify(context.Background(), testAlert())

	// Assert
	assert.NoError(t, err)

	// Wait for goroutine to complete
	time.Sleep(100 * time.Millisecond)

	// Verify Send() was called exactly once
	assert.Equal(t, 1, mock.getSendCalledCount())
}

// TestNotify_MultipleChannels verifies all enabled channels receive the alert
func TestNotify_MultipleChannels(t *testing.T) {
	// Arrange
	mock1 := &mockChannel{name: "discord", enabled: true}
	mock2 := &mockChannel{name: "slack", enabled: true}
	mock3 := &mockChannel{name: "email", enabled: false} // Disabled
	channels := []Channel{mock1, mock2, mock3}
	svc := NewService(channels, 10)

	// Act
	err := svc.Notify(context.Background(), testAlert())

	// Assert
	assert.NoError(t, err)

	// Wait for goroutines to complete
	time.Sleep(100 * time.Millisecond)

	// Verify Send() was called for enabled channels only
	assert.Equal(t, 1, mock1.getSendCalledCount(), "Discord should receive alert")
	assert.Equal(t, 1, mock2.getSendCalledCount(), "Slack should receive alert")
	assert.Equal(t, 0, mock3.getSendCalledCount(), "Email should not receive alert (disabled)")
}

// TestNotify_NonBlocking verifies Notify returns immediately
func TestNotify_NonBlocking(t *testing.T) {
	// Arrange - channel with 1 second delay
	mock := &mockChannel{
		name:      "discord",
		enabled:   true,
		sendDelay: 1 * time.Second,
	}
	channels := []Channel{mock}
	svc := NewService(channels, 10)

	// Act - measure time
	start := time.Now()
	err := svc.Notify(context.Background(), testAlert())
	duration := time.Since(start)

	// Assert - should return immediately (< 100ms)
	assert.NoError(t, err)
	assert.Less(t, duration, 100*time.Millisecond, "Notify should return immediately")

	// Wait for background goroutine to complete
	time.Sleep(1500 * time.Millisecond)

	// Verify alert was eventually delivered
	assert.Equal(t, 1, mock.getSendCalledCount())
}

// TestNotify_NilAlert verifies service skips delivery for a nil alert
func TestNotify_NilAlert(t *testing.T) {
	// Arrange
	mock := &mockChannel{name: "discord", enabled: true}
	channels := []Channel{mock}
	svc := NewService(channels, 10)

	// Act
	err := svc.Notify(context.Background(), nil)

	// Assert
	assert.NoError(t, err)

	// Wait for potential goroutines
	time.Sleep(100 * time.Millisecond)

	// Verify no delivery was attempted
	assert.Equal(t, 0, mock.getSendCalledCount())
}

// TestDeliverToChannel_PanicRecovery verifies service survives a panicking channel
func TestDeliverToChannel_PanicRecovery(t *testing.T) {
	// Arrange
	mock := &mockChannel{
		name:        "discord",
		enabled:     true,
		panicOnSend: true,
	}
	channels := []Channel{mock}
	svc := NewService(channels, 10)

	// Act
	err := svc.Notify(context.Background(), testAlert())

	// Assert - should not panic
	assert.NoError(t, err)

	// Wait for goroutine to recover from panic
	time.Sleep(100 * time.Millisecond)

	// Service should still be functional
	mock.setPanicOnSend(false)
	mock.resetSendCalled()

	err = svc.Notify(context.Background(), testAlert())
	assert.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, mock.getSendCalledCount(), "Service should recover and continue working")
}

// TestShutdown_WaitsForInflight verifies graceful shutdown waits for in-flight deliveries
func TestShutdown_WaitsForInflight(t *testing.T) {
	// Arrange - channel with short delay (shutdown will cancel context)
	mock := &mockChannel{
		name:      "discord",
		enabled:   true,
		sendDelay: 50 * time.Millisecond, // Short delay to complete before shutdown
	}
	channels := []Channel{mock}
	svc := NewService(channels, 10)

	// Act - start delivery
	err := svc.Notify(context.Background(), testAlert())
	require.NoError(t, err)

	// Wait for delivery to start processing
	time.Sleep(20 * time.Millisecond)

	// Call Shutdown (which will cancel shutdownCtx)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = svc.Shutdown(shutdownCtx)

	// Assert
	assert.NoError(t, err, "Shutdown should succeed")
}

// TestShutdown_NoInflight verifies shutdown completes immediately with no in-flight deliveries
func TestShutdown_NoInflight(t *testing.T) {
	// Arrange
	mock := &mockChannel{name: "discord", enabled: true}
	channels := []Channel{mock}
	svc := NewService(channels, 10)

	// Act
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	start := time.Now()
	err := svc.Shutdown(shutdownCtx)
	duration := time.Since(start)

	// Assert
	assert.NoError(t, err)
	assert.Less(t, duration, 100*time.Millisecond, "Shutdown should complete immediately")
}

// TestCircuitBreaker_OpensAfterFailures verifies circuit breaker opens after threshold
func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	// Arrange
	mock := &mockChannel{
		name:      "discord",
		enabled:   true,
		sendError: errors.New("simulated failure"),
	}
	channels := []Channel{mock}
	svc := NewService(channels, 10)

	// Act - send alerts to trigger failures
	for i := 0; i < circuitBreakerThreshold; i++ {
		err := svc.Notify(context.Background(), testAlert())
		assert.NoError(t, err)
	}

	// Wait for goroutines to complete
	time.Sleep(200 * time.Millisecond)

	// Verify circuit breaker opened
	health := svc.GetChannelHealth()
	require.Len(t, health, 1)
	assert.Equal(t, "discord", health[0].Name)
	assert.True(t, health[0].CircuitBreakerOpen, "Circuit breaker should be open")
	assert.NotNil(t, health[0].DisabledUntil)

	// Reset mock error and send new alert
	mock.setSendError(nil)
	mock.resetSendCalled()

	err := svc.Notify(context.Background(), testAlert())
	assert.NoError(t, err)

	// Wait for goroutine
	time.Sleep(100 * time.Millisecond)

	// Verify alert was dropped due to circuit breaker
	assert.Equal(t, 0, mock.getSendCalledCount(), "Alert should be dropped when circuit is open")
}

// TestCircuitBreaker_ResetsAfterSuccess verifies circuit breaker resets on success
func TestCircuitBreaker_ResetsAfterSuccess(t *testing.T) {
	// Arrange
	mock := &mockChannel{
		name:    "discord",
		enabled: true,
	}
	channels := []Channel{mock}
	svc := NewService(channels, 10)

	// Trigger some failures (but below threshold)
	mock.setSendError(errors.New("simulated failure"))
	for i := 0; i < circuitBreakerThreshold-1; i++ {
		err := svc.Notify(context.Background(), testAlert())
		assert.NoError(t, err)
	}
	time.Sleep(200 * time.Millisecond)

	// Send successful alert
	mock.setSendError(nil)
	mock.resetSendCalled()
	err := svc.Notify(context.Background(), testAlert())
	assert.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	// Verify success
	assert.Equal(t, 1, mock.getSendCalledCount())

	// Verify circuit breaker is still closed
	health := svc.GetChannelHealth()
	require.Len(t, health, 1)
	assert.False(t, health[0].CircuitBreakerOpen, "Circuit breaker should remain closed after success")
}

// TestCircuitBreaker_IndependentPerChannel verifies breakers do not interfere across channels
func TestCircuitBreaker_IndependentPerChannel(t *testing.T) {
	// Arrange - discord failing, slack fine
	discordMock := &mockChannel{
		name:      "discord",
		enabled:   true,
		sendError: errors.New("discord outage"),
	}
	slackMock := &mockChannel{name: "slack", enabled: true}
	svc := NewService([]Channel{discordMock, slackMock}, 10)

	// Act - push enough failures to open discord's breaker
	for i := 0; i < circuitBreakerThreshold; i++ {
		err := svc.Notify(context.Background(), testAlert())
		assert.NoError(t, err)
	}
	time.Sleep(200 * time.Millisecond)

	// Assert - discord open, slack closed and still delivering
	health := svc.GetChannelHealth()
	require.Len(t, health, 2)
	for _, h := range health {
		switch h.Name {
		case "discord":
			assert.True(t, h.CircuitBreakerOpen, "discord breaker should be open")
		case "slack":
			assert.False(t, h.CircuitBreakerOpen, "slack breaker should stay closed")
		}
	}

	assert.Equal(t, circuitBreakerThreshold, slackMock.getSendCalledCount(),
		"slack should have received every alert")
}

// TestWorkerPool_Saturation verifies worker pool limits concurrent deliveries
func TestWorkerPool_Saturation(t *testing.T) {
	// Arrange - small worker pool and slow channel
	maxConcurrent := 2
	mock := &mockChannel{
		name:      "discord",
		enabled:   true,
		sendDelay: 500 * time.Millisecond,
	}
	channels := []Channel{mock}
	svc := NewService(channels, maxConcurrent)

	// Act - send multiple alerts to saturate worker pool
	numAlerts := 5
	for i := 0; i < numAlerts; i++ {
		err := svc.Notify(context.Background(), testAlert())
		assert.NoError(t, err)
	}

	// Wait briefly
	time.Sleep(100 * time.Millisecond)

	// Wait for all to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := svc.Shutdown(shutdownCtx)
	assert.NoError(t, err)

	// Verify some alerts were delivered
	// Due to worker pool timeout (5s), some might be dropped
	sendCalled := mock.getSendCalledCount()
	assert.GreaterOrEqual(t, sendCalled, maxConcurrent, "At least maxConcurrent alerts should succeed")
}

// TestGetChannelHealth verifies health status is reported correctly
func TestGetChannelHealth(t *testing.T) {
	// Arrange
	mock1 := &mockChannel{name: "discord", enabled: true}
	mock2 := &mockChannel{name: "slack", enabled: false}
	channels := []Channel{mock1, mock2}
	svc := NewService(channels, 10)

	// Act
	health := svc.GetChannelHealth()

	// Assert
	assert.Len(t, health, 2)

	// Find discord status
	var discordHealth *ChannelHealthStatus
	var slackHealth *ChannelHealthStatus
	for i := range health {
		switch health[i].Name {
		case "discord":
			discordHealth = &health[i]
		case "slack":
			slackHealth = &health[i]
		}
	}

	require.NotNil(t, discordHealth)
	assert.Equal(t, "discord", discordHealth.Name)
	assert.True(t, discordHealth.Enabled)
	assert.False(t, discordHealth.CircuitBreakerOpen)
	assert.Nil(t, discordHealth.DisabledUntil)

	require.NotNil(t, slackHealth)
	assert.Equal(t, "slack", slackHealth.Name)
	assert.False(t, slackHealth.Enabled)
	assert.False(t, slackHealth.CircuitBreakerOpen)
	assert.Nil(t, slackHealth.DisabledUntil)
}

// TestConcurrentNotifies verifies service handles concurrent alerts safely
func TestConcurrentNotifies(t *testing.T) {
	// Arrange
	mock := &mockChannel{
		name:      "discord",
		enabled:   true,
		sendDelay: 10 * time.Millisecond,
	}
	channels := []Channel{mock}
	svc := NewService(channels, 20)

	// Act - send many concurrent alerts
	numGoroutines := 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			err := svc.Notify(context.Background(), testAlert())
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	// Wait for all deliveries to complete
	time.Sleep(500 * time.Millisecond)

	// Assert - all alerts should be delivered
	assert.Equal(t, numGoroutines, mock.getSendCalledCount())
}
