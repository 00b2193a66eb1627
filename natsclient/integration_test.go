//go:build integration

package natsclient

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIntegration_ConnectToRealNATS tests connection to a real NATS server
func TestIntegration_ConnectToRealNATS(t *testing.T) {
	tc := NewTestClient(t)

	assert.True(t, tc.Client.IsHealthy())
	assert.Equal(t, StatusConnected, tc.Client.Status())

	// Test RTT
	rtt, err := tc.Client.RTT()
	assert.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))
}

// TestIntegration_CircuitBreakerWithRealConnection tests circuit breaker with actual failures
func TestIntegration_CircuitBreakerWithRealConnection(t *testing.T) {
	ctx := context.Background()

	// Try to connect to an invalid NATS server
	client, err := NewClient("nats://invalid-host:4222")
	require.NoError(t, err)

	// Try 4 times - should not open circuit
	for i := 0; i < 4; i++ {
		err = client.Connect(ctx)
		assert.Error(t, err)
		assert.NotEqual(t, StatusCircuitOpen, client.Status())
	}

	// 5th attempt should trigger circuit breaker
	err = client.Connect(ctx)
	assert.Error(t, err)

	// After 5 failures, circuit should be open
	assert.Equal(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, int32(5), client.Failures())

	// Further attempts should fail immediately with circuit open error
	start := time.Now()
	err = client.Connect(ctx)
	elapsed := time.Since(start)

	assert.Error(t, err)
	assert.Equal(t, ErrCircuitOpen, err)
	assert.Less(t, elapsed, 10*time.Millisecond) // Should fail fast
}

// TestIntegration_PublishSubscribe tests basic pub/sub functionality
func TestIntegration_PublishSubscribe(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()

	received := make(chan []byte, 1)
	err := tc.Client.Subscribe(ctx, "test.subject", func(_ context.Context, data []byte) {
		received <- data
	})
	require.NoError(t, err)

	err = tc.Client.Publish(ctx, "test.subject", []byte("hello"))
	require.NoError(t, err)

	select {
	case data := <-received:
		assert.Equal(t, []byte("hello"), data)
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}
}

// TestIntegration_SubscribeSync tests pull-style consumption
func TestIntegration_SubscribeSync(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()

	sub, err := tc.Client.SubscribeSync("test.pull")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		err = tc.Client.Publish(ctx, "test.pull", []byte(fmt.Sprintf("msg-%d", i)))
		require.NoError(t, err)
	}
	require.NoError(t, tc.Client.Flush())

	// Messages arrive in publish order
	for i := 0; i < 3; i++ {
		readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		msg, err := sub.NextMsgWithContext(readCtx)
		cancel()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("msg-%d", i), string(msg.Data))
	}

	// No further messages: read should time out
	readCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = sub.NextMsgWithContext(readCtx)
	assert.Error(t, err)
}

// TestIntegration_HealthChangeCallback tests health notifications on connect
func TestIntegration_HealthChangeCallback(t *testing.T) {
	ctx := context.Background()

	tc := NewTestClient(t)

	var healthyEvents atomic.Int32
	client, err := NewClient(tc.URL,
		WithHealthInterval(50*time.Millisecond),
		WithHealthChangeCallback(func(healthy bool) {
			if healthy {
				healthyEvents.Add(1)
			}
		}),
	)
	require.NoError(t, err)

	require.NoError(t, client.Connect(ctx))
	defer client.Close(ctx)

	require.NoError(t, client.WaitForConnection(ctx))
	assert.GreaterOrEqual(t, healthyEvents.Load(), int32(1))
}
