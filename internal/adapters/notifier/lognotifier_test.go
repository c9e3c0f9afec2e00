package notifier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gateLogger records notification log lines and can hold the worker on a
// gate channel to keep the queue from draining mid-test.
type gateLogger struct {
	mu   sync.Mutex
	msgs []string
	gate chan struct{} // nil means never block
}

func (l *gateLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (l *gateLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (l *gateLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func (l *gateLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	if l.gate != nil {
		<-l.gate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func (l *gateLogger) logged() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.msgs...)
}

func TestLogNotifier_DeliversThroughWorker(t *testing.T) {
	lg := &gateLogger{}
	n := New(lg, 8)
	ctx := context.Background()

	require.NoError(t, n.NotifyTradeExecution(ctx, "BTCUSD", "BUY", 50000, "t1", "p1"))
	require.NoError(t, n.NotifyPositionClose(ctx, "BTCUSD", "p1", 51500, 15, "Target"))
	require.NoError(t, n.NotifyRiskAlert(ctx, "ETHUSD", "Liquidation Warning", 2000, "HIGH"))
	require.NoError(t, n.NotifyProfitAlert(ctx, "BTCUSD", 120, 12))
	n.Close() // Drains the queue before returning

	assert.Equal(t, []string{
		"notification: trade_execution",
		"notification: position_close",
		"notification: risk_alert",
		"notification: profit_alert",
	}, lg.logged())
}

func TestLogNotifier_DropsWhenQueueFull(t *testing.T) {
	lg := &gateLogger{gate: make(chan struct{})}
	n := New(lg, 1)
	ctx := context.Background()

	// First event is pulled by the blocked worker, second fills the queue.
	require.NoError(t, n.NotifyProfitAlert(ctx, "BTCUSD", 1, 1))
	require.Eventually(t, func() bool { return len(n.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, n.NotifyProfitAlert(ctx, "BTCUSD", 2, 2))

	// Queue is full and the worker is held: the overflow event must be
	// rejected immediately, not block the caller.
	err := n.NotifyProfitAlert(ctx, "BTCUSD", 3, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")
	assert.Equal(t, int64(1), n.dropped.Load())

	close(lg.gate)
	n.Close()
	assert.Len(t, lg.logged(), 2)
}
