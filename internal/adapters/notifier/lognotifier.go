package notifier

import (
	"context"
	"fmt"
	"sync/atomic"

	"paperMarginBot/internal/ports"
)

// event is a queued notification.
type event struct {
	kind   string
	fields map[string]interface{}
}

// LogNotifier implements ports.NotificationSink by logging events through a
// background worker. Delivery is best-effort: if the queue is full the event
// is dropped and counted, never blocking the caller. Email/webhook sinks can
// replace this behind the same interface.
type LogNotifier struct {
	logger  ports.Logger
	queue   chan event
	done    chan struct{}
	dropped atomic.Int64
}

// New creates a notifier with the given queue capacity and starts its worker.
func New(logger ports.Logger, queueSize int) *LogNotifier {
	if queueSize <= 0 {
		queueSize = 100
	}
	n := &LogNotifier{
		logger: logger,
		queue:  make(chan event, queueSize),
		done:   make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *LogNotifier) run() {
	defer close(n.done)
	for ev := range n.queue {
		n.logger.Info(context.Background(), "notification: "+ev.kind, ev.fields)
	}
}

// Close drains and stops the worker.
func (n *LogNotifier) Close() {
	close(n.queue)
	<-n.done
}

func (n *LogNotifier) enqueue(kind string, fields map[string]interface{}) error {
	select {
	case n.queue <- event{kind: kind, fields: fields}:
		return nil
	default:
		n.dropped.Add(1)
		return fmt.Errorf("notification queue full, dropped %s event", kind)
	}
}

func (n *LogNotifier) NotifyTradeExecution(ctx context.Context, symbol, signal string, price float64, tradeID, positionID string) error {
	return n.enqueue("trade_execution", map[string]interface{}{
		"symbol": symbol, "signal": signal, "price": price, "tradeID": tradeID, "positionID": positionID,
	})
}

func (n *LogNotifier) NotifyPositionClose(ctx context.Context, symbol, positionID string, exitPrice, pnl float64, reason string) error {
	return n.enqueue("position_close", map[string]interface{}{
		"symbol": symbol, "positionID": positionID, "exitPrice": exitPrice, "pnl": pnl, "reason": reason,
	})
}

func (n *LogNotifier) NotifyRiskAlert(ctx context.Context, symbol, alertType string, currentPrice float64, riskLevel string) error {
	return n.enqueue("risk_alert", map[string]interface{}{
		"symbol": symbol, "alertType": alertType, "currentPrice": currentPrice, "riskLevel": riskLevel,
	})
}

func (n *LogNotifier) NotifyProfitAlert(ctx context.Context, symbol string, pnl, profitPct float64) error {
	return n.enqueue("profit_alert", map[string]interface{}{
		"symbol": symbol, "pnl": pnl, "profitPct": profitPct,
	})
}
