package ports

import "context"

// NotificationSink receives fire-and-forget event notifications. Failures
// must never abort a trade or a risk action; callers ignore or log errors.
type NotificationSink interface {
	NotifyTradeExecution(ctx context.Context, symbol string, signal string, price float64, tradeID, positionID string) error
	NotifyPositionClose(ctx context.Context, symbol string, positionID string, exitPrice, pnl float64, reason string) error
	NotifyRiskAlert(ctx context.Context, symbol string, alertType string, currentPrice float64, riskLevel string) error
	NotifyProfitAlert(ctx context.Context, symbol string, pnl float64, profitPct float64) error
}
