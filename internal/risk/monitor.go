package risk

import (
	"context"
	"fmt"
	"time"

	"paperMarginBot/internal/domain"
)

// MonitorPositions runs one protective pass over every open position with a
// known price. Checks run in a fixed order so the cheap deterministic exits
// pre-empt the scoring pass: stop loss, target, holding time, then the full
// risk analysis. Returns a description of each action taken.
//
// A failed close is logged and retried on the next tick; nothing propagates
// out of the loop.
func (e *Engine) MonitorPositions(ctx context.Context) []string {
	var actions []string
	now := time.Now().UTC()
	acc := e.ctrl.Account()

	for _, pos := range e.ctrl.OpenPositions() {
		price, ok := e.ctrl.Price(pos.Symbol)
		if !ok || price <= 0 {
			continue
		}

		if pos.StopLossHit(price) {
			if e.ctrl.ClosePosition(ctx, pos.ID, price, domain.ReasonStopLoss) {
				e.forgetPosition(pos.ID)
				actions = append(actions, fmt.Sprintf("Stop Loss: %s", pos.Symbol))
			}
			continue
		}
		if pos.TargetHit(price) {
			if e.ctrl.ClosePosition(ctx, pos.ID, price, domain.ReasonTarget) {
				e.forgetPosition(pos.ID)
				actions = append(actions, fmt.Sprintf("Target Hit: %s", pos.Symbol))
			}
			continue
		}
		if pos.HoldingHours(now) >= e.cfg.MaxHoldingHours {
			if e.ctrl.ClosePosition(ctx, pos.ID, price, domain.ReasonTimeLimit) {
				e.forgetPosition(pos.ID)
				actions = append(actions, fmt.Sprintf("Time Limit: %s", pos.Symbol))
			}
			continue
		}

		metrics := e.AnalyzePosition(pos, price, acc.CurrentBalance, now)
		if e.ExecuteRiskAction(ctx, pos, metrics, price) {
			actions = append(actions, fmt.Sprintf("Risk Action: %s", pos.Symbol))
		}
	}
	return actions
}
