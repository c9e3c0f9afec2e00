package executor

import (
	"context"
	"fmt"

	"paperMarginBot/internal/domain"
)

// Pyramiding (scale-in) and trailing (partial-close) mutations, plus the
// eligibility gates the risk engine and orchestrator consult before calling
// them. Gates never mutate; mutations assume the gate already passed.

// CheckPyramidingOpportunity reports whether an add to the open position for
// symbol is currently allowed, with the blocking reason when it is not.
func (te *TradeExecutor) CheckPyramidingOpportunity(symbol string, confidence float64) (bool, string) {
	te.mu.Lock()
	defer te.mu.Unlock()

	if !te.cfg.Pyramiding.Enabled {
		return false, "pyramiding disabled"
	}
	pos := te.openPositionForSymbol(symbol)
	if pos == nil {
		return false, fmt.Sprintf("no open position for %s", symbol)
	}
	if confidence < te.cfg.Pyramiding.MinConfidence {
		return false, fmt.Sprintf("confidence %.1f%% below pyramiding minimum %.1f%%", confidence, te.cfg.Pyramiding.MinConfidence)
	}
	if pos.PNLPercentage < te.cfg.Pyramiding.MinProfitPct {
		return false, fmt.Sprintf("position profit %.2f%% below pyramiding minimum %.2f%%", pos.PNLPercentage, te.cfg.Pyramiding.MinProfitPct)
	}
	if pos.PyramidCount >= te.cfg.Pyramiding.MaxAdds {
		return false, fmt.Sprintf("pyramid limit reached (%d/%d)", pos.PyramidCount, te.cfg.Pyramiding.MaxAdds)
	}
	return true, ""
}

// CheckTrailingOpportunity reports whether a partial close of the position
// is currently allowed.
func (te *TradeExecutor) CheckTrailingOpportunity(id string) (bool, string) {
	te.mu.Lock()
	defer te.mu.Unlock()

	if !te.cfg.Trailing.Enabled {
		return false, "trailing disabled"
	}
	pos, ok := te.positions[id]
	if !ok || !pos.IsOpen() {
		return false, "position missing or not open"
	}
	if pos.PNLPercentage < te.cfg.Trailing.MinProfitPct {
		return false, fmt.Sprintf("position profit %.2f%% below trailing minimum %.2f%%", pos.PNLPercentage, te.cfg.Trailing.MinProfitPct)
	}
	if pos.TrailingCount >= te.cfg.Trailing.MaxCount {
		return false, fmt.Sprintf("trailing limit reached (%d/%d)", pos.TrailingCount, te.cfg.Trailing.MaxCount)
	}
	if pos.RemainingQuantity <= te.cfg.MinTradeSize {
		return false, "remaining quantity below minimum trade size"
	}
	return true, ""
}

// AddToPosition scales into an existing open position, recomputing the
// quantity-weighted average entry price. The gate must have been checked
// first; here only balance coverage can still fail.
func (te *TradeExecutor) AddToPosition(ctx context.Context, id string, qty, price float64) bool {
	te.mu.Lock()
	defer te.mu.Unlock()

	op := "AddToPosition"
	pos, ok := te.positions[id]
	if !ok || !pos.IsOpen() {
		te.logger.Warn(ctx, op+": Position missing or not open", map[string]interface{}{"positionID": id})
		return false
	}
	if qty <= 0 || price <= 0 {
		te.logger.Warn(ctx, op+": Invalid add parameters", map[string]interface{}{"positionID": id, "quantity": qty, "price": price})
		return false
	}

	addMargin := price * qty / pos.Leverage
	addFee := addMargin * te.cfg.TradingFeePct
	if !te.reserve(addMargin, addFee) {
		te.logger.Warn(ctx, op+": Insufficient balance for add", map[string]interface{}{
			"positionID": id, "need": addMargin + addFee, "have": te.account.CurrentBalance,
		})
		return false
	}

	oldTotal := pos.TotalQuantity
	newTotal := oldTotal + qty
	pos.AvgEntryPrice = (oldTotal*pos.AvgEntryPrice + qty*price) / newTotal
	pos.EntryPrice = pos.AvgEntryPrice
	pos.TotalQuantity = newTotal
	pos.RemainingQuantity += qty
	pos.PyramidCount++
	pos.MarginUsed += addMargin
	pos.TradingFee += addFee
	pos.InvestedAmount += price * qty
	pos.MarkToMarket(price)

	if err := te.store.SavePosition(ctx, pos); err != nil {
		te.logger.Error(ctx, err, op+": Failed to persist pyramided position", map[string]interface{}{"positionID": pos.ID})
	}
	if err := te.store.SaveAccount(ctx, te.account); err != nil {
		te.logger.Error(ctx, err, op+": Failed to persist account", map[string]interface{}{"accountID": te.account.ID})
	}

	te.logger.Info(ctx, op+": Added to position", map[string]interface{}{
		"positionID": pos.ID, "symbol": pos.Symbol, "addQty": qty, "addPrice": price,
		"avgEntry": pos.AvgEntryPrice, "pyramidCount": pos.PyramidCount,
	})
	return true
}

// PartialClose realizes PnL on qty at exitPrice and decrements the
// remaining quantity. The balance credit for the slice happens at the final
// close, when the reserved margin is released in one piece. If nothing
// remains afterwards the position is finalized at exitPrice.
func (te *TradeExecutor) PartialClose(ctx context.Context, id string, qty, exitPrice float64, reason string) bool {
	te.mu.Lock()
	defer te.mu.Unlock()

	op := "PartialClose"
	pos, ok := te.positions[id]
	if !ok || !pos.IsOpen() {
		te.logger.Warn(ctx, op+": Position missing or not open", map[string]interface{}{"positionID": id})
		return false
	}
	if qty <= 0 || exitPrice <= 0 {
		te.logger.Warn(ctx, op+": Invalid close parameters", map[string]interface{}{"positionID": id, "quantity": qty, "exitPrice": exitPrice})
		return false
	}
	if qty >= pos.RemainingQuantity {
		// Closing the whole remainder is a full close.
		return te.closeLocked(ctx, id, exitPrice, reason)
	}

	pos.RealizedPNL += pos.SlicePNL(qty, exitPrice)
	applyExitSlice(pos, qty, exitPrice)
	pos.RemainingQuantity -= qty
	pos.TrailingCount++
	pos.MarkToMarket(exitPrice)

	if err := te.store.SavePosition(ctx, pos); err != nil {
		te.logger.Error(ctx, err, op+": Failed to persist trailed position", map[string]interface{}{"positionID": pos.ID})
	}

	te.logger.Info(ctx, op+": Partial close executed", map[string]interface{}{
		"positionID": pos.ID, "symbol": pos.Symbol, "closedQty": qty, "exitPrice": exitPrice,
		"remaining": pos.RemainingQuantity, "realizedPnl": pos.RealizedPNL, "trailingCount": pos.TrailingCount,
	})
	return true
}

// TightenStopLoss ratchets the stop toward the price; a stop never moves
// away from the market. Returns true when the stop actually moved.
func (te *TradeExecutor) TightenStopLoss(ctx context.Context, id string, newStop float64) bool {
	te.mu.Lock()
	defer te.mu.Unlock()

	pos, ok := te.positions[id]
	if !ok || !pos.IsOpen() || newStop <= 0 {
		return false
	}
	moved := false
	if pos.Side == domain.Long {
		moved = newStop > pos.StopLoss
	} else {
		moved = pos.StopLoss == 0 || newStop < pos.StopLoss
	}
	if !moved {
		return false
	}
	old := pos.StopLoss
	pos.StopLoss = newStop
	if err := te.store.SavePosition(ctx, pos); err != nil {
		te.logger.Error(ctx, err, "Failed to persist tightened stop", map[string]interface{}{"positionID": pos.ID})
	}
	te.logger.Info(ctx, "Stop loss tightened", map[string]interface{}{
		"positionID": pos.ID, "symbol": pos.Symbol, "oldStop": old, "newStop": newStop,
	})
	return true
}

// applyExitSlice folds a closed slice into the running weighted average
// exit price. closedSoFar is derived from total vs remaining quantity, so
// the average covers every partial close and the final exit.
func applyExitSlice(pos *domain.Position, qty, exitPrice float64) {
	closedSoFar := pos.TotalQuantity - pos.RemainingQuantity
	if closedSoFar < 0 {
		closedSoFar = 0
	}
	if closedSoFar+qty <= 0 {
		return
	}
	pos.AvgExitPrice = (closedSoFar*pos.AvgExitPrice + qty*exitPrice) / (closedSoFar + qty)
}
