package risk

import (
	"context"
	"fmt"
)

// CalculateSafeQuantity is the admission-control sizing algorithm. It
// returns the quantity the account can safely take on for a new position,
// zero when admission is denied, and a reason string describing which
// constraint bound the result. The reason is part of the contract; callers
// surface it to strategies and operators.
func (e *Engine) CalculateSafeQuantity(ctx context.Context, symbol string, price, requestedQty, leverage float64) (float64, string) {
	op := "CalculateSafeQuantity"
	if price <= 0 {
		return 0, fmt.Sprintf("Invalid price: %.6f", price)
	}

	// Anti-overtrade: no new admissions while portfolio margin is maxed out.
	portfolio := e.AnalyzePortfolioRisk(ctx)
	if portfolio.OpenPositions > 0 && portfolio.MarginUsage >= e.cfg.MaxPortfolioRiskPct {
		return 0, fmt.Sprintf("Anti-overtrade: portfolio risk too high %.1f%% >= %.1f%%. Close existing positions first.",
			portfolio.MarginUsage, e.cfg.MaxPortfolioRiskPct)
	}
	if portfolio.MarginUsage >= e.cfg.PortfolioHighRiskMarginPct {
		e.logger.Warn(ctx, op+": Portfolio approaching overtrade limit", map[string]interface{}{
			"marginUsage": portfolio.MarginUsage, "limit": e.cfg.MaxPortfolioRiskPct,
		})
	}

	// One position per symbol.
	if pos, ok := e.ctrl.OpenPositionBySymbol(symbol); ok {
		return 0, fmt.Sprintf("Position already open for %s (%s, qty=%.6f, entry=%.2f)",
			symbol, pos.Side, pos.TotalQuantity, pos.AvgEntryPrice)
	}

	// Open-position cap.
	openCount := len(e.ctrl.OpenPositions())
	if openCount >= e.cfg.MaxPositionsOpen {
		return 0, fmt.Sprintf("Maximum open positions limit reached (%d/%d). Close some positions first.",
			openCount, e.cfg.MaxPositionsOpen)
	}

	balance := e.ctrl.Account().CurrentBalance
	if balance <= 0 {
		return 0, fmt.Sprintf("No available balance. Current balance: %.2f", balance)
	}

	if leverage <= 0 {
		leverage = e.cfg.DefaultLeverage
	}

	// Balance fraction: small accounts trade in safe mode.
	fraction := e.cfg.BalancePerTradePct
	mode := "normal"
	if balance <= e.cfg.SafeBalanceThreshold {
		fraction = e.cfg.SafeBalancePerTradePct
		mode = "safe"
	}
	e.logger.Debug(ctx, op+": Sizing mode selected", map[string]interface{}{
		"mode": mode, "fraction": fraction, "balance": balance,
	})

	marginToUse := balance * fraction
	positionValue := marginToUse * leverage
	rawQty := positionValue / price

	// Liquidation buffer discount.
	safeQty := rawQty * (1 - e.cfg.LiquidationBufferPct)

	// A zero or negligible request means the caller wants the computed size.
	finalQty := safeQty
	capped := false
	if requestedQty > 0 && requestedQty >= safeQty*0.1 {
		if requestedQty < safeQty {
			finalQty = requestedQty
		} else {
			capped = true
		}
	}

	if finalQty < e.cfg.MinTradeSize {
		return 0, fmt.Sprintf("Calculated quantity %.6f below minimum trade size %.6f", finalQty, e.cfg.MinTradeSize)
	}

	finalValue := finalQty * price
	finalMargin := finalValue / leverage
	fee := finalMargin * e.cfg.TradingFeePct
	if finalMargin+fee > balance {
		return 0, fmt.Sprintf("Insufficient balance: need %.2f, have %.2f", finalMargin+fee, balance)
	}

	marginPct := finalMargin / balance * 100
	positionPct := finalValue / balance * 100
	liqDistance := finalMargin / finalValue * 100

	if capped {
		return finalQty, fmt.Sprintf(
			"Qty %.6f (capped from %.6f for liquidation protection). Position %.0f (%.1f%% of balance), margin %.0f (%.1f%%), liquidation risk %.1f%% from entry",
			finalQty, requestedQty, finalValue, positionPct, finalMargin, marginPct, liqDistance)
	}
	return finalQty, fmt.Sprintf(
		"Qty %.6f approved. Position %.0f (%.1f%% of balance), margin %.0f (%.1f%%), liquidation risk %.1f%% from entry",
		finalQty, finalValue, positionPct, finalMargin, marginPct, liqDistance)
}
