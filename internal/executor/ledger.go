package executor

import (
	"time"

	"paperMarginBot/internal/domain"
)

// Account ledger arithmetic. All functions assume the executor mutex is held
// by the caller; the ledger is embedded in the executor and never leaves it.

// reserve blocks margin plus the entry fee against the balance. Returns
// false if the balance cannot cover the total.
func (e *TradeExecutor) reserve(margin, fee float64) bool {
	total := margin + fee
	if total > e.account.CurrentBalance {
		return false
	}
	e.account.CurrentBalance -= total
	e.account.TotalMarginUsed += margin
	e.account.BrokerageCharges += fee
	return true
}

// release credits a closed position back to the balance: reserved margin
// plus the realized PnL minus the exit fee. Margin in use never goes
// negative, and the win/loss statistics are refreshed.
func (e *TradeExecutor) release(margin, pnl, exitFee float64) {
	e.account.CurrentBalance += margin + pnl - exitFee
	e.account.TotalMarginUsed -= margin
	if e.account.TotalMarginUsed < 0 {
		e.account.TotalMarginUsed = 0
	}
	if exitFee > 0 {
		e.account.BrokerageCharges += exitFee
	}
	e.account.RealizedPNL += pnl
	if pnl > 0 {
		e.account.ProfitableTrades++
	} else {
		e.account.LosingTrades++
	}
	e.account.RecalcWinRate()
}

// resetDailyCounter zeroes the daily trade count when the calendar day (UTC)
// has rolled over since the last trade.
func (e *TradeExecutor) resetDailyCounter(now time.Time) {
	today := now.UTC().Format("2006-01-02")
	if e.account.LastTradeDate != today {
		e.account.DailyTradesCount = 0
		e.account.LastTradeDate = today
	}
}

// recordTradeOpened bumps the trade counters after a successful open.
func (e *TradeExecutor) recordTradeOpened(now time.Time) {
	e.account.TotalTrades++
	e.account.DailyTradesCount++
	e.account.LastTradeDate = now.UTC().Format("2006-01-02")
}

// newAccount builds a fresh ledger from configuration.
func (e *TradeExecutor) newAccount(now time.Time) *domain.Account {
	return &domain.Account{
		ID:               e.cfg.AccountID,
		Name:             "Trading Account " + e.cfg.AccountID,
		InitialBalance:   e.cfg.InitialBalance,
		CurrentBalance:   e.cfg.InitialBalance,
		DailyTradesLimit: e.cfg.DailyTradesLimit,
		MaxLeverage:      e.cfg.MaxLeverage,
		LastTradeDate:    now.UTC().Format("2006-01-02"),
	}
}
