package domain

// Account is the virtual trading account ledger. It is mutated exclusively
// by the trade executor; everyone else reads snapshots.
type Account struct {
	ID               string
	Name             string
	InitialBalance   float64
	CurrentBalance   float64
	DailyTradesLimit int
	DailyTradesCount int
	MaxLeverage      float64
	TotalMarginUsed  float64
	BrokerageCharges float64
	RealizedPNL      float64
	TotalTrades      int
	ProfitableTrades int
	LosingTrades     int
	WinRate          float64
	LastTradeDate    string // YYYY-MM-DD, UTC; drives the daily counter reset
}

// RecalcWinRate refreshes the win rate from the trade counters.
func (a *Account) RecalcWinRate() {
	if a.TotalTrades > 0 {
		a.WinRate = float64(a.ProfitableTrades) / float64(a.TotalTrades) * 100
	} else {
		a.WinRate = 0
	}
}
