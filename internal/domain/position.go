package domain

import "time"

// Position represents a leveraged trading position held by the virtual account.
type Position struct {
	ID             string         // Unique identifier (uuid)
	Symbol         string         // Trading symbol (e.g., "BTCUSD")
	Side           PositionSide   // LONG or SHORT
	Status         PositionStatus // OPEN, CLOSED or PENDING
	EntryPrice     float64        // Price at entry; mirrors AvgEntryPrice once pyramided
	ExitPrice      float64        // Price at final close (0 while open)
	Quantity       float64        // Initially requested size
	Leverage       float64        // Leverage applied to the position
	MarginUsed     float64        // Capital reserved for the position
	TradingFee     float64        // Entry fee charged on the margin
	StopLoss       float64        // Stop-loss price level
	Target         float64        // Take-profit price level
	InvestedAmount float64        // Notional value at entry (price * quantity)
	StrategyName   string         // Tag of the strategy that opened the position
	EntryTime      time.Time      // When the position was opened
	ExitTime       time.Time      // When the position was closed (zero while open)
	Notes          string         // Close reason, set on close

	// Pyramiding state. OriginalQuantity and AvgEntryPrice are snapshotted on
	// the first add; TotalQuantity is the quantity across all adds.
	OriginalQuantity float64
	TotalQuantity    float64
	AvgEntryPrice    float64
	PyramidCount     int

	// Trailing (partial close) state. RemainingQuantity counts down as slices
	// are realized; AvgExitPrice is the weighted average over partial exits.
	RemainingQuantity float64
	TrailingCount     int
	RealizedPNL       float64
	UnrealizedPNL     float64
	AvgExitPrice      float64

	PNL           float64 // RealizedPNL + UnrealizedPNL, maintained by MarkToMarket
	PNLPercentage float64 // PNL relative to InvestedAmount, in percent
}

// IsOpen checks if the position status is open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// EffectiveQuantity returns the quantity still exposed to the market:
// the remaining quantity once trailing has started, otherwise the total.
func (p *Position) EffectiveQuantity() float64 {
	if p.RemainingQuantity > 0 {
		return p.RemainingQuantity
	}
	if p.TrailingCount > 0 {
		return 0 // fully trailed out
	}
	return p.TotalQuantity
}

// MarkToMarket recomputes the unrealized PnL of the open quantity at the
// given price and maintains pnl == realized + unrealized. Calling it twice
// with the same price is idempotent.
func (p *Position) MarkToMarket(price float64) float64 {
	qty := p.EffectiveQuantity()
	if p.Side == Long {
		p.UnrealizedPNL = (price - p.AvgEntryPrice) * qty
	} else {
		p.UnrealizedPNL = (p.AvgEntryPrice - price) * qty
	}
	p.PNL = p.RealizedPNL + p.UnrealizedPNL
	if p.InvestedAmount > 0 {
		p.PNLPercentage = p.PNL / p.InvestedAmount * 100
	} else {
		p.PNLPercentage = 0
	}
	return p.PNL
}

// SlicePNL returns the PnL realized by closing qty at exitPrice relative to
// the average entry price, without mutating the position.
func (p *Position) SlicePNL(qty, exitPrice float64) float64 {
	if p.Side == Long {
		return (exitPrice - p.AvgEntryPrice) * qty
	}
	return (p.AvgEntryPrice - exitPrice) * qty
}

// HoldingHours returns how long the position has been held, in hours.
func (p *Position) HoldingHours(now time.Time) float64 {
	return now.Sub(p.EntryTime).Hours()
}

// StopLossHit reports whether price has crossed the stop-loss level.
func (p *Position) StopLossHit(price float64) bool {
	if p.StopLoss <= 0 {
		return false
	}
	if p.Side == Long {
		return price <= p.StopLoss
	}
	return price >= p.StopLoss
}

// TargetHit reports whether price has crossed the target level.
func (p *Position) TargetHit(price float64) bool {
	if p.Target <= 0 {
		return false
	}
	if p.Side == Long {
		return price >= p.Target
	}
	return price <= p.Target
}
