package risk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"paperMarginBot/config"
	"paperMarginBot/internal/domain"
	"paperMarginBot/internal/ports"
)

// RiskLevel classifies how endangered a position or portfolio is.
type RiskLevel string

const (
	LevelLow      RiskLevel = "LOW"
	LevelMedium   RiskLevel = "MEDIUM"
	LevelHigh     RiskLevel = "HIGH"
	LevelCritical RiskLevel = "CRITICAL"
)

// RiskAction is the recommended response to a position's risk state.
type RiskAction string

const (
	ActionMonitor          RiskAction = "MONITOR"
	ActionTightenStopLoss  RiskAction = "TIGHTEN_STOP_LOSS"
	ActionClosePosition    RiskAction = "CLOSE_POSITION"
	ActionEmergencyClose   RiskAction = "EMERGENCY_CLOSE"
	ActionActivateTrailing RiskAction = "ACTIVATE_TRAILING"
)

// RiskMetrics is the derived risk snapshot of one position. It is recomputed
// on every evaluation and never persisted.
type RiskMetrics struct {
	PositionID         string
	Symbol             string
	Level              RiskLevel
	MarginUsage        float64 // Margin as % of account balance, capped at 100
	PNLPercentage      float64
	HoldingHours       float64
	DistanceFromStop   float64 // % of current price
	DistanceFromTarget float64
	Recommendation     RiskAction
	TrailingStopPrice  float64 // 0 when trailing is not suggested
	RiskScore          float64 // Weighted 0..100 aggregate
}

// PositionController is the slice of the trade executor the risk engine
// needs. The engine never mutates account or position state directly; every
// write goes through these methods.
type PositionController interface {
	Account() domain.Account
	OpenPositions() []domain.Position
	Position(id string) (domain.Position, bool)
	OpenPositionBySymbol(symbol string) (domain.Position, bool)
	Price(symbol string) (float64, bool)
	ClosePosition(ctx context.Context, id string, exitPrice float64, reason string) bool
	PartialClose(ctx context.Context, id string, qty, exitPrice float64, reason string) bool
	TightenStopLoss(ctx context.Context, id string, newStop float64) bool
	CheckTrailingOpportunity(id string) (bool, string)
}

// trailingState tracks the ratcheting trailing stop for one position. The
// best price only improves and the trailing price only moves toward the
// market, never away.
type trailingState struct {
	bestPrice     float64
	trailingPrice float64
	activatedAt   time.Time
}

// Engine scores per-position and portfolio risk, sizes admissions and
// triggers protective actions through the position controller.
type Engine struct {
	cfg      *config.Config
	logger   ports.Logger
	ctrl     PositionController
	notifier ports.NotificationSink

	mu          sync.Mutex // Protects trailing and lastWarning below
	trailing    map[string]*trailingState
	lastWarning map[string]time.Time
}

// NewEngine creates a risk engine bound to a position controller.
func NewEngine(cfg *config.Config, logger ports.Logger, ctrl PositionController, notifier ports.NotificationSink) (*Engine, error) {
	if cfg == nil || logger == nil || ctrl == nil {
		return nil, fmt.Errorf("missing required dependencies for risk Engine")
	}
	return &Engine{
		cfg:         cfg,
		logger:      logger,
		ctrl:        ctrl,
		notifier:    notifier,
		trailing:    make(map[string]*trailingState),
		lastWarning: make(map[string]time.Time),
	}, nil
}

// AnalyzePosition computes the risk metrics of one position at the given
// price. Pure computation over the snapshot; nothing is mutated.
func (e *Engine) AnalyzePosition(pos domain.Position, price, accountBalance float64, now time.Time) RiskMetrics {
	pos.MarkToMarket(price)

	marginUsage := 0.0
	if pos.Leverage > 1 && pos.MarginUsed > 0 && accountBalance > 0 {
		marginUsage = math.Min(pos.MarginUsed/accountBalance*100, 100)
	}
	holdingHours := pos.HoldingHours(now)

	var distStop, distTarget float64
	if pos.StopLoss > 0 && price > 0 {
		distStop = math.Abs(price-pos.StopLoss) / price * 100
	}
	if pos.Target > 0 && price > 0 {
		distTarget = math.Abs(pos.Target-price) / price * 100
	}

	level := e.riskLevel(marginUsage, pos.PNLPercentage, holdingHours)
	return RiskMetrics{
		PositionID:         pos.ID,
		Symbol:             pos.Symbol,
		Level:              level,
		MarginUsage:        marginUsage,
		PNLPercentage:      pos.PNLPercentage,
		HoldingHours:       holdingHours,
		DistanceFromStop:   distStop,
		DistanceFromTarget: distTarget,
		Recommendation:     e.recommendation(level, pos.PNLPercentage, holdingHours, marginUsage),
		TrailingStopPrice:  e.suggestedTrailingStop(&pos, price),
		RiskScore:          riskScore(marginUsage, pos.PNLPercentage, holdingHours),
	}
}

// riskLevel runs the cascading threshold checks, most severe tier first.
func (e *Engine) riskLevel(marginUsage, pnlPct, holdingHours float64) RiskLevel {
	switch {
	case marginUsage > e.cfg.CriticalRisk.MarginPct ||
		pnlPct < -e.cfg.CriticalRisk.LossPct ||
		holdingHours > e.cfg.CriticalRisk.Hours:
		return LevelCritical
	case marginUsage > e.cfg.HighRisk.MarginPct ||
		pnlPct < -e.cfg.HighRisk.LossPct ||
		holdingHours > e.cfg.HighRisk.Hours:
		return LevelHigh
	case marginUsage > e.cfg.MediumRisk.MarginPct ||
		pnlPct < -e.cfg.MediumRisk.LossPct ||
		holdingHours > e.cfg.MediumRisk.Hours:
		return LevelMedium
	default:
		return LevelLow
	}
}

// recommendation maps a risk level to a concrete action. Emergency
// thresholds override everything else.
func (e *Engine) recommendation(level RiskLevel, pnlPct, holdingHours, marginUsage float64) RiskAction {
	if marginUsage > e.cfg.EmergencyRisk.MarginPct ||
		pnlPct < -e.cfg.EmergencyRisk.LossPct ||
		holdingHours > e.cfg.EmergencyRisk.Hours {
		return ActionEmergencyClose
	}
	switch level {
	case LevelCritical:
		return ActionClosePosition
	case LevelHigh:
		if pnlPct < -e.cfg.HighRisk.LossPct {
			return ActionTightenStopLoss
		}
		return ActionMonitor
	case LevelMedium:
		if pnlPct > e.cfg.MediumRisk.LossPct {
			return ActionActivateTrailing
		}
		return ActionMonitor
	default:
		if pnlPct > e.cfg.ProfitProtectPct {
			return ActionActivateTrailing
		}
		return ActionMonitor
	}
}

// riskScore aggregates the risk factors into a weighted 0..100 score.
// Time pressure is normalized against a 48 hour horizon.
func riskScore(marginUsage, pnlPct, holdingHours float64) float64 {
	const (
		marginWeight = 0.3
		pnlWeight    = 0.3
		timeWeight   = 0.2
		volWeight    = 0.2
		volScore     = 50.0 // No volatility source wired; fixed moderate score
	)
	marginScore := math.Min(marginUsage, 100)
	pnlScore := 0.0
	if pnlPct < 0 {
		pnlScore = -pnlPct
	}
	timeScore := math.Min(holdingHours/48*100, 100)
	score := marginScore*marginWeight + pnlScore*pnlWeight + timeScore*timeWeight + volScore*volWeight
	return math.Min(score, 100)
}

// suggestedTrailingStop returns the trailing stop price a position has
// earned, or 0 when the activation profit has not been reached.
func (e *Engine) suggestedTrailingStop(pos *domain.Position, price float64) float64 {
	if pos.PNLPercentage < e.cfg.Trailing.ActivationPct {
		return 0
	}
	if pos.Side == domain.Long {
		return price * (1 - e.cfg.Trailing.StopOffsetPct)
	}
	return price * (1 + e.cfg.Trailing.StopOffsetPct)
}

// LiquidationDistance estimates how far (in % of the current price) the
// position is from forced liquidation. The liquidation price is approximated
// from the margin ratio with a 5% safety haircut; this is a heuristic, not
// an exchange formula, and is intentionally kept behind this one function.
func LiquidationDistance(pos *domain.Position, price float64) float64 {
	if pos.Leverage <= 1 || pos.MarginUsed <= 0 || price <= 0 {
		return 100
	}
	notional := pos.Quantity * pos.EntryPrice
	if notional <= 0 {
		return 100
	}
	marginRatio := pos.MarginUsed / notional

	var dist float64
	if pos.Side == domain.Long {
		liqPrice := pos.EntryPrice * (1 - marginRatio*0.95)
		dist = (price - liqPrice) / price * 100
	} else {
		liqPrice := pos.EntryPrice * (1 + marginRatio*0.95)
		dist = (liqPrice - price) / price * 100
	}
	return math.Max(dist, 0)
}

// ExecuteRiskAction applies the protective response for one position.
// Returns true when it closed, trimmed or alerted. Liquidation protection
// takes priority over every other recommendation.
func (e *Engine) ExecuteRiskAction(ctx context.Context, pos domain.Position, m RiskMetrics, price float64) bool {
	actionTaken := false

	// Trailing stop: trigger if crossed, otherwise ratchet the state.
	if m.TrailingStopPrice > 0 {
		trailPrice := e.ratchetTrailing(&pos, price, m.TrailingStopPrice)
		if trailingTriggered(&pos, price, trailPrice) && e.realizeTrailing(ctx, &pos, price) {
			actionTaken = true
		}
	}

	switch m.Level {
	case LevelCritical:
		liqDist := LiquidationDistance(&pos, price)
		if liqDist <= e.cfg.EmergencyLiqDistance {
			e.logger.Warn(ctx, "Emergency auto-close, liquidation risk", map[string]interface{}{
				"symbol": pos.Symbol, "liquidationDistance": liqDist,
			})
			if e.ctrl.ClosePosition(ctx, pos.ID, price, domain.ReasonLiquidation) {
				e.forgetPosition(pos.ID)
				e.riskAlert(ctx, pos.Symbol, "Liquidation Protection - Auto Close", price, "EMERGENCY")
				actionTaken = true
			}
		} else if m.Recommendation == ActionClosePosition || m.Recommendation == ActionEmergencyClose {
			if e.ctrl.ClosePosition(ctx, pos.ID, price, fmt.Sprintf("Risk Management: %s", m.Recommendation)) {
				e.forgetPosition(pos.ID)
				e.riskAlert(ctx, pos.Symbol, "Critical Risk Closure", price, string(m.Level))
				actionTaken = true
			}
		}

	case LevelHigh:
		liqDist := LiquidationDistance(&pos, price)
		if liqDist <= e.cfg.WarningLiqDistance {
			key := pos.Symbol + "_liquidation_warning"
			if e.shouldWarn(key) {
				e.logger.Warn(ctx, "Liquidation warning", map[string]interface{}{
					"symbol": pos.Symbol, "liquidationDistance": liqDist,
				})
				e.riskAlert(ctx, pos.Symbol, fmt.Sprintf("Liquidation Warning - %.1f%% away", liqDist), price, string(m.Level))
				e.markWarned(key)
				actionTaken = true
			}
		} else if m.Recommendation == ActionTightenStopLoss {
			newStop := tighterStop(&pos, price, e.cfg.Trailing.TightenOffsetPct)
			if e.ctrl.TightenStopLoss(ctx, pos.ID, newStop) {
				key := pos.Symbol + "_stop_loss_tighten"
				if e.shouldWarn(key) {
					e.riskAlert(ctx, pos.Symbol, "Stop Loss Tightened", price, string(m.Level))
					e.markWarned(key)
				}
				actionTaken = true
			}
		}
	}

	// Profit protection: arm trailing once the position is well in profit.
	if m.PNLPercentage > e.cfg.ProfitProtectPct && !e.trailingActive(pos.ID) {
		e.activateTrailing(&pos, price)
		if e.notifier != nil {
			if err := e.notifier.NotifyProfitAlert(ctx, pos.Symbol, pos.PNL, m.PNLPercentage); err != nil {
				e.logger.Warn(ctx, "Profit notification failed", map[string]interface{}{"symbol": pos.Symbol, "error": err.Error()})
			}
		}
		actionTaken = true
	}

	return actionTaken
}

// realizeTrailing takes profit after the trailing stop is crossed. While the
// partial-close gate holds, only ExitPercentage of the remaining quantity is
// sold and the rest keeps riding the trail; once the gate refuses (count
// exhausted, remainder below the minimum, profit gone) the whole position is
// closed.
func (e *Engine) realizeTrailing(ctx context.Context, pos *domain.Position, price float64) bool {
	if ok, _ := e.ctrl.CheckTrailingOpportunity(pos.ID); ok {
		qty := pos.EffectiveQuantity() * e.cfg.Trailing.ExitPercentage
		if !e.ctrl.PartialClose(ctx, pos.ID, qty, price, domain.ReasonTrailingStop) {
			return false
		}
		if cur, found := e.ctrl.Position(pos.ID); !found || !cur.IsOpen() {
			e.forgetPosition(pos.ID)
		}
		return true
	}
	if e.ctrl.ClosePosition(ctx, pos.ID, price, domain.ReasonTrailingStop) {
		e.forgetPosition(pos.ID)
		return true
	}
	return false
}

// ratchetTrailing folds the current price into the trailing state and
// returns the effective trailing price. The state only tightens.
func (e *Engine) ratchetTrailing(pos *domain.Position, price, suggested float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.trailing[pos.ID]
	if !ok {
		st = &trailingState{bestPrice: pos.AvgEntryPrice, activatedAt: time.Now().UTC()}
		e.trailing[pos.ID] = st
	}
	if pos.Side == domain.Long {
		if price > st.bestPrice {
			st.bestPrice = price
		}
		candidate := st.bestPrice * (1 - e.cfg.Trailing.StopOffsetPct)
		if candidate > st.trailingPrice {
			st.trailingPrice = candidate
		}
	} else {
		if st.bestPrice == 0 || price < st.bestPrice {
			st.bestPrice = price
		}
		candidate := st.bestPrice * (1 + e.cfg.Trailing.StopOffsetPct)
		if st.trailingPrice == 0 || candidate < st.trailingPrice {
			st.trailingPrice = candidate
		}
	}
	if st.trailingPrice == 0 {
		st.trailingPrice = suggested
	}
	return st.trailingPrice
}

func trailingTriggered(pos *domain.Position, price, trailPrice float64) bool {
	if trailPrice <= 0 {
		return false
	}
	if pos.Side == domain.Long {
		return price <= trailPrice
	}
	return price >= trailPrice
}

// tighterStop is the stop used when a high-risk position gets its stop
// pulled in: offsetPct away from the current price, on the losing side.
func tighterStop(pos *domain.Position, price, offsetPct float64) float64 {
	if pos.Side == domain.Long {
		return price * (1 - offsetPct)
	}
	return price * (1 + offsetPct)
}

func (e *Engine) trailingActive(positionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.trailing[positionID]
	return ok
}

func (e *Engine) activateTrailing(pos *domain.Position, price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := &trailingState{bestPrice: price, activatedAt: time.Now().UTC()}
	if pos.Side == domain.Long {
		st.trailingPrice = price * (1 - e.cfg.Trailing.StopOffsetPct)
	} else {
		st.trailingPrice = price * (1 + e.cfg.Trailing.StopOffsetPct)
	}
	e.trailing[pos.ID] = st
}

// forgetPosition drops the trailing state of a closed position.
func (e *Engine) forgetPosition(positionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.trailing, positionID)
}

// shouldWarn rate-limits alerts of one kind for one symbol.
func (e *Engine) shouldWarn(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	last, ok := e.lastWarning[key]
	return !ok || time.Since(last) >= e.cfg.WarningCooldown
}

func (e *Engine) markWarned(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastWarning[key] = time.Now()
}

// riskAlert emits a fire-and-forget risk notification.
func (e *Engine) riskAlert(ctx context.Context, symbol, alertType string, price float64, level string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.NotifyRiskAlert(ctx, symbol, alertType, price, level); err != nil {
		e.logger.Warn(ctx, "Risk notification failed", map[string]interface{}{"symbol": symbol, "error": err.Error()})
	}
}
