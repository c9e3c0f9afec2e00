package risk

import (
	"context"
	"fmt"
	"time"
)

// Portfolio-wide decline backstops, in % return from the initial balance.
// These catch a bleeding account even when margin usage alone looks fine.
const (
	criticalReturnPct = -40.0
	highReturnPct     = -30.0
	mediumReturnPct   = -20.0
)

// PositionRisk is the per-position entry of a portfolio summary.
type PositionRisk struct {
	Symbol         string
	Level          RiskLevel
	PNLPercentage  float64
	MarginUsage    float64
	Recommendation RiskAction
	RiskScore      float64
}

// PortfolioSummary is the result of one portfolio risk pass.
type PortfolioSummary struct {
	OverallLevel         RiskLevel
	MarginUsage          float64 // Total open margin as % of balance
	PNLPercentage        float64 // Total unrealized PnL as % of balance
	EffectiveRisk        float64 // MarginUsage + 0.5 * loss%, reported only
	ReturnPercentage     float64 // Portfolio value vs initial balance
	TotalMarginUsed      float64
	TotalUnrealizedPNL   float64
	AccountBalance       float64
	TotalPortfolioValue  float64
	OpenPositions        int
	RiskDistribution     map[RiskLevel]int
	Positions            []PositionRisk
	Recommendations      []string
	Timestamp            time.Time
}

// AnalyzePortfolioRisk aggregates risk across all open positions that have a
// known price. Positions without price data are skipped, not guessed at.
//
// The overall level is determined from pure margin usage and loss
// percentages; the 0.5-weighted effective risk is computed and reported but
// deliberately kept out of the level decision.
func (e *Engine) AnalyzePortfolioRisk(ctx context.Context) PortfolioSummary {
	acc := e.ctrl.Account()
	now := time.Now().UTC()

	summary := PortfolioSummary{
		OverallLevel:     LevelLow,
		AccountBalance:   acc.CurrentBalance,
		RiskDistribution: map[RiskLevel]int{LevelLow: 0, LevelMedium: 0, LevelHigh: 0, LevelCritical: 0},
		Timestamp:        now,
	}
	if acc.CurrentBalance <= 0 {
		e.logger.Warn(ctx, "Portfolio analysis skipped, balance not positive", map[string]interface{}{"balance": acc.CurrentBalance})
		return summary
	}

	open := e.ctrl.OpenPositions()
	for _, pos := range open {
		price, ok := e.ctrl.Price(pos.Symbol)
		if !ok || price <= 0 {
			continue
		}
		pos.MarkToMarket(price)
		m := e.AnalyzePosition(pos, price, acc.CurrentBalance, now)

		summary.TotalMarginUsed += pos.MarginUsed
		summary.TotalUnrealizedPNL += pos.PNL
		summary.RiskDistribution[m.Level]++
		summary.Positions = append(summary.Positions, PositionRisk{
			Symbol:         pos.Symbol,
			Level:          m.Level,
			PNLPercentage:  m.PNLPercentage,
			MarginUsage:    m.MarginUsage,
			Recommendation: m.Recommendation,
			RiskScore:      m.RiskScore,
		})
	}
	summary.OpenPositions = len(summary.Positions)
	if summary.OpenPositions == 0 {
		return summary
	}

	summary.MarginUsage = summary.TotalMarginUsed / acc.CurrentBalance * 100
	summary.PNLPercentage = summary.TotalUnrealizedPNL / acc.CurrentBalance * 100
	lossRisk := 0.0
	if summary.PNLPercentage < 0 {
		lossRisk = -summary.PNLPercentage
	}
	summary.EffectiveRisk = summary.MarginUsage + lossRisk*0.5
	summary.TotalPortfolioValue = acc.CurrentBalance + summary.TotalUnrealizedPNL
	if acc.InitialBalance > 0 {
		summary.ReturnPercentage = (summary.TotalPortfolioValue - acc.InitialBalance) / acc.InitialBalance * 100
	}

	summary.OverallLevel = e.portfolioLevel(summary.MarginUsage, summary.PNLPercentage, summary.ReturnPercentage)
	summary.Recommendations = e.portfolioRecommendations(summary)
	return summary
}

// portfolioLevel applies the liquidation-aware portfolio thresholds, which
// are distinct from (and looser than) the per-position tiers.
func (e *Engine) portfolioLevel(marginUsage, pnlPct, returnPct float64) RiskLevel {
	switch {
	case marginUsage >= e.cfg.PortfolioCriticalMarginPct ||
		pnlPct < -e.cfg.PortfolioCriticalLossPct ||
		returnPct < criticalReturnPct:
		return LevelCritical
	case marginUsage >= e.cfg.PortfolioHighRiskMarginPct ||
		pnlPct < -e.cfg.PortfolioHighRiskLossPct ||
		returnPct < highReturnPct:
		return LevelHigh
	case marginUsage >= e.cfg.PortfolioMediumMarginPct ||
		pnlPct < -e.cfg.PortfolioMediumLossPct ||
		returnPct < mediumReturnPct:
		return LevelMedium
	default:
		return LevelLow
	}
}

// portfolioRecommendations renders the human-readable advisories attached to
// a summary. Consumed by the periodic portfolio log and by operators.
func (e *Engine) portfolioRecommendations(s PortfolioSummary) []string {
	var recs []string
	switch s.OverallLevel {
	case LevelCritical:
		recs = append(recs, "CRITICAL: immediate action required")
		if s.MarginUsage >= e.cfg.PortfolioCriticalMarginPct {
			recs = append(recs, fmt.Sprintf("Margin usage too high: %.1f%%, close positions immediately", s.MarginUsage))
		}
		if s.PNLPercentage < -e.cfg.PortfolioCriticalLossPct {
			recs = append(recs, fmt.Sprintf("Portfolio loss critical: %.1f%%", s.PNLPercentage))
		}
		if n := s.RiskDistribution[LevelCritical]; n > 0 {
			recs = append(recs, fmt.Sprintf("%d position(s) in critical state", n))
		}
	case LevelHigh:
		recs = append(recs, "HIGH RISK: consider reducing exposure")
		if s.MarginUsage >= e.cfg.PortfolioHighRiskMarginPct {
			recs = append(recs, fmt.Sprintf("Margin usage high: %.1f%%, reduce position sizes", s.MarginUsage))
		}
		if n := s.RiskDistribution[LevelHigh]; n > 1 {
			recs = append(recs, fmt.Sprintf("%d positions need attention", n))
		}
	case LevelMedium:
		recs = append(recs, "MODERATE RISK: monitor closely")
		if s.PNLPercentage < -e.cfg.PortfolioMediumLossPct {
			recs = append(recs, fmt.Sprintf("Portfolio down %.1f%%, review positions", s.PNLPercentage))
		}
	default:
		recs = append(recs, "Portfolio risk is healthy")
	}
	if s.MarginUsage >= e.cfg.MaxPortfolioRiskPct {
		recs = append(recs, fmt.Sprintf("Anti-overtrade active: %.1f%% >= %.1f%%, new trades blocked", s.MarginUsage, e.cfg.MaxPortfolioRiskPct))
	}
	return recs
}
