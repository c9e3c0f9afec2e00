package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paperMarginBot/config"
	"paperMarginBot/internal/domain"
	"paperMarginBot/internal/executor"
	"paperMarginBot/internal/ports"
	"paperMarginBot/internal/risk"
)

// TradingService orchestrates the paper trading engine: it owns the price
// feed, the monitoring and persistence tickers, and the strategy signal
// entry point. All state lives in the executor; the service only schedules.
type TradingService struct {
	cfg    *config.Config
	logger ports.Logger
	exec   *executor.TradeExecutor
	risk   *risk.Engine
	feed   ports.PriceFeed
}

// NewTradingService creates a new application service instance.
func NewTradingService(
	cfg *config.Config,
	logger ports.Logger,
	exec *executor.TradeExecutor,
	riskEngine *risk.Engine,
	feed ports.PriceFeed,
) (*TradingService, error) {
	if cfg == nil || logger == nil || exec == nil || riskEngine == nil || feed == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	return &TradingService{
		cfg:    cfg,
		logger: logger,
		exec:   exec,
		risk:   riskEngine,
		feed:   feed,
	}, nil
}

// Start runs the service until the context is cancelled or a shutdown
// signal arrives.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	// Load account and position state before anything can trade.
	if err := s.exec.Start(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to initialize trade executor")
		return fmt.Errorf("failed to initialize trade executor: %w", err)
	}

	// Start the price feed. The handler marks every open position before it
	// returns, so monitor ticks always read fully updated PnL.
	feedDoneCh, feedStopCh, err := s.feed.Stream(ctx, s.handlePrices, s.handleFeedError)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to start price feed")
		return fmt.Errorf("failed to start price feed: %w", err)
	}
	s.logger.Info(ctx, "Price feed started", map[string]interface{}{"symbols": s.cfg.Symbols})

	riskTicker := time.NewTicker(s.cfg.RiskCheckInterval)
	defer riskTicker.Stop()
	persistTicker := time.NewTicker(s.cfg.PersistInterval)
	defer persistTicker.Stop()
	portfolioTicker := time.NewTicker(s.cfg.PortfolioInterval)
	defer portfolioTicker.Stop()

	for {
		select {
		case <-riskTicker.C:
			if actions := s.risk.MonitorPositions(ctx); len(actions) > 0 {
				s.logger.Info(ctx, "Risk monitor actions", map[string]interface{}{"actions": actions})
			}

		case <-persistTicker.C:
			s.exec.PersistAccount(ctx)

		case <-portfolioTicker.C:
			s.logPortfolio(ctx)

		case <-ctx.Done():
			s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")
			select {
			case feedStopCh <- struct{}{}:
			default:
			}
			select {
			case <-feedDoneCh:
				s.logger.Info(ctx, "Price feed shut down gracefully")
			case <-time.After(5 * time.Second):
				s.logger.Warn(ctx, "Timeout waiting for price feed to shut down")
			}
			s.exec.PersistAccount(context.Background())
			s.logger.Info(ctx, "Trading Service stopped.")
			return nil

		case <-feedDoneCh:
			s.logger.Error(ctx, fmt.Errorf("price feed closed unexpectedly"), "Price feed stopped")
			s.exec.PersistAccount(context.Background())
			return fmt.Errorf("price feed stopped unexpectedly")
		}
	}
}

// handlePrices is the market-data callback. Marks complete before the
// handler returns, satisfying the in-batch ordering guarantee.
func (s *TradingService) handlePrices(quotes map[string]domain.PriceQuote) {
	s.exec.UpdatePrices(context.Background(), quotes)
}

func (s *TradingService) handleFeedError(err error) {
	s.logger.Error(context.Background(), err, "Price feed error reported")
}

// logPortfolio runs a portfolio risk pass and logs the summary.
func (s *TradingService) logPortfolio(ctx context.Context) {
	summary := s.risk.AnalyzePortfolioRisk(ctx)
	if summary.OpenPositions == 0 {
		s.logger.Debug(ctx, "Portfolio check: no open positions")
		return
	}
	s.logger.Info(ctx, "Portfolio risk summary", map[string]interface{}{
		"level":           summary.OverallLevel,
		"marginUsage":     summary.MarginUsage,
		"pnlPct":          summary.PNLPercentage,
		"effectiveRisk":   summary.EffectiveRisk,
		"returnPct":       summary.ReturnPercentage,
		"openPositions":   summary.OpenPositions,
		"recommendations": summary.Recommendations,
	})
}

// HandleSignal is the strategy entry point. A signal either scales into an
// existing same-direction position (when the pyramiding gates pass) or is
// sized by admission control and executed as a new trade. Returns whether a
// position was opened or extended, plus the deciding reason.
func (s *TradingService) HandleSignal(ctx context.Context, symbol string, side domain.OrderSide, price, requestedQty, confidence float64, strategyName string) (bool, string) {
	op := "HandleSignal"
	if !side.IsValid() {
		return false, fmt.Sprintf("Invalid signal: %s", side)
	}
	if price <= 0 {
		return false, fmt.Sprintf("Invalid price: %.6f", price)
	}

	if pos, ok := s.exec.OpenPositionBySymbol(symbol); ok {
		if domain.SideForSignal(side) != pos.Side {
			return false, fmt.Sprintf("Position already open for %s in the opposite direction", symbol)
		}
		ok, reason := s.exec.CheckPyramidingOpportunity(symbol, confidence)
		if !ok {
			return false, reason
		}
		addQty := pos.TotalQuantity * s.cfg.Pyramiding.AddPercentage
		if !s.exec.AddToPosition(ctx, pos.ID, addQty, price) {
			return false, fmt.Sprintf("Pyramid add failed for %s", symbol)
		}
		s.logger.Info(ctx, op+": Scaled into position", map[string]interface{}{
			"symbol": symbol, "addQty": addQty, "price": price,
		})
		return true, fmt.Sprintf("Added %.6f to existing %s position", addQty, symbol)
	}

	qty, reason := s.risk.CalculateSafeQuantity(ctx, symbol, price, requestedQty, s.cfg.DefaultLeverage)
	if qty <= 0 {
		s.logger.Warn(ctx, op+": Signal rejected by admission control", map[string]interface{}{
			"symbol": symbol, "reason": reason,
		})
		return false, reason
	}

	req := domain.NewTradeRequest(symbol, side, price, qty, s.cfg.DefaultLeverage)
	req.Confidence = confidence
	req.StrategyName = strategyName
	if !s.exec.ExecuteTrade(ctx, req) {
		return false, req.ErrorMessage
	}
	return true, reason
}
