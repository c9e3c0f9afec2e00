package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"paperMarginBot/config"
	"paperMarginBot/internal/domain"
	"paperMarginBot/internal/ports"
)

// TradeExecutor validates and executes trade requests against the virtual
// account. It is the single writer of account and position state: the risk
// engine and the orchestrator read snapshots and trigger writes only through
// its methods. A mutex serializes every compound read-modify-write so two
// concurrent requests cannot double-spend the balance or open two positions
// for one symbol.
type TradeExecutor struct {
	cfg      *config.Config
	logger   ports.Logger
	store    ports.PersistenceGateway
	notifier ports.NotificationSink

	mu        sync.Mutex // Protects account, positions and prices below
	account   *domain.Account
	positions map[string]*domain.Position
	prices    map[string]float64
}

// NewTradeExecutor creates an executor instance.
func NewTradeExecutor(cfg *config.Config, logger ports.Logger, store ports.PersistenceGateway, notifier ports.NotificationSink) (*TradeExecutor, error) {
	if cfg == nil || logger == nil || store == nil {
		return nil, fmt.Errorf("missing required dependencies for TradeExecutor")
	}
	return &TradeExecutor{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		notifier:  notifier,
		positions: make(map[string]*domain.Position),
		prices:    make(map[string]float64),
	}, nil
}

// Start loads the account and positions from the persistence gateway,
// creating a fresh account when none exists. Load failures fall back to a
// fresh in-memory account: the running process is authoritative.
func (te *TradeExecutor) Start(ctx context.Context) error {
	te.mu.Lock()
	defer te.mu.Unlock()

	acc, err := te.store.LoadAccount(ctx, te.cfg.AccountID)
	if err != nil {
		te.logger.Error(ctx, err, "Failed to load account, starting with a fresh ledger")
	}
	if acc == nil {
		acc = te.newAccount(time.Now())
		if err := te.store.SaveAccount(ctx, acc); err != nil {
			te.logger.Error(ctx, err, "Failed to persist new account", map[string]interface{}{"accountID": acc.ID})
		}
		te.logger.Info(ctx, "Created new account", map[string]interface{}{"accountID": acc.ID, "balance": acc.CurrentBalance})
	} else {
		te.logger.Info(ctx, "Loaded existing account", map[string]interface{}{"accountID": acc.ID, "balance": acc.CurrentBalance})
	}
	te.account = acc

	positions, err := te.store.LoadPositions(ctx, "")
	if err != nil {
		te.logger.Error(ctx, err, "Failed to load positions, continuing with none")
		return nil
	}
	for _, pos := range positions {
		te.positions[pos.ID] = pos
	}
	te.logger.Info(ctx, "Loaded positions", map[string]interface{}{"count": len(positions)})
	return nil
}

// ExecuteTrade validates and executes a trade request. The outcome is
// recorded on the request itself: status, error message and the resulting
// position id. Returns true when a position was opened.
func (te *TradeExecutor) ExecuteTrade(ctx context.Context, req *domain.TradeRequest) bool {
	te.mu.Lock()
	defer te.mu.Unlock()

	op := "ExecuteTrade"
	req.Status = domain.ExecExecuting
	te.logger.Info(ctx, op+": Executing trade", map[string]interface{}{
		"symbol": req.Symbol, "signal": req.Signal, "price": req.Price, "quantity": req.Quantity,
	})

	if reason, ok := te.validateRequest(req); !ok {
		req.Fail(reason)
		te.saveOrderWarn(ctx, req)
		te.logger.Warn(ctx, op+": Trade rejected", map[string]interface{}{"symbol": req.Symbol, "reason": reason})
		return false
	}

	if req.Leverage <= 0 {
		req.Leverage = te.cfg.DefaultLeverage
	}

	now := time.Now().UTC()
	margin := req.Price * req.Quantity / req.Leverage
	fee := margin * te.cfg.TradingFeePct
	if !te.reserve(margin, fee) {
		req.Fail(fmt.Sprintf("Insufficient balance: need %.2f, have %.2f", margin+fee, te.account.CurrentBalance))
		te.saveOrderWarn(ctx, req)
		return false
	}

	pos := te.buildPosition(req, margin, fee, now)
	te.positions[pos.ID] = pos
	te.recordTradeOpened(now)
	req.Status = domain.ExecCompleted
	req.PositionID = pos.ID

	// Persistence is best-effort: a failed write never rolls back the trade.
	if err := te.store.SavePosition(ctx, pos); err != nil {
		te.logger.Error(ctx, err, op+": Failed to persist position", map[string]interface{}{"positionID": pos.ID})
	}
	if err := te.store.SaveAccount(ctx, te.account); err != nil {
		te.logger.Error(ctx, err, op+": Failed to persist account", map[string]interface{}{"accountID": te.account.ID})
	}
	te.saveOrderWarn(ctx, req)
	te.notifyTradeWarn(ctx, req)

	te.logger.Info(ctx, op+": Position opened", map[string]interface{}{
		"positionID": pos.ID, "symbol": pos.Symbol, "side": pos.Side,
		"margin": margin, "fee": fee, "balance": te.account.CurrentBalance,
	})
	return true
}

// validateRequest runs the admission checks in their fixed order. The
// executor mutex must be held.
func (te *TradeExecutor) validateRequest(req *domain.TradeRequest) (string, bool) {
	if !req.Signal.IsValid() {
		return fmt.Sprintf("Invalid signal: %s", req.Signal), false
	}
	if req.Price <= 0 {
		return fmt.Sprintf("Invalid price: %.6f", req.Price), false
	}
	if req.Quantity <= 0 {
		return fmt.Sprintf("Invalid quantity: %.6f", req.Quantity), false
	}
	if req.Leverage > te.cfg.MaxLeverage {
		return fmt.Sprintf("Leverage %.1f exceeds maximum %.1f", req.Leverage, te.cfg.MaxLeverage), false
	}
	if req.Confidence < te.cfg.MinConfidence {
		return fmt.Sprintf("Low confidence: %.1f%%", req.Confidence), false
	}
	te.resetDailyCounter(time.Now())
	if te.account.DailyTradesCount >= te.account.DailyTradesLimit {
		return fmt.Sprintf("Daily trade limit reached: %d/%d", te.account.DailyTradesCount, te.account.DailyTradesLimit), false
	}
	if open := te.openPositionForSymbol(req.Symbol); open != nil {
		return fmt.Sprintf("Position already open for %s", req.Symbol), false
	}
	return "", true
}

// buildPosition constructs the position record for an accepted request.
func (te *TradeExecutor) buildPosition(req *domain.TradeRequest, margin, fee float64, now time.Time) *domain.Position {
	side := domain.SideForSignal(req.Signal)
	pos := &domain.Position{
		ID:             uuid.NewString(),
		Symbol:         req.Symbol,
		Side:           side,
		Status:         domain.StatusOpen,
		EntryPrice:     req.Price,
		Quantity:       req.Quantity,
		Leverage:       req.Leverage,
		MarginUsed:     margin,
		TradingFee:     fee,
		InvestedAmount: req.Price * req.Quantity,
		StrategyName:   req.StrategyName,
		EntryTime:      now,

		OriginalQuantity:  req.Quantity,
		TotalQuantity:     req.Quantity,
		AvgEntryPrice:     req.Price,
		RemainingQuantity: req.Quantity,
	}
	if side == domain.Long {
		pos.StopLoss = req.Price * (1 - te.cfg.StopLossPct)
		pos.Target = req.Price * (1 + te.cfg.TargetPct)
	} else {
		pos.StopLoss = req.Price * (1 + te.cfg.StopLossPct)
		pos.Target = req.Price * (1 - te.cfg.TargetPct)
	}
	pos.MarkToMarket(req.Price)
	return pos
}

// ClosePosition closes an open position at the given exit price. Returns
// false if the position is missing or not open.
func (te *TradeExecutor) ClosePosition(ctx context.Context, id string, exitPrice float64, reason string) bool {
	te.mu.Lock()
	defer te.mu.Unlock()
	return te.closeLocked(ctx, id, exitPrice, reason)
}

// closeLocked finalizes a position. The executor mutex must be held.
func (te *TradeExecutor) closeLocked(ctx context.Context, id string, exitPrice float64, reason string) bool {
	op := "ClosePosition"
	pos, ok := te.positions[id]
	if !ok || !pos.IsOpen() {
		te.logger.Warn(ctx, op+": Position missing or not open", map[string]interface{}{"positionID": id})
		return false
	}

	exitFee := pos.TradingFee * te.cfg.ExitFeeMultiplier
	if qty := pos.EffectiveQuantity(); qty > 0 {
		pos.RealizedPNL += pos.SlicePNL(qty, exitPrice)
		applyExitSlice(pos, qty, exitPrice)
	}
	pos.RemainingQuantity = 0
	pos.UnrealizedPNL = 0
	pos.PNL = pos.RealizedPNL
	if pos.InvestedAmount > 0 {
		pos.PNLPercentage = pos.PNL / pos.InvestedAmount * 100
	}
	pos.ExitPrice = exitPrice
	pos.ExitTime = time.Now().UTC()
	pos.Status = domain.StatusClosed
	pos.Notes = reason

	te.release(pos.MarginUsed, pos.PNL, exitFee)

	if err := te.store.SavePosition(ctx, pos); err != nil {
		te.logger.Error(ctx, err, op+": Failed to persist closed position", map[string]interface{}{"positionID": pos.ID})
	}
	if err := te.store.SaveAccount(ctx, te.account); err != nil {
		te.logger.Error(ctx, err, op+": Failed to persist account", map[string]interface{}{"accountID": te.account.ID})
	}
	if te.notifier != nil {
		if err := te.notifier.NotifyPositionClose(ctx, pos.Symbol, pos.ID, exitPrice, pos.PNL, reason); err != nil {
			te.logger.Warn(ctx, op+": Close notification failed", map[string]interface{}{"positionID": pos.ID, "error": err.Error()})
		}
	}

	te.logger.Info(ctx, op+": Position closed", map[string]interface{}{
		"positionID": pos.ID, "symbol": pos.Symbol, "exitPrice": exitPrice,
		"pnl": pos.PNL, "reason": reason, "balance": te.account.CurrentBalance,
	})
	return true
}

// UpdatePrices recomputes the PnL of every open position whose symbol is in
// the batch. All marks complete under the lock before the method returns,
// so a subsequent risk evaluation always reads fully updated state.
func (te *TradeExecutor) UpdatePrices(ctx context.Context, quotes map[string]domain.PriceQuote) {
	te.mu.Lock()
	defer te.mu.Unlock()

	for sym, q := range quotes {
		if q.Price > 0 {
			te.prices[sym] = q.Price
		}
	}
	for _, pos := range te.positions {
		if !pos.IsOpen() {
			continue
		}
		if q, ok := quotes[pos.Symbol]; ok && q.Price > 0 {
			pos.MarkToMarket(q.Price)
		}
	}
}

// openPositionForSymbol returns the open position for symbol, if any.
// The executor mutex must be held.
func (te *TradeExecutor) openPositionForSymbol(symbol string) *domain.Position {
	for _, pos := range te.positions {
		if pos.Symbol == symbol && pos.IsOpen() {
			return pos
		}
	}
	return nil
}

// DeleteAllData wipes the store and resets the in-memory ledger and
// position set. Explicit operator action only.
func (te *TradeExecutor) DeleteAllData(ctx context.Context) bool {
	te.mu.Lock()
	defer te.mu.Unlock()

	if err := te.store.DeleteAllData(ctx); err != nil {
		te.logger.Error(ctx, err, "Failed to delete stored trading data")
		return false
	}
	te.positions = make(map[string]*domain.Position)
	te.prices = make(map[string]float64)
	te.account = te.newAccount(time.Now())
	if err := te.store.SaveAccount(ctx, te.account); err != nil {
		te.logger.Error(ctx, err, "Failed to persist reset account")
	}
	te.logger.Warn(ctx, "All trading data deleted, account reset", map[string]interface{}{"accountID": te.account.ID})
	return true
}

// PersistAccount saves the current ledger snapshot. Called periodically by
// the orchestrator.
func (te *TradeExecutor) PersistAccount(ctx context.Context) {
	te.mu.Lock()
	acc := *te.account
	te.mu.Unlock()
	if err := te.store.SaveAccount(ctx, &acc); err != nil {
		te.logger.Error(ctx, err, "Periodic account persistence failed", map[string]interface{}{"accountID": acc.ID})
	}
}

// saveOrderWarn persists the trade request outcome, logging failures.
func (te *TradeExecutor) saveOrderWarn(ctx context.Context, req *domain.TradeRequest) {
	if err := te.store.SaveOrder(ctx, req); err != nil {
		te.logger.Error(ctx, err, "Failed to persist order record", map[string]interface{}{"orderID": req.ID})
	}
}

// notifyTradeWarn emits the trade-execution notification, logging failures.
func (te *TradeExecutor) notifyTradeWarn(ctx context.Context, req *domain.TradeRequest) {
	if te.notifier == nil {
		return
	}
	if err := te.notifier.NotifyTradeExecution(ctx, req.Symbol, string(req.Signal), req.Price, req.ID, req.PositionID); err != nil {
		te.logger.Warn(ctx, "Trade notification failed", map[string]interface{}{"orderID": req.ID, "error": err.Error()})
	}
}

// --- Read API (snapshots for the risk engine and orchestrator) ---

// Account returns a copy of the current ledger.
func (te *TradeExecutor) Account() domain.Account {
	te.mu.Lock()
	defer te.mu.Unlock()
	return *te.account
}

// OpenPositions returns copies of all open positions.
func (te *TradeExecutor) OpenPositions() []domain.Position {
	te.mu.Lock()
	defer te.mu.Unlock()
	out := make([]domain.Position, 0, len(te.positions))
	for _, pos := range te.positions {
		if pos.IsOpen() {
			out = append(out, *pos)
		}
	}
	return out
}

// Position returns a copy of the position with the given id.
func (te *TradeExecutor) Position(id string) (domain.Position, bool) {
	te.mu.Lock()
	defer te.mu.Unlock()
	pos, ok := te.positions[id]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// OpenPositionBySymbol returns a copy of the open position for symbol.
func (te *TradeExecutor) OpenPositionBySymbol(symbol string) (domain.Position, bool) {
	te.mu.Lock()
	defer te.mu.Unlock()
	if pos := te.openPositionForSymbol(symbol); pos != nil {
		return *pos, true
	}
	return domain.Position{}, false
}

// Price returns the last known price for symbol.
func (te *TradeExecutor) Price(symbol string) (float64, bool) {
	te.mu.Lock()
	defer te.mu.Unlock()
	p, ok := te.prices[symbol]
	return p, ok
}

// AccountSummary aggregates the ledger with open-position totals.
type AccountSummary struct {
	Account            domain.Account
	OpenPositions      int
	TotalUnrealizedPNL float64
}

// Summary returns the account with derived open-position aggregates.
func (te *TradeExecutor) Summary() AccountSummary {
	te.mu.Lock()
	defer te.mu.Unlock()
	s := AccountSummary{Account: *te.account}
	for _, pos := range te.positions {
		if pos.IsOpen() {
			s.OpenPositions++
			s.TotalUnrealizedPNL += pos.UnrealizedPNL
		}
	}
	return s
}
