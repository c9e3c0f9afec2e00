package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperMarginBot/config"
	"paperMarginBot/internal/domain"
	"paperMarginBot/internal/executor"
	"paperMarginBot/internal/risk"
)

type mockLogger struct{}

func (l *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (l *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (l *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (l *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// noopStore satisfies the persistence gateway without storing anything.
type noopStore struct{}

func (noopStore) SaveAccount(ctx context.Context, acc *domain.Account) error { return nil }
func (noopStore) LoadAccount(ctx context.Context, id string) (*domain.Account, error) {
	return nil, nil
}
func (noopStore) SavePosition(ctx context.Context, pos *domain.Position) error { return nil }
func (noopStore) LoadPositions(ctx context.Context, status domain.PositionStatus) ([]*domain.Position, error) {
	return nil, nil
}
func (noopStore) SaveOrder(ctx context.Context, req *domain.TradeRequest) error { return nil }
func (noopStore) DeleteAllData(ctx context.Context) error                       { return nil }

// mockFeed hands control of tick delivery to the test.
type mockFeed struct {
	handler func(map[string]domain.PriceQuote)
	doneCh  chan struct{}
	stopCh  chan struct{}
}

func (f *mockFeed) Stream(ctx context.Context, handler func(quotes map[string]domain.PriceQuote), errHandler func(err error)) (chan struct{}, chan struct{}, error) {
	f.handler = handler
	f.doneCh = make(chan struct{})
	f.stopCh = make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-f.stopCh:
		}
		close(f.doneCh)
	}()
	return f.doneCh, f.stopCh, nil
}

func testConfig() *config.Config {
	return &config.Config{
		AccountID:         "test",
		InitialBalance:    10000,
		DailyTradesLimit:  50,
		Symbols:           []string{"BTCUSD", "ETHUSD"},
		DefaultLeverage:   10,
		MaxLeverage:       50,
		TradingFeePct:     0.001,
		ExitFeeMultiplier: 0.5,
		StopLossPct:       0.01,
		TargetPct:         0.03,
		MinConfidence:     50,
		MaxHoldingHours:   48,
		MinTradeSize:      0.001,

		BalancePerTradePct:     0.20,
		SafeBalancePerTradePct: 0.05,
		SafeBalanceThreshold:   1000,
		LiquidationBufferPct:   0.10,
		MaxPositionsOpen:       2,

		Pyramiding: config.PyramidingConfig{
			Enabled: true, MinConfidence: 70, MinProfitPct: 2, MaxAdds: 3, AddPercentage: 0.5,
		},
		Trailing: config.TrailingConfig{
			Enabled: true, MaxCount: 3, ExitPercentage: 0.25, MinProfitPct: 3,
			ActivationPct: 5, StopOffsetPct: 0.03, TightenOffsetPct: 0.02,
		},

		MediumRisk:    config.RiskTier{MarginPct: 70, LossPct: 5, Hours: 12},
		HighRisk:      config.RiskTier{MarginPct: 80, LossPct: 8, Hours: 24},
		CriticalRisk:  config.RiskTier{MarginPct: 90, LossPct: 12, Hours: 36},
		EmergencyRisk: config.RiskTier{MarginPct: 95, LossPct: 15, Hours: 48},

		MaxPortfolioRiskPct:        80,
		PortfolioHighRiskMarginPct: 85,
		PortfolioCriticalMarginPct: 92,
		PortfolioHighRiskLossPct:   25,
		PortfolioCriticalLossPct:   35,
		PortfolioMediumMarginPct:   70,
		PortfolioMediumLossPct:     15,

		WarningCooldown:      5 * time.Minute,
		RiskCheckInterval:    10 * time.Millisecond,
		EmergencyLiqDistance: 5,
		WarningLiqDistance:   15,
		ProfitProtectPct:     10,
		PersistInterval:      time.Hour,
		PortfolioInterval:    time.Hour,
	}
}

func newTestService(t *testing.T) (*TradingService, *executor.TradeExecutor, *mockFeed) {
	t.Helper()
	cfg := testConfig()
	log := &mockLogger{}

	exec, err := executor.NewTradeExecutor(cfg, log, noopStore{}, nil)
	require.NoError(t, err)
	require.NoError(t, exec.Start(context.Background()))

	engine, err := risk.NewEngine(cfg, log, exec, nil)
	require.NoError(t, err)

	feed := &mockFeed{}
	svc, err := NewTradingService(cfg, log, exec, engine, feed)
	require.NoError(t, err)
	return svc, exec, feed
}

func TestNewTradingService_RequiresDependencies(t *testing.T) {
	_, err := NewTradingService(nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestHandleSignal_OpensSizedPosition(t *testing.T) {
	svc, exec, _ := newTestService(t)
	ctx := context.Background()

	ok, reason := svc.HandleSignal(ctx, "BTCUSD", domain.Buy, 50000, 0, 90, "trend")
	require.True(t, ok, reason)
	assert.Contains(t, reason, "approved")

	pos, found := exec.OpenPositionBySymbol("BTCUSD")
	require.True(t, found)
	// balance 10000, 20% fraction, leverage 10: value 20000, raw qty 0.4,
	// minus the 10% liquidation buffer.
	assert.InDelta(t, 0.36, pos.TotalQuantity, 1e-9)
	assert.Equal(t, "trend", pos.StrategyName)
}

func TestHandleSignal_RejectionsPassThroughReason(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	ok, reason := svc.HandleSignal(ctx, "BTCUSD", "HOLD", 50000, 0, 90, "trend")
	assert.False(t, ok)
	assert.Contains(t, reason, "Invalid signal")

	ok, reason = svc.HandleSignal(ctx, "BTCUSD", domain.Buy, 0, 0, 90, "trend")
	assert.False(t, ok)
	assert.Contains(t, reason, "Invalid price")
}

func TestHandleSignal_OppositeDirectionRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	ok, _ := svc.HandleSignal(ctx, "BTCUSD", domain.Buy, 50000, 0, 90, "trend")
	require.True(t, ok)

	ok, reason := svc.HandleSignal(ctx, "BTCUSD", domain.Sell, 50000, 0, 90, "trend")
	assert.False(t, ok)
	assert.Contains(t, reason, "opposite direction")
}

func TestHandleSignal_PyramidsIntoWinningPosition(t *testing.T) {
	svc, exec, _ := newTestService(t)
	ctx := context.Background()

	ok, _ := svc.HandleSignal(ctx, "BTCUSD", domain.Buy, 50000, 0, 90, "trend")
	require.True(t, ok)
	pos, _ := exec.OpenPositionBySymbol("BTCUSD")
	qtyBefore := pos.TotalQuantity

	// Flat position: pyramiding profit gate blocks the repeat signal.
	ok, reason := svc.HandleSignal(ctx, "BTCUSD", domain.Buy, 50000, 0, 90, "trend")
	assert.False(t, ok)
	assert.Contains(t, reason, "below pyramiding minimum")

	// +4% move clears the gate; the add is AddPercentage of the total.
	exec.UpdatePrices(ctx, map[string]domain.PriceQuote{"BTCUSD": {Symbol: "BTCUSD", Price: 52000}})
	ok, reason = svc.HandleSignal(ctx, "BTCUSD", domain.Buy, 52000, 0, 90, "trend")
	require.True(t, ok, reason)

	pos, _ = exec.OpenPositionBySymbol("BTCUSD")
	assert.InDelta(t, qtyBefore*1.5, pos.TotalQuantity, 1e-9)
	assert.Equal(t, 1, pos.PyramidCount)
}

func TestHandleSignal_MaxPositionsEnforced(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	ok, _ := svc.HandleSignal(ctx, "BTCUSD", domain.Buy, 50000, 0, 90, "trend")
	require.True(t, ok)
	ok, _ = svc.HandleSignal(ctx, "ETHUSD", domain.Buy, 2000, 0, 90, "trend")
	require.True(t, ok)

	ok, reason := svc.HandleSignal(ctx, "SOLUSD", domain.Buy, 100, 0, 90, "trend")
	assert.False(t, ok)
	assert.Contains(t, reason, "Maximum open positions")
}

func TestStart_TickFlowsIntoPositionsAndShutdown(t *testing.T) {
	svc, exec, feed := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Start(ctx) }()

	// Wait for the feed to be wired up.
	require.Eventually(t, func() bool { return feed.handler != nil }, time.Second, 5*time.Millisecond)

	ok, _ := svc.HandleSignal(ctx, "BTCUSD", domain.Buy, 50000, 0, 90, "trend")
	require.True(t, ok)

	feed.handler(map[string]domain.PriceQuote{"BTCUSD": {Symbol: "BTCUSD", Price: 51000, Timestamp: time.Now()}})
	pos, found := exec.OpenPositionBySymbol("BTCUSD")
	require.True(t, found)
	assert.Greater(t, pos.UnrealizedPNL, 0.0)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("service did not shut down")
	}
}

func TestStart_MonitorClosesStoppedOutPosition(t *testing.T) {
	svc, exec, feed := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Start(ctx) }()
	require.Eventually(t, func() bool { return feed.handler != nil }, time.Second, 5*time.Millisecond)

	ok, _ := svc.HandleSignal(ctx, "BTCUSD", domain.Buy, 50000, 0, 90, "trend")
	require.True(t, ok)
	pos, _ := exec.OpenPositionBySymbol("BTCUSD")

	// Push a price through the stop; the next monitor tick closes it.
	feed.handler(map[string]domain.PriceQuote{"BTCUSD": {Symbol: "BTCUSD", Price: 49000, Timestamp: time.Now()}})
	require.Eventually(t, func() bool {
		p, ok := exec.Position(pos.ID)
		return ok && p.Status == domain.StatusClosed
	}, 2*time.Second, 10*time.Millisecond)

	closed, _ := exec.Position(pos.ID)
	assert.Equal(t, domain.ReasonStopLoss, closed.Notes)
	assert.Equal(t, 49000.0, closed.ExitPrice)

	cancel()
	<-errCh
}
