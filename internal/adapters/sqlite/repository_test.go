package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperMarginBot/internal/domain"
)

type mockLogger struct{}

func (l *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (l *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (l *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (l *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{DBPath: ":memory:", Logger: &mockLogger{}})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestAccountRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	acc := &domain.Account{
		ID:               "main",
		Name:             "Trading Account main",
		InitialBalance:   10000,
		CurrentBalance:   9876.54,
		DailyTradesLimit: 50,
		DailyTradesCount: 3,
		MaxLeverage:      50,
		TotalMarginUsed:  123.45,
		BrokerageCharges: 1.23,
		RealizedPNL:      -45.67,
		TotalTrades:      7,
		ProfitableTrades: 4,
		LosingTrades:     3,
		WinRate:          57.14,
		LastTradeDate:    "2026-08-31",
	}
	require.NoError(t, repo.SaveAccount(ctx, acc))

	loaded, err := repo.LoadAccount(ctx, "main")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, acc, loaded)
}

func TestLoadAccount_MissingReturnsNilNil(t *testing.T) {
	repo := newTestRepo(t)
	loaded, err := repo.LoadAccount(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSaveAccount_Upserts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	acc := &domain.Account{ID: "main", Name: "a", InitialBalance: 100, CurrentBalance: 100, LastTradeDate: "2026-08-31"}
	require.NoError(t, repo.SaveAccount(ctx, acc))
	acc.CurrentBalance = 42
	require.NoError(t, repo.SaveAccount(ctx, acc))

	loaded, err := repo.LoadAccount(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, 42.0, loaded.CurrentBalance)
}

func TestPositionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	entry := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	exit := time.Date(2026, 8, 31, 14, 30, 0, 0, time.UTC)
	pos := &domain.Position{
		ID:                "pos-1",
		Symbol:            "BTCUSD",
		Side:              domain.Long,
		Status:            domain.StatusClosed,
		EntryPrice:        50250.5,
		ExitPrice:         51500.25,
		Quantity:          0.01,
		Leverage:          10,
		MarginUsed:        50.25,
		TradingFee:        0.05,
		StopLoss:          49748,
		Target:            51758,
		InvestedAmount:    502.5,
		StrategyName:      "trend",
		EntryTime:         entry,
		ExitTime:          exit,
		Notes:             "Target Hit",
		OriginalQuantity:  0.01,
		TotalQuantity:     0.015,
		AvgEntryPrice:     50300.1,
		PyramidCount:      1,
		RemainingQuantity: 0,
		TrailingCount:     2,
		RealizedPNL:       18.0,
		UnrealizedPNL:     0,
		AvgExitPrice:      51400.7,
		PNL:               18.0,
		PNLPercentage:     3.58,
	}
	require.NoError(t, repo.SavePosition(ctx, pos))

	positions, err := repo.LoadPositions(ctx, "")
	require.NoError(t, err)
	require.Len(t, positions, 1)

	got := positions[0]
	assert.True(t, got.EntryTime.Equal(pos.EntryTime))
	assert.True(t, got.ExitTime.Equal(pos.ExitTime))
	// Times carry driver-dependent locations; compare the rest directly.
	got.EntryTime = pos.EntryTime
	got.ExitTime = pos.ExitTime
	assert.Equal(t, pos, got)
}

func TestSavePosition_OpenPositionHasNoExitTime(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	pos := &domain.Position{
		ID:        "pos-1",
		Symbol:    "ETHUSD",
		Side:      domain.Short,
		Status:    domain.StatusOpen,
		EntryTime: time.Now().UTC(),
	}
	require.NoError(t, repo.SavePosition(ctx, pos))

	positions, err := repo.LoadPositions(ctx, domain.StatusOpen)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].ExitTime.IsZero())
}

func TestLoadPositions_StatusFilter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	open := &domain.Position{ID: "p1", Symbol: "BTCUSD", Side: domain.Long, Status: domain.StatusOpen, EntryTime: now}
	closed := &domain.Position{ID: "p2", Symbol: "ETHUSD", Side: domain.Long, Status: domain.StatusClosed, EntryTime: now.Add(-time.Hour), ExitTime: now}
	require.NoError(t, repo.SavePosition(ctx, open))
	require.NoError(t, repo.SavePosition(ctx, closed))

	openOnly, err := repo.LoadPositions(ctx, domain.StatusOpen)
	require.NoError(t, err)
	require.Len(t, openOnly, 1)
	assert.Equal(t, "p1", openOnly[0].ID)

	all, err := repo.LoadPositions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSaveOrder_UpsertsOutcome(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	req := domain.NewTradeRequest("BTCUSD", domain.Buy, 50000, 0.01, 10)
	require.NoError(t, repo.SaveOrder(ctx, req))

	req.Status = domain.ExecCompleted
	req.PositionID = "pos-1"
	require.NoError(t, repo.SaveOrder(ctx, req))
}

func TestDeleteAllData(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveAccount(ctx, &domain.Account{ID: "main", Name: "a", LastTradeDate: "2026-08-31"}))
	require.NoError(t, repo.SavePosition(ctx, &domain.Position{ID: "p1", Symbol: "BTCUSD", Side: domain.Long, Status: domain.StatusOpen, EntryTime: time.Now().UTC()}))
	require.NoError(t, repo.DeleteAllData(ctx))

	acc, err := repo.LoadAccount(ctx, "main")
	require.NoError(t, err)
	assert.Nil(t, acc)
	positions, err := repo.LoadPositions(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, positions)
}
