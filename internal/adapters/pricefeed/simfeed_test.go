package pricefeed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperMarginBot/internal/domain"
)

type feedLogger struct{}

func (l *feedLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (l *feedLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (l *feedLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (l *feedLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func TestSimFeed_StreamDeliversFullSnapshots(t *testing.T) {
	feed := NewSimFeed(SimConfig{
		Logger:       &feedLogger{},
		Interval:     time.Millisecond,
		StartPrices:  map[string]float64{"BTCUSD": 50000, "ETHUSD": 2000},
		MaxChangePct: 0.02,
		Seed:         42,
	})

	var mu sync.Mutex
	var batches []map[string]domain.PriceQuote
	handler := func(quotes map[string]domain.PriceQuote) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, quotes)
	}

	doneCh, stopCh, err := feed.Stream(context.Background(), handler, func(err error) { t.Errorf("unexpected feed error: %v", err) })
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) >= 3
	}, time.Second, time.Millisecond)

	close(stopCh)
	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("stream did not shut down after stop")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, batch := range batches {
		require.Len(t, batch, 2)
		for sym, q := range batch {
			assert.Equal(t, sym, q.Symbol)
			assert.Greater(t, q.Price, 0.0)
			assert.False(t, q.Timestamp.IsZero())
		}
	}
	// Per-tick moves stay inside the configured bound.
	prev := 50000.0
	for _, batch := range batches {
		next := batch["BTCUSD"].Price
		assert.InDelta(t, prev, next, prev*0.02+1e-9)
		prev = next
	}
}

func TestSimFeed_StreamStopsOnContextCancel(t *testing.T) {
	feed := NewSimFeed(SimConfig{
		Logger:      &feedLogger{},
		Interval:    time.Millisecond,
		StartPrices: map[string]float64{"BTCUSD": 50000},
		Seed:        1,
	})
	ctx, cancel := context.WithCancel(context.Background())

	doneCh, _, err := feed.Stream(ctx, func(map[string]domain.PriceQuote) {}, func(error) {})
	require.NoError(t, err)

	cancel()
	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("stream did not shut down on context cancel")
	}
}
