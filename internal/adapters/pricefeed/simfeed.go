package pricefeed

import (
	"context"
	"math/rand"
	"time"

	"paperMarginBot/internal/domain"
	"paperMarginBot/internal/ports"
)

// SimFeed generates random-walk price snapshots for a fixed symbol set.
// Used for paper trading without a market-data connection.
type SimFeed struct {
	logger    ports.Logger
	interval  time.Duration
	prices    map[string]float64
	changePct float64
	rng       *rand.Rand
}

// SimConfig configures the simulated feed.
type SimConfig struct {
	Logger       ports.Logger
	Interval     time.Duration
	StartPrices  map[string]float64 // Initial price per symbol
	MaxChangePct float64            // Max per-tick move, e.g. 0.02 for ±2%
	Seed         int64              // 0 means time-based
}

// NewSimFeed creates a simulated feed.
func NewSimFeed(cfg SimConfig) *SimFeed {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	changePct := cfg.MaxChangePct
	if changePct <= 0 {
		changePct = 0.02
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	prices := make(map[string]float64, len(cfg.StartPrices))
	for sym, p := range cfg.StartPrices {
		prices[sym] = p
	}
	return &SimFeed{
		logger:    cfg.Logger,
		interval:  interval,
		prices:    prices,
		changePct: changePct,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Stream delivers a full snapshot of all symbols on every tick.
func (f *SimFeed) Stream(ctx context.Context, handler func(quotes map[string]domain.PriceQuote), errHandler func(err error)) (chan struct{}, chan struct{}, error) {
	doneCh := make(chan struct{})
	stopCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				handler(f.tick())
			}
		}
	}()

	f.logger.Info(ctx, "Simulated price feed started", map[string]interface{}{"symbols": len(f.prices), "interval": f.interval.String()})
	return doneCh, stopCh, nil
}

// tick advances every symbol by a bounded random step.
func (f *SimFeed) tick() map[string]domain.PriceQuote {
	now := time.Now().UTC()
	quotes := make(map[string]domain.PriceQuote, len(f.prices))
	for sym, price := range f.prices {
		step := (f.rng.Float64()*2 - 1) * f.changePct
		next := price * (1 + step)
		if next <= 0 {
			next = price
		}
		f.prices[sym] = next
		quotes[sym] = domain.PriceQuote{Symbol: sym, Price: next, Timestamp: now}
	}
	return quotes
}
