package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newLong(entry, qty float64) *Position {
	return &Position{
		ID:                "p1",
		Symbol:            "BTCUSD",
		Side:              Long,
		Status:            StatusOpen,
		EntryPrice:        entry,
		Quantity:          qty,
		Leverage:          10,
		InvestedAmount:    entry * qty,
		EntryTime:         time.Now().UTC(),
		OriginalQuantity:  qty,
		TotalQuantity:     qty,
		AvgEntryPrice:     entry,
		RemainingQuantity: qty,
	}
}

func TestMarkToMarket_IdentityAndIdempotence(t *testing.T) {
	pos := newLong(50000, 0.01)

	pos.MarkToMarket(51000)
	assert.InDelta(t, 10.0, pos.UnrealizedPNL, 1e-9)
	assert.InDelta(t, pos.RealizedPNL+pos.UnrealizedPNL, pos.PNL, 1e-9)
	assert.InDelta(t, 2.0, pos.PNLPercentage, 1e-9) // 10 / 500 * 100

	first := pos.PNL
	pos.MarkToMarket(51000)
	assert.Equal(t, first, pos.PNL)

	// Realized slices stay inside the identity.
	pos.RealizedPNL = 5
	pos.RemainingQuantity = 0.005
	pos.MarkToMarket(51000)
	assert.InDelta(t, 5.0, pos.UnrealizedPNL, 1e-9)
	assert.InDelta(t, 10.0, pos.PNL, 1e-9)
}

func TestMarkToMarket_ShortSide(t *testing.T) {
	pos := newLong(50000, 0.01)
	pos.Side = Short
	pos.MarkToMarket(49000)
	assert.InDelta(t, 10.0, pos.UnrealizedPNL, 1e-9)
}

func TestEffectiveQuantity(t *testing.T) {
	pos := newLong(50000, 0.01)
	assert.Equal(t, 0.01, pos.EffectiveQuantity())

	pos.RemainingQuantity = 0.004
	pos.TrailingCount = 1
	assert.Equal(t, 0.004, pos.EffectiveQuantity())

	pos.RemainingQuantity = 0
	assert.Zero(t, pos.EffectiveQuantity())
}

func TestSlicePNL(t *testing.T) {
	pos := newLong(50000, 0.01)
	assert.InDelta(t, 5.0, pos.SlicePNL(0.005, 51000), 1e-9)

	pos.Side = Short
	assert.InDelta(t, -5.0, pos.SlicePNL(0.005, 51000), 1e-9)
}

func TestStopAndTargetHit(t *testing.T) {
	pos := newLong(50000, 0.01)
	pos.StopLoss = 49500
	pos.Target = 51500

	assert.True(t, pos.StopLossHit(49400))
	assert.False(t, pos.StopLossHit(49600))
	assert.True(t, pos.TargetHit(51600))
	assert.False(t, pos.TargetHit(51400))

	short := newLong(50000, 0.01)
	short.Side = Short
	short.StopLoss = 50500
	short.Target = 48500
	assert.True(t, short.StopLossHit(50600))
	assert.True(t, short.TargetHit(48400))

	// Unset levels never trigger.
	bare := newLong(50000, 0.01)
	assert.False(t, bare.StopLossHit(0.0001))
	assert.False(t, bare.TargetHit(1e12))
}
