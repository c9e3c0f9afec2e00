package ports

import (
	"context"

	"paperMarginBot/internal/domain"
)

// PriceFeed pushes market-data snapshots into the engine. Implementations
// deliver batches keyed by symbol; the handler is invoked from the feed's
// own goroutine.
type PriceFeed interface {
	// Stream starts delivering price snapshots to handler until the context
	// is cancelled or a value is sent on stopCh. doneCh is closed when the
	// stream has fully shut down.
	Stream(ctx context.Context, handler func(quotes map[string]domain.PriceQuote), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}
