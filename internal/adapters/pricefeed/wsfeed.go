package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"paperMarginBot/internal/domain"
	"paperMarginBot/internal/ports"
)

// WSFeed consumes live price snapshots from a websocket endpoint that pushes
// JSON messages of the form {"SYMBOL": {"price": 123.45}, ...}.
type WSFeed struct {
	logger               ports.Logger
	url                  string
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// WSConfig configures the websocket feed.
type WSConfig struct {
	Logger               ports.Logger
	URL                  string
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// NewWSFeed creates a websocket feed client.
func NewWSFeed(cfg WSConfig) (*WSFeed, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for websocket feed")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("websocket feed URL is required: %w", ports.ErrConfigurationError)
	}
	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &WSFeed{
		logger:               cfg.Logger,
		url:                  cfg.URL,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
	}, nil
}

type wsQuote struct {
	Price float64 `json:"price"`
}

// Stream connects and delivers snapshots until stopped. Connection drops are
// retried with exponential backoff; the stream gives up after the configured
// number of consecutive failed attempts and closes doneCh.
func (f *WSFeed) Stream(ctx context.Context, handler func(quotes map[string]domain.PriceQuote), errHandler func(err error)) (chan struct{}, chan struct{}, error) {
	op := "Stream"
	doneCh := make(chan struct{})
	stopCh := make(chan struct{})

	wsCtx, cancel := context.WithCancel(ctx)

	// Link the external stopCh to the internal context cancellation.
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-wsCtx.Done():
		}
	}()

	go func() {
		defer close(doneCh)
		defer cancel()
		attempt := 0
		for {
			if wsCtx.Err() != nil {
				return
			}
			conn, _, err := websocket.DefaultDialer.DialContext(wsCtx, f.url, nil)
			if err != nil {
				attempt++
				if attempt > f.maxReconnectAttempts {
					f.logger.Error(wsCtx, err, op+": Max reconnection attempts exceeded, giving up.", map[string]interface{}{"url": f.url, "maxAttempts": f.maxReconnectAttempts})
					errHandler(fmt.Errorf("%w: %v", ports.ErrConnectionFailed, err))
					return
				}
				delay := f.reconnectDelay * time.Duration(1<<uint(attempt-1))
				f.logger.Warn(wsCtx, op+": Connection failed, retrying", map[string]interface{}{"attempt": attempt, "delay": delay.String()})
				select {
				case <-time.After(delay):
				case <-wsCtx.Done():
					return
				}
				continue
			}
			attempt = 0
			f.logger.Info(wsCtx, op+": Connected to price feed", map[string]interface{}{"url": f.url})

			if err := f.readLoop(wsCtx, conn, handler); err != nil {
				f.logger.Warn(wsCtx, op+": Read loop ended, reconnecting", map[string]interface{}{"error": err.Error()})
				errHandler(err)
			}
			conn.Close()
		}
	}()

	return doneCh, stopCh, nil
}

// readLoop decodes snapshot messages until the connection breaks or the
// context is cancelled.
func (f *WSFeed) readLoop(ctx context.Context, conn *websocket.Conn, handler func(quotes map[string]domain.PriceQuote)) error {
	// Unblock ReadMessage on cancellation.
	go func() {
		<-ctx.Done()
		conn.SetReadDeadline(time.Now())
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("websocket read failed: %w", err)
		}

		var raw map[string]wsQuote
		if err := json.Unmarshal(msg, &raw); err != nil {
			f.logger.Warn(ctx, "Skipping malformed feed message", map[string]interface{}{"error": err.Error()})
			continue
		}

		now := time.Now().UTC()
		quotes := make(map[string]domain.PriceQuote, len(raw))
		for sym, q := range raw {
			if q.Price <= 0 {
				continue
			}
			quotes[sym] = domain.PriceQuote{Symbol: sym, Price: q.Price, Timestamp: now}
		}
		if len(quotes) > 0 {
			handler(quotes)
		}
	}
}
