package domain

import "time"

// PriceQuote is a single market-data snapshot for a symbol.
type PriceQuote struct {
	Symbol    string
	Price     float64
	Timestamp time.Time
}
