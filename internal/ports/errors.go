package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Execution Errors
	ErrInsufficientBalance   = errors.New("insufficient balance for operation")
	ErrDuplicatePosition     = errors.New("position already open for symbol")
	ErrPositionNotFound      = errors.New("position not found")
	ErrPositionNotOpen       = errors.New("position is not open")
	ErrDailyLimitReached     = errors.New("daily trade limit reached")
	ErrPortfolioRiskExceeded = errors.New("portfolio risk limit exceeded")

	// Market Data Errors
	ErrFeedUnavailable  = errors.New("price feed is unavailable")
	ErrConnectionFailed = errors.New("failed to connect to the price feed")

	// Persistence Errors
	ErrDuplicateEntry = errors.New("store record already exists")
	ErrDBConnection   = errors.New("store connection error")
	ErrQueryFailed    = errors.New("store query failed")
	ErrUpdateFailed   = errors.New("store update failed")
	ErrDeleteFailed   = errors.New("store delete failed")
)
