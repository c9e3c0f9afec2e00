package domain

// OrderSide represents the side of a trade signal (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// IsValid reports whether the side is one of the two accepted values.
func (s OrderSide) IsValid() bool {
	return s == Buy || s == Sell
}

// PositionSide represents the direction of an open position.
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// SideForSignal maps an entry signal to the resulting position side.
func SideForSignal(s OrderSide) PositionSide {
	if s == Sell {
		return Short
	}
	return Long
}

// PositionStatus represents the status of a trading position.
type PositionStatus string

const (
	StatusOpen    PositionStatus = "OPEN"
	StatusClosed  PositionStatus = "CLOSED"
	StatusPending PositionStatus = "PENDING"
)

// ExecutionStatus tracks the lifecycle of a trade request.
type ExecutionStatus string

const (
	ExecPending   ExecutionStatus = "PENDING"
	ExecExecuting ExecutionStatus = "EXECUTING"
	ExecCompleted ExecutionStatus = "COMPLETED"
	ExecFailed    ExecutionStatus = "FAILED"
	ExecCancelled ExecutionStatus = "CANCELLED"
)

// Well-known close reasons. Reasons are free text on the position record;
// these constants cover the ones the engine itself produces.
const (
	ReasonStopLoss     = "Stop Loss Hit"
	ReasonTarget       = "Target Hit"
	ReasonTimeLimit    = "Time Limit Reached"
	ReasonTrailingStop = "Trailing Stop Hit"
	ReasonLiquidation  = "Liquidation Protection - Emergency Close"
)
