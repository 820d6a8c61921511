package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// PositionStatus represents the status of a trading position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// CloseReason indicates why (part of) a position was closed.
type CloseReason string

const (
	CloseReasonHardStop       CloseReason = "HARD_STOP"
	CloseReasonPartialTP      CloseReason = "PARTIAL_TP"
	CloseReasonTrailingStop   CloseReason = "TRAILING_STOP"
	CloseReasonTrendBreakdown CloseReason = "TREND_BREAKDOWN"
	CloseReasonTimeExit       CloseReason = "TIME_EXIT"
	CloseReasonReconciled     CloseReason = "RECONCILED" // Broker reported fewer shares than we held
	CloseReasonManual         CloseReason = "MANUAL"
	CloseReasonEndOfData      CloseReason = "END_OF_DATA" // Simulation ran out of bars
	CloseReasonUnknown        CloseReason = "Unknown"
)

// EntryKey identifies a symbol traded under a strategy tag.
type EntryKey struct {
	Symbol   string
	Strategy string
}

// ExecutionHint tells the order layer how aggressively to execute.
type ExecutionHint string

const (
	// HintMarket executes immediately at the best available price, no price improvement.
	HintMarket ExecutionHint = "MARKET"
	// HintLimit places a marketable limit at the supplied price.
	HintLimit ExecutionHint = "LIMIT"
)
