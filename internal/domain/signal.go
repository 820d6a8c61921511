package domain

import "time"

// FilterOutcome is the result of one pipeline stage.
type FilterOutcome struct {
	Stage      string
	Passed     bool
	Confidence float64 // 0-1
	Reason     string
	Payload    map[string]float64
}

// Stage multipliers by signal stage.
const (
	MultiplierStage1 = 1.0
	MultiplierStage2 = 0.6
	MultiplierStage3 = 0.3
)

// SignalDecision is the aggregated result of the filter pipeline.
type SignalDecision struct {
	Symbol      string
	StrategyTag string
	Passed      bool

	Tier             int     // 1 strongest .. 3 weakest, from the tier stage
	FallbackStage    int     // 0 primary, 1 fallback series, 2 neither
	Stage            int     // 1..3
	StageMultiplier  float64 // 1.0, 0.6 or 0.3
	Confidence       float64 // aggregate 0-1
	RegimeConfidence float64

	Price       float64 // Last primary close when evaluated
	Reason      string  // Rejection reason, empty when passed
	FailedStage string
	Outcomes    []FilterOutcome
	EvaluatedAt time.Time
}
