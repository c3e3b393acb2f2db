package signal

import "fmt"

// ConditionKind discriminates the rule condition variants. Every condition
// carries its kind explicitly and evaluation matches on it exhaustively;
// an unknown kind is an error, never a silent no-match.
type ConditionKind string

const (
	// ConditionIndicator compares the latest close against a smoothed
	// indicator value
	ConditionIndicator ConditionKind = "indicator"
	// ConditionDirection checks whether the close moved up or down over a
	// lookback window
	ConditionDirection ConditionKind = "direction"
)

// Operator is the comparison side for indicator conditions
type Operator string

const (
	OpAbove Operator = "above"
	OpBelow Operator = "below"
)

// Smoothing method names for indicator conditions
const (
	IndicatorSMA    = "sma"
	IndicatorEMA    = "ema"
	IndicatorWilder = "wilder"
)

// Condition is a tagged variant: Kind selects which field group applies.
type Condition struct {
	Kind ConditionKind `json:"kind" mapstructure:"kind"`

	// ConditionIndicator fields
	Indicator string   `json:"indicator,omitempty" mapstructure:"indicator"`
	Period    int      `json:"period,omitempty" mapstructure:"period"`
	Op        Operator `json:"op,omitempty" mapstructure:"op"`

	// ConditionDirection fields
	Lookback int  `json:"lookback,omitempty" mapstructure:"lookback"`
	Rising   bool `json:"rising,omitempty" mapstructure:"rising"`
}

// Evaluate checks the condition against a close-price series. Returns
// false without error when the series is too short to decide.
func (c Condition) Evaluate(closes []float64) (bool, error) {
	switch c.Kind {
	case ConditionIndicator:
		return c.evaluateIndicator(closes)
	case ConditionDirection:
		return c.evaluateDirection(closes)
	default:
		return false, fmt.Errorf("unknown condition kind %q", c.Kind)
	}
}

func (c Condition) evaluateIndicator(closes []float64) (bool, error) {
	if len(closes) == 0 {
		return false, nil
	}

	var value float64
	var ok bool
	switch c.Indicator {
	case IndicatorSMA:
		value, ok = SMA(closes, c.Period)
	case IndicatorEMA:
		value, ok = EMA(closes, c.Period)
	case IndicatorWilder:
		value, ok = Wilder(closes, c.Period)
	default:
		return false, fmt.Errorf("unknown indicator %q", c.Indicator)
	}
	if !ok {
		return false, nil
	}

	last := closes[len(closes)-1]
	switch c.Op {
	case OpAbove:
		return last > value, nil
	case OpBelow:
		return last < value, nil
	default:
		return false, fmt.Errorf("unknown operator %q", c.Op)
	}
}

func (c Condition) evaluateDirection(closes []float64) (bool, error) {
	if c.Lookback <= 0 {
		return false, fmt.Errorf("direction condition requires a positive lookback, got %d", c.Lookback)
	}
	if len(closes) <= c.Lookback {
		return false, nil
	}

	last := closes[len(closes)-1]
	ref := closes[len(closes)-1-c.Lookback]
	if c.Rising {
		return last > ref, nil
	}
	return last < ref, nil
}
