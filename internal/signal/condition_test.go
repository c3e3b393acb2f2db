package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionUnknownKindIsError(t *testing.T) {
	cond := Condition{Kind: "momentum"}

	_, err := cond.Evaluate([]float64{1, 2, 3})
	assert.ErrorContains(t, err, "unknown condition kind")
}

func TestIndicatorCondition(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 10}

	above := Condition{Kind: ConditionIndicator, Indicator: IndicatorSMA, Period: 2, Op: OpAbove}
	pass, err := above.Evaluate(closes)
	require.NoError(t, err)
	assert.True(t, pass)

	below := Condition{Kind: ConditionIndicator, Indicator: IndicatorSMA, Period: 2, Op: OpBelow}
	pass, err = below.Evaluate(closes)
	require.NoError(t, err)
	assert.False(t, pass)
}

func TestIndicatorConditionInsufficientData(t *testing.T) {
	cond := Condition{Kind: ConditionIndicator, Indicator: IndicatorEMA, Period: 20, Op: OpAbove}

	pass, err := cond.Evaluate([]float64{1, 2, 3})
	require.NoError(t, err)
	assert.False(t, pass)

	pass, err = cond.Evaluate(nil)
	require.NoError(t, err)
	assert.False(t, pass)
}

func TestIndicatorConditionRejectsUnknownNames(t *testing.T) {
	cond := Condition{Kind: ConditionIndicator, Indicator: "vwap", Period: 2, Op: OpAbove}
	_, err := cond.Evaluate([]float64{1, 2, 3})
	assert.ErrorContains(t, err, "unknown indicator")

	cond = Condition{Kind: ConditionIndicator, Indicator: IndicatorSMA, Period: 2, Op: "crosses"}
	_, err = cond.Evaluate([]float64{1, 2, 3})
	assert.ErrorContains(t, err, "unknown operator")
}

func TestDirectionCondition(t *testing.T) {
	rising := Condition{Kind: ConditionDirection, Lookback: 1, Rising: true}
	pass, err := rising.Evaluate([]float64{1, 2})
	require.NoError(t, err)
	assert.True(t, pass)

	falling := Condition{Kind: ConditionDirection, Lookback: 1, Rising: false}
	pass, err = falling.Evaluate([]float64{1, 2})
	require.NoError(t, err)
	assert.False(t, pass)

	// Too little history never passes.
	pass, err = rising.Evaluate([]float64{5})
	require.NoError(t, err)
	assert.False(t, pass)
}

func TestDirectionConditionRequiresPositiveLookback(t *testing.T) {
	cond := Condition{Kind: ConditionDirection, Lookback: 0, Rising: true}
	_, err := cond.Evaluate([]float64{1, 2, 3})
	assert.ErrorContains(t, err, "positive lookback")
}
