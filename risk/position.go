package risk

import "math"

// minLossPerLot keeps sizing finite when the stop or pip value is
// vanishingly small.
const minLossPerLot = 1e-12

// ComputePositionSize returns the lot size that loses PerTradePct of equity
// if the stop is hit:
//
//	lots = (equity * per_trade_pct/100) / max(eps, stop_distance * pip_value_per_lot)
//
// The result is not stepped or clamped to the symbol's lot bounds. Calling
// it before equity is known is a programming error and panics.
func (l *Limiter) ComputePositionSize(stopDistance, pipValuePerLot float64) float64 {
	riskAmt := l.mustRiskAmount()
	lossPerLot := math.Max(minLossPerLot, stopDistance*pipValuePerLot)
	return math.Max(0, riskAmt/lossPerLot)
}

// RiskAmount is the money put at risk by one trade at the current equity.
func (l *Limiter) RiskAmount() (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.equitySet {
		return 0, ErrEquityNotSet
	}
	return l.equity * l.cfg.PerTradePct / 100.0, nil
}

func (l *Limiter) mustRiskAmount() float64 {
	amt, err := l.RiskAmount()
	if err != nil {
		panic(err)
	}
	return amt
}
