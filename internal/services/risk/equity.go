package risk

import (
	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
)

const equityWindowCap = 256

// equityCurve keeps a bounded window of total-value samples and exposes an
// EMA-smoothed latest value, so a single bounce tick cannot flip the
// sustained-recovery check.
type equityCurve struct {
	period  int
	samples []float64
}

func newEquityCurve(period int) *equityCurve {
	if period < 2 {
		period = 2
	}
	return &equityCurve{period: period}
}

func (c *equityCurve) push(v float64) {
	c.samples = append(c.samples, v)
	if len(c.samples) > equityWindowCap {
		c.samples = c.samples[len(c.samples)-equityWindowCap:]
	}
}

// smoothed returns the latest EMA value of the curve. ok is false until
// enough samples have accumulated for the period.
func (c *equityCurve) smoothed() (float64, bool) {
	if len(c.samples) < c.period {
		return 0, false
	}
	ema := trend.NewEmaWithPeriod[float64](c.period)
	out := helper.ChanToSlice(ema.Compute(helper.SliceToChan(c.samples)))
	if len(out) == 0 {
		return 0, false
	}
	return out[len(out)-1], true
}
