package sim

// TurnDetector reports a completed turn when the average x velocity crosses
// from <= 0 to >= 0 between consecutive observations. The first observation
// only primes it.
type TurnDetector struct {
	prev   float64
	primed bool
}

func (d *TurnDetector) Observe(vx float64) bool {
	if !d.primed {
		d.prev, d.primed = vx, true
		return false
	}
	turned := d.prev <= 0 && vx >= 0
	d.prev = vx
	return turned
}

func (d *TurnDetector) Reset() {
	*d = TurnDetector{}
}
