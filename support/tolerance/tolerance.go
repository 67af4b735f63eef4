package tolerance

// Tolerance counts consecutive failures of a restartable loop. A negative
// max means unlimited tolerance.
type Tolerance struct {
	counter int
	max     int
}

func NewTolerance(max int) *Tolerance {
	return &Tolerance{max: max}
}

func (t *Tolerance) Tolerate(cnt int) bool {
	t.counter += cnt
	return t.max < 0 || t.counter <= t.max
}

func (t *Tolerance) Reset() {
	t.counter = 0
}
