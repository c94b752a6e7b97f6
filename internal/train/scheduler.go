package train

import "math"

// CosineWithRestarts anneals the learning rate from BaseLR down to EtaMin
// over a cycle of epochs, then restarts at BaseLR with the cycle length
// multiplied by Mult.
type CosineWithRestarts struct {
	BaseLR float64
	EtaMin float64
	// CycleLen is the number of epochs in the first cycle.
	CycleLen int
	// Mult scales the cycle length at every restart. Values below 1 are
	// treated as 1.
	Mult float64

	epoch    int
	cycleLen int
	starting bool
}

// NewCosineWithRestarts builds a scheduler with the given base rate and a
// first cycle of cycleLen epochs.
func NewCosineWithRestarts(baseLR, etaMin float64, cycleLen int, mult float64) *CosineWithRestarts {
	if cycleLen < 1 {
		cycleLen = 1
	}
	if mult < 1 {
		mult = 1
	}
	return &CosineWithRestarts{
		BaseLR:   baseLR,
		EtaMin:   etaMin,
		CycleLen: cycleLen,
		Mult:     mult,
		cycleLen: cycleLen,
	}
}

// LR returns the learning rate for the upcoming epoch.
func (s *CosineWithRestarts) LR() float64 {
	progress := float64(s.epoch) / float64(s.cycleLen)
	return s.EtaMin + (s.BaseLR-s.EtaMin)*(1+math.Cos(math.Pi*progress))/2
}

// Step advances the schedule by one completed epoch.
func (s *CosineWithRestarts) Step() {
	s.epoch++
	if s.epoch >= s.cycleLen {
		s.epoch = 0
		s.cycleLen = int(float64(s.cycleLen) * s.Mult)
		if s.cycleLen < 1 {
			s.cycleLen = 1
		}
		s.starting = true
		return
	}
	s.starting = false
}

// StartingCycle reports whether the last Step crossed a cycle boundary, i.e.
// the next epoch starts a fresh cosine cycle.
func (s *CosineWithRestarts) StartingCycle() bool { return s.starting }
