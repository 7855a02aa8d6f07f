// Package chance is the random-trial collaborator. Draws are a pure function of
// the world seed, the step and a per-step counter so a replay reproduces them.
package chance

type Trial interface {
	DoesItHappen(probability float64) bool
}

type Seeded struct {
	seed  int64
	step  uint64
	count uint64
}

func NewSeeded(seed int64) *Seeded { return &Seeded{seed: seed} }

// Reseed starts the draw sequence for a world step.
func (s *Seeded) Reseed(step uint64) {
	s.step = step
	s.count = 0
}

func (s *Seeded) DoesItHappen(probability float64) bool {
	if probability <= 0 {
		return false
	}
	if probability >= 1 {
		return true
	}
	s.count++
	return unit(hash3(s.seed, s.step, s.count)) < probability
}

// Fixed always answers the same; useful for tests and for disabling events.
type Fixed bool

func (f Fixed) DoesItHappen(float64) bool { return bool(f) }

func unit(h uint64) float64 {
	return float64(h>>11) / float64(1<<53)
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func hash3(seed int64, a, b uint64) uint64 {
	v := uint64(seed) ^ (a * 0x9e3779b97f4a7c15) ^ (b * 0xc2b2ae3d27d4eb4f)
	return mix64(v)
}
