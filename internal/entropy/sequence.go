package entropy

import "sync"

// Sequence replays scripted draws, then falls back to Next once exhausted.
// Floats are consumed by Float64; Intn consumes from Ints and clamps into
// range. Used to force specific policy branches in tests and replays.
type Sequence struct {
	mu     sync.Mutex
	floats []float64
	ints   []int
	Next   Source
}

// NewSequence creates a scripted source over the given float draws.
func NewSequence(floats ...float64) *Sequence {
	return &Sequence{floats: floats, Next: NewSeeded(1)}
}

// WithInts appends scripted integer draws.
func (s *Sequence) WithInts(ints ...int) *Sequence {
	s.mu.Lock()
	s.ints = append(s.ints, ints...)
	s.mu.Unlock()
	return s
}

func (s *Sequence) Float64() float64 {
	s.mu.Lock()
	if len(s.floats) > 0 {
		v := s.floats[0]
		s.floats = s.floats[1:]
		s.mu.Unlock()
		return v
	}
	s.mu.Unlock()
	return s.Next.Float64()
}

func (s *Sequence) Intn(n int) int {
	s.mu.Lock()
	if len(s.ints) > 0 {
		v := s.ints[0]
		s.ints = s.ints[1:]
		s.mu.Unlock()
		if v < 0 {
			return 0
		}
		if v >= n {
			return n - 1
		}
		return v
	}
	s.mu.Unlock()
	return s.Next.Intn(n)
}
