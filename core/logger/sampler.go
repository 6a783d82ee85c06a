package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratioSampler lets n out of every d events through. A zero ratio lets
// everything through.
type ratioSampler struct {
	ratio   atomic.Uint64 // n<<32 | d
	counter atomic.Uint64
}

func newRatioSampler(n, d int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(n, d)
	return s
}

// Set replaces the ratio and restarts the window.
func (s *ratioSampler) Set(n, d int) {
	switch {
	case n <= 0 || d <= 0:
		n, d = 0, 0
	case n > d:
		n = d
	}
	s.ratio.Store(uint64(uint32(n))<<32 | uint64(uint32(d)))
	s.counter.Store(0)
}

// Allow reports whether the next event passes.
func (s *ratioSampler) Allow() bool {
	r := s.ratio.Load()
	n, d := r>>32, r&0xffffffff
	if n == 0 || d == 0 {
		return true
	}
	return (s.counter.Add(1)-1)%d < n
}

// parseRatioSpec accepts "n/d" or a bare "d" meaning 1/d.
func parseRatioSpec(raw string) (int, int) {
	raw = strings.TrimSpace(raw)
	if num, den, ok := strings.Cut(raw, "/"); ok {
		n, err1 := strconv.Atoi(strings.TrimSpace(num))
		d, err2 := strconv.Atoi(strings.TrimSpace(den))
		if err1 == nil && err2 == nil {
			return n, d
		}
		return 0, 0
	}
	if d, err := strconv.Atoi(raw); err == nil && d > 0 {
		return 1, d
	}
	return 0, 0
}
