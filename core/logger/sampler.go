package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratioSampler lets num out of every den calls through. A zero ratio
// disables sampling and every call passes.
type ratioSampler struct {
	ratio atomic.Uint64 // num<<32 | den
	n     atomic.Uint64
}

func newRatioSampler(num, den int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(num, den)
	return s
}

func (s *ratioSampler) Set(num, den int) {
	if num <= 0 || den <= 0 {
		num, den = 0, 0
	}
	num = min(num, den)
	s.ratio.Store(uint64(num)<<32 | uint64(uint32(den)))
	s.n.Store(0)
}

func (s *ratioSampler) Allow() bool {
	r := s.ratio.Load()
	num, den := r>>32, r&0xffffffff
	if den == 0 {
		return true
	}
	return (s.n.Add(1)-1)%den < num
}

// parseRatioSpec reads "N/M" or "M" (meaning 1/M). Anything unparsable or
// non-positive yields 0, 0.
func parseRatioSpec(spec string) (int, int) {
	num, den := 1, 0
	var err error
	if a, b, ok := strings.Cut(strings.TrimSpace(spec), "/"); ok {
		if num, err = strconv.Atoi(strings.TrimSpace(a)); err == nil {
			den, err = strconv.Atoi(strings.TrimSpace(b))
		}
	} else {
		den, err = strconv.Atoi(a)
	}
	if err != nil || num <= 0 || den <= 0 {
		return 0, 0
	}
	return num, den
}
