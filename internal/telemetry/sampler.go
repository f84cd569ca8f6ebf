package telemetry

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Sampler implements spec.md §7's "counted, dropped; logged every Nth
// occurrence" policy. Every call increments the counter; only the 1st,
// (N+1)th, (2N+1)th... calls actually reach the logger, so a burst of identical
// failures doesn't flood the log while every occurrence is still counted.
type Sampler struct {
	logger  *zap.Logger
	name    string
	n       uint64
	counter atomic.Uint64
}

// NewSampler creates a sampler that logs name (via logger.Warn) every n
// occurrences of Hit. n <= 1 logs every occurrence.
func NewSampler(logger *zap.Logger, name string, n uint64) *Sampler {
	if n == 0 {
		n = 1
	}
	return &Sampler{logger: logger, name: name, n: n}
}

// Hit records one occurrence and returns the running count. It logs at
// zap.Warn level when (count-1)%n == 0, so the first occurrence is always
// logged immediately and subsequent logs land every n-th occurrence after.
func (s *Sampler) Hit(fields ...zap.Field) uint64 {
	count := s.counter.Add(1)
	if (count-1)%s.n == 0 {
		s.logger.Warn(s.name, append(fields, zap.Uint64("count", count))...)
	}
	return count
}

// Count returns the current occurrence count without logging.
func (s *Sampler) Count() uint64 {
	return s.counter.Load()
}
