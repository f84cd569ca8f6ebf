package client

import (
	"sync"
	"time"

	"github.com/hearline/voicebridge/internal/audio"
)

// netStats tracks per-sender network quality: loss, reordering, and
// inter-arrival jitter. Grounded on
// _examples/Zokiio-ovc/voice-client/internal/client/network_stats.go,
// adapted from its flat uint32 sequence subtraction to spec.md's
// wraparound-aware 16-bit sequence arithmetic (internal/audio.Distance)
// since a sender's sequence number can wrap well within a single call.
type netStats struct {
	mu sync.Mutex

	received   uint64
	lost       uint64
	outOfOrder uint64

	haveLast    bool
	lastSeq     audio.SequenceNumber
	lastArrival time.Time

	jitterSum   float64
	jitterCount int64

	recentWindow uint64
	recentSeen   uint64
	recentLost   uint64
}

func newNetStats() *netStats {
	return &netStats{recentWindow: 1000}
}

// record updates stats for one arriving packet's sequence number, matching
// network_stats.go's RecordPacket gap/reorder/jitter accounting.
func (ns *netStats) record(seq audio.SequenceNumber) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	now := time.Now()

	if !ns.haveLast {
		ns.haveLast = true
		ns.lastSeq = seq
		ns.lastArrival = now
		ns.received++
		ns.recentSeen++
		return
	}

	dist := audio.Distance(seq, ns.lastSeq)
	switch {
	case dist > 1:
		gap := uint64(dist - 1)
		ns.lost += gap
		ns.recentLost += gap
	case dist <= 0:
		ns.outOfOrder++
		return
	}

	ns.received++
	ns.recentSeen++
	ns.lastSeq = seq

	if !ns.lastArrival.IsZero() {
		interval := now.Sub(ns.lastArrival).Seconds()
		const expectedInterval = float64(audio.FrameDurationMs) / 1000.0
		jitter := interval - expectedInterval
		if jitter < 0 {
			jitter = -jitter
		}
		ns.jitterSum += jitter
		ns.jitterCount++
	}
	ns.lastArrival = now

	if ns.recentSeen > ns.recentWindow {
		ns.recentSeen = ns.recentWindow
		ns.recentLost = uint64(float64(ns.recentLost) * 0.9)
	}
}

func (ns *netStats) lossPercent() float64 {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.recentSeen == 0 {
		return 0
	}
	return (float64(ns.recentLost) / float64(ns.recentSeen)) * 100.0
}

func (ns *netStats) avgJitterMillis() float64 {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.jitterCount == 0 {
		return 0
	}
	return (ns.jitterSum / float64(ns.jitterCount)) * 1000.0
}

// netStatsRegistry owns one netStats per remote sender id, created lazily.
type netStatsRegistry struct {
	mu    sync.Mutex
	bySID map[string]*netStats
}

func newNetStatsRegistry() *netStatsRegistry {
	return &netStatsRegistry{bySID: make(map[string]*netStats)}
}

func (r *netStatsRegistry) get(senderID string) *netStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	ns, ok := r.bySID[senderID]
	if !ok {
		ns = newNetStats()
		r.bySID[senderID] = ns
	}
	return ns
}

// worstLossPercent returns the worst (highest-loss) sender's rolling loss
// percentage, a cheap single-number health indicator for the CLI stats
// output; per-sender detail is available by polling individual netStats.
func (r *netStatsRegistry) worstLossPercent() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var worst float64
	for _, ns := range r.bySID {
		if p := ns.lossPercent(); p > worst {
			worst = p
		}
	}
	return worst
}

func (r *netStatsRegistry) avgJitterMillis() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.bySID) == 0 {
		return 0
	}
	var sum float64
	for _, ns := range r.bySID {
		sum += ns.avgJitterMillis()
	}
	return sum / float64(len(r.bySID))
}
