package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearline/voicebridge/internal/audio"
)

func TestNetStatsCountsGapAsLoss(t *testing.T) {
	ns := newNetStats()
	ns.record(audio.SequenceNumber(100))
	ns.record(audio.SequenceNumber(101))
	ns.record(audio.SequenceNumber(104)) // gap of 2 (102, 103 missing)

	assert.Equal(t, uint64(2), ns.lost)
	assert.Equal(t, uint64(3), ns.received)
}

func TestNetStatsCountsOutOfOrder(t *testing.T) {
	ns := newNetStats()
	ns.record(audio.SequenceNumber(10))
	ns.record(audio.SequenceNumber(20))
	ns.record(audio.SequenceNumber(15)) // arrives late, behind last seen

	require.Equal(t, uint64(1), ns.outOfOrder)
	assert.Equal(t, uint64(2), ns.received, "out-of-order packet should not be counted as received")
}

func TestNetStatsLossPercentZeroWithNoPackets(t *testing.T) {
	ns := newNetStats()
	assert.Zero(t, ns.lossPercent())
}

func TestNetStatsRegistryTracksWorstSenderIndependently(t *testing.T) {
	r := newNetStatsRegistry()

	good := r.get("alice")
	good.record(audio.SequenceNumber(0))
	good.record(audio.SequenceNumber(1))
	good.record(audio.SequenceNumber(2))

	bad := r.get("bob")
	bad.record(audio.SequenceNumber(0))
	bad.record(audio.SequenceNumber(10)) // 9 missing

	require.Greater(t, r.worstLossPercent(), 0.0, "bob's loss should dominate the worst-case reading")
}
