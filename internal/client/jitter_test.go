package client

import (
	"testing"

	"github.com/hearline/voicebridge/internal/audio"
)

func seqFrame(n int16) audio.Frame {
	f := audio.NewFrame()
	f[0] = n
	return f
}

// TestOrderedDelivery is spec.md §8's scenario 1: 20 identical frames push
// in order, fill to target_fill=10 before any pop succeeds, then all 20
// pop back out in order.
func TestOrderedDelivery(t *testing.T) {
	jb := NewJitterBuffer(10)
	for i := 0; i < 20; i++ {
		jb.Push(audio.SequenceNumber(100+i), seqFrame(int16(100+i)))
	}

	for i := 0; i < 20; i++ {
		f, ok, _ := jb.Pop()
		if !ok {
			t.Fatalf("pop %d: expected a frame, got none", i)
		}
		if f[0] != int16(100+i) {
			t.Fatalf("pop %d: got frame %d, want %d", i, f[0], 100+i)
		}
	}
}

// TestWaitsForTargetFillBeforeEmitting confirms occupancy below
// target_fill yields nothing.
func TestWaitsForTargetFillBeforeEmitting(t *testing.T) {
	jb := NewJitterBuffer(10)
	for i := 0; i < 9; i++ {
		jb.Push(audio.SequenceNumber(i), seqFrame(int16(i)))
	}
	if _, ok, _ := jb.Pop(); ok {
		t.Fatal("expected no pop before target_fill reached")
	}
}

// TestGapRecovery is spec.md §8's scenario 2: push 200,201,202,204..212
// (skipping 203); once occupancy reaches target_fill, the 4th pop skips
// 203 and emits 204, leaving expected_seq=205.
func TestGapRecovery(t *testing.T) {
	jb := NewJitterBuffer(10)
	seqs := []int{200, 201, 202, 204, 205, 206, 207, 208, 209, 210, 211, 212}
	for _, s := range seqs {
		jb.Push(audio.SequenceNumber(s), seqFrame(int16(s)))
	}

	var got []int16
	var missed bool
	for i := 0; i < 4; i++ {
		f, ok, miss := jb.Pop()
		if !ok {
			t.Fatalf("pop %d: expected a frame", i)
		}
		got = append(got, f[0])
		if i == 3 {
			missed = miss
		}
	}

	want := []int16{200, 201, 202, 204}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("pop %d = %d, want %d", i, got[i], w)
		}
	}
	if !missed {
		t.Error("expected the 4th pop to register a mixed miss")
	}
	if jb.expectedSeq != 205 {
		t.Errorf("expected_seq = %d, want 205", jb.expectedSeq)
	}
}

// TestJitterBufferEvictsFarthestPast confirms overflow behavior: with
// JitterMaxSize frames buffered, a newer arrival evicts the farthest-past
// entry rather than being rejected.
func TestJitterBufferEvictsFarthestPast(t *testing.T) {
	jb := NewJitterBuffer(JitterMaxSize + 10)
	jb.expectedSeq = 0
	jb.hasExpected = true

	for i := 0; i < JitterMaxSize; i++ {
		jb.Push(audio.SequenceNumber(i+1), seqFrame(int16(i+1)))
	}
	if jb.Len() != JitterMaxSize {
		t.Fatalf("len = %d, want %d", jb.Len(), JitterMaxSize)
	}

	jb.Push(audio.SequenceNumber(JitterMaxSize+1), seqFrame(int16(JitterMaxSize+1)))
	if jb.Len() != JitterMaxSize {
		t.Fatalf("len after overflow push = %d, want %d", jb.Len(), JitterMaxSize)
	}
	if _, present := jb.frames[1]; present {
		t.Error("expected the farthest-past entry (seq 1) to be evicted")
	}
	if _, present := jb.frames[audio.SequenceNumber(JitterMaxSize+1)]; !present {
		t.Error("expected the newly-pushed frame to be retained")
	}
}

// TestJitterBufferDiscardsTooFarBehind confirms spec.md §3 invariant 1.
func TestJitterBufferDiscardsTooFarBehind(t *testing.T) {
	jb := NewJitterBuffer(10)
	jb.expectedSeq = 1000
	jb.hasExpected = true

	jb.Push(audio.SequenceNumber(1000-JitterMaxSize-1), seqFrame(1))
	if jb.Len() != 0 {
		t.Errorf("expected discard of frame far behind watermark, len = %d", jb.Len())
	}
}
