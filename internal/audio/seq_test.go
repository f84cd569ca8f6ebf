package audio

import "testing"

func TestDistanceAndAfter(t *testing.T) {
	tests := []struct {
		name       string
		a, b       SequenceNumber
		wantAfter  bool
	}{
		{"equal", 100, 100, false},
		{"simple forward", 101, 100, true},
		{"simple backward", 100, 101, false},
		{"wrap forward", 0, 65535, true},
		{"wrap backward", 65535, 0, false},
		{"half range forward", 32768, 0, false},
		{"half range backward", 0, 32768, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := After(tt.a, tt.b); got != tt.wantAfter {
				t.Errorf("After(%d,%d) = %v, want %v", tt.a, tt.b, got, tt.wantAfter)
			}
		})
	}
}

func TestSequenceWrapOrdering(t *testing.T) {
	// push 65530..65535 then 0..5 in order: each must be "after" its predecessor.
	var seqs []SequenceNumber
	for i := 65530; i <= 65535; i++ {
		seqs = append(seqs, SequenceNumber(uint16(i)))
	}
	for i := 0; i <= 5; i++ {
		seqs = append(seqs, SequenceNumber(uint16(i)))
	}
	if len(seqs) != 12 {
		t.Fatalf("expected 12 sequence numbers, got %d", len(seqs))
	}
	for i := 1; i < len(seqs); i++ {
		if !After(seqs[i], seqs[i-1]) {
			t.Errorf("expected %d after %d", seqs[i], seqs[i-1])
		}
	}
	last := seqs[len(seqs)-1].Add(1)
	if last != 6 {
		t.Errorf("expected expected_seq=6 after wrap sequence, got %d", last)
	}
}

func TestSequenceAddWraps(t *testing.T) {
	var seq SequenceNumber = 65535
	if got := seq.Add(1); got != 0 {
		t.Errorf("65535+1 = %d, want 0", got)
	}
}

func TestTimestampAdvanceWraps(t *testing.T) {
	var ts Timestamp = ^Timestamp(0) - TimestampStep + 1
	advanced := ts.Advance(1)
	if uint32(advanced) != uint32(ts)+TimestampStep {
		t.Errorf("timestamp advance mismatch: %d", advanced)
	}
}
