package audio

// SequenceNumber is a 16-bit wrapping packet sequence counter, as specified
// in spec.md §3: ordering uses the signed distance d = ((a-b+32768) mod
// 65536) - 32768; a is "after" b iff d > 0.
type SequenceNumber uint16

// Distance returns the signed distance from b to a: positive means a is
// after b, negative means a is before b.
func Distance(a, b SequenceNumber) int32 {
	d := int32(a) - int32(b)
	// Normalize into [-32768, 32767]; exactly half the range apart gives
	// -32768, so neither number is "after" the other.
	d = ((d + 32768) % 65536)
	if d < 0 {
		d += 65536
	}
	return d - 32768
}

// After reports whether a follows b in sequence-number order.
func After(a, b SequenceNumber) bool {
	return Distance(a, b) > 0
}

// Add returns seq advanced by n, wrapping at 65536.
func (seq SequenceNumber) Add(n int) SequenceNumber {
	return SequenceNumber(uint16(int32(seq) + int32(n)))
}

// Timestamp is a 32-bit wrapping sample counter, incrementing by
// TimestampStep (320) per frame.
type Timestamp uint32

// Advance returns the timestamp moved forward by n frames.
func (ts Timestamp) Advance(frames int) Timestamp {
	return Timestamp(uint32(ts) + uint32(frames*TimestampStep))
}
