// Package wire implements the on-the-wire encodings spec.md §3/§6 define:
// the AudioPacket framing (current pipe-delimited form plus the legacy
// colon-delimited form accepted on receive) and the Hub's newline-terminated
// control command grammar.
package wire

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/hearline/voicebridge/internal/audio"
)

// AudioPacket is the parsed form of a datagram on the audio port.
//
// Seq is nil when the packet used the legacy "sender_id:payload" form,
// which carries no sequence number (spec.md §3: "accepted on receive with
// seq=nil, vad=1").
type AudioPacket struct {
	SenderID string
	Seq      *audio.SequenceNumber
	Ts       audio.Timestamp
	VAD      bool
	Payload  []byte
}

// maxHeaderScan bounds how far we search for the pipe-delimited header
// before concluding the packet doesn't use the current format. Sender ids,
// sequence numbers, timestamps and the vad flag are all short ASCII fields;
// this prevents pathological scans over a large opaque payload that happens
// to contain '|' bytes.
const maxHeaderScan = 256

// BuildAudioPacket serializes the current wire form:
// sender_id|seq|timestamp|vad|payload.
func BuildAudioPacket(senderID string, seq audio.SequenceNumber, ts audio.Timestamp, vad bool, payload []byte) []byte {
	vadDigit := "0"
	if vad {
		vadDigit = "1"
	}
	header := fmt.Sprintf("%s|%d|%d|%s|", senderID, seq, uint32(ts), vadDigit)
	out := make([]byte, 0, len(header)+len(payload))
	out = append(out, header...)
	out = append(out, payload...)
	return out
}

// ParseAudioPacket parses either the current or legacy wire form. Malformed
// input returns an error; callers are expected to count and drop per
// spec.md §7.
func ParseAudioPacket(data []byte) (AudioPacket, error) {
	if pkt, ok := parseCurrentForm(data); ok {
		return pkt, nil
	}
	if pkt, ok := parseLegacyForm(data); ok {
		return pkt, nil
	}
	return AudioPacket{}, fmt.Errorf("wire: malformed audio packet (%d bytes)", len(data))
}

func parseCurrentForm(data []byte) (AudioPacket, bool) {
	scanLimit := len(data)
	if scanLimit > maxHeaderScan {
		scanLimit = maxHeaderScan
	}
	head := data[:scanLimit]

	var pipes [4]int
	pos := 0
	for i := 0; i < 4; i++ {
		idx := bytes.IndexByte(head[pos:], '|')
		if idx < 0 {
			return AudioPacket{}, false
		}
		pipes[i] = pos + idx
		pos = pipes[i] + 1
	}

	senderID := string(data[:pipes[0]])
	seqStr := string(data[pipes[0]+1 : pipes[1]])
	tsStr := string(data[pipes[1]+1 : pipes[2]])
	vadStr := string(data[pipes[2]+1 : pipes[3]])
	payload := data[pipes[3]+1:]

	if senderID == "" {
		return AudioPacket{}, false
	}
	seqVal, err := strconv.ParseUint(seqStr, 10, 16)
	if err != nil {
		return AudioPacket{}, false
	}
	tsVal, err := strconv.ParseUint(tsStr, 10, 32)
	if err != nil {
		return AudioPacket{}, false
	}
	vad := vadStr == "1"

	seq := audio.SequenceNumber(seqVal)
	return AudioPacket{
		SenderID: senderID,
		Seq:      &seq,
		Ts:       audio.Timestamp(tsVal),
		VAD:      vad,
		Payload:  payload,
	}, true
}

func parseLegacyForm(data []byte) (AudioPacket, bool) {
	idx := bytes.IndexByte(data, ':')
	if idx <= 0 {
		return AudioPacket{}, false
	}
	senderID := string(data[:idx])
	payload := data[idx+1:]
	return AudioPacket{
		SenderID: senderID,
		Seq:      nil,
		VAD:      true,
		Payload:  payload,
	}, true
}
