package irstream

import (
	"errors"
	"testing"

	"github.com/gftdcojp/logvault/internal/types"
)

var testInfo = TimestampInfo{
	TimestampPattern:       "%Y-%m-%dT%H:%M:%S.%3",
	TimestampPatternSyntax: "strftime",
	TimeZoneID:             "UTC",
}

type event struct {
	ts   types.Epochtime
	text string
}

func encodeStream(t *testing.T, encoding EncodingType, events []event) []byte {
	t.Helper()
	var enc *Encoder
	var err error
	if encoding == EncodingEightByte {
		enc, err = NewEightByteEncoder(testInfo)
	} else {
		var ref types.Epochtime
		if len(events) > 0 {
			ref = events[0].ts
		}
		enc, err = NewFourByteEncoder(testInfo, ref)
	}
	if err != nil {
		t.Fatalf("creating encoder: %v", err)
	}
	for _, ev := range events {
		if err := enc.EncodeMessage(ev.ts, ev.text); err != nil {
			t.Fatalf("EncodeMessage(%q): %v", ev.text, err)
		}
	}
	enc.EncodeEnd()
	return enc.Bytes()
}

func decodeAll(t *testing.T, data []byte, wantEncoding EncodingType) []event {
	t.Helper()
	dec := NewDecoder()
	dec.Feed(data)

	encoding, err := dec.DecodeEncodingType()
	if err != nil {
		t.Fatalf("DecodeEncodingType: %v", err)
	}
	if encoding != wantEncoding {
		t.Fatalf("encoding = %v, want %v", encoding, wantEncoding)
	}
	info, _, err := dec.DecodePreamble()
	if err != nil {
		t.Fatalf("DecodePreamble: %v", err)
	}
	if info != testInfo {
		t.Errorf("preamble info = %+v, want %+v", info, testInfo)
	}

	var events []event
	for {
		text, ts, err := dec.DecodeNextMessage()
		if errors.Is(err, types.ErrEndOfFile) {
			return events
		}
		if err != nil {
			t.Fatalf("DecodeNextMessage: %v", err)
		}
		events = append(events, event{ts, text})
	}
}

var roundTripEvents = []event{
	{1000, "connected to host 10.1.2.3 port 443"},
	{2000, "transferred 1048576 bytes in 1.23 seconds"},
	{1995, "out of order timestamp"},
	{2000, "disconnected"},
	{2000, ""},
	{5000000, "jumped far ahead uid=xyz99"},
}

func TestEightByteRoundTrip(t *testing.T) {
	data := encodeStream(t, EncodingEightByte, roundTripEvents)
	got := decodeAll(t, data, EncodingEightByte)
	if len(got) != len(roundTripEvents) {
		t.Fatalf("decoded %d events, want %d", len(got), len(roundTripEvents))
	}
	for i, ev := range roundTripEvents {
		if got[i] != ev {
			t.Errorf("event %d = %+v, want %+v", i, got[i], ev)
		}
	}
}

func TestFourByteRoundTrip(t *testing.T) {
	data := encodeStream(t, EncodingFourByte, roundTripEvents)
	got := decodeAll(t, data, EncodingFourByte)
	if len(got) != len(roundTripEvents) {
		t.Fatalf("decoded %d events, want %d", len(got), len(roundTripEvents))
	}
	for i, ev := range roundTripEvents {
		if got[i] != ev {
			t.Errorf("event %d = %+v, want %+v", i, got[i], ev)
		}
	}
}

func TestFourByteNegativeDelta(t *testing.T) {
	events := []event{
		{10000, "hello"},
		{9995, "world"},
	}
	data := encodeStream(t, EncodingFourByte, events)
	got := decodeAll(t, data, EncodingFourByte)
	if len(got) != 2 {
		t.Fatalf("decoded %d events, want 2", len(got))
	}
	if got[0].ts != 10000 || got[1].ts != 9995 {
		t.Errorf("timestamps = %d, %d, want 10000, 9995", got[0].ts, got[1].ts)
	}
}

func TestIncompletePrefixLeavesCursorUntouched(t *testing.T) {
	data := encodeStream(t, EncodingEightByte, roundTripEvents)

	dec := NewDecoder()
	fed := 0
	var decoded []event

	if _, err := dec.DecodeEncodingType(); !errors.Is(err, types.ErrIncompleteIR) {
		t.Fatalf("empty buffer should report ErrIncompleteIR, got %v", err)
	}

	// Feed the stream one byte at a time; every failure must be retryable.
	stage := 0
	for {
		var err error
		switch stage {
		case 0:
			_, err = dec.DecodeEncodingType()
		case 1:
			_, _, err = dec.DecodePreamble()
		default:
			var text string
			var ts types.Epochtime
			text, ts, err = dec.DecodeNextMessage()
			if err == nil {
				decoded = append(decoded, event{ts, text})
			}
		}
		if err == nil {
			if stage < 2 {
				stage++
			}
			continue
		}
		if errors.Is(err, types.ErrEndOfFile) {
			break
		}
		if !errors.Is(err, types.ErrIncompleteIR) {
			t.Fatalf("stage %d: unexpected error %v", stage, err)
		}
		if fed == len(data) {
			t.Fatal("decoder still incomplete after the full stream was fed")
		}
		dec.Feed(data[fed : fed+1])
		fed++
	}

	if len(decoded) != len(roundTripEvents) {
		t.Fatalf("decoded %d events, want %d", len(decoded), len(roundTripEvents))
	}
	for i, ev := range roundTripEvents {
		if decoded[i] != ev {
			t.Errorf("event %d = %+v, want %+v", i, decoded[i], ev)
		}
	}
}

func TestCorruptMagic(t *testing.T) {
	dec := NewDecoder()
	dec.Feed([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	if _, err := dec.DecodeEncodingType(); !errors.Is(err, types.ErrCorruptedIR) {
		t.Errorf("bad magic = %v, want ErrCorruptedIR", err)
	}
}

func TestUnsupportedVersion(t *testing.T) {
	enc, err := NewEightByteEncoder(testInfo)
	if err != nil {
		t.Fatal(err)
	}
	data := enc.Bytes()
	// Corrupt the version string inside the JSON payload
	for i := 0; i+5 < len(data); i++ {
		if string(data[i:i+5]) == `0.0.1` {
			data[i] = '9'
			break
		}
	}
	dec := NewDecoder()
	dec.Feed(data)
	if _, err := dec.DecodeEncodingType(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := dec.DecodePreamble(); !errors.Is(err, types.ErrUnsupportedVersion) {
		t.Errorf("tampered version = %v, want ErrUnsupportedVersion", err)
	}
}

func TestCorruptEventTag(t *testing.T) {
	data := encodeStream(t, EncodingEightByte, nil)
	// Replace the end-of-stream tag with an unknown tag
	data[len(data)-1] = 0x7F
	dec := NewDecoder()
	dec.Feed(data)
	if _, err := dec.DecodeEncodingType(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := dec.DecodePreamble(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := dec.DecodeNextMessage(); !errors.Is(err, types.ErrCorruptedIR) {
		t.Errorf("unknown tag = %v, want ErrCorruptedIR", err)
	}
}
