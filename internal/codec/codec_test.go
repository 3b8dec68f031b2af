package codec

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/gftdcojp/logvault/internal/types"
)

// memDict is an in-memory stand-in for the variable dictionary.
type memDict struct {
	ids    map[string]types.VarID
	values []string
}

func newMemDict() *memDict {
	return &memDict{ids: make(map[string]types.VarID)}
}

func (d *memDict) AddOccurrence(value string) (types.VarID, bool, error) {
	if id, ok := d.ids[value]; ok {
		return id, false, nil
	}
	id := types.VarID(len(d.values))
	d.ids[value] = id
	d.values = append(d.values, value)
	return id, true, nil
}

func (d *memDict) lookup(id types.VarID, _ types.SegmentID) (string, error) {
	if int(id) >= len(d.values) {
		return "", fmt.Errorf("no such variable %d", id)
	}
	return d.values[id], nil
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	messages := []string{
		"connected to host 10.1.2.3 port 443",
		"transferred 1048576 bytes in 1.23 seconds",
		"disconnected",
		"",
		"value=-17 ratio=0.500 id=deadbeef",
		"big number 999999999999999999999 stays textual",
		"float extremes .5 5.0 1234567890.123456",
		"weird bytes \x11 and \x12 and \x13 and \\ stay put",
		"user=alice logged in from 192.168.0.1",
		"non-canonical 007 +5 -0 1.e3",
		"task took 1.0 vs 1.00 seconds",
		"escaped\\ delimiter stays",
	}
	dict := newMemDict()
	for _, text := range messages {
		msg, err := EncodeMessage(text, dict)
		if err != nil {
			t.Fatalf("EncodeMessage(%q): %v", text, err)
		}
		got, err := DecodeMessage(msg.Logtype, msg.Vars, dict.lookup)
		if err != nil {
			t.Fatalf("DecodeMessage(%q): %v", text, err)
		}
		if got != text {
			t.Errorf("round trip = %q, want %q", got, text)
		}
	}
}

func TestEncodeDeterministic(t *testing.T) {
	text := "transferred 1048576 bytes in 1.23 seconds to 10.1.2.3"
	dict := newMemDict()
	m1, err := EncodeMessage(text, dict)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := EncodeMessage(text, dict)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(m1, m2) {
		t.Errorf("encoding is not deterministic: %+v vs %+v", m1, m2)
	}
}

func TestNumericVarsAvoidDictionary(t *testing.T) {
	dict := newMemDict()
	msg, err := EncodeMessage("transferred 1048576 bytes in 1.23 seconds", dict)
	if err != nil {
		t.Fatal(err)
	}
	if len(dict.values) != 0 {
		t.Errorf("numeric variables created dictionary entries: %v", dict.values)
	}
	if len(msg.Vars) != 2 {
		t.Errorf("expected 2 encoded variables, got %d", len(msg.Vars))
	}
}

func TestIPGoesThroughDictionary(t *testing.T) {
	dict := newMemDict()
	msg, err := EncodeMessage("connected to host 10.1.2.3 port 443", dict)
	if err != nil {
		t.Fatal(err)
	}
	if len(dict.values) != 1 || dict.values[0] != "10.1.2.3" {
		t.Errorf("dictionary = %v, want exactly [10.1.2.3]", dict.values)
	}
	if len(msg.DictVarIDs) != 1 {
		t.Errorf("DictVarIDs = %v, want one entry", msg.DictVarIDs)
	}
	if len(msg.DictSlotIxs) != 1 {
		t.Fatalf("DictSlotIxs = %v, want one entry", msg.DictSlotIxs)
	}
	id, seg := DecodeDictVar(msg.Vars[msg.DictSlotIxs[0]])
	if id != msg.DictVarIDs[0] || seg != 0 {
		t.Errorf("dict slot = (%d, %d), want (%d, 0)", id, seg, msg.DictVarIDs[0])
	}
}

func TestIntEncoding(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"0", true},
		{"443", true},
		{"-17", true},
		{"18014398509481983", true},  // 2^54 - 1
		{"18014398509481984", false}, // 2^54
		{"-18014398509481984", false},
		{"007", false},
		{"+5", false},
		{"-0", false},
		{"", false},
		{"12a", false},
	}
	for _, c := range cases {
		ev, ok := TryEncodeInt(c.in)
		if ok != c.ok {
			t.Errorf("TryEncodeInt(%q) ok = %v, want %v", c.in, ok, c.ok)
			continue
		}
		if ok {
			if got := DecodeInt(ev); got != c.in {
				t.Errorf("DecodeInt(TryEncodeInt(%q)) = %q", c.in, got)
			}
		}
	}
}

func TestFloatEncoding(t *testing.T) {
	good := []string{
		"1.23", "1.0", "1.00", "0.5", ".5", "-0.5", "-123.456",
		"123456789012345.6", "0.000000000000001",
	}
	for _, in := range good {
		ev, ok := TryEncodeFloat(in)
		if !ok {
			t.Errorf("TryEncodeFloat(%q) should succeed", in)
			continue
		}
		if got := DecodeFloat(ev); got != in {
			t.Errorf("DecodeFloat(TryEncodeFloat(%q)) = %q", in, got)
		}
	}
	bad := []string{
		"5", "5.", ".", "1.2.3", "1e5", "+1.5", "12345678901234567.8", "abc",
	}
	for _, in := range bad {
		if _, ok := TryEncodeFloat(in); ok {
			t.Errorf("TryEncodeFloat(%q) should fail", in)
		}
	}
}

func TestDistinctFloatRepresentationsStayDistinct(t *testing.T) {
	a, _ := TryEncodeFloat("1.0")
	b, _ := TryEncodeFloat("1.00")
	if a == b {
		t.Error("1.0 and 1.00 must encode differently")
	}
}

func TestFourByteEncoding(t *testing.T) {
	if _, ok := TryEncodeIntFourByte("2147483647"); !ok {
		t.Error("int32 max should encode")
	}
	if _, ok := TryEncodeIntFourByte("2147483648"); ok {
		t.Error("int32 max + 1 should not encode")
	}
	for _, in := range []string{"1.23", "-99.999", ".5", "3355.4431"} {
		ev, ok := TryEncodeFloatFourByte(in)
		if !ok {
			t.Errorf("TryEncodeFloatFourByte(%q) should succeed", in)
			continue
		}
		if got := DecodeFloatFourByte(ev); got != in {
			t.Errorf("four-byte float round trip of %q = %q", in, got)
		}
		if got := DecodeFloat(ConvertFourByteFloatToEightByte(ev)); got != in {
			t.Errorf("four-to-eight conversion of %q = %q", in, got)
		}
	}
	// Nine significant digits exceed the four-byte budget
	if _, ok := TryEncodeFloatFourByte("1234567.89"); ok {
		t.Error("nine-digit float should not fit the four-byte encoding")
	}
}

func TestDictSlotPacking(t *testing.T) {
	ev := EncodeDictVar(12345, 67)
	id, seg := DecodeDictVar(ev)
	if id != 12345 || seg != 67 {
		t.Errorf("DecodeDictVar = (%d, %d), want (12345, 67)", id, seg)
	}
}

func TestPlaceholderPositions(t *testing.T) {
	dict := newMemDict()
	msg, err := EncodeMessage("a 1 b 2.5 c \x11 d xyz123", dict)
	if err != nil {
		t.Fatal(err)
	}
	positions := PlaceholderPositions(msg.Logtype)
	if len(positions) != 3 {
		t.Fatalf("placeholder positions = %v, want 3 entries", positions)
	}
	for _, p := range positions {
		if !IsPlaceholder(msg.Logtype[p]) {
			t.Errorf("position %d is %#x, not a placeholder", p, msg.Logtype[p])
		}
	}
}

func TestNextVarClassification(t *testing.T) {
	cases := []struct {
		text string
		vars []string
	}{
		{"no variables here", nil},
		{"port 443 open", []string{"443"}},
		{"hex deadbeef value", []string{"deadbeef"}},
		{"user=alice", []string{"alice"}},
		{"user =alice", []string{"alice"}},
		{"plainword=other", []string{"other"}},
		{"10.1.2.3", []string{"10.1.2.3"}},
		{"ab", []string{"ab"}},
		{"a", nil},
		{"ts=2023 text", []string{"2023"}},
	}
	for _, c := range cases {
		var got []string
		begin, end := 0, 0
		var ok bool
		for {
			begin, end, ok = NextVar(c.text, begin, end)
			if !ok {
				break
			}
			got = append(got, c.text[begin:end])
		}
		if !reflect.DeepEqual(got, c.vars) {
			t.Errorf("NextVar(%q) = %v, want %v", c.text, got, c.vars)
		}
	}
}
