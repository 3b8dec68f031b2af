package tspattern

import (
	"testing"

	"github.com/gftdcojp/logvault/internal/types"
)

func TestParseISOWithMillis(t *testing.T) {
	p := Pattern{0, "%Y-%m-%dT%H:%M:%S.%3"}
	line := "2016-05-08T07:33:05.123 connected to host"
	ts, begin, end, ok := p.Parse(line)
	if !ok {
		t.Fatal("pattern should match")
	}
	if begin != 0 || end != 23 {
		t.Errorf("timestamp range = [%d, %d), want [0, 23)", begin, end)
	}
	// 2016-05-08T07:33:05.123Z
	want := types.Epochtime(1462692785123)
	if ts != want {
		t.Errorf("ts = %d, want %d", ts, want)
	}
}

func TestParseRejectsMismatch(t *testing.T) {
	p := Pattern{0, "%Y-%m-%d %H:%M:%S"}
	for _, line := range []string{
		"not a timestamp",
		"2016-13-40 99:99:99 x",
		"2016-05-08T07:33:05 separator is wrong",
		"",
	} {
		if _, _, _, ok := p.Parse(line); ok {
			t.Errorf("pattern should not match %q", line)
		}
	}
}

func TestInsertRoundTrip(t *testing.T) {
	set := DefaultSet()
	lines := []string{
		"2016-05-08T07:33:05.123 connected to host",
		"2016-05-08 07:33:05 disconnected",
		"[2020-01-02 03:04:05] bracketed style",
		"Jan  2 03:04:05 syslog style",
	}
	for _, line := range lines {
		ts, p, begin, end, ok := set.Search(line)
		if !ok {
			t.Errorf("no pattern matched %q", line)
			continue
		}
		stripped := line[:begin] + line[end:]
		if got := p.Insert(ts, stripped); got != line {
			t.Errorf("Insert round trip = %q, want %q", got, line)
		}
	}
}

func TestSearchNoMatch(t *testing.T) {
	set := DefaultSet()
	if _, _, _, _, ok := set.Search("no timestamp here"); ok {
		t.Error("Search should fail for a line without a timestamp")
	}
}

func TestEncodedPatternRoundTrip(t *testing.T) {
	p := Pattern{2, "%Y-%m-%d %H:%M:%S"}
	got, err := ParseEncoded(p.String())
	if err != nil {
		t.Fatalf("ParseEncoded: %v", err)
	}
	if got != p {
		t.Errorf("round trip = %+v, want %+v", got, p)
	}
}

func TestParseEncodedRejectsGarbage(t *testing.T) {
	if _, err := ParseEncoded("no-colon"); err == nil {
		t.Error("expected error for missing colon")
	}
	if _, err := ParseEncoded("x:%Y"); err == nil {
		t.Error("expected error for non-numeric space count")
	}
}
