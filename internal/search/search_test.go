package search

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/gftdcojp/logvault/internal/archive"
	"github.com/gftdcojp/logvault/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type testMsg struct {
	ts   types.Epochtime
	text string
}

// buildArchive ingests one file per message group and returns the archive
// path. A tiny segment target makes every file seal its own segment.
func buildArchive(t *testing.T, perFileMsgs [][]testMsg, segmentTarget uint64) string {
	t.Helper()
	dir := t.TempDir()
	w, err := archive.Open(archive.WriterConfig{
		OutputDir:                     dir,
		TargetSegmentUncompressedSize: segmentTarget,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}
	for i, msgs := range perFileMsgs {
		path := filepath.Join("/logs", "file"+string(rune('a'+i))+".log")
		if err := w.CreateAndOpenFile(path, 0, uuid.New(), 0); err != nil {
			t.Fatal(err)
		}
		for _, m := range msgs {
			if err := w.WriteMsg(m.ts, m.text, uint64(len(m.text))+1); err != nil {
				t.Fatalf("WriteMsg(%q): %v", m.text, err)
			}
		}
		if err := w.AppendFileToSegment(); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return filepath.Join(dir, w.ID())
}

func runSearch(t *testing.T, r *archive.Reader, queryString string, ignoreCase bool) []string {
	t.Helper()
	q := ProcessRawQuery(r.LogtypeDict(), r.VarDict(), queryString,
		types.EpochtimeMin, types.EpochtimeMax, ignoreCase)
	var got []string
	_, err := SearchArchive(r, q, 0, func(origPath, message string, ts int64) error {
		got = append(got, message)
		return nil
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("SearchArchive(%q): %v", queryString, err)
	}
	return got
}

func TestSearchSingleFileThreeMessages(t *testing.T) {
	msgs := []testMsg{
		{1000, "connected to host 10.1.2.3 port 443"},
		{2000, "transferred 1048576 bytes in 1.23 seconds"},
		{3000, "disconnected"},
	}
	path := buildArchive(t, [][]testMsg{msgs}, 64*1024*1024)
	r, err := archive.OpenReader(path, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	got := runSearch(t, r, "*1048576*", false)
	if len(got) != 1 || got[0] != msgs[1].text {
		t.Errorf("search for the integer returned %q", got)
	}

	got = runSearch(t, r, "*10.1.2.3*", false)
	if len(got) != 1 || got[0] != msgs[0].text {
		t.Errorf("search for the IP returned %q", got)
	}

	got = runSearch(t, r, "*", false)
	if len(got) != 3 {
		t.Fatalf("match-all returned %d messages, want 3", len(got))
	}
	for i, m := range msgs {
		if got[i] != m.text {
			t.Errorf("match-all[%d] = %q, want %q", i, got[i], m.text)
		}
	}
}

// countingOpener records which segments are opened.
type countingOpener struct {
	opened []types.SegmentID
}

func (c *countingOpener) OpenSegment(archivePath string, id types.SegmentID) (io.ReadCloser, error) {
	c.opened = append(c.opened, id)
	return archive.LocalSegmentOpener{}.OpenSegment(archivePath, id)
}

func TestSegmentPruning(t *testing.T) {
	var fileA, fileB []testMsg
	for i := 0; i < 10000; i++ {
		fileA = append(fileA, testMsg{types.Epochtime(i), "ping host alice9"})
		fileB = append(fileB, testMsg{types.Epochtime(i), "ping host bob7"})
	}
	// Tiny target: file A seals segment 0, file B seals segment 1
	path := buildArchive(t, [][]testMsg{fileA, fileB}, 1)

	opener := &countingOpener{}
	r, err := archive.OpenReader(path, opener, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	got := runSearch(t, r, "alice9", false)
	if len(got) != 10000 {
		t.Fatalf("search matched %d messages, want 10000", len(got))
	}
	if len(opener.opened) != 1 {
		t.Fatalf("segments opened = %v, want exactly one open", opener.opened)
	}
	if opener.opened[0] != 0 {
		t.Errorf("opened segment %d, want 0", opener.opened[0])
	}
}

func TestWildcardInMiddleForcesVerification(t *testing.T) {
	msgs := []testMsg{
		{1000, "connected but later failed"},
		{2000, "connect-rejected"},
	}
	path := buildArchive(t, [][]testMsg{msgs}, 64*1024*1024)
	r, err := archive.OpenReader(path, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	q := ProcessRawQuery(r.LogtypeDict(), r.VarDict(), "connect*failed",
		types.EpochtimeMin, types.EpochtimeMax, false)
	requiredSomewhere := false
	for _, sq := range q.SubQueries() {
		if sq.WildcardMatchRequired() {
			requiredSomewhere = true
		}
	}
	if !requiredSomewhere {
		t.Error("a wildcard-in-middle query should force verification on some sub-query")
	}

	var got []string
	if _, err := SearchArchive(r, q, 0, func(_, message string, _ int64) error {
		got = append(got, message)
		return nil
	}, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != msgs[0].text {
		t.Errorf("search returned %q, want only the failed message", got)
	}
}

func TestTimeRangeFiltering(t *testing.T) {
	msgs := []testMsg{
		{1000, "one"},
		{2000, "two"},
		{3000, "three"},
	}
	path := buildArchive(t, [][]testMsg{msgs}, 64*1024*1024)
	r, err := archive.OpenReader(path, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	q := ProcessRawQuery(r.LogtypeDict(), r.VarDict(), "*", 1500, 2500, false)
	var got []string
	if _, err := SearchArchive(r, q, 0, func(_, message string, _ int64) error {
		got = append(got, message)
		return nil
	}, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "two" {
		t.Errorf("time-filtered search returned %q, want [two]", got)
	}
}

func TestSearchLimit(t *testing.T) {
	var msgs []testMsg
	for i := 0; i < 100; i++ {
		msgs = append(msgs, testMsg{types.Epochtime(i), "repeated line"})
	}
	path := buildArchive(t, [][]testMsg{msgs}, 64*1024*1024)
	r, err := archive.OpenReader(path, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	q := ProcessRawQuery(r.LogtypeDict(), r.VarDict(), "*", types.EpochtimeMin, types.EpochtimeMax, false)
	count := 0
	n, err := SearchArchive(r, q, 7, func(_, _ string, _ int64) error {
		count++
		return nil
	}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if n != 7 || count != 7 {
		t.Errorf("limit honored poorly: n=%d count=%d", n, count)
	}
}

func TestOutputFailureStopsSearch(t *testing.T) {
	msgs := []testMsg{{1000, "a"}, {2000, "b"}}
	path := buildArchive(t, [][]testMsg{msgs}, 64*1024*1024)
	r, err := archive.OpenReader(path, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	q := ProcessRawQuery(r.LogtypeDict(), r.VarDict(), "*", types.EpochtimeMin, types.EpochtimeMax, false)
	calls := 0
	_, err = SearchArchive(r, q, 0, func(_, _ string, _ int64) error {
		calls++
		return io.ErrClosedPipe
	}, zap.NewNop())
	if err == nil {
		t.Error("a failing sink should abort the search")
	}
	if calls != 1 {
		t.Errorf("sink called %d times, want 1", calls)
	}
}

func TestCaseInsensitiveSearch(t *testing.T) {
	msgs := []testMsg{
		{1000, "User ALICE9 logged in"},
		{2000, "user bob7 logged in"},
	}
	path := buildArchive(t, [][]testMsg{msgs}, 64*1024*1024)
	r, err := archive.OpenReader(path, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	if got := runSearch(t, r, "alice9", false); len(got) != 0 {
		t.Errorf("case-sensitive search matched %q", got)
	}
	if got := runSearch(t, r, "alice9", true); len(got) != 1 {
		t.Errorf("case-insensitive search matched %d messages, want 1", len(got))
	}
}

func TestQueryNormalizationEquivalence(t *testing.T) {
	msgs := []testMsg{{1000, "connected to host 10.1.2.3 port 443"}}
	path := buildArchive(t, [][]testMsg{msgs}, 64*1024*1024)
	r, err := archive.OpenReader(path, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	q1 := ProcessRawQuery(r.LogtypeDict(), r.VarDict(), "*443*", types.EpochtimeMin, types.EpochtimeMax, false)
	q2 := ProcessRawQuery(r.LogtypeDict(), r.VarDict(), "**443**", types.EpochtimeMin, types.EpochtimeMax, false)
	if q1.SearchString != q2.SearchString {
		t.Errorf("normalized strings differ: %q vs %q", q1.SearchString, q2.SearchString)
	}
	if len(q1.SubQueries()) != len(q2.SubQueries()) {
		t.Errorf("sub-query counts differ: %d vs %d", len(q1.SubQueries()), len(q2.SubQueries()))
	}
}

func TestMissingValueMatchesNothing(t *testing.T) {
	msgs := []testMsg{{1000, "connected to host 10.1.2.3"}}
	path := buildArchive(t, [][]testMsg{msgs}, 64*1024*1024)
	r, err := archive.OpenReader(path, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	if got := runSearch(t, r, "*99.99.99.99*", false); len(got) != 0 {
		t.Errorf("absent IP matched %q", got)
	}
}
