package ingest

import (
	"path/filepath"
	"testing"

	"github.com/gftdcojp/logvault/internal/archive"
	"github.com/gftdcojp/logvault/internal/config"
	"github.com/gftdcojp/logvault/internal/irstream"
	"github.com/gftdcojp/logvault/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestDecodeIRPayloadIntoArchive(t *testing.T) {
	dir := t.TempDir()
	w, err := archive.Open(archive.WriterConfig{OutputDir: dir}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	id := w.ID()

	info := irstream.TimestampInfo{
		TimestampPattern:       "%Y-%m-%dT%H:%M:%S.%3 ",
		TimestampPatternSyntax: "strftime",
		TimeZoneID:             "UTC",
	}
	enc, err := irstream.NewFourByteEncoder(info, 1000)
	if err != nil {
		t.Fatal(err)
	}
	events := []struct {
		ts   types.Epochtime
		text string
	}{
		{1000, "job 17 started by user=admin9"},
		{995, "clock went backwards"},
		{2500, "job 17 finished in 1.25 s"},
	}
	for _, ev := range events {
		if err := enc.EncodeMessage(ev.ts, ev.text); err != nil {
			t.Fatal(err)
		}
	}
	enc.EncodeEnd()

	p := &Pipeline{
		streamCfg: config.StreamConfig{Name: "LOGS"},
		writer:    w,
		logger:    zap.NewNop(),
	}

	dec := irstream.NewDecoder()
	dec.Feed(enc.Bytes())
	if _, err := dec.DecodeEncodingType(); err != nil {
		t.Fatal(err)
	}
	irInfo, _, err := dec.DecodePreamble()
	if err != nil {
		t.Fatal(err)
	}
	if err := w.CreateAndOpenFile("remote/logs/app.log", 0, uuid.New(), 0); err != nil {
		t.Fatal(err)
	}
	if err := p.decodeIntoFile(dec, irInfo); err != nil {
		t.Fatalf("decodeIntoFile: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := archive.OpenReader(filepath.Join(dir, id), nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	files := r.Files()
	if len(files) != 1 {
		t.Fatalf("archive lists %d files, want 1", len(files))
	}
	if files[0].NumMessages != 3 {
		t.Errorf("file holds %d messages, want 3", files[0].NumMessages)
	}
	if files[0].BeginTs != 995 || files[0].EndTs != 2500 {
		t.Errorf("file range = [%d, %d], want [995, 2500]", files[0].BeginTs, files[0].EndTs)
	}

	f, err := r.OpenFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	for i, ev := range events {
		m, ok, err := f.NextMessage()
		if err != nil || !ok {
			t.Fatalf("message %d: ok=%v err=%v", i, ok, err)
		}
		if m.Ts != ev.ts {
			t.Errorf("message %d ts = %d, want %d", i, m.Ts, ev.ts)
		}
	}
}

func TestPatternFromIRInfo(t *testing.T) {
	if _, err := patternFromIRInfo(irstream.TimestampInfo{}); err == nil {
		t.Error("empty metadata should yield no pattern")
	}
	p, err := patternFromIRInfo(irstream.TimestampInfo{TimestampPattern: "%Y-%m-%d"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Format != "%Y-%m-%d" || p.NumSpacesBeforeTs != 0 {
		t.Errorf("pattern = %+v", p)
	}
}
