package meta

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestFileRowsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.db")
	s, err := NewBoltStore(path, zap.NewNop())
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}

	entries := []FileEntry{
		{
			ID:                   "f1",
			OrigFileID:           "o1",
			Path:                 "/var/log/app.log",
			GroupID:              4,
			BeginTs:              1000,
			EndTs:                3000,
			NumMessages:          3,
			NumUncompressedBytes: 120,
			NumVariables:         4,
			SegmentID:            0,
			EncodedTsPatterns:    "0:0:%Y-%m-%dT%H:%M:%S\n",
		},
		{
			ID:        "f2",
			Path:      "/var/log/other.log",
			SegmentID: 1,
			SplitIx:   2,
		},
	}
	if err := s.AddFiles(entries); err != nil {
		t.Fatalf("AddFiles: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = NewBoltStore(path, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got, err := s.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("listed %d files, want 2", len(got))
	}
	if got[0] != entries[0] || got[1] != entries[1] {
		t.Errorf("rows differ after reload:\n got %+v\nwant %+v", got, entries)
	}
}

func TestEmptyDirectories(t *testing.T) {
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "metadata.db"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.AddEmptyDirectories([]string{"a/b", "a/c"}); err != nil {
		t.Fatal(err)
	}
	dirs, err := s.ListEmptyDirectories()
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 2 {
		t.Errorf("dirs = %v, want 2 entries", dirs)
	}
}

func TestGlobalStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "global.db")
	g, err := NewGlobalBoltStore(path, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	entry := ArchiveEntry{ID: "arch-1", CreatorID: "writer-1", CreationNum: 7}
	if err := g.AddArchive(entry); err != nil {
		t.Fatal(err)
	}
	if err := g.UpdateArchiveSize("arch-1", 500, 120); err != nil {
		t.Fatal(err)
	}
	got, err := g.GetArchive("arch-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.UncompressedSize != 500 || got.Size != 120 || got.CreationNum != 7 {
		t.Errorf("archive row = %+v", got)
	}

	if err := g.AddFiles("arch-1", []FileEntry{{ID: "f1"}}); err != nil {
		t.Fatal(err)
	}
	all, err := g.ListArchives()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("ListArchives = %v", all)
	}

	if err := g.UpdateArchiveSize("missing", 1, 1); err == nil {
		t.Error("updating a missing archive should fail")
	}
}
