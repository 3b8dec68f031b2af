package ingestfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gftdcojp/logvault/internal/archive"
	"go.uber.org/zap"
)

const sampleLog = `2020-01-02T03:04:05.000 connected to host 10.1.2.3 port 443
2020-01-02T03:04:06.500 transferred 1048576 bytes in 1.23 seconds
2020-01-02T03:04:07.999 disconnected
`

func TestCompressExtractRoundTrip(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")
	if err := os.WriteFile(logPath, []byte(sampleLog), 0o640); err != nil {
		t.Fatal(err)
	}

	outDir := filepath.Join(dir, "archives")
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		t.Fatal(err)
	}
	w, err := archive.Open(archive.WriterConfig{OutputDir: outDir}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	id := w.ID()
	if err := CompressFile(w, logPath, 0); err != nil {
		t.Fatalf("CompressFile: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	extractDir := filepath.Join(dir, "extracted")
	if err := ExtractArchive(filepath.Join(outDir, id), extractDir, zap.NewNop()); err != nil {
		t.Fatalf("ExtractArchive: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(extractDir, sanitizeRel(logPath)))
	if err != nil {
		t.Fatalf("reading extracted file: %v", err)
	}
	if string(got) != sampleLog {
		t.Errorf("extracted log differs:\n got %q\nwant %q", got, sampleLog)
	}
}

func TestCompressFileWithoutTimestamps(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "plain.log")
	content := "no timestamps here\njust plain lines\n"
	if err := os.WriteFile(logPath, []byte(content), 0o640); err != nil {
		t.Fatal(err)
	}

	outDir := filepath.Join(dir, "archives")
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		t.Fatal(err)
	}
	w, err := archive.Open(archive.WriterConfig{OutputDir: outDir}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	id := w.ID()
	if err := CompressFile(w, logPath, 0); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := archive.OpenReader(filepath.Join(outDir, id), nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	files := r.Files()
	if len(files) != 1 || files[0].NumMessages != 2 {
		t.Fatalf("files = %+v", files)
	}
	if files[0].EncodedTsPatterns != "" {
		t.Errorf("no-timestamp file recorded patterns %q", files[0].EncodedTsPatterns)
	}
}

func TestSanitizeRel(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/var/log/app.log", filepath.Join("var", "log", "app.log")},
		{"../../etc/passwd", filepath.Join("etc", "passwd")},
		{"plain.log", "plain.log"},
	}
	for _, c := range cases {
		if got := sanitizeRel(c.in); got != c.want {
			t.Errorf("sanitizeRel(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
