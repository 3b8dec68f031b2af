// Package ingestfile compresses local log files into an archive and
// extracts archived logs back to files. The NATS-based IR pipeline in
// internal/ingest is the remote counterpart.
package ingestfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gftdcojp/logvault/internal/archive"
	"github.com/gftdcojp/logvault/internal/bufread"
	"github.com/gftdcojp/logvault/internal/tspattern"
	"github.com/gftdcojp/logvault/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CompressFile reads one log file line by line and writes it into the
// archive as a single file.
func CompressFile(w *archive.Writer, path string, groupID types.GroupID) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	br, err := bufread.NewReader(bufread.DefaultBufferSize)
	if err != nil {
		return err
	}
	if err := br.Open(f); err != nil {
		return err
	}
	defer br.Close()

	if err := w.CreateAndOpenFile(path, groupID, uuid.New(), 0); err != nil {
		return err
	}

	patterns := w.TsPatterns()
	var current tspattern.Pattern
	sawPattern := false

	var line []byte
	for {
		err := br.TryReadToDelimiter('\n', false, false, &line)
		if errors.Is(err, types.ErrEndOfFile) {
			break
		}
		if err != nil {
			w.AbandonFile()
			return err
		}
		text := string(line)

		var ts types.Epochtime
		var begin, end int
		matched := false
		if sawPattern && !current.IsEmpty() {
			ts, begin, end, matched = current.Parse(text)
		}
		if !matched {
			var p tspattern.Pattern
			var ok bool
			ts, p, begin, end, ok = patterns.Search(text)
			switch {
			case ok:
				if !sawPattern || p != current {
					if err := w.ChangeTsPattern(p); err != nil {
						w.AbandonFile()
						return err
					}
					current = p
					sawPattern = true
				}
				matched = true
			case sawPattern && !current.IsEmpty():
				// Timestamps stop here
				if err := w.ChangeTsPattern(tspattern.Pattern{}); err != nil {
					w.AbandonFile()
					return err
				}
				current = tspattern.Pattern{}
			}
		}

		msgText := text
		if matched {
			msgText = text[:begin] + text[end:]
		} else {
			ts = 0
		}
		if err := w.WriteMsg(ts, msgText, uint64(len(text))+1); err != nil {
			w.AbandonFile()
			return err
		}
	}

	return w.AppendFileToSegment()
}

// ExtractArchive decompresses every file of an archive under outputDir,
// recreating relative paths and recorded empty directories.
func ExtractArchive(archivePath, outputDir string, logger *zap.Logger) error {
	r, err := archive.OpenReader(archivePath, nil, logger)
	if err != nil {
		return err
	}

	for _, dir := range r.EmptyDirs() {
		if err := os.MkdirAll(filepath.Join(outputDir, sanitizeRel(dir)), 0o750); err != nil {
			return err
		}
	}

	for _, entry := range r.Files() {
		outPath := filepath.Join(outputDir, sanitizeRel(entry.Path))
		if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
			return err
		}
		// Splits of the same source file append in seal order
		out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o640)
		if err != nil {
			return err
		}

		f, err := r.OpenFile(entry)
		if err != nil {
			out.Close()
			return fmt.Errorf("opening archived file %s: %w", entry.ID, err)
		}
		for {
			m, ok, err := f.NextMessage()
			if err != nil {
				out.Close()
				return err
			}
			if !ok {
				break
			}
			text, err := r.DecompressMessage(f, m)
			if err != nil {
				out.Close()
				return err
			}
			if _, err := out.WriteString(text + "\n"); err != nil {
				out.Close()
				return err
			}
		}
		if err := out.Close(); err != nil {
			return err
		}
	}
	return nil
}

// sanitizeRel turns an arbitrary recorded path into a safe relative path.
func sanitizeRel(p string) string {
	p = filepath.ToSlash(p)
	p = strings.TrimPrefix(p, "/")
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			continue
		}
		out = append(out, part)
	}
	return filepath.Join(out...)
}
