// Command logvault is the archive CLI: compress log files into an
// archive, search archives with a wildcard query, extract archived logs,
// and report archive stats.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/gftdcojp/logvault/internal/archive"
	"github.com/gftdcojp/logvault/internal/ingestfile"
	"github.com/gftdcojp/logvault/internal/search"
	"github.com/gftdcojp/logvault/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		return -1
	}

	logger := newLogger(*verbose)
	defer logger.Sync()

	var err error
	switch args[0] {
	case "version":
		fmt.Printf("logvault %s\n", version)
	case "compress":
		err = cmdCompress(args[1:], logger)
	case "search":
		err = cmdSearch(args[1:], logger)
	case "extract":
		err = cmdExtract(args[1:], logger)
	case "stats":
		err = cmdStats(args[1:], logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		return -1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return -1
	}
	return 0
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: logvault [-verbose] <command> [args]

commands:
  compress <output-dir> <file>...            compress log files into a new archive
  search [flags] <archives-dir> <query>      search archives with a wildcard query
  extract <archives-dir> <output-dir>        decompress archives back into log files
  stats <archives-dir>                       list archives and their sizes
  version                                    print the version`)
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(-1)
	}
	return logger
}

func cmdCompress(args []string, logger *zap.Logger) error {
	fs := flag.NewFlagSet("compress", flag.ExitOnError)
	targetSegmentSize := fs.Uint64("target-segment-size", 64*1024*1024, "segment seal threshold in uncompressed bytes")
	compressionLevel := fs.Int("compression-level", 3, "zstd compression level")
	groupID := fs.Int64("group-id", 0, "group tag recorded on every file")
	fs.Parse(args)

	if fs.NArg() < 2 {
		return fmt.Errorf("usage: logvault compress <output-dir> <file>...")
	}
	outputDir := fs.Arg(0)
	inputs := fs.Args()[1:]

	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return err
	}
	w, err := archive.Open(archive.WriterConfig{
		OutputDir:                     outputDir,
		TargetSegmentUncompressedSize: *targetSegmentSize,
		CompressionLevel:              *compressionLevel,
	}, logger.Named("archive"))
	if err != nil {
		return err
	}

	for _, input := range inputs {
		if err := ingestfile.CompressFile(w, input, types.GroupID(*groupID)); err != nil {
			return fmt.Errorf("compressing %s: %w", input, err)
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	fmt.Println(w.ID())
	return nil
}

func cmdSearch(args []string, logger *zap.Logger) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	tge := fs.Int64("tge", int64(types.EpochtimeMin), "only messages with timestamp >= this epoch millisecond")
	tle := fs.Int64("tle", int64(types.EpochtimeMax), "only messages with timestamp <= this epoch millisecond")
	ignoreCase := fs.Bool("ignore-case", false, "case-insensitive matching")
	archiveID := fs.String("archive-id", "", "search only this archive")
	limit := fs.Int("limit", 0, "stop after this many matches (0 = unlimited)")
	fs.Parse(args)

	if fs.NArg() != 2 {
		return fmt.Errorf("usage: logvault search [flags] <archives-dir> <query>")
	}
	archivesDir := fs.Arg(0)
	queryString := fs.Arg(1)

	archivePaths, err := listArchiveDirs(archivesDir, *archiveID)
	if err != nil {
		return err
	}

	remaining := search.NoLimit
	if *limit > 0 {
		remaining = *limit
	}
	for _, path := range archivePaths {
		if remaining <= 0 {
			break
		}
		r, err := archive.OpenReader(path, nil, logger.Named("reader"))
		if err != nil {
			return fmt.Errorf("opening archive %s: %w", filepath.Base(path), err)
		}
		q := search.ProcessRawQuery(r.LogtypeDict(), r.VarDict(), queryString,
			types.Epochtime(*tge), types.Epochtime(*tle), *ignoreCase)

		n, err := search.SearchArchive(r, q, remaining,
			func(origPath, message string, ts int64) error {
				_, err := fmt.Println(message)
				return err
			}, logger.Named("search"))
		if err != nil {
			return err
		}
		remaining -= n
	}
	return nil
}

func cmdExtract(args []string, logger *zap.Logger) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	archiveID := fs.String("archive-id", "", "extract only this archive")
	fs.Parse(args)

	if fs.NArg() != 2 {
		return fmt.Errorf("usage: logvault extract <archives-dir> <output-dir>")
	}
	archivesDir := fs.Arg(0)
	outputDir := fs.Arg(1)

	archivePaths, err := listArchiveDirs(archivesDir, *archiveID)
	if err != nil {
		return err
	}
	for _, path := range archivePaths {
		if err := ingestfile.ExtractArchive(path, outputDir, logger.Named("extract")); err != nil {
			return fmt.Errorf("extracting %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func cmdStats(args []string, logger *zap.Logger) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: logvault stats <archives-dir>")
	}
	archivePaths, err := listArchiveDirs(args[0], "")
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ARCHIVE\tFILES\tMESSAGES\tUNCOMPRESSED\tSIZE")
	for _, path := range archivePaths {
		r, err := archive.OpenReader(path, nil, logger.Named("reader"))
		if err != nil {
			return fmt.Errorf("opening archive %s: %w", filepath.Base(path), err)
		}
		var messages uint64
		for _, f := range r.Files() {
			messages += f.NumMessages
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n",
			filepath.Base(path), len(r.Files()), messages, r.UncompressedSize, r.Size)
	}
	return tw.Flush()
}

// listArchiveDirs returns the archive directories under dir, or just the
// one named by id.
func listArchiveDirs(dir, id string) ([]string, error) {
	if id != "" {
		path := filepath.Join(dir, id)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("archive %s: %w", id, err)
		}
		return []string{path}, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, e.Name(), archive.MetadataFilename)); err == nil {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no archives under %s", dir)
	}
	return paths, nil
}
