package tracefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	filePrefix   = "trace-"
	plainExt     = ".jsonl"
	zstdExt      = ".jsonl.zst"
	stampLayout  = "20060102T150405.000000000Z"
	seqDigits    = 6
	maxFileSeq   = 999999
	fileNameSep  = "-"
	stampNameLen = len(stampLayout)
)

// File describes one trace file on disk. Start is the timestamp of the first
// record written to it. End is the timestamp of the last one and is known
// only once the writer sealed the file; an unsealed file may still grow and
// is not bounded above.
type File struct {
	Path       string
	Start      time.Time
	End        time.Time
	Sealed     bool
	Seq        int
	Compressed bool
}

// Overlaps reports whether f may hold records in [from, to].
func (f File) Overlaps(from, to time.Time) bool {
	if f.Start.After(to) {
		return false
	}
	return !f.Sealed || !f.End.Before(from)
}

// FileName returns the name for a file whose first record is at start.
// Lexical order of names equals chronological order of starts.
func FileName(start time.Time, seq int, compressed bool) string {
	ext := plainExt
	if compressed {
		ext = zstdExt
	}
	return fmt.Sprintf("%s%s%s%0*d%s", filePrefix, start.UTC().Format(stampLayout), fileNameSep, seqDigits, seq, ext)
}

// ParseFileName extracts start, sequence and compression from a trace file
// name. ok is false for names not produced by FileName.
func ParseFileName(name string) (f File, ok bool) {
	rest, found := strings.CutPrefix(name, filePrefix)
	if !found {
		return File{}, false
	}
	switch {
	case strings.HasSuffix(rest, zstdExt):
		f.Compressed = true
		rest = strings.TrimSuffix(rest, zstdExt)
	case strings.HasSuffix(rest, plainExt):
		rest = strings.TrimSuffix(rest, plainExt)
	default:
		return File{}, false
	}
	if len(rest) != stampNameLen+len(fileNameSep)+seqDigits {
		return File{}, false
	}
	start, err := time.Parse(stampLayout, rest[:stampNameLen])
	if err != nil {
		return File{}, false
	}
	seq, err := strconv.Atoi(rest[stampNameLen+len(fileNameSep):])
	if err != nil {
		return File{}, false
	}
	f.Start = start.UTC()
	f.Seq = seq
	return f, true
}

// List returns the trace files in dir ordered by start, oldest first. Files
// written by different writers may overlap in time. A missing directory
// yields no files.
func List(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("tracefile: list %s: %w", dir, err)
	}

	files := make([]File, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		f, ok := ParseFileName(e.Name())
		if !ok {
			continue
		}
		f.Path = filepath.Join(dir, e.Name())
		f.End, f.Sealed = readEnd(f.Path, f.Start)
		files = append(files, f)
	}

	sort.Slice(files, func(i, j int) bool {
		// timestamp and sequence are embedded in the name and lexical sort matches chronology
		return filepath.Base(files[i].Path) < filepath.Base(files[j].Path)
	})
	return files, nil
}
