// Package tracefile reads and writes local trace files: one JSON record per
// line, optionally zstd-compressed, named after their first record time.
package tracefile

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/tinytelemetry/tracestore/internal/model"
)

const (
	defaultFileMode   = 0644
	defaultDirMode    = 0755
	defaultMaxRecords = 10000
)

// ErrOutOfOrder is returned when a record is older than the last one written.
var ErrOutOfOrder = errors.New("tracefile: record older than previous record")

type line struct {
	Timestamp  string            `json:"timestamp"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// WriterConfig holds tunable parameters for a Writer.
type WriterConfig struct {
	// MaxRecords rotates to a new file after this many lines.
	MaxRecords int
	// Compress writes .jsonl.zst files.
	Compress bool
}

// Writer appends records to timestamp-named trace files in one directory.
// Records must be appended in non-decreasing timestamp order.
type Writer struct {
	mu         sync.Mutex
	dir        string
	maxRecords int
	compress   bool

	file    *os.File
	path    string
	zw      *zstd.Encoder
	bw      *bufio.Writer
	count   int
	last    time.Time
	hasLast bool
}

// NewWriter creates dir if needed and returns a writer for it.
func NewWriter(dir string, conf ...WriterConfig) (*Writer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("tracefile: dir is empty")
	}
	if err := os.MkdirAll(dir, defaultDirMode); err != nil {
		return nil, fmt.Errorf("tracefile: mkdir: %w", err)
	}
	w := &Writer{dir: dir, maxRecords: defaultMaxRecords}
	if len(conf) > 0 {
		if conf[0].MaxRecords > 0 {
			w.maxRecords = conf[0].MaxRecords
		}
		w.compress = conf[0].Compress
	}
	return w, nil
}

// Append writes one record.
func (w *Writer) Append(rec model.TraceRecord) error {
	attrs := rec.Attributes
	if len(attrs) == 0 {
		attrs = nil
	}
	payload, err := json.Marshal(line{
		Timestamp:  rec.Timestamp.UTC().Format(time.RFC3339Nano),
		Type:       string(rec.Type),
		Attributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("tracefile: marshal record: %w", err)
	}
	return w.AppendRaw(rec.Timestamp, payload)
}

// AppendRaw writes payload verbatim as one line, positioned at ts for
// ordering and rotation.
func (w *Writer) AppendRaw(ts time.Time, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ts = ts.UTC()
	if w.hasLast && ts.Before(w.last) {
		return ErrOutOfOrder
	}
	if w.file == nil || w.count >= w.maxRecords {
		if err := w.rotate(ts); err != nil {
			return err
		}
	}

	if _, err := w.bw.Write(payload); err != nil {
		return fmt.Errorf("tracefile: write entry: %w", err)
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return fmt.Errorf("tracefile: write entry: %w", err)
	}
	w.count++
	w.last = ts
	w.hasLast = true
	return nil
}

// Flush pushes buffered lines of an uncompressed file to disk. Compressed
// files become readable only after Close or rotation.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.bw == nil {
		return nil
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("tracefile: flush: %w", err)
	}
	if w.zw == nil {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("tracefile: sync: %w", err)
		}
	}
	return nil
}

// Close finishes the current file and seals it with its end marker.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finish()
}

func (w *Writer) rotate(start time.Time) error {
	if err := w.finish(); err != nil {
		return err
	}

	var f *os.File
	var path string
	for seq := 0; seq <= maxFileSeq; seq++ {
		path = filepath.Join(w.dir, FileName(start, seq, w.compress))
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, defaultFileMode)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("tracefile: create: %w", err)
		}
		f = nil
	}
	if f == nil {
		return fmt.Errorf("tracefile: no free file name for %s", start.Format(time.RFC3339Nano))
	}

	var out io.Writer = f
	if w.compress {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("tracefile: zstd writer: %w", err)
		}
		w.zw = zw
		out = zw
	}
	w.file = f
	w.path = path
	w.bw = bufio.NewWriter(out)
	w.count = 0
	return nil
}

func (w *Writer) finish() error {
	if w.file == nil {
		return nil
	}
	f := w.file
	w.file = nil

	err := w.bw.Flush()
	w.bw = nil
	if w.zw != nil {
		if cerr := w.zw.Close(); err == nil {
			err = cerr
		}
		w.zw = nil
	}
	if serr := f.Sync(); err == nil {
		err = serr
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("tracefile: close file: %w", err)
	}
	if w.count > 0 {
		return writeEnd(w.path, w.last)
	}
	return nil
}
