package tracefile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// ReadLines returns every complete line of the trace file at path. A
// partially written trailing line is ignored; it belongs to a writer that
// has not finished the entry yet.
func ReadLines(path string, compressed bool) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tracefile: open: %w", err)
	}
	defer f.Close()

	var src io.Reader = f
	if compressed {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("tracefile: zstd reader: %w", err)
		}
		defer dec.Close()
		src = dec
	}

	var lines [][]byte
	reader := bufio.NewReader(src)
	for {
		raw, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("tracefile: read: %w", err)
		}
		if len(raw) > 0 && raw[len(raw)-1] == '\n' {
			if body := raw[:len(raw)-1]; len(body) > 0 {
				lines = append(lines, body)
			}
		}
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
	}
}

// Stage copies the file at srcPath into dir under a unique name and returns
// the copy's path. The caller removes the copy when done.
func Stage(srcPath, dir string) (string, error) {
	if err := os.MkdirAll(dir, defaultDirMode); err != nil {
		return "", fmt.Errorf("tracefile: create staging dir: %w", err)
	}
	dstPath := filepath.Join(dir, uuid.NewString()+"-"+filepath.Base(srcPath))
	if err := copyFile(srcPath, dstPath); err != nil {
		return "", fmt.Errorf("tracefile: stage %s: %w", filepath.Base(srcPath), err)
	}
	return dstPath, nil
}

func copyFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp := dstPath + ".tmp"
	dst, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dstPath)
}
