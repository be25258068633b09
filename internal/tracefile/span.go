package tracefile

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// endExt names the sidecar holding the last record time of a finished file.
const endExt = ".end"

// EndPath returns the path of the end marker for the trace file at path.
func EndPath(path string) string { return path + endExt }

// readEnd returns the sealed end time of the trace file at path. ok is false
// when the file has no usable marker, which means it may still grow.
func readEnd(path string, start time.Time) (end time.Time, ok bool) {
	data, err := os.ReadFile(EndPath(path))
	if err != nil {
		return time.Time{}, false
	}
	end, err = time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil || end.Before(start) {
		return time.Time{}, false
	}
	return end.UTC(), true
}

func writeEnd(path string, end time.Time) error {
	target := EndPath(path)
	tmp := target + ".tmp"
	payload := []byte(end.UTC().Format(time.RFC3339Nano) + "\n")
	if err := os.WriteFile(tmp, payload, defaultFileMode); err != nil {
		return fmt.Errorf("tracefile: write end marker tmp: %w", err)
	}

	f, err := os.OpenFile(tmp, os.O_RDWR, defaultFileMode)
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("tracefile: open end marker tmp: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("tracefile: sync end marker tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("tracefile: close end marker tmp: %w", err)
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("tracefile: rename end marker: %w", err)
	}
	return nil
}
