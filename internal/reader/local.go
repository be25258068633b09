package reader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/tinytelemetry/tracestore/internal/logging"
	"github.com/tinytelemetry/tracestore/internal/parser"
	"github.com/tinytelemetry/tracestore/internal/tracefile"
)

// LocalSource is a directory tree of trace files, one subdirectory per
// category. When WorkingDirectory is set each file is copied there before it
// is read so files still being written are decoded from a stable copy.
type LocalSource struct {
	LogRoot          string
	WorkingDirectory string
}

// Describe implements Backend.
func (s LocalSource) Describe() string { return "local:" + s.LogRoot }

func (s LocalSource) layout() parser.Layout { return parser.LocalLayout }

func (s LocalSource) open(spec CategorySpec, plan scanPlan) pager {
	return &localPager{
		dir:     filepath.Join(s.LogRoot, spec.SubPath),
		workDir: s.WorkingDirectory,
		plan:    plan,
	}
}

// NewLocalStoreReader returns a reader of spec's category under src.
func NewLocalStoreReader(spec CategorySpec, src LocalSource, logger logging.Logger, conf ...Config) *Reader {
	return newReader(spec, src, logger, conf...)
}

type localPager struct {
	dir     string
	workDir string
	plan    scanPlan

	listed bool
	files  []tracefile.File
	idx    int
}

// next decodes one file per page. Files removed after listing are skipped.
func (p *localPager) next(ctx context.Context) (page, bool, error) {
	if !p.listed {
		files, err := tracefile.List(p.dir)
		if err != nil {
			return page{}, false, err
		}
		p.files = prune(files, p.plan)
		p.listed = true
	}

	for p.idx < len(p.files) {
		if ctx.Err() != nil {
			return page{}, false, ctx.Err()
		}
		f := p.files[p.idx]
		lines, err := p.read(f)
		if errors.Is(err, os.ErrNotExist) {
			p.idx++
			continue
		}
		if err != nil {
			return page{}, false, err
		}
		p.idx++
		return page{
			source:  filepath.Base(f.Path),
			entries: lines,
			open:    true,
			horizon: p.horizon(),
		}, true, nil
	}
	return page{}, false, nil
}

// horizon bounds the files not read yet. Forward they all start at or after
// the next file's start. Backward they all end at or before the next file's
// end, unless that file is unsealed.
func (p *localPager) horizon() time.Time {
	if p.idx >= len(p.files) {
		return time.Time{}
	}
	f := p.files[p.idx]
	if !p.plan.backward {
		return f.Start
	}
	if !f.Sealed {
		return time.Time{}
	}
	return f.End
}

func (p *localPager) read(f tracefile.File) ([][]byte, error) {
	if p.workDir == "" {
		return tracefile.ReadLines(f.Path, f.Compressed)
	}
	staged, err := tracefile.Stage(f.Path, p.workDir)
	if err != nil {
		return nil, err
	}
	defer os.Remove(staged)
	return tracefile.ReadLines(staged, f.Compressed)
}

// prune drops files that cannot hold records inside the bound and orders the
// rest in scan direction: by start forward, by end backward with unsealed
// files first.
func prune(files []tracefile.File, plan scanPlan) []tracefile.File {
	d := plan.bound
	kept := make([]tracefile.File, 0, len(files))
	for _, f := range files {
		if f.Overlaps(d.Start(), d.End()) {
			kept = append(kept, f)
		}
	}
	if !plan.backward {
		return kept
	}
	slices.SortStableFunc(kept, func(a, b tracefile.File) int {
		switch {
		case a.Sealed != b.Sealed:
			if !a.Sealed {
				return -1
			}
			return 1
		case a.Sealed && !a.End.Equal(b.End):
			return b.End.Compare(a.End)
		}
		return b.Start.Compare(a.Start)
	})
	return kept
}
