// Command replay runs a directory of frame files through the detector and tracker
// in scan-time order, persisting tracked cells to a state file exactly as the
// service does, then checks the resulting state for integrity.
//
// Usage:
//
//	go run ./cmd/replay \
//	  -frames-dir data/frames \
//	  -state data/storm_cells.json \
//	  -window 35,41,258,268
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/storm-cell-tracker/internal/adapter/statestore"
	"github.com/couchcryptid/storm-cell-tracker/internal/detect"
	"github.com/couchcryptid/storm-cell-tracker/internal/domain"
	"github.com/couchcryptid/storm-cell-tracker/internal/observability"
	"github.com/couchcryptid/storm-cell-tracker/internal/pipeline"
	"github.com/couchcryptid/storm-cell-tracker/internal/track"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type frameFile struct {
	path string
	ts   time.Time
	ok   bool
}

func main() {
	framesDir := flag.String("frames-dir", "", "directory containing frame JSON files")
	statePath := flag.String("state", "storm_cells.json", "tracked cell state file")
	window := flag.String("window", "", "restrict detection to latmin,latmax,lonmin,lonmax")
	threshold := flag.Float64("threshold", detect.DefaultOptions().Threshold, "growth reflectivity threshold (dBZ)")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if *framesDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*framesDir, *statePath, *window, *threshold, *logLevel); code != 0 {
		os.Exit(code)
	}
}

func run(framesDir, statePath, windowSpec string, threshold float64, logLevel string) int {
	logger := sharedobs.NewLogger(logLevel, "text")

	w, err := domain.ParseWindow(windowSpec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	files, err := listFrames(framesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: list frames: %v\n", err)
		return 1
	}

	opts := detect.DefaultOptions()
	opts.Threshold = threshold
	metrics := observability.NewMetricsForTesting()
	detector := detect.NewDetector(opts, logger, metrics)
	store := statestore.NewFileStore(statePath, logger)
	processor := pipeline.NewProcessor(detector, track.New(logger), store, nil, w, logger, metrics)

	fmt.Println("=== Storm Cell Replay ===")
	fmt.Println()

	ctx := context.Background()
	frames := &phase{name: "Frame processing"}
	seen := make(map[int][2]time.Time)
	for _, f := range files {
		if !f.ok {
			frames.errorf("%s: no scan time in file name, ordered by name", filepath.Base(f.path))
		}
		data, err := os.ReadFile(f.path)
		if err != nil {
			frames.errorf("%s: %v", filepath.Base(f.path), err)
			continue
		}
		res, err := processor.Process(ctx, domain.RawFrame{Key: []byte(filepath.Base(f.path)), Value: data})
		if err != nil {
			frames.errorf("%s: skipped (%s): %v", filepath.Base(f.path), pipeline.SkipReason(err), err)
			continue
		}
		for _, c := range res.Cells {
			span, ok := seen[c.ID]
			if !ok {
				span[0] = res.FrameTime
			}
			span[1] = res.FrameTime
			seen[c.ID] = span
		}
		fmt.Printf("  %s  cells=%-3d new=%-3d dropped=%-3d\n",
			res.FrameTime.Format(time.RFC3339), len(res.Cells), res.New, res.Dropped)
	}

	final := processor.Cells()
	phases := []*phase{
		frames,
		validateTrackedState(final),
		validateStateFile(store, final),
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Frames: %d, cells seen: %d, cells tracked at end: %d\n", len(files), len(seen), len(final))
	for _, id := range sortedKeys(seen) {
		span := seen[id]
		fmt.Printf("  cell %-5d %s .. %s\n", id, span[0].Format("15:04:05"), span[1].Format("15:04:05"))
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// listFrames returns the JSON files in dir ordered by the scan time in their
// names. Files without a recognizable stamp sort last, by name.
func listFrames(dir string) ([]frameFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []frameFile
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		ts, ok := domain.TimestampFromFilename(e.Name())
		files = append(files, frameFile{path: filepath.Join(dir, e.Name()), ts: ts, ok: ok})
	}
	slices.SortStableFunc(files, func(a, b frameFile) int {
		switch {
		case a.ok != b.ok:
			if a.ok {
				return -1
			}
			return 1
		case a.ok && !a.ts.Equal(b.ts):
			return a.ts.Compare(b.ts)
		default:
			return strings.Compare(a.path, b.path)
		}
	})
	return files, nil
}

// ── Validation phases ──

func validateTrackedState(cells []domain.CellRecord) *phase {
	p := &phase{name: "Tracked state integrity"}
	for i, c := range cells {
		if c.ID <= 0 {
			p.errorf("cell at index %d: non-positive id %d", i, c.ID)
		}
		if i > 0 && cells[i-1].ID >= c.ID {
			p.errorf("cell %d: ids not strictly ascending after %d", c.ID, cells[i-1].ID)
		}
		if c.NumGates <= 0 {
			p.errorf("cell %d: num_gates = %d", c.ID, c.NumGates)
		}
		if len(c.StormHistory) == 0 {
			p.errorf("cell %d: empty storm history", c.ID)
		}
		for j, s := range c.StormHistory {
			if s.ID != c.ID {
				p.errorf("cell %d: history entry %d has id %d", c.ID, j, s.ID)
			}
			if j == 0 {
				continue
			}
			prev := c.StormHistory[j-1]
			if !s.Timestamp.After(prev.Timestamp.Time) {
				p.errorf("cell %d: history timestamps not increasing at entry %d", c.ID, j)
			}
			state := domain.CellRecord{MaxRefl: s.MaxRefl, NumGates: s.NumGates, Centroid: s.Centroid}
			if state.SameState(prev) {
				p.errorf("cell %d: history entry %d repeats the previous state", c.ID, j)
			}
		}
		if last, ok := c.LastSnapshot(); ok && !c.SameState(last) {
			p.errorf("cell %d: current state differs from newest history entry", c.ID)
		}
	}
	return p
}

func validateStateFile(store *statestore.FileStore, want []domain.CellRecord) *phase {
	p := &phase{name: "State file round trip"}
	got, err := store.Load(context.Background())
	if err != nil {
		p.errorf("load %s: %v", store.Path(), err)
		return p
	}
	if len(got) != len(want) {
		p.errorf("state file has %d cells, tracker has %d", len(got), len(want))
		return p
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.ID != w.ID || g.NumGates != w.NumGates || len(g.StormHistory) != len(w.StormHistory) {
			p.errorf("cell %d: state file differs from tracker", w.ID)
			continue
		}
		if last, ok := w.LastSnapshot(); ok && !g.SameState(last) {
			p.errorf("cell %d: stored summary differs from tracker", w.ID)
		}
		if g.Boundary.Len() != w.Boundary.Len() || g.HailCore.Len() != w.HailCore.Len() {
			p.errorf("cell %d: stored contours differ from tracker", w.ID)
		}
	}
	return p
}

func sortedKeys(m map[int][2]time.Time) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
