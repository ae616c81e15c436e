// Package track carries storm cells across frames: it reconciles freshly detected
// cells against the tracked set and appends their per-frame snapshots.
package track

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/couchcryptid/storm-cell-tracker/internal/domain"
)

// ErrMalformedDetections is returned when a fresh detection set cannot be matched
// by ID (non-positive or duplicate IDs).
var ErrMalformedDetections = errors.New("malformed detections")

// Tracker reconciles cell records between frames. It holds no state of its own;
// the tracked set is passed in and returned.
type Tracker struct {
	logger *slog.Logger
}

// New creates a Tracker.
func New(logger *slog.Logger) *Tracker {
	return &Tracker{logger: logger}
}

// Reconcile matches fresh detections to existing cells by ID.
//
// Existing cells whose ID is detected again take the fresh current state (gate count,
// centroid, peak, boundary, hail core) and keep their history. Existing cells that
// were not detected are dropped. Fresh cells with unseen IDs are appended, in fresh
// order, with an empty history. A place name is carried over unless the fresh record
// has its own.
//
// A malformed fresh set returns ErrMalformedDetections together with the existing
// records unchanged. An empty fresh set drops every cell.
func (t *Tracker) Reconcile(existing, fresh []domain.CellRecord) ([]domain.CellRecord, error) {
	byID := make(map[int]domain.CellRecord, len(fresh))
	for _, rec := range fresh {
		if rec.ID <= 0 {
			return existing, fmt.Errorf("%w: cell id %d", ErrMalformedDetections, rec.ID)
		}
		if _, dup := byID[rec.ID]; dup {
			return existing, fmt.Errorf("%w: duplicate cell id %d", ErrMalformedDetections, rec.ID)
		}
		byID[rec.ID] = rec
	}

	if len(fresh) == 0 && len(existing) > 0 {
		t.logger.Warn("no cells detected, dropping all tracked cells", "dropped", len(existing))
	}

	out := make([]domain.CellRecord, 0, len(fresh))
	consumed := make(map[int]bool, len(fresh))
	for _, old := range existing {
		rec, ok := byID[old.ID]
		if !ok {
			t.logger.Debug("cell dissipated", "cell_id", old.ID, "snapshots", len(old.StormHistory))
			continue
		}
		consumed[old.ID] = true

		updated := old
		updated.NumGates = rec.NumGates
		updated.Centroid = rec.Centroid
		updated.MaxRefl = rec.MaxRefl
		updated.Boundary = rec.Boundary
		updated.HailCore = rec.HailCore
		if rec.PlaceName != "" {
			updated.PlaceName = rec.PlaceName
		}
		out = append(out, updated)
	}

	for _, rec := range fresh {
		if consumed[rec.ID] {
			continue
		}
		rec.StormHistory = []domain.Snapshot{}
		t.logger.Debug("new cell", "cell_id", rec.ID, "num_gates", rec.NumGates)
		out = append(out, rec)
	}

	return out, nil
}

// AppendHistory records the current state of every cell as a snapshot at ts.
// A cell is left alone when its newest snapshot already has timestamp ts or the
// same peak, gate count, and centroid (undefined values compare equal).
// The input histories are not modified.
func (t *Tracker) AppendHistory(records []domain.CellRecord, ts time.Time) []domain.CellRecord {
	ts = ts.UTC()
	out := make([]domain.CellRecord, len(records))
	for i, rec := range records {
		out[i] = rec
		if last, ok := rec.LastSnapshot(); ok {
			if last.Timestamp.Equal(ts) || rec.SameState(last) {
				continue
			}
		}
		history := slices.Clone(rec.StormHistory)
		out[i].StormHistory = append(history, domain.Snapshot{
			ID:        rec.ID,
			Timestamp: domain.Timestamp{Time: ts},
			MaxRefl:   rec.MaxRefl,
			NumGates:  rec.NumGates,
			Centroid:  rec.Centroid,
		})
	}
	return out
}

// Latest returns the newest snapshot time across all records, or the zero time.
func Latest(records []domain.CellRecord) time.Time {
	var latest time.Time
	for _, rec := range records {
		if s, ok := rec.LastSnapshot(); ok && s.Timestamp.After(latest) {
			latest = s.Timestamp.Time
		}
	}
	return latest
}
