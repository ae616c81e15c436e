package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInputMissing marks a frame whose required raster or coordinate data is absent
// or inconsistent. The whole detection pass for that frame is skipped.
var ErrInputMissing = errors.New("input missing")

// RawFrame is an undecoded frame message from the source topic.
type RawFrame struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// frameMessage is the wire form of a frame.
type frameMessage struct {
	Timestamp    *Timestamp      `json:"timestamp,omitempty"`
	Source       string          `json:"source"`
	Grid         gridMessage     `json:"grid"`
	Reflectivity []Float         `json:"reflectivity"`
	PrecipType   []Float         `json:"precip_type,omitempty"`
	Regions      json.RawMessage `json:"regions"`
}

type gridMessage struct {
	Rows      int       `json:"rows"`
	Cols      int       `json:"cols"`
	Latitude  []float64 `json:"latitude"`
	Longitude []float64 `json:"longitude"`
}

// Frame is one fully materialized radar scan with its candidate regions.
type Frame struct {
	Timestamp    time.Time
	Source       string
	Reflectivity Raster
	// PrecipType holds categorical precipitation codes on the same grid; nil when absent.
	PrecipType *Raster
	Regions    []CandidateRegion
}

// ParseFrame decodes a frame message. The frame time comes from the message's
// timestamp field, else from the source filename, else from the transport timestamp.
func ParseFrame(raw RawFrame) (Frame, error) {
	var msg frameMessage
	if err := json.Unmarshal(raw.Value, &msg); err != nil {
		return Frame{}, fmt.Errorf("parse frame: %w", err)
	}
	if len(msg.Reflectivity) == 0 {
		return Frame{}, fmt.Errorf("parse frame: %w: no reflectivity data", ErrInputMissing)
	}

	grid, err := NewGrid(msg.Grid.Rows, msg.Grid.Cols, msg.Grid.Latitude, msg.Grid.Longitude)
	if err != nil {
		return Frame{}, fmt.Errorf("parse frame: %w", err)
	}
	refl, err := NewRaster(grid, toFloat64s(msg.Reflectivity))
	if err != nil {
		return Frame{}, fmt.Errorf("parse frame reflectivity: %w", err)
	}

	frame := Frame{
		Timestamp:    frameTime(msg, raw),
		Source:       msg.Source,
		Reflectivity: refl,
	}

	if len(msg.PrecipType) > 0 {
		pt, err := NewRaster(grid, toFloat64s(msg.PrecipType))
		if err != nil {
			return Frame{}, fmt.Errorf("parse frame precip type: %w", err)
		}
		frame.PrecipType = &pt
	}

	if len(msg.Regions) > 0 && string(msg.Regions) != "null" {
		regions, err := ParseCandidateRegions(msg.Regions)
		if err != nil {
			return Frame{}, fmt.Errorf("parse frame: %w", err)
		}
		frame.Regions = regions
	}

	return frame, nil
}

func frameTime(msg frameMessage, raw RawFrame) time.Time {
	if msg.Timestamp != nil && !msg.Timestamp.IsZero() {
		return msg.Timestamp.UTC()
	}
	if msg.Source != "" {
		if ts, ok := parseFilenameTimestamp(msg.Source); ok {
			return ts
		}
	}
	if !raw.Timestamp.IsZero() {
		return raw.Timestamp.UTC()
	}
	return clock.Now().UTC()
}

func toFloat64s(in []Float) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// Restrict subsets the frame's rasters to the window and drops candidate regions
// with no vertex inside it.
func (f Frame) Restrict(w Window) (Frame, error) {
	if w.IsZero() {
		return f, nil
	}
	refl, err := w.Subset(f.Reflectivity)
	if err != nil {
		return Frame{}, err
	}
	out := f
	out.Reflectivity = refl
	if f.PrecipType != nil {
		pt, err := w.Subset(*f.PrecipType)
		if err != nil {
			return Frame{}, err
		}
		out.PrecipType = &pt
	}
	out.Regions = FilterRegions(f.Regions, w)
	return out, nil
}

// Validate checks that the frame is complete enough for a detection pass.
func (f Frame) Validate() error {
	r := f.Reflectivity
	if r.Rows <= 0 || r.Cols <= 0 || len(r.Values) != r.Size() {
		return fmt.Errorf("%w: reflectivity raster empty or misshapen", ErrInputMissing)
	}
	if f.PrecipType != nil {
		pt := f.PrecipType
		if pt.Rows != r.Rows || pt.Cols != r.Cols || len(pt.Values) != r.Size() {
			return fmt.Errorf("%w: precip type raster %dx%d does not match reflectivity %dx%d",
				ErrInputMissing, pt.Rows, pt.Cols, r.Rows, r.Cols)
		}
	}
	if f.Timestamp.IsZero() {
		return fmt.Errorf("%w: frame has no timestamp", ErrInputMissing)
	}
	return nil
}

// EncodeFrame produces the wire form of a frame. Used by fixture generators and tests.
func EncodeFrame(f Frame, regionsGeoJSON []byte) ([]byte, error) {
	ts := Timestamp{Time: f.Timestamp}
	msg := frameMessage{
		Timestamp: &ts,
		Source:    f.Source,
		Grid: gridMessage{
			Rows:      f.Reflectivity.Rows,
			Cols:      f.Reflectivity.Cols,
			Latitude:  f.Reflectivity.Lat,
			Longitude: f.Reflectivity.Lon,
		},
		Reflectivity: toFloats(f.Reflectivity.Values),
		Regions:      regionsGeoJSON,
	}
	if f.PrecipType != nil {
		msg.PrecipType = toFloats(f.PrecipType.Values)
	}
	return json.Marshal(msg)
}

func toFloats(in []float64) []Float {
	out := make([]Float, len(in))
	for i, v := range in {
		out[i] = Float(v)
	}
	return out
}
