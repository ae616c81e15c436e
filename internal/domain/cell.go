package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ErrCorruptState marks a persisted cell set that exists but cannot be decoded.
var ErrCorruptState = errors.New("corrupt cell state")

// LatLon is a (latitude, longitude) pair. It serializes as a two-element
// array; undefined components (NaN) are written as null.
type LatLon struct {
	Lat float64
	Lon float64
}

// UndefinedLatLon is the centroid sentinel for regions with no valid samples.
func UndefinedLatLon() LatLon {
	return LatLon{Lat: math.NaN(), Lon: math.NaN()}
}

// IsUndefined reports whether either component is NaN.
func (p LatLon) IsUndefined() bool {
	return math.IsNaN(p.Lat) || math.IsNaN(p.Lon)
}

// Equal compares two points, treating NaN as equal to NaN.
func (p LatLon) Equal(q LatLon) bool {
	return sameFloat(p.Lat, q.Lat) && sameFloat(p.Lon, q.Lon)
}

func (p LatLon) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	buf.Write(formatFloat(p.Lat))
	buf.WriteByte(',')
	buf.Write(formatFloat(p.Lon))
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (p *LatLon) UnmarshalJSON(data []byte) error {
	var pair []Float
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode lat/lon pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("decode lat/lon pair: want 2 values, got %d", len(pair))
	}
	p.Lat, p.Lon = float64(pair[0]), float64(pair[1])
	return nil
}

// Float is a float64 that encodes NaN and infinities as JSON null and decodes null as NaN.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	return formatFloat(float64(f)), nil
}

func (f *Float) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = Float(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

func formatFloat(v float64) []byte {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null")
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64)
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b
}

// Contour is an ordered boundary vertex sequence. Exterior boundaries run
// clockwise in index space (row increasing downward, column increasing to the
// right); the ring is implicitly closed and the first vertex is not repeated.
// Treat it as immutable: use Points to obtain a copy.
type Contour struct {
	points []LatLon
}

// NewContour copies points into a Contour.
func NewContour(points []LatLon) Contour {
	if len(points) == 0 {
		return Contour{}
	}
	cp := make([]LatLon, len(points))
	copy(cp, points)
	return Contour{points: cp}
}

// Len is the number of vertices.
func (c Contour) Len() int { return len(c.points) }

// Points returns a copy of the vertices.
func (c Contour) Points() []LatLon {
	cp := make([]LatLon, len(c.points))
	copy(cp, c.points)
	return cp
}

func (c Contour) MarshalJSON() ([]byte, error) {
	if c.points == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.points)
}

func (c *Contour) UnmarshalJSON(data []byte) error {
	var pts []LatLon
	if err := json.Unmarshal(data, &pts); err != nil {
		return fmt.Errorf("decode contour: %w", err)
	}
	*c = NewContour(pts)
	return nil
}

// Timestamp serializes as RFC 3339 with sub-second precision when present. It also accepts zone-less timestamps
// ("2006-01-02T15:04:05"), which are read as UTC.
type Timestamp struct {
	time.Time
}

const isoNoZone = "2006-01-02T15:04:05"

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode timestamp: %w", err)
	}
	for _, layout := range []string{time.RFC3339Nano, isoNoZone, "2006-01-02T15:04:05.999999"} {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("decode timestamp: unrecognized layout %q", s)
}

// Snapshot is one historical entry of a cell's summary statistics.
type Snapshot struct {
	ID        int       `json:"id"`
	Timestamp Timestamp `json:"timestamp"`
	MaxRefl   Float     `json:"max_refl"`
	NumGates  int       `json:"num_gates"`
	Centroid  LatLon    `json:"centroid"`
}

// CellRecord is a detected storm cell: its current state plus its history.
type CellRecord struct {
	ID           int        `json:"id"`
	NumGates     int        `json:"num_gates"`
	Centroid     LatLon     `json:"centroid"`
	Boundary     Contour    `json:"bbox"`
	HailCore     Contour    `json:"hail_core"`
	MaxRefl      Float      `json:"max_refl"`
	StormHistory []Snapshot `json:"storm_history"`

	// Optional geocoding enrichment of the centroid.
	PlaceName string `json:"place_name,omitempty"`
}

// SameState reports whether the record's summary statistics match a snapshot.
func (c CellRecord) SameState(s Snapshot) bool {
	return sameFloat(float64(c.MaxRefl), float64(s.MaxRefl)) &&
		c.NumGates == s.NumGates &&
		c.Centroid.Equal(s.Centroid)
}

// LastSnapshot returns the newest history entry.
func (c CellRecord) LastSnapshot() (Snapshot, bool) {
	if len(c.StormHistory) == 0 {
		return Snapshot{}, false
	}
	return c.StormHistory[len(c.StormHistory)-1], true
}
