// Command genframe writes a sequence of synthetic radar frames with drifting
// storm cells. Each frame carries a reflectivity raster, a precipitation-type
// raster, and ProbSevere-style candidate polygons around each cell core, in the
// same message format the tracker consumes from Kafka.
//
// Usage:
//
//	go run ./cmd/genframe -out data/frames -frames 12 -cells 4
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/storm-cell-tracker/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Precipitation-type codes written to the precip raster.
const (
	precipNone = 0
	precipRain = 1
	precipHail = 7
)

// synthCell is a Gaussian reflectivity blob moving at constant velocity.
type synthCell struct {
	id       int
	lat, lon float64
	dLat     float64 // degrees per frame
	dLon     float64
	peak     float64 // dBZ
	sigma    float64 // degrees
}

type gridDef struct {
	rows, cols     int
	latMax, lonMin float64
	res            float64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out", "", "output directory for frame JSON files")
	frames := flag.Int("frames", 12, "number of frames to generate")
	cells := flag.Int("cells", 3, "number of storm cells")
	rows := flag.Int("rows", 120, "grid rows")
	cols := flag.Int("cols", 160, "grid columns")
	res := flag.Float64("res", 0.05, "grid spacing in degrees")
	latMax := flag.Float64("lat-max", 40, "latitude of the first row")
	lonMin := flag.Float64("lon-min", 260, "longitude of the first column, [0, 360)")
	interval := flag.Duration("interval", 2*time.Minute, "time between frames")
	start := flag.String("start", "2025-05-20T22:00:00Z", "first frame time (RFC 3339)")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	if *outDir == "" || *frames <= 0 || *cells <= 0 || *rows < 2 || *cols < 2 || *res <= 0 {
		flag.Usage()
		return fmt.Errorf("missing or invalid flags")
	}
	t0, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		return fmt.Errorf("parse -start: %w", err)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	g := gridDef{rows: *rows, cols: *cols, latMax: *latMax, lonMin: domain.NormalizeLon(*lonMin), res: *res}
	grid, err := g.build()
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	storms := seedCells(rng, g, *cells)

	for i := range *frames {
		ts := t0.Add(time.Duration(i) * *interval).UTC()
		name := fmt.Sprintf("MRMS_MergedReflectivityQC_3D_%s.json", ts.Format("20060102-150405"))

		data, err := renderFrame(grid, storms, ts, name)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		path := filepath.Join(*outDir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		log.Printf("%s: %d cells", name, len(storms))

		for j := range storms {
			storms[j].step(rng)
		}
	}

	log.Printf("wrote %d frames to %s", *frames, *outDir)
	return nil
}

func (g gridDef) build() (domain.Grid, error) {
	lat := make([]float64, g.rows)
	for i := range lat {
		lat[i] = g.latMax - float64(i)*g.res
	}
	lon := make([]float64, g.cols)
	for j := range lon {
		lon[j] = domain.NormalizeLon(g.lonMin + float64(j)*g.res)
	}
	return domain.NewGrid(g.rows, g.cols, lat, lon)
}

// seedCells places cells in the inner half of the grid, drifting east-northeast.
func seedCells(rng *rand.Rand, g gridDef, n int) []synthCell {
	height := float64(g.rows-1) * g.res
	width := float64(g.cols-1) * g.res
	storms := make([]synthCell, n)
	for i := range storms {
		storms[i] = synthCell{
			id:    i + 1,
			lat:   g.latMax - height*(0.25+0.5*rng.Float64()),
			lon:   g.lonMin + width*(0.25+0.5*rng.Float64()),
			dLat:  g.res * (0.2 + 0.4*rng.Float64()),
			dLon:  g.res * (0.8 + 0.8*rng.Float64()),
			peak:  50 + 15*rng.Float64(),
			sigma: g.res * (3 + 3*rng.Float64()),
		}
	}
	return storms
}

// step advances the cell one frame and lets its intensity wander.
func (c *synthCell) step(rng *rand.Rand) {
	c.lat += c.dLat
	c.lon += c.dLon
	c.peak = math.Max(35, math.Min(70, c.peak+rng.NormFloat64()*2))
}

func (c synthCell) reflectivity(lat, lon float64) float64 {
	dLon := domain.UnwrapLon(lon, c.lon) - c.lon
	d2 := (lat-c.lat)*(lat-c.lat) + dLon*dLon
	return c.peak * math.Exp(-d2/(2*c.sigma*c.sigma))
}

// core is the candidate polygon: a box of one sigma around the cell center.
func (c synthCell) core() orb.Polygon {
	lon := domain.NormalizeLon(c.lon)
	if lon >= 180 {
		lon -= 360
	}
	s := c.sigma
	return orb.Polygon{orb.Ring{
		{lon - s, c.lat - s},
		{lon + s, c.lat - s},
		{lon + s, c.lat + s},
		{lon - s, c.lat + s},
		{lon - s, c.lat - s},
	}}
}

func renderFrame(grid domain.Grid, storms []synthCell, ts time.Time, source string) ([]byte, error) {
	refl := make([]float64, grid.Size())
	precip := make([]float64, grid.Size())
	for row := range grid.Rows {
		for col := range grid.Cols {
			lat, lon := grid.At(row, col)
			v := 5.0
			for _, s := range storms {
				v = math.Max(v, s.reflectivity(lat, lon))
			}
			i := row*grid.Cols + col
			refl[i] = v
			switch {
			case v >= 55:
				precip[i] = precipHail
			case v >= 30:
				precip[i] = precipRain
			default:
				precip[i] = precipNone
			}
		}
	}

	reflRaster, err := domain.NewRaster(grid, refl)
	if err != nil {
		return nil, err
	}
	precipRaster, err := domain.NewRaster(grid, precip)
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for _, s := range storms {
		f := geojson.NewFeature(s.core())
		f.Properties["ID"] = s.id
		f.Properties["MAXRC_EMISS"] = fmt.Sprintf("%.1f", s.peak)
		fc.Append(f)
	}
	regions, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode regions: %w", err)
	}

	return domain.EncodeFrame(domain.Frame{
		Timestamp:    ts,
		Source:       source,
		Reflectivity: reflRaster,
		PrecipType:   &precipRaster,
	}, regions)
}
