// Package domain models radar frames, candidate storm polygons, and tracked storm cells.
//
// # Data Sources
//
// Reflectivity comes from MRMS composite products (dBZ) on a regular lat/lon
// grid. Candidate polygons come from NOAA/CIMSS ProbSevere GeoJSON, one feature
// per storm object with a numeric "ID" property that is stable across scans.
// The optional precipitation-type raster is the MRMS PrecipFlag product, whose
// code 7 marks hail.
//
// # Conventions
//
// Longitude:
//
//	Every grid and polygon longitude is normalized to [0, 360) before any spatial
//	comparison. ProbSevere ships [-180, 180) and MRMS ships [0, 360); mixing the two
//	silently drops every containment test, so normalization happens at the edges
//	(NewGrid, the mapper) and centroids are wrapped back into [0, 360).
//
// Grids:
//
//	Rasters are row-major. Coordinates are either 1D axes (one latitude per row,
//	one longitude per column) or 2D arrays with one coordinate per gate.
//
// Undefined values:
//
//	Missing samples are NaN. A cell whose owned gates are all NaN has an undefined
//	centroid (NaN, NaN) and peak reflectivity. These serialize as JSON null and decode
//	back to NaN.
//
// Timestamps:
//
//	Frame time comes from the frame message, else from the source file name
//	("YYYYMMDD-HHMMSS" as used by MRMS, or the GOES "sYYYYDDDHHMMSS" stamp), else from
//	the transport timestamp. History timestamps serialize as RFC 3339; zone-less
//	ISO-8601 strings are accepted on read and treated as UTC.
//
// # Cell Lifecycle
//
// A cell is created the first time its ID appears with at least one owned gate,
// updated in place while the ID keeps appearing, and dropped as soon as a frame's
// detections no longer contain it. See package track.
package domain
